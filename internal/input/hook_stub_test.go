//go:build !windows

package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHookUnsupported(t *testing.T) {
	h := NewHook(nil)
	assert.ErrorIs(t, h.Subscribe(Handlers{}), ErrUnsupported)
	assert.NoError(t, h.Unsubscribe())
}
