package recorder

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keytrail/internal/input"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestHistoryStateMachine(t *testing.T) {
	h := NewHistory(nil)
	assert.Equal(t, Idle, h.State())
	assert.NotEmpty(t, h.ID())

	assert.False(t, h.Stop(), "stop from IDLE is a no-op")
	assert.Equal(t, Idle, h.State())

	assert.True(t, h.Start())
	assert.False(t, h.Start(), "start while RECORDING is a no-op")
	assert.Equal(t, Recording, h.State())

	assert.True(t, h.Stop())
	assert.False(t, h.Stop())
	assert.Equal(t, Stopped, h.State())

	assert.True(t, h.Start(), "STOPPED can resume")
	assert.Equal(t, Recording, h.State())
}

func TestHistoryAddOnlyWhileRecording(t *testing.T) {
	h := NewHistory(nil)
	assert.ErrorIs(t, h.Add(Motion{At: t0}), ErrNotRecording)

	h.Start()
	require.NoError(t, h.Add(Motion{At: t0, X: 1}))
	h.Stop()
	assert.ErrorIs(t, h.Add(Motion{At: t0, X: 2}), ErrNotRecording)

	assert.Equal(t, []Move{Motion{At: t0, X: 1}}, h.Moves())
}

func TestHistoryResumeKeepsMoves(t *testing.T) {
	h := NewHistory(nil)
	h.Start()
	require.NoError(t, h.Add(Motion{At: t0}))
	h.Stop()
	h.Start()
	require.NoError(t, h.Add(Motion{At: t0.Add(time.Second)}))
	assert.Equal(t, 2, h.Len())
}

func TestHistoryMovesIsCopy(t *testing.T) {
	h := NewHistory(nil)
	h.Start()
	require.NoError(t, h.Add(Motion{At: t0, X: 1}))

	moves := h.Moves()
	moves[0] = Motion{X: 99}
	assert.Equal(t, Motion{At: t0, X: 1}, h.Moves()[0])
}

func TestHistoryFilterOut(t *testing.T) {
	h := NewHistory(nil)
	h.Start()
	in := []Move{
		Click{At: t0, X: 1, Y: 1, Button: input.ButtonLeft, Pressed: true},
		Motion{At: t0, X: 2, Y: 2},
		Click{At: t0, X: 1, Y: 1, Button: input.ButtonLeft, Pressed: false},
		KeyDown{At: t0, Code: "a"},
		Scroll{At: t0, DY: 1},
	}
	for _, m := range in {
		require.NoError(t, h.Add(m))
	}
	h.Stop()

	assert.Equal(t, 2, h.Count(MouseClick))
	assert.Equal(t, 2, h.FilterOut(MouseClick))
	assert.Equal(t, 0, h.Count(MouseClick))
	assert.Equal(t, []Move{in[1], in[3], in[4]}, h.Moves())
	assert.Equal(t, 0, h.FilterOut(MouseClick))
}

func TestHistoryInfo(t *testing.T) {
	clock := newFakeClock(t0)
	h := newHistory(nil, clock.Now)

	info := h.Info()
	assert.Equal(t, Idle, info.State)
	assert.True(t, info.StartedAt.IsZero())

	h.Start()
	clock.Advance(time.Minute)
	h.Stop()

	info = h.Info()
	assert.Equal(t, t0, info.StartedAt)
	assert.Equal(t, t0.Add(time.Minute), info.StoppedAt)

	raw, err := json.Marshal(info)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"state":"STOPPED"`)
}

func TestHistoryRestore(t *testing.T) {
	h := NewHistory(nil)
	prev := h.mark()
	h.Start()
	h.restore(prev)
	assert.Equal(t, Idle, h.State())
	assert.True(t, h.Info().StartedAt.IsZero())
}

func TestStateText(t *testing.T) {
	var s State
	require.NoError(t, s.UnmarshalText([]byte("recording")))
	assert.Equal(t, Recording, s)
	assert.Error(t, s.UnmarshalText([]byte("paused")))
}
