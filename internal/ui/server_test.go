package ui

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerRendersToken(t *testing.T) {
	w := httptest.NewRecorder()
	Handler(nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?token=abc", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `const token = "abc";`)
	assert.Contains(t, w.Body.String(), "/api/recording/")
}

func TestHandlerEscapesToken(t *testing.T) {
	w := httptest.NewRecorder()
	Handler(nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?token=%3C%2Fscript%3E", nil))
	assert.NotContains(t, w.Body.String(), `"</script>"`)
}

func TestHandlerRejectsPost(t *testing.T) {
	w := httptest.NewRecorder()
	Handler(nil).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:18181/", URL(18181, ""))
	assert.Equal(t, "http://127.0.0.1:9/?token=a+b", URL(9, "a b"))
}
