package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeCounter struct{ n int }

func (f fakeCounter) ConnectionCount() int { return f.n }

func TestLiveness_NilBus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(nil, fakeCounter{n: 3}, "chatd-1")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health", nil)

	handler.Liveness(c)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "alive")
	assert.Contains(t, body, "healthy")
	assert.Contains(t, body, "chatd-1")
	assert.Contains(t, body, `"ws_connections":3`)
}

func TestLiveness_NilConnectionCounter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(nil, nil, "chatd-1")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health", nil)

	handler.Liveness(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ws_connections":0`)
}
