package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHTTPLimiter(t *testing.T) (*HTTPLimiter, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewHTTPLimiter(rc), mr
}

func TestHTTPLimiter_Middleware_AllowsWithinCapacity(t *testing.T) {
	l, mr := newTestHTTPLimiter(t)
	defer mr.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	rule := Rule{Scope: "test", Capacity: 3, Rate: 1.0 / 60}
	r.Use(l.Middleware(rule))
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest("GET", "/test", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "3", resp.Header().Get("X-RateLimit-Limit"))
	}

	req, _ := http.NewRequest("GET", "/test", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("X-RateLimit-Retry-After"))
}

func TestHTTPLimiter_PrincipalPrefersAuthenticatedUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request, _ = http.NewRequest("GET", "/", nil)
	c.Request.Header.Set("X-Real-IP", "1.2.3.4")
	c.Set("user_id", "u-42")

	assert.Equal(t, "user:u-42", Principal(c))
}

func TestHTTPLimiter_PrincipalFallsBackToRealIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request, _ = http.NewRequest("GET", "/", nil)
	c.Request.Header.Set("X-Real-IP", "1.2.3.4")

	assert.Equal(t, "ip:1.2.3.4", Principal(c))
}

func TestHTTPLimiter_FailsOpenWhenRedisDown(t *testing.T) {
	l, mr := newTestHTTPLimiter(t)
	mr.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(l.Middleware(Rule{Scope: "test", Capacity: 1, Rate: 1}))
	r.GET("/fail-open", func(c *gin.Context) { c.Status(http.StatusOK) })

	req, _ := http.NewRequest("GET", "/fail-open", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestHTTPLimiter_NilClientFailsOpen(t *testing.T) {
	l := NewHTTPLimiter(nil)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(l.Middleware(Rule{Scope: "test", Capacity: 1, Rate: 1}))
	r.GET("/nil-client", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest("GET", "/nil-client", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
	}
}
