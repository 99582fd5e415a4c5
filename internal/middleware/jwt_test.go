package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chatcluster/chat/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "this-is-a-very-long-secret-key-for-testing-purposes"

func signedToken(t *testing.T) string {
	t.Helper()
	claims := &auth.CustomClaims{UserID: "7", RegisteredClaims: jwt.RegisteredClaims{Subject: "u@example.com"}}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func TestJWT_RejectsMissingToken(t *testing.T) {
	v, err := auth.NewValidator(testSecret)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWT(v))
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req, _ := http.NewRequest("GET", "/test", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestJWT_AcceptsBearerHeader(t *testing.T) {
	v, err := auth.NewValidator(testSecret)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWT(v))
	r.GET("/test", func(c *gin.Context) {
		uid, _ := c.Get("user_id")
		assert.Equal(t, "7", uid)
		c.Status(http.StatusOK)
	})

	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestJWT_AcceptsQueryToken(t *testing.T) {
	v, err := auth.NewValidator(testSecret)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWT(v))
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })

	req, _ := http.NewRequest("GET", "/ws?token="+signedToken(t), nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
}
