package middleware

import (
	"net/http"
	"strings"

	"github.com/chatcluster/chat/internal/auth"
	"github.com/gin-gonic/gin"
)

// ExtractToken pulls a bearer token from the Authorization header, falling
// back to a ?token= query parameter so WebSocket upgrade requests (which
// cannot set arbitrary headers from a browser) can authenticate too.
func ExtractToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
		return h
	}
	return c.Query("token")
}

// JWT returns a gin middleware that validates the request's bearer token
// and attaches the claims plus a convenience "user_id" key to the request
// context. Absent, malformed, or expired tokens yield 401.
func JWT(validator *auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ExtractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := validator.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set("claims", claims)
		c.Set("user_id", claims.UserID)
		c.Next()
	}
}
