package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader is the header edge clients present to pass the outermost
// gate before rate limiting and JWT validation run.
const APIKeyHeader = "X-API-Key"

// APIKey returns a gin middleware that rejects requests whose X-API-Key
// header is absent or not in allowedKeys. An empty allowedKeys list
// disables the gate entirely (useful for local dev).
func APIKey(allowedKeys []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedKeys))
	for _, k := range allowedKeys {
		allowed[k] = struct{}{}
	}

	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Next()
			return
		}

		key := c.GetHeader(APIKeyHeader)
		if _, ok := allowed[key]; !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid API key"})
			return
		}

		c.Next()
	}
}
