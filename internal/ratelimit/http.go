package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chatcluster/chat/internal/logging"
	"github.com/chatcluster/chat/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// bucketTTL caps how long an idle bucket lingers in the shared store. A
// bucket that has not been touched for this long has certainly refilled to
// capacity, so dropping it costs nothing but memory.
const bucketTTL = 10 * time.Minute

// HTTPLimiter is the shared-store rate limiter used by edge services
// (chat's own HTTP API, auth login, the payment gateway). State lives in
// Redis as JSON so every instance sharing the store enforces the same
// limit for a given principal.
type HTTPLimiter struct {
	client *redis.Client
}

// NewHTTPLimiter wraps an existing Redis client. A nil client is valid and
// causes every check to fail open (useful for local dev without Redis).
func NewHTTPLimiter(client *redis.Client) *HTTPLimiter {
	return &HTTPLimiter{client: client}
}

// Rule describes one limiter axis: a scope name (used in the storage key
// and metrics), a capacity, and a refill rate in tokens/second.
type Rule struct {
	Scope    string
	Capacity float64
	Rate     float64
}

func storeKey(scope, principal, path string) string {
	return fmt.Sprintf("rate_limit:%s:%s:%s", scope, principal, path)
}

// check loads the bucket for (scope, principal, path), consumes one token,
// and writes it back. Redis errors fail open: the request is allowed and
// the error is logged, per the spec's fail-open requirement for rate-limit
// store failures.
func (l *HTTPLimiter) check(ctx context.Context, rule Rule, principal, path string) (allowed bool, remaining float64, retryAfter float64) {
	if l == nil || l.client == nil {
		return true, rule.Capacity, 0
	}

	key := storeKey(rule.Scope, principal, path)
	now := time.Now()

	raw, err := l.client.Get(ctx, key).Result()
	var bucket *TokenBucket
	switch {
	case err == redis.Nil:
		bucket = NewTokenBucket(rule.Capacity, rule.Rate, now)
	case err != nil:
		logging.Error(ctx, "rate limit store read failed, failing open", zap.String("key", key), zap.Error(err))
		return true, rule.Capacity, 0
	default:
		bucket = &TokenBucket{}
		if jsonErr := json.Unmarshal([]byte(raw), bucket); jsonErr != nil {
			bucket = NewTokenBucket(rule.Capacity, rule.Rate, now)
		}
	}

	ok, wait := bucket.Consume(1, now)

	data, err := json.Marshal(bucket)
	if err != nil {
		logging.Error(ctx, "rate limit bucket marshal failed, failing open", zap.Error(err))
		return true, bucket.Tokens, 0
	}
	if err := l.client.Set(ctx, key, data, bucketTTL).Err(); err != nil {
		logging.Error(ctx, "rate limit store write failed, failing open", zap.String("key", key), zap.Error(err))
		return true, bucket.Tokens, 0
	}

	return ok, bucket.Tokens, wait
}

// Principal resolves the identity a rule is keyed on: the authenticated
// user id if present in gin's context (set by the JWT middleware), else
// the source IP — preferring X-Real-IP, then the first hop of
// X-Forwarded-For, else the socket peer address.
func Principal(c *gin.Context) string {
	if uid, ok := c.Get("user_id"); ok {
		if s, ok := uid.(string); ok && s != "" {
			return "user:" + s
		}
	}

	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return "ip:" + ip
	}
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return "ip:" + first
		}
	}
	return "ip:" + c.ClientIP()
}

// Middleware returns a gin middleware enforcing rule for every request
// through it, keyed by Principal(c) and the matched route path.
func (l *HTTPLimiter) Middleware(rule Rule) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := Principal(c)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		allowed, remaining, retryAfter := l.check(c.Request.Context(), rule, principal, path)

		c.Header("X-RateLimit-Limit", strconv.FormatInt(int64(rule.Capacity), 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(int64(remaining), 10))

		if !allowed {
			metrics.RateLimitExceeded.WithLabelValues(rule.Scope, "socket_or_http").Inc()
			c.Header("X-RateLimit-Retry-After", strconv.FormatInt(int64(retryAfter), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":               "rate limit exceeded",
				"retry_after_seconds": retryAfter,
				"limit":               rule.Capacity,
				"remaining":           remaining,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(rule.Scope).Inc()
		c.Next()
	}
}

// Common edge-service rules. auth login is deliberately stricter than the
// general API since it's the target of credential-stuffing.
var (
	RuleAPIDefault = Rule{Scope: "api", Capacity: 100, Rate: 100.0 / 60}
	RuleAuthLogin  = Rule{Scope: "auth_login", Capacity: 5, Rate: 5.0 / 60}
	RulePayment    = Rule{Scope: "payment", Capacity: 20, Rate: 20.0 / 60}
)
