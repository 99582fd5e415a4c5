package ratelimit

import (
	"sync"
	"time"
)

// SocketLimiter is the in-process per-(user_id, event_type) token bucket
// limiter owned by the Hub. Check is called from session goroutines (via
// Hub.CheckRateLimit) while Cleanup runs on the Hub's goroutine, so it
// guards its own map.
type SocketLimiter struct {
	mu      sync.Mutex
	buckets map[string]map[EventType]*TokenBucket
}

// NewSocketLimiter returns an empty limiter.
func NewSocketLimiter() *SocketLimiter {
	return &SocketLimiter{
		buckets: make(map[string]map[EventType]*TokenBucket),
	}
}

// Check consumes one token for (userID, event) at time now. It returns true
// if the event is allowed, or false plus the number of seconds the caller
// should wait before retrying.
func (l *SocketLimiter) Check(userID string, event EventType, now time.Time) (bool, float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	perUser, ok := l.buckets[userID]
	if !ok {
		perUser = make(map[EventType]*TokenBucket)
		l.buckets[userID] = perUser
	}

	bucket, ok := perUser[event]
	if !ok {
		bucket = NewTokenBucketForEvent(event, now)
		perUser[event] = bucket
	}

	return bucket.Consume(1, now)
}

// Cleanup drops bucket state for any user not present in activeUsers. The
// Hub calls this every 60s with its current session table so memory does
// not grow unbounded across user churn.
func (l *SocketLimiter) Cleanup(activeUsers map[string]bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for userID := range l.buckets {
		if !activeUsers[userID] {
			delete(l.buckets, userID)
		}
	}
}
