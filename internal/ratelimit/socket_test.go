package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSocketLimiter_BurstThenThrottle(t *testing.T) {
	l := NewSocketLimiter()
	now := time.Now()

	for i := 0; i < 10; i++ {
		ok, _ := l.Check("user-1", EventMessage, now)
		assert.True(t, ok, "message %d should be within burst capacity", i)
	}

	ok, retryAfter := l.Check("user-1", EventMessage, now)
	assert.False(t, ok)
	assert.InDelta(t, 1.0, retryAfter, 0.01)
}

func TestSocketLimiter_AxesAreIndependentPerUser(t *testing.T) {
	l := NewSocketLimiter()
	now := time.Now()

	for i := 0; i < 10; i++ {
		l.Check("user-1", EventMessage, now)
	}

	ok, _ := l.Check("user-1", EventTyping, now)
	assert.True(t, ok, "typing bucket is independent of the message bucket")

	ok, _ = l.Check("user-2", EventMessage, now)
	assert.True(t, ok, "message bucket is independent per user")
}

func TestSocketLimiter_Cleanup(t *testing.T) {
	l := NewSocketLimiter()
	now := time.Now()

	l.Check("user-1", EventMessage, now)
	l.Check("user-2", EventMessage, now)

	l.Cleanup(map[string]bool{"user-1": true})

	l.mu.Lock()
	_, stillHas1 := l.buckets["user-1"]
	_, stillHas2 := l.buckets["user-2"]
	l.mu.Unlock()

	assert.True(t, stillHas1)
	assert.False(t, stillHas2)
}
