package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucket_ConsumeWithinCapacity(t *testing.T) {
	now := time.Now()
	b := NewTokenBucket(10, 1.0, now)

	for i := 0; i < 10; i++ {
		ok, wait := b.Consume(1, now)
		assert.True(t, ok)
		assert.Zero(t, wait)
	}

	ok, wait := b.Consume(1, now)
	assert.False(t, ok)
	assert.InDelta(t, 1.0, wait, 0.01)
}

func TestTokenBucket_RefillsOverTime(t *testing.T) {
	now := time.Now()
	b := NewTokenBucket(10, 1.0, now)

	for i := 0; i < 10; i++ {
		b.Consume(1, now)
	}

	later := now.Add(5 * time.Second)
	ok, _ := b.Consume(1, later)
	assert.True(t, ok, "5 tokens should have refilled after 5s at 1 tok/s")
}

func TestTokenBucket_NeverExceedsCapacity(t *testing.T) {
	now := time.Now()
	b := NewTokenBucket(10, 1.0, now)

	much := now.Add(1 * time.Hour)
	ok, _ := b.Consume(1, much)
	assert.True(t, ok)
	assert.LessOrEqual(t, b.Tokens, b.Capacity)
}

func TestNewTokenBucketForEvent_MatchesAxisTable(t *testing.T) {
	now := time.Now()

	msg := NewTokenBucketForEvent(EventMessage, now)
	assert.Equal(t, 10.0, msg.Capacity)
	assert.Equal(t, 1.0, msg.RefillRate)

	typing := NewTokenBucketForEvent(EventTyping, now)
	assert.Equal(t, 5.0, typing.Capacity)
	assert.Equal(t, 0.5, typing.RefillRate)

	roomAction := NewTokenBucketForEvent(EventRoomAction, now)
	assert.Equal(t, 20.0, roomAction.Capacity)
	assert.Equal(t, 0.33, roomAction.RefillRate)
}
