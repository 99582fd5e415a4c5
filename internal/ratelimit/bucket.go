// Package ratelimit implements the token-bucket core shared by the
// in-process socket limiter (Hub) and the shared-store HTTP limiter (edge
// services). Both enforcement points consume the same algorithm; they
// differ only in where the bucket state lives.
package ratelimit

import (
	"math"
	"time"
)

// EventType identifies which axis of the in-process socket limiter a frame
// is checked against.
type EventType string

const (
	EventMessage    EventType = "message"
	EventTyping     EventType = "typing"
	EventRoomAction EventType = "room_action"
)

// axis holds the capacity and refill rate (tokens/second) for one EventType.
type axis struct {
	capacity float64
	rate     float64
}

var axes = map[EventType]axis{
	EventMessage:    {capacity: 10, rate: 1.0},
	EventTyping:     {capacity: 5, rate: 0.5},
	EventRoomAction: {capacity: 20, rate: 0.33},
}

// TokenBucket is the (tokens, last_refill) pair from the spec's data model.
// It is not safe for concurrent use by itself. SocketLimiter guards its
// buckets with a mutex; the HTTP limiter loads, consumes and stores a
// bucket in separate Redis calls, so concurrent requests for one key are
// not serialized.
type TokenBucket struct {
	Tokens     float64   `json:"tokens"`
	Capacity   float64   `json:"capacity"`
	RefillRate float64   `json:"refill_rate"`
	LastRefill time.Time `json:"last_refill"`
}

// NewTokenBucket starts a bucket full at capacity, as a freshly-seen
// principal should not be punished for bursting once.
func NewTokenBucket(capacity, refillRate float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		Tokens:     capacity,
		Capacity:   capacity,
		RefillRate: refillRate,
		LastRefill: now,
	}
}

// NewTokenBucketForEvent builds a TokenBucket sized per the spec's
// capacity/refill table for a socket event axis.
func NewTokenBucketForEvent(event EventType, now time.Time) *TokenBucket {
	a := axes[event]
	return NewTokenBucket(a.capacity, a.rate, now)
}

func (b *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.LastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.Tokens = math.Min(b.Capacity, b.Tokens+elapsed*b.RefillRate)
	b.LastRefill = now
}

// Consume attempts to withdraw n tokens at time now. On success it returns
// (true, 0). On failure it returns (false, retryAfterSeconds) — the ceiling
// of the wait until n tokens would be available.
func (b *TokenBucket) Consume(n float64, now time.Time) (bool, float64) {
	b.refill(now)
	if b.Tokens >= n {
		b.Tokens -= n
		return true, 0
	}
	needed := n - b.Tokens
	retryAfter := math.Ceil(needed / b.RefillRate)
	return false, retryAfter
}
