// Package cache is a typed wrapper over the shared Redis store for the
// small set of non-pub/sub, non-rate-limit keys the chat core needs:
// currently just per-user last-seen timestamps.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const lastSeenTTL = 30 * 24 * time.Hour

// Store wraps a Redis client with the key conventions the chat core uses
// outside of the pub/sub bus and the rate limiter (which own their own key
// spaces in internal/bus and internal/ratelimit respectively).
type Store struct {
	client *redis.Client
}

// NewStore wraps client. A nil client is valid: every method becomes a
// no-op, which keeps the Hub usable in tests and single-process
// deployments that run without Redis.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func lastSeenKey(userID string) string { return "user:" + userID + ":last_seen" }

// SetLastSeen records when userID's last session disconnected, with a
// 30-day TTL so the key self-expires for inactive users.
func (s *Store) SetLastSeen(ctx context.Context, userID string, at time.Time) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Set(ctx, lastSeenKey(userID), at.UTC().Format(time.RFC3339), lastSeenTTL).Err()
}

// LastSeen returns userID's last-seen timestamp, or the zero time if it
// has expired or was never recorded (the user has never disconnected). A
// reconnect does not clear it, so an online user can still have a value.
func (s *Store) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	if s == nil || s.client == nil {
		return time.Time{}, nil
	}
	val, err := s.client.Get(ctx, lastSeenKey(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, val)
}
