// Package bus carries WebSocket events between chat service instances over
// Redis pub/sub so a message sent to an instance that does not hold the
// recipient's socket still reaches them.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chatcluster/chat/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// RoomChannelPattern and UserChannelPattern are the PSUBSCRIBE patterns the
// PubSub Bridge uses to catch every room and every user channel with one
// subscription.
const (
	RoomChannelPattern = "chat:room:*"
	UserChannelPattern = "chat:user:*"
)

// PubSubPayload is the standardized envelope moved between instances.
type PubSubPayload struct {
	RoomID   string          `json:"roomId,omitempty"`
	Event    string          `json:"event"`
	Payload  json.RawMessage `json:"payload"`
	SenderID string          `json:"senderId"`
	Roles    []string        `json:"roles,omitempty"`
}

// Service handles pub/sub fan-out over the Redis cluster and offers small
// set helpers (SetAdd, SetRem, SetMembers); the Hub keeps presence in
// memory and does not call the set helpers.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// Client returns the underlying Redis client.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService creates a Redis connection wrapped in a circuit breaker so a
// Redis outage makes publishes fail fast (and be dropped) instead of
// cascading into the rest of the service.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	slog.Info("connected to redis pub/sub", "addr", addr)
	return &Service{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
	}, nil
}

func roomChannel(roomID string) string { return "chat:room:" + roomID }
func userChannel(userID string) string { return "chat:user:" + userID }

// Publish broadcasts an event to every instance watching roomID. It never
// delivers to local sessions directly; the PubSub Bridge loops the message
// back through BroadcastToRoomLocal, including on the publishing instance,
// so there is exactly one delivery path.
func (s *Service) Publish(ctx context.Context, roomID string, event string, payload any, senderID string, roles []string) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		innerBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal inner payload: %w", err)
		}

		msg := PubSubPayload{
			RoomID:   roomID,
			Event:    event,
			Payload:  innerBytes,
			SenderID: senderID,
			Roles:    roles,
		}

		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pubsub envelope: %w", err)
		}

		return nil, s.client.Publish(ctx, roomChannel(roomID), data).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("redis circuit breaker open: dropping room publish", "roomID", roomID)
			return nil
		}
		slog.Error("redis publish failed", "roomID", roomID, "error", err)
		return err
	}

	return nil
}

// PublishDirect sends an event to a specific user's channel, reaching
// whichever instance currently holds one of their sessions.
func (s *Service) PublishDirect(ctx context.Context, targetUserID string, event string, payload any, senderID string) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		innerBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal inner payload for direct message: %w", err)
		}

		msg := PubSubPayload{
			Event:    event,
			Payload:  innerBytes,
			SenderID: senderID,
		}

		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal direct message envelope: %w", err)
		}

		return nil, s.client.Publish(ctx, userChannel(targetUserID), data).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("redis circuit breaker open: dropping direct message", "targetUserID", targetUserID)
			return nil
		}
		slog.Error("redis publishDirect failed", "targetUserID", targetUserID, "senderID", senderID, "event", event, "error", err)
		return err
	}

	return nil
}

// Subscribe listens on a single room's channel. Kept for callers that only
// care about one room; the PubSub Bridge uses SubscribePatterns instead so
// it catches every room and user channel on one connection.
func (s *Service) Subscribe(ctx context.Context, roomID string, wg *sync.WaitGroup, handler func(PubSubPayload)) {
	if s == nil || s.client == nil {
		return
	}

	channel := roomChannel(roomID)
	pubsub := s.client.Subscribe(ctx, channel)

	if wg != nil {
		wg.Add(1)
	}
	go func() {
		defer pubsub.Close()
		if wg != nil {
			defer wg.Done()
		}

		slog.Info("subscribed to redis channel", "channel", channel)
		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					slog.Warn("redis subscription channel closed", "channel", channel)
					return
				}

				var payload PubSubPayload
				if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
					slog.Error("failed to unmarshal redis message", "error", err, "raw", msg.Payload)
					continue
				}

				handler(payload)
			}
		}
	}()
}

// SubscribePatterns opens a single dedicated pub/sub connection matching
// chat:room:* and chat:user:* and dispatches each message to roomHandler or
// userHandler depending on which pattern matched. This is what the PubSub
// Bridge runs on a connection distinct from the one used for Publish, since
// a connection running PSUBSCRIBE cannot also issue other commands.
//
// On a connection error it logs, sleeps 5s, and resubscribes rather than
// giving up, since Redis is allowed to restart without taking the chat
// service down with it (frames published during the gap are not delivered,
// locally or across instances, since delivery runs through this
// subscription).
func (s *Service) SubscribePatterns(ctx context.Context, wg *sync.WaitGroup, roomHandler func(PubSubPayload), userHandler func(targetUserID string, payload PubSubPayload)) {
	if s == nil || s.client == nil {
		return
	}

	if wg != nil {
		wg.Add(1)
	}
	go func() {
		if wg != nil {
			defer wg.Done()
		}

		for {
			if ctx.Err() != nil {
				return
			}

			pubsub := s.client.PSubscribe(ctx, RoomChannelPattern, UserChannelPattern)
			if _, err := pubsub.Receive(ctx); err != nil {
				pubsub.Close()
				if ctx.Err() != nil {
					return
				}
				slog.Error("pubsub bridge subscribe failed, retrying", "error", err)
				time.Sleep(5 * time.Second)
				continue
			}

			slog.Info("pubsub bridge subscribed", "patterns", []string{RoomChannelPattern, UserChannelPattern})
			ch := pubsub.Channel()

		readLoop:
			for {
				select {
				case <-ctx.Done():
					pubsub.Close()
					return
				case msg, ok := <-ch:
					if !ok {
						pubsub.Close()
						break readLoop
					}

					var payload PubSubPayload
					if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
						slog.Error("failed to unmarshal bridge message", "error", err, "raw", msg.Payload)
						continue
					}

					switch {
					case strings.HasPrefix(msg.Channel, "chat:room:"):
						roomHandler(payload)
					case strings.HasPrefix(msg.Channel, "chat:user:"):
						userHandler(strings.TrimPrefix(msg.Channel, "chat:user:"), payload)
					}
				}
			}

			if ctx.Err() != nil {
				return
			}
			slog.Warn("pubsub bridge connection closed, resubscribing in 5s")
			time.Sleep(5 * time.Second)
		}
	}()
}

// Ping checks Redis connectivity.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		}
		return err
	}
	return nil
}

// Close gracefully shuts down the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// SetAdd adds a member to a Redis set.
func (s *Service) SetAdd(ctx context.Context, key string, member string) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.SAdd(ctx, key, member).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("redis circuit breaker open: skipping SetAdd", "key", key)
			return nil
		}
		slog.Error("redis SetAdd failed", "key", key, "member", member, "error", err)
		return fmt.Errorf("failed to add to set: %w", err)
	}
	return nil
}

// SetRem removes a member from a Redis set.
func (s *Service) SetRem(ctx context.Context, key string, member string) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.SRem(ctx, key, member).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("redis circuit breaker open: skipping SetRem", "key", key)
			return nil
		}
		slog.Error("redis SetRem failed", "key", key, "member", member, "error", err)
		return fmt.Errorf("failed to remove from set: %w", err)
	}
	return nil
}

// SetMembers retrieves all members of a Redis set.
func (s *Service) SetMembers(ctx context.Context, key string) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}

	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.SMembers(ctx, key).Result()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("redis circuit breaker open: returning empty set members", "key", key)
			return nil, nil
		}
		slog.Error("redis SetMembers failed", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get set members: %w", err)
	}
	return res.([]string), nil
}
