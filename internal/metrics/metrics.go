package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the chat cluster.
//
// Naming convention: namespace_subsystem_name
// - namespace: chat (application-level grouping)
// - subsystem: websocket, room, rate_limit, redis (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, sessions)
// - Counter: Cumulative events (messages processed, rate limit hits)
// - Histogram: Latency distributions (processing time)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket sessions.
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of rooms with at least one locally connected member.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of rooms with at least one locally connected member",
	})

	// RoomParticipants tracks the number of locally connected participants per room.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chat",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of locally connected participants in each room",
	}, []string{"room_id"})

	// UserSessions tracks the number of concurrent sessions per user (capped at 5).
	UserSessions = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chat",
		Subsystem: "session",
		Name:      "sessions_per_user",
		Help:      "Number of concurrent sessions observed per user at connect time",
		Buckets:   []float64{1, 2, 3, 4, 5},
	})

	// SessionsEvicted counts sessions evicted because a user exceeded the session cap.
	SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "session",
		Name:      "evicted_total",
		Help:      "Total sessions evicted for exceeding the per-user session cap",
	})

	// WebsocketEvents tracks the total number of WebSocket frames processed.
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "status"})

	// MessageProcessingDuration tracks the time spent processing inbound WebSocket frames.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chat",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing WebSocket messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	// TypingEvents counts typing-indicator frames broadcast, across all rooms.
	TypingEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "room",
		Name:      "typing_events_total",
		Help:      "Total typing indicator events broadcast",
	})

	// UnreadCountsQueried counts unread-count lookups served by the persistence layer.
	UnreadCountsQueried = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "room",
		Name:      "unread_count_queries_total",
		Help:      "Total unread-count queries served",
	})

	// CircuitBreakerState tracks the current state of the Redis circuit breaker.
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chat",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks the total number of requests rejected by the circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks the total number of requests/events that exceeded a rate limit.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"scope", "reason"})

	// RateLimitRequests tracks the total number of requests/events checked against a rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"scope"})

	// RedisOperationsTotal tracks the total number of Redis operations.
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total number of Redis operations",
	}, []string{"operation", "status"})

	// RedisOperationDuration tracks the duration of Redis operations.
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chat",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Redis operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
