// Package chat implements the real-time fan-out core: a single-goroutine
// Hub owning presence and room membership, per-connection Sessions driving
// the WebSocket protocol, and a PubSub Bridge gluing instances together
// over the shared bus.
package chat

import (
	"context"
	"time"

	"github.com/chatcluster/chat/internal/bus"
	"github.com/chatcluster/chat/internal/logging"
	"github.com/chatcluster/chat/internal/metrics"
	"github.com/chatcluster/chat/internal/ratelimit"
	"go.uber.org/zap"
	"k8s.io/utils/set"
)

const (
	maxSessionsPerUser = 5
	typingTTL          = 3 * time.Second
	housekeepInterval  = 3 * time.Second
	cleanupInterval    = 60 * time.Second
	lastSeenTTL        = 30 * 24 * time.Hour
)

// LastSeenStore is the typed KV dependency the Hub writes a user's
// last-seen timestamp to on full disconnect. internal/cache implements it.
type LastSeenStore interface {
	SetLastSeen(ctx context.Context, userID string, at time.Time) error
}

// sessionHandle is one live connection for a user.
type sessionHandle struct {
	sessionID   string
	sink        Sink
	connectedAt time.Time
}

// Hub owns all presence and room-membership state. It is reachable only
// through its exported methods; those that touch that state enqueue a
// closure onto cmds and the Hub's own goroutine (Run) executes it (the
// bus-publishing paths and CheckRateLimit do not) — this is the "command channel"
// actor the design favors over per-room locking: every mutation happens on
// one goroutine, so there is nothing to lock on the hot path.
type Hub struct {
	cmds chan func()
	done chan struct{}

	bus       *bus.Service
	lastSeen  LastSeenStore
	limiter   *ratelimit.SocketLimiter
	instance  string

	sessions  map[string][]*sessionHandle    // user_id -> sessions, oldest first
	rooms     map[string]set.Set[string]     // room_id -> user_ids locally subscribed
	userRooms map[string]set.Set[string]     // user_id -> room_ids
	typing    map[string]map[string]time.Time // room_id -> user_id -> last_typed_at
}

// NewHub constructs a Hub. Call Run in its own goroutine before using it.
func NewHub(busService *bus.Service, lastSeen LastSeenStore, instance string) *Hub {
	return &Hub{
		cmds:      make(chan func(), 256),
		done:      make(chan struct{}),
		bus:       busService,
		lastSeen:  lastSeen,
		limiter:   ratelimit.NewSocketLimiter(),
		instance:  instance,
		sessions:  make(map[string][]*sessionHandle),
		rooms:     make(map[string]set.Set[string]),
		userRooms: make(map[string]set.Set[string]),
		typing:    make(map[string]map[string]time.Time),
	}
}

// Run is the Hub's goroutine: it drains cmds until the context is
// cancelled, plus the two housekeeping timers (typing expiry, rate-limiter
// cleanup) described in the design.
func (h *Hub) Run(ctx context.Context) {
	typingTicker := time.NewTicker(housekeepInterval)
	defer typingTicker.Stop()
	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.cmds:
			cmd()
		case <-typingTicker.C:
			h.expireTyping()
		case <-cleanupTicker.C:
			h.cleanupRateLimiter()
		}
	}
}

// do runs fn on the Hub's goroutine and blocks until it completes. Every
// exported Hub method that reads or changes presence state is built on
// this so that state is only ever touched from one goroutine. It must not
// be called from code already running on that goroutine.
func (h *Hub) do(fn func()) {
	done := make(chan struct{})
	h.cmds <- func() {
		fn()
		close(done)
	}
	<-done
}

// Connect registers a new session for userID, evicting the oldest session
// past the cap of 5.
func (h *Hub) Connect(userID, sessionID string, sink Sink, connectedAt time.Time) {
	h.do(func() {
		sh := &sessionHandle{sessionID: sessionID, sink: sink, connectedAt: connectedAt}
		h.sessions[userID] = append(h.sessions[userID], sh)

		if len(h.sessions[userID]) > maxSessionsPerUser {
			evicted := h.sessions[userID][0]
			h.sessions[userID] = h.sessions[userID][1:]
			metrics.SessionsEvicted.Inc()
			evicted.sink.Send(OutboundFrame{
				Type:    OutConnectionReplaced,
				Message: "connection replaced by a newer session",
			})
		}
		metrics.UserSessions.Observe(float64(len(h.sessions[userID])))

		if _, ok := h.userRooms[userID]; !ok {
			h.userRooms[userID] = set.New[string]()
		}

		metrics.ActiveWebSocketConnections.Inc()
	})
}

// Disconnect removes sessionID from userID's session list. If that was the
// user's last session, it writes last-seen, tells other locally-connected
// room members the user went offline, and drops all presence bookkeeping
// for the user.
func (h *Hub) Disconnect(ctx context.Context, userID, sessionID string) {
	h.do(func() {
		sessions := h.sessions[userID]
		for i, sh := range sessions {
			if sh.sessionID == sessionID {
				h.sessions[userID] = append(sessions[:i], sessions[i+1:]...)
				metrics.ActiveWebSocketConnections.Dec()
				break
			}
		}

		if len(h.sessions[userID]) > 0 {
			return
		}

		delete(h.sessions, userID)

		if h.lastSeen != nil {
			if err := h.lastSeen.SetLastSeen(ctx, userID, time.Now()); err != nil {
				logging.Error(ctx, "failed to write last-seen", zap.String("user_id", userID), zap.Error(err))
			}
		}

		for roomID := range h.userRooms[userID] {
			h.notifyRoomLocal(roomID, userID, OutboundFrame{Type: OutUserOffline, UserID: userID})
			if members, ok := h.rooms[roomID]; ok {
				members.Delete(userID)
				if members.Len() == 0 {
					delete(h.rooms, roomID)
					metrics.RoomParticipants.DeleteLabelValues(roomID)
				} else {
					metrics.RoomParticipants.WithLabelValues(roomID).Set(float64(members.Len()))
				}
			}
		}

		delete(h.userRooms, userID)
		for roomID, byUser := range h.typing {
			delete(byUser, userID)
			if len(byUser) == 0 {
				delete(h.typing, roomID)
			}
		}
	})
}

// JoinRoom subscribes userID to roomID locally and exchanges presence
// frames with whoever else is already there. Membership authorization is
// the caller's (Session's) responsibility.
func (h *Hub) JoinRoom(userID, roomID string) {
	h.do(func() {
		if _, ok := h.rooms[roomID]; !ok {
			h.rooms[roomID] = set.New[string]()
			metrics.ActiveRooms.Inc()
		}
		isNewMember := !h.rooms[roomID].Has(userID)
		h.rooms[roomID].Insert(userID)
		metrics.RoomParticipants.WithLabelValues(roomID).Set(float64(h.rooms[roomID].Len()))

		if _, ok := h.userRooms[userID]; !ok {
			h.userRooms[userID] = set.New[string]()
		}
		h.userRooms[userID].Insert(roomID)

		online := h.rooms[roomID].UnsortedList()
		h.sendToUser(userID, OutboundFrame{Type: OutRoomPresence, RoomID: roomID, OnlineUsers: online})

		if isNewMember {
			for _, other := range online {
				if other == userID {
					continue
				}
				h.sendToUser(other, OutboundFrame{Type: OutUserOnline, UserID: userID})
			}
		}

		h.sendToUser(userID, OutboundFrame{Type: OutJoined, RoomID: roomID})
	})
}

// LeaveRoom is presence-only: it does not touch the database membership
// row, just the Hub's local subscription bookkeeping.
func (h *Hub) LeaveRoom(userID, roomID string) {
	h.do(func() {
		if members, ok := h.rooms[roomID]; ok {
			members.Delete(userID)
			if members.Len() == 0 {
				delete(h.rooms, roomID)
				metrics.RoomParticipants.DeleteLabelValues(roomID)
			} else {
				metrics.RoomParticipants.WithLabelValues(roomID).Set(float64(members.Len()))
			}
		}
		if rooms, ok := h.userRooms[userID]; ok {
			rooms.Delete(roomID)
		}
		if byUser, ok := h.typing[roomID]; ok {
			delete(byUser, userID)
		}

		h.sendToUser(userID, OutboundFrame{Type: OutLeft, RoomID: roomID})
	})
}

// BroadcastToRoom publishes payload to the shared bus only. It never
// delivers to local sessions directly — the PubSub Bridge loops it back
// through BroadcastToRoomLocal, which is the single fan-out point. Merging
// this with BroadcastToRoomLocal would double-deliver on the publisher.
func (h *Hub) BroadcastToRoom(ctx context.Context, roomID string, frame OutboundFrame, senderID string) {
	if h.bus == nil {
		h.BroadcastToRoomLocal(roomID, frame, senderID)
		return
	}
	if err := h.bus.Publish(ctx, roomID, frame.Type, frame, senderID, nil); err != nil {
		logging.Error(ctx, "broadcast publish failed", zap.String("room_id", roomID), zap.Error(err))
	}
}

// NotifyUser publishes frame to a single user's channel so it reaches them
// regardless of which instance holds their session. The Bridge loops it
// back through BroadcastToUsers, same as BroadcastToRoom does for rooms.
func (h *Hub) NotifyUser(ctx context.Context, userID string, frame OutboundFrame, senderID string) {
	if h.bus == nil {
		h.BroadcastToUsers([]string{userID}, frame)
		return
	}
	if err := h.bus.PublishDirect(ctx, userID, frame.Type, frame, senderID); err != nil {
		logging.Error(ctx, "notify user publish failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// BroadcastToRoomLocal delivers frame to every locally-subscribed member of
// roomID except excludeUserID. Called exclusively by the PubSub Bridge.
func (h *Hub) BroadcastToRoomLocal(roomID string, frame OutboundFrame, excludeUserID string) {
	h.do(func() {
		members, ok := h.rooms[roomID]
		if !ok {
			return
		}
		for _, userID := range members.UnsortedList() {
			if userID == excludeUserID {
				continue
			}
			h.sendToUser(userID, frame)
		}
	})
}

// notifyRoomLocal is BroadcastToRoomLocal's internal twin, callable from
// code already running on the Hub's goroutine (avoids deadlocking on do).
func (h *Hub) notifyRoomLocal(roomID, excludeUserID string, frame OutboundFrame) {
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for _, userID := range members.UnsortedList() {
		if userID == excludeUserID {
			continue
		}
		h.sendToUser(userID, frame)
	}
}

// BroadcastToUsers delivers frame to whichever of userIDs have local
// sessions; the rest are silently skipped (the caller is expected to have
// also published to chat:user:{id} for cross-instance reach).
func (h *Hub) BroadcastToUsers(userIDs []string, frame OutboundFrame) {
	h.do(func() {
		for _, userID := range userIDs {
			h.sendToUser(userID, frame)
		}
	})
}

// UserTyping records that userID is typing in roomID, expired 3s later by
// the housekeeping ticker.
func (h *Hub) UserTyping(userID, roomID string, now time.Time) {
	h.do(func() {
		if _, ok := h.typing[roomID]; !ok {
			h.typing[roomID] = make(map[string]time.Time)
		}
		h.typing[roomID][userID] = now
	})
}

// CheckRateLimit consults the in-process socket limiter. It returns true if
// the event is allowed; otherwise false and the number of seconds until a
// token becomes available.
func (h *Hub) CheckRateLimit(userID string, event ratelimit.EventType) (bool, float64) {
	return h.limiter.Check(userID, event, time.Now())
}

// ConnectionCount returns the total number of live sessions across every
// user, for the health endpoint.
func (h *Hub) ConnectionCount() int {
	result := make(chan int, 1)
	h.do(func() {
		n := 0
		for _, sessions := range h.sessions {
			n += len(sessions)
		}
		result <- n
	})
	return <-result
}

// sendToUser pushes frame to every local session of userID. Must run on
// the Hub's goroutine.
func (h *Hub) sendToUser(userID string, frame OutboundFrame) {
	for _, sh := range h.sessions[userID] {
		sh.sink.Send(frame)
	}
}

func (h *Hub) expireTyping() {
	now := time.Now()
	for roomID, byUser := range h.typing {
		for userID, last := range byUser {
			if now.Sub(last) >= typingTTL {
				delete(byUser, userID)
				h.notifyRoomLocal(roomID, userID, OutboundFrame{
					Type: OutTyping, RoomID: roomID, UserID: userID, IsTyping: false,
				})
			}
		}
		if len(byUser) == 0 {
			delete(h.typing, roomID)
		}
	}
}

func (h *Hub) cleanupRateLimiter() {
	active := make(map[string]bool, len(h.sessions))
	for userID := range h.sessions {
		active[userID] = true
	}
	h.limiter.Cleanup(active)
}
