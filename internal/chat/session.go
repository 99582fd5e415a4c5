package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chatcluster/chat/internal/logging"
	"github.com/chatcluster/chat/internal/metrics"
	"github.com/chatcluster/chat/internal/ratelimit"
)

const (
	pingInterval = 5 * time.Second
	idleTimeout  = 10 * time.Second
	writeWait    = 5 * time.Second
)

type sessionState int

const (
	stateConnecting sessionState = iota
	stateActive
	stateClosing
	stateClosed
)

// Rooms is the membership slice of the persistence layer Session needs:
// verifying a user belongs to a room, and inserting/reading messages.
// internal/chatdb implements it.
type Rooms interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	InsertMessage(ctx context.Context, roomID, senderID, content, messageType string, metadata json.RawMessage, at time.Time) (messageID string, err error)
	TouchLastMessageAt(ctx context.Context, roomID string, at time.Time) error
	UnhideForMembers(ctx context.Context, roomID string) error
	ActiveMemberIDs(ctx context.Context, roomID string) ([]string, error)
	UnreadCount(ctx context.Context, roomID, userID string) (int, error)
	UserDisplayName(ctx context.Context, userID string) (string, error)
}

// Session drives one WebSocket connection: it decodes inbound frames,
// applies rate limits and persistence, and pushes outbound frames back
// over conn. Each Session runs its own goroutine pair (read loop + the
// ping/idle ticker in Run) and talks to the Hub only through its public
// methods, never touching Hub state directly.
type Session struct {
	id     string
	userID string

	conn *websocket.Conn
	hub  *Hub
	db   Rooms

	send  chan OutboundFrame
	state sessionState

	lastActivity time.Time
}

// NewSession wraps an upgraded WebSocket connection. Run registers the
// session with the Hub.
func NewSession(id, userID string, conn *websocket.Conn, hub *Hub, db Rooms) *Session {
	return &Session{
		id:           id,
		userID:       userID,
		conn:         conn,
		hub:          hub,
		db:           db,
		send:         make(chan OutboundFrame, 32),
		state:        stateConnecting,
		lastActivity: time.Now(),
	}
}

// Send implements Sink. It never blocks the Hub: a full buffer drops the
// frame rather than stalling every other session.
func (s *Session) Send(frame OutboundFrame) {
	select {
	case s.send <- frame:
	default:
		logging.Warn(context.Background(), "session send buffer full, dropping frame",
			zap.String("session_id", s.id), zap.String("user_id", s.userID), zap.String("frame_type", frame.Type))
	}
}

// Run registers the session with the Hub and blocks until the connection
// closes, running the write pump and read pump concurrently.
func (s *Session) Run(ctx context.Context) {
	s.state = stateActive
	s.hub.Connect(s.userID, s.id, s, time.Now())
	defer s.hub.Disconnect(ctx, s.userID, s.id)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		s.writePump(ctx)
	}()

	s.readPump(ctx)

	s.state = stateClosing
	_ = s.conn.Close()
	<-writeDone
	s.state = stateClosed
}

func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	idleCheck := time.NewTicker(idleTimeout / 2)
	defer idleCheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-s.send:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(frame); err != nil {
				logging.Warn(ctx, "websocket write failed", zap.String("session_id", s.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-idleCheck.C:
			if time.Since(s.lastActivity) > idleTimeout {
				logging.Info(ctx, "closing idle session", zap.String("session_id", s.id), zap.String("user_id", s.userID))
				_ = s.conn.Close()
				return
			}
		}
	}
}

func (s *Session) readPump(ctx context.Context) {
	s.conn.SetPongHandler(func(string) error {
		s.lastActivity = time.Now()
		return nil
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn(ctx, "websocket closed unexpectedly", zap.String("session_id", s.id), zap.Error(err))
			}
			return
		}
		s.lastActivity = time.Now()

		if msgType == websocket.BinaryMessage {
			logging.Warn(ctx, "rejecting binary frame", zap.String("session_id", s.id))
			s.Send(OutboundFrame{Type: OutError, Message: "binary frames are not supported"})
			continue
		}

		var frame InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.Send(OutboundFrame{Type: OutError, Message: "invalid message format"})
			continue
		}

		s.handleInbound(ctx, frame)
	}
}

func (s *Session) handleInbound(ctx context.Context, frame InboundFrame) {
	start := time.Now()
	status := "ok"
	defer func() {
		metrics.MessageProcessingDuration.WithLabelValues(frame.Type).Observe(time.Since(start).Seconds())
		metrics.WebsocketEvents.WithLabelValues(frame.Type, status).Inc()
	}()

	switch frame.Type {
	case TypeMessage:
		status = s.handleMessage(ctx, frame)
	case TypeJoinRoom:
		status = s.handleJoinRoom(ctx, frame)
	case TypeLeaveRoom:
		s.hub.LeaveRoom(s.userID, frame.RoomID)
	case TypeTyping:
		status = s.handleTyping(ctx, frame)
	case TypePing:
		s.Send(OutboundFrame{Type: OutPong})
	default:
		status = "unknown_type"
		s.Send(OutboundFrame{Type: OutError, Message: "unknown frame type: " + frame.Type})
	}
}

func (s *Session) checkRateLimit(event ratelimit.EventType) bool {
	allowed, retryAfter := s.hub.CheckRateLimit(s.userID, event)
	if !allowed {
		metrics.RateLimitExceeded.WithLabelValues("socket", string(event)).Inc()
		s.Send(OutboundFrame{Type: OutRateLimitExceeded, EventType: string(event), RetryAfter: retryAfter})
	}
	return allowed
}

// handleMessage implements the eight-step sequence: rate limit, membership
// check, persist, advance last_message_at, unhide for members, resolve the
// sender's display name, publish the message plus room_updated to the room
// channel, then publish unread_updated to every other active member's
// personal channel so it reaches them even on another instance.
func (s *Session) handleMessage(ctx context.Context, frame InboundFrame) string {
	if !s.checkRateLimit(ratelimit.EventMessage) {
		return "rate_limited"
	}

	member, err := s.db.IsMember(ctx, frame.RoomID, s.userID)
	if err != nil {
		logging.Error(ctx, "membership check failed", zap.Error(err))
		s.Send(OutboundFrame{Type: OutError, Message: "failed to verify room membership"})
		return "error"
	}
	if !member {
		s.Send(OutboundFrame{Type: OutError, Message: "not a member of this room"})
		return "forbidden"
	}

	now := time.Now()
	messageID, err := s.db.InsertMessage(ctx, frame.RoomID, s.userID, frame.Content, frame.MessageType, frame.Metadata, now)
	if err != nil {
		logging.Error(ctx, "insert message failed", zap.Error(err))
		s.Send(OutboundFrame{Type: OutError, Message: "failed to send message"})
		return "error"
	}

	if err := s.db.TouchLastMessageAt(ctx, frame.RoomID, now); err != nil {
		logging.Error(ctx, "touch last_message_at failed", zap.Error(err))
	}
	if err := s.db.UnhideForMembers(ctx, frame.RoomID); err != nil {
		logging.Error(ctx, "unhide room for members failed", zap.Error(err))
	}

	senderName, err := s.db.UserDisplayName(ctx, s.userID)
	if err != nil {
		logging.Warn(ctx, "resolve sender display name failed", zap.Error(err))
	}

	out := OutboundFrame{
		Type:        OutMessage,
		ID:          messageID,
		RoomID:      frame.RoomID,
		SenderID:    s.userID,
		SenderName:  senderName,
		Content:     frame.Content,
		MessageType: frame.MessageType,
		Metadata:    frame.Metadata,
		CreatedAt:   now.UTC().Format(time.RFC3339),
	}
	s.hub.BroadcastToRoom(ctx, frame.RoomID, out, s.userID)
	s.hub.BroadcastToRoom(ctx, frame.RoomID, OutboundFrame{
		Type: OutRoomUpdated, RoomID: frame.RoomID, LastMessageAt: out.CreatedAt,
	}, s.userID)

	members, err := s.db.ActiveMemberIDs(ctx, frame.RoomID)
	if err != nil {
		logging.Error(ctx, "list active members failed", zap.Error(err))
		return "ok"
	}
	for _, memberID := range members {
		if memberID == s.userID {
			continue
		}
		unread, err := s.db.UnreadCount(ctx, frame.RoomID, memberID)
		if err != nil {
			logging.Error(ctx, "unread count query failed", zap.Error(err), zap.String("user_id", memberID))
			continue
		}
		metrics.UnreadCountsQueried.Inc()
		s.hub.NotifyUser(ctx, memberID, OutboundFrame{
			Type: OutUnreadUpdated, RoomID: frame.RoomID, UnreadCount: unread,
		}, s.userID)
	}

	return "ok"
}

func (s *Session) handleJoinRoom(ctx context.Context, frame InboundFrame) string {
	if !s.checkRateLimit(ratelimit.EventRoomAction) {
		return "rate_limited"
	}
	member, err := s.db.IsMember(ctx, frame.RoomID, s.userID)
	if err != nil {
		logging.Error(ctx, "membership check failed", zap.Error(err))
		s.Send(OutboundFrame{Type: OutError, Message: "failed to verify room membership"})
		return "error"
	}
	if !member {
		s.Send(OutboundFrame{Type: OutError, Message: "not a member of this room"})
		return "forbidden"
	}
	s.hub.JoinRoom(s.userID, frame.RoomID)
	return "ok"
}

func (s *Session) handleTyping(ctx context.Context, frame InboundFrame) string {
	if !s.checkRateLimit(ratelimit.EventTyping) {
		return "rate_limited"
	}
	if frame.IsTyping {
		s.hub.UserTyping(s.userID, frame.RoomID, time.Now())
	}
	metrics.TypingEvents.Inc()
	s.hub.BroadcastToRoom(ctx, frame.RoomID, OutboundFrame{
		Type: OutTyping, RoomID: frame.RoomID, UserID: s.userID, IsTyping: frame.IsTyping,
	}, s.userID)
	return "ok"
}
