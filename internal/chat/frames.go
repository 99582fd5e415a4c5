package chat

import "encoding/json"

// Inbound frame tags, sent by the client.
const (
	TypeMessage   = "message"
	TypeJoinRoom  = "join_room"
	TypeLeaveRoom = "leave_room"
	TypeTyping    = "typing"
	TypePing      = "ping"
)

// Outbound frame tags, sent by the server. Clients ignore tags they don't
// recognize, so this set is additive-only.
const (
	OutMessage            = "message"
	OutTyping             = "typing"
	OutJoined             = "joined"
	OutLeft               = "left"
	OutRoomCreated        = "room_created"
	OutInvitationReceived = "invitation_received"
	OutMemberJoined       = "member_joined"
	OutMemberLeft         = "member_left"
	OutRoomUpdated        = "room_updated"
	OutUnreadUpdated      = "unread_updated"
	OutUserOnline         = "user_online"
	OutUserOffline        = "user_offline"
	OutRoomPresence       = "room_presence"
	OutConnectionReplaced = "connection_replaced"
	OutRateLimitExceeded  = "rate_limit_exceeded"
	OutError              = "error"
	OutPong               = "pong"
)

// InboundFrame is the shape every client->server frame is first decoded
// into; Type selects how the remaining fields are interpreted.
type InboundFrame struct {
	Type        string          `json:"type"`
	RoomID      string          `json:"room_id,omitempty"`
	Content     string          `json:"content,omitempty"`
	MessageType string          `json:"message_type,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	IsTyping    bool            `json:"is_typing,omitempty"`
}

// OutboundFrame is a tagged union serialized to JSON. Only the fields
// relevant to Type are populated; omitempty keeps frames compact.
type OutboundFrame struct {
	Type string `json:"type"`

	// message
	ID          string          `json:"id,omitempty"`
	RoomID      string          `json:"room_id,omitempty"`
	SenderID    string          `json:"sender_id,omitempty"`
	SenderName  string          `json:"sender_name,omitempty"`
	Content     string          `json:"content,omitempty"`
	MessageType string          `json:"message_type,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`

	// typing / presence
	UserID   string `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
	IsTyping bool   `json:"is_typing,omitempty"`

	// room lifecycle
	RoomName string `json:"room_name,omitempty"`
	RoomType string `json:"room_type,omitempty"`

	// invitations
	InvitationID string `json:"invitation_id,omitempty"`
	InvitedBy    string `json:"invited_by,omitempty"`
	InvitedByName string `json:"invited_by_name,omitempty"`

	// room_updated / unread_updated
	LastMessageAt string `json:"last_message_at,omitempty"`
	UnreadCount   int    `json:"unread_count,omitempty"`

	// room_presence
	OnlineUsers []string `json:"online_users,omitempty"`

	// rate_limit_exceeded / error / connection_replaced
	EventType  string  `json:"event_type,omitempty"`
	RetryAfter float64 `json:"retry_after,omitempty"`
	Message    string  `json:"message,omitempty"`
}
