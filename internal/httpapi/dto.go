package httpapi

import (
	"time"

	"github.com/chatcluster/chat/internal/chatdb"
)

type roomDTO struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	RoomType      string     `json:"room_type"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	UnreadCount   int        `json:"unread_count,omitempty"`
	Members       []memberDTO `json:"members,omitempty"`
}

type memberDTO struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	Role     string `json:"role"`
}

func toRoomDTO(r *chatdb.Room) roomDTO {
	return roomDTO{
		ID: r.ID, Name: r.Name, RoomType: string(r.Type), CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt, LastMessageAt: r.LastMessageAt,
	}
}

func toRoomSummaryDTO(r *chatdb.RoomSummary, unread int) roomDTO {
	dto := toRoomDTO(&r.Room)
	dto.UnreadCount = unread
	return dto
}

func toMemberDTOs(members []*chatdb.MemberWithUser) []memberDTO {
	out := make([]memberDTO, 0, len(members))
	for _, m := range members {
		out = append(out, memberDTO{UserID: m.UserID, UserName: m.UserName, Role: string(m.Role)})
	}
	return out
}

type messageDTO struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	SenderID    string    `json:"sender_id"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	CreatedAt   time.Time `json:"created_at"`
}

func toMessageDTO(m *chatdb.Message) messageDTO {
	return messageDTO{
		ID: m.ID, RoomID: m.RoomID, SenderID: m.SenderID, Content: m.Content,
		MessageType: m.MessageType, CreatedAt: m.CreatedAt,
	}
}

type invitationDTO struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"room_id"`
	InvitedBy string    `json:"invited_by"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toInvitationDTO(inv *chatdb.RoomInvitation) invitationDTO {
	return invitationDTO{
		ID: inv.ID, RoomID: inv.RoomID, InvitedBy: inv.InvitedBy,
		Status: string(inv.Status), CreatedAt: inv.CreatedAt,
	}
}
