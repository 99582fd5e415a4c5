package chatdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UserDirectory resolves display names for the external, read-only users
// table. Chat never writes to it; core user lookup is a sibling service
// out of scope here, so this interface is whatever thin client main.go
// wires in front of it.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
	Email(ctx context.Context, userID string) (string, error)
}

// Store aggregates the three repositories behind the single narrow
// interface internal/chat.Session needs, so the Hub/Session layer depends
// on one small contract instead of three wide repository types.
type Store struct {
	Rooms       RoomRepository
	Messages    MessageRepository
	Invitations InvitationRepository
	Users       UserDirectory
}

// NewStore builds a Store over pool. users may be nil in tests that never
// exercise display-name resolution.
func NewStore(pool *pgxpool.Pool, users UserDirectory) *Store {
	return &Store{
		Rooms:       NewRoomRepository(pool),
		Messages:    NewMessageRepository(pool),
		Invitations: NewInvitationRepository(pool),
		Users:       users,
	}
}

// IsMember satisfies internal/chat.Rooms.
func (s *Store) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	return s.Rooms.IsMember(ctx, roomID, userID)
}

// InsertMessage satisfies internal/chat.Rooms.
func (s *Store) InsertMessage(ctx context.Context, roomID, senderID, content, messageType string, metadata json.RawMessage, at time.Time) (string, error) {
	return s.Messages.Insert(ctx, roomID, senderID, content, messageType, metadata, at)
}

// TouchLastMessageAt satisfies internal/chat.Rooms.
func (s *Store) TouchLastMessageAt(ctx context.Context, roomID string, at time.Time) error {
	return s.Rooms.TouchLastMessageAt(ctx, roomID, at)
}

// UnhideForMembers satisfies internal/chat.Rooms.
func (s *Store) UnhideForMembers(ctx context.Context, roomID string) error {
	return s.Rooms.UnhideForMembers(ctx, roomID)
}

// ActiveMemberIDs satisfies internal/chat.Rooms.
func (s *Store) ActiveMemberIDs(ctx context.Context, roomID string) ([]string, error) {
	return s.Rooms.ActiveMemberIDs(ctx, roomID)
}

// UnreadCount satisfies internal/chat.Rooms.
func (s *Store) UnreadCount(ctx context.Context, roomID, userID string) (int, error) {
	return s.Rooms.UnreadCount(ctx, roomID, userID)
}

// UserDisplayName satisfies internal/chat.Rooms. With no directory wired
// it falls back to the raw user id, which keeps the chat core usable in
// tests and single-service deployments.
func (s *Store) UserDisplayName(ctx context.Context, userID string) (string, error) {
	if s.Users == nil {
		return userID, nil
	}
	return s.Users.DisplayName(ctx, userID)
}

// DisplayNameAndEmail matches the userLookup signature
// RoomRepository.RoomMembersWithUsers expects.
func (s *Store) DisplayNameAndEmail(ctx context.Context, userID string) (string, string, error) {
	if s.Users == nil {
		return userID, "", nil
	}
	name, err := s.Users.DisplayName(ctx, userID)
	if err != nil {
		return "", "", err
	}
	email, err := s.Users.Email(ctx, userID)
	if err != nil {
		return "", "", err
	}
	return name, email, nil
}
