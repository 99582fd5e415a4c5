package chatdb

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoomRepository is a cheaply-clonable value type: every instance shares
// the same underlying pool, so handing copies of it across the codebase
// carries no extra connections.
type RoomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) RoomRepository {
	return RoomRepository{pool: pool}
}

const roomColumns = "id, name, room_type, created_by, created_at, updated_at, last_message_at"

func scanRoom(row pgx.Row) (*Room, error) {
	var r Room
	err := row.Scan(&r.ID, &r.Name, &r.Type, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt, &r.LastMessageAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// GetByID fetches a room by id.
func (r RoomRepository) GetByID(ctx context.Context, roomID string) (*Room, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+roomColumns+" FROM chat_rooms WHERE id = $1", roomID)
	return scanRoom(row)
}

// CreateGroup inserts a new group room.
func (r RoomRepository) CreateGroup(ctx context.Context, name, createdBy string) (*Room, error) {
	room := &Room{ID: uuid.NewString(), Name: name, Type: RoomGroup, CreatedBy: createdBy}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat_rooms (id, name, room_type, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, room.ID, room.Name, room.Type, room.CreatedBy).Scan(&room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// FindDirectRoom returns the direct room between a and b if one exists.
// The query is symmetric in (a, b) so callers never need to canonicalize
// the pair order themselves.
func (r RoomRepository) FindDirectRoom(ctx context.Context, a, b string) (*Room, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+roomColumns+`
		FROM chat_rooms rm
		WHERE rm.room_type = 'direct'
		  AND EXISTS (SELECT 1 FROM chat_room_members WHERE room_id = rm.id AND user_id = $1 AND left_at IS NULL)
		  AND EXISTS (SELECT 1 FROM chat_room_members WHERE room_id = rm.id AND user_id = $2 AND left_at IS NULL)
		LIMIT 1
	`, a, b)
	return scanRoom(row)
}

// CreateDirectRoom creates a new direct room between a and b and inserts
// both as active members, in two separate statements (not a transaction).
// Callers should call FindDirectRoom first to keep the operation
// idempotent; nothing in the schema stops two racing creates from each
// making a direct room for the same pair.
func (r RoomRepository) CreateDirectRoom(ctx context.Context, a, b string) (*Room, error) {
	room := &Room{ID: uuid.NewString(), Type: RoomDirect, CreatedBy: a}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat_rooms (id, room_type, created_by)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`, room.ID, room.Type, room.CreatedBy).Scan(&room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if _, err := r.pool.Exec(ctx, `
		INSERT INTO chat_room_members (room_id, user_id, role) VALUES ($1, $2, 'member'), ($1, $3, 'member')
	`, room.ID, a, b); err != nil {
		return nil, err
	}

	return room, nil
}

// GetUserRooms lists the rooms visible to u, most recently active first.
func (r RoomRepository) GetUserRooms(ctx context.Context, userID string) ([]*RoomSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rm.id, rm.name, rm.room_type, rm.created_by, rm.created_at, rm.updated_at, rm.last_message_at,
		       mem.last_read_at
		FROM chat_rooms rm
		JOIN chat_room_members mem ON mem.room_id = rm.id
		WHERE mem.user_id = $1 AND mem.left_at IS NULL AND mem.hidden_at IS NULL
		ORDER BY COALESCE(rm.last_message_at, rm.created_at) DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*RoomSummary
	for rows.Next() {
		var s RoomSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Type, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt, &s.LastMessageAt, &s.LastReadAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, &s)
	}
	return summaries, rows.Err()
}

// IsMember reports whether userID is an active member of roomID.
func (r RoomRepository) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM chat_room_members WHERE room_id = $1 AND user_id = $2 AND left_at IS NULL)
	`, roomID, userID).Scan(&exists)
	return exists, err
}

// AddMember inserts a membership row. A conflict on (room_id, user_id) is
// treated as success and clears left_at and hidden_at, so a member who had
// left or hidden the room becomes active again; that is the idempotent
// outcome an invitation accept or a retried join wants.
func (r RoomRepository) AddMember(ctx context.Context, roomID, userID string, role MemberRole) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_room_members (room_id, user_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (room_id, user_id) DO UPDATE SET left_at = NULL, hidden_at = NULL
	`, roomID, userID, role)
	return err
}

// ActiveMemberIDs returns the user ids of every active (not left) member.
func (r RoomRepository) ActiveMemberIDs(ctx context.Context, roomID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM chat_room_members WHERE room_id = $1 AND left_at IS NULL`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MemberWithUser pairs a membership row with the display fields callers
// join in from the users table, mirroring the original's
// get_room_members_with_users.
type MemberWithUser struct {
	RoomMember
	UserName  string
	UserEmail string
}

// RoomMembersWithUsers reads the room's active members in one query and
// then calls userLookup once per member to resolve its display fields;
// chat does not own the users table itself.
func (r RoomRepository) RoomMembersWithUsers(ctx context.Context, roomID string, userLookup func(ctx context.Context, userID string) (name, email string, err error)) ([]*MemberWithUser, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, room_id, user_id, role, joined_at, left_at, hidden_at, last_read_at
		FROM chat_room_members WHERE room_id = $1 AND left_at IS NULL
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*MemberWithUser
	for rows.Next() {
		var m MemberWithUser
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Role, &m.JoinedAt, &m.LeftAt, &m.HiddenAt, &m.LastReadAt); err != nil {
			return nil, err
		}
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range members {
		name, email, err := userLookup(ctx, m.UserID)
		if err != nil {
			return nil, err
		}
		m.UserName, m.UserEmail = name, email
	}
	return members, nil
}

// MemberRole returns the caller's active role in a room, ErrNotFound if
// they are not an active member.
func (r RoomRepository) MemberRole(ctx context.Context, roomID, userID string) (MemberRole, error) {
	var role MemberRole
	err := r.pool.QueryRow(ctx, `
		SELECT role FROM chat_room_members WHERE room_id = $1 AND user_id = $2 AND left_at IS NULL
	`, roomID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return role, nil
}

// ActiveAdminCount counts active admins in a room, used by the leave
// endpoint's last-admin guard.
func (r RoomRepository) ActiveAdminCount(ctx context.Context, roomID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM chat_room_members WHERE room_id = $1 AND role = 'admin' AND left_at IS NULL
	`, roomID).Scan(&count)
	return count, err
}

// ActiveMemberCount counts active members in a room, admins included.
func (r RoomRepository) ActiveMemberCount(ctx context.Context, roomID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM chat_room_members WHERE room_id = $1 AND left_at IS NULL
	`, roomID).Scan(&count)
	return count, err
}

// LeaveRoom soft-leaves: sets left_at rather than deleting the row so
// message history and audit trail survive.
func (r RoomRepository) LeaveRoom(ctx context.Context, roomID, userID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE chat_room_members SET left_at = now() WHERE room_id = $1 AND user_id = $2 AND left_at IS NULL
	`, roomID, userID)
	return err
}

// HideRoom soft-hides the room for userID until the next activity unhides it.
func (r RoomRepository) HideRoom(ctx context.Context, roomID, userID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE chat_room_members SET hidden_at = now() WHERE room_id = $1 AND user_id = $2
	`, roomID, userID)
	return err
}

// UnhideForMembers clears hidden_at for every active member, called after
// any new message so a resurrected conversation becomes visible again.
func (r RoomRepository) UnhideForMembers(ctx context.Context, roomID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE chat_room_members SET hidden_at = NULL WHERE room_id = $1 AND left_at IS NULL AND hidden_at IS NOT NULL
	`, roomID)
	return err
}

// MarkRoomAsRead advances userID's last_read_at to now.
func (r RoomRepository) MarkRoomAsRead(ctx context.Context, roomID, userID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE chat_room_members SET last_read_at = now() WHERE room_id = $1 AND user_id = $2
	`, roomID, userID)
	return err
}

// TouchLastMessageAt advances a room's last_message_at, used right after a
// message insert to keep room ordering current.
func (r RoomRepository) TouchLastMessageAt(ctx context.Context, roomID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE chat_rooms SET last_message_at = $2, updated_at = now() WHERE id = $1`, roomID, at)
	return err
}

// UnreadCount counts messages in roomID after userID's last_read_at (or
// joined_at if they've never read), excluding userID's own messages.
func (r RoomRepository) UnreadCount(ctx context.Context, roomID, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM chat_messages msg
		JOIN chat_room_members mem ON mem.room_id = msg.room_id AND mem.user_id = $2
		WHERE msg.room_id = $1
		  AND msg.sender_id != $2
		  AND msg.created_at > COALESCE(mem.last_read_at, mem.joined_at)
	`, roomID, userID).Scan(&count)
	return count, err
}
