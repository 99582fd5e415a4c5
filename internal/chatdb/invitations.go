package chatdb

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InvitationRepository is a cheap value wrapper around the shared pool.
type InvitationRepository struct {
	pool *pgxpool.Pool
}

func NewInvitationRepository(pool *pgxpool.Pool) InvitationRepository {
	return InvitationRepository{pool: pool}
}

func scanInvitation(row pgx.Row) (*RoomInvitation, error) {
	var inv RoomInvitation
	err := row.Scan(&inv.ID, &inv.RoomID, &inv.UserID, &inv.InvitedBy, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

const invitationColumns = "id, room_id, user_id, invited_by, status, created_at, updated_at"

// Create inserts a pending invitation.
func (r InvitationRepository) Create(ctx context.Context, roomID, userID, invitedBy string) (*RoomInvitation, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO room_invitations (room_id, user_id, invited_by)
		VALUES ($1, $2, $3)
		RETURNING `+invitationColumns, roomID, userID, invitedBy)
	return scanInvitation(row)
}

// GetByID fetches one invitation by id.
func (r InvitationRepository) GetByID(ctx context.Context, id int64) (*RoomInvitation, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+invitationColumns+" FROM room_invitations WHERE id = $1", id)
	return scanInvitation(row)
}

// ListPending lists a user's pending invitations.
func (r InvitationRepository) ListPending(ctx context.Context, userID string) ([]*RoomInvitation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+invitationColumns+` FROM room_invitations WHERE user_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invitations []*RoomInvitation
	for rows.Next() {
		var inv RoomInvitation
		if err := rows.Scan(&inv.ID, &inv.RoomID, &inv.UserID, &inv.InvitedBy, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, err
		}
		invitations = append(invitations, &inv)
	}
	return invitations, rows.Err()
}

// SetStatus transitions an invitation's status. Both accepted and declined
// are terminal; the caller is responsible for enforcing that the
// invitation was pending beforehand.
func (r InvitationRepository) SetStatus(ctx context.Context, id int64, status InvitationStatus) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE room_invitations SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	return err
}
