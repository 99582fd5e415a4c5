package chatdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepository is, like RoomRepository, a cheap value wrapper around
// the shared pool.
type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return MessageRepository{pool: pool}
}

// Insert persists a message and returns its id. messageType defaults to
// "text" when empty, matching the column default.
func (r MessageRepository) Insert(ctx context.Context, roomID, senderID, content, messageType string, metadata json.RawMessage, at time.Time) (string, error) {
	if messageType == "" {
		messageType = "text"
	}
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, room_id, sender_id, content, message_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, roomID, senderID, content, messageType, nullableJSON(metadata), at)
	if err != nil {
		return "", err
	}
	return id, nil
}

// InsertSystem persists a system-authored message, used for invitation
// accept notices ("<name> đã tham gia nhóm").
func (r MessageRepository) InsertSystem(ctx context.Context, roomID, content string, at time.Time) (string, error) {
	return r.Insert(ctx, roomID, "0", content, "system", nil, at)
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// ListByRoom pages messages in roomID, newest first, optionally before a
// given message id (cursor paging by the (created_at, id) ordering).
func (r MessageRepository) ListByRoom(ctx context.Context, roomID string, limit int, beforeID string) ([]*Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var rows pgx.Rows
	var err error
	if beforeID == "" {
		rows, err = r.pool.Query(ctx, `
			SELECT id, room_id, sender_id, content, message_type, metadata, created_at
			FROM chat_messages WHERE room_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, roomID, limit)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT id, room_id, sender_id, content, message_type, metadata, created_at
			FROM chat_messages
			WHERE room_id = $1 AND (created_at, id) < (
				SELECT created_at, id FROM chat_messages WHERE id = $2
			)
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		`, roomID, beforeID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.MessageType, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
