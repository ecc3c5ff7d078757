package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"melodia-chat/internal/domain"
)

// MessageRepository implements domain.MessageRepository for PostgreSQL
type MessageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new PostgreSQL message repository
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Insert stores a new message and fills in the assigned id and timestamp
func (r *MessageRepository) Insert(ctx context.Context, message *domain.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (room, author_id, author_name, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		message.Room,
		message.AuthorID,
		message.AuthorName,
		message.Text,
	).Scan(&message.ID, &message.CreatedAt)

	if err != nil {
		return translateError("failed to insert message", err)
	}
	return nil
}

// RecentByRoom retrieves the most recent messages for a room, newest first
func (r *MessageRepository) RecentByRoom(ctx context.Context, room string, limit int) ([]*domain.ChatMessage, error) {
	query := `
		SELECT id, room, author_id, author_name, text, created_at
		FROM chat_messages
		WHERE room = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, translateError("failed to query recent messages", err)
	}
	defer rows.Close()

	return scanMessages(rows, limit)
}

// PageByRoom retrieves one page of a room's messages, newest first
func (r *MessageRepository) PageByRoom(ctx context.Context, room string, limit, offset int) ([]*domain.ChatMessage, error) {
	query := `
		SELECT id, room, author_id, author_name, text, created_at
		FROM chat_messages
		WHERE room = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, room, limit, offset)
	if err != nil {
		return nil, translateError("failed to query message page", err)
	}
	defer rows.Close()

	return scanMessages(rows, limit)
}

// CountByRoom returns the number of messages stored for a room
func (r *MessageRepository) CountByRoom(ctx context.Context, room string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM chat_messages WHERE room = $1`
	if err := r.db.QueryRowContext(ctx, query, room).Scan(&count); err != nil {
		return 0, translateError("failed to count messages", err)
	}
	return count, nil
}

// GetByID retrieves a single message
func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*domain.ChatMessage, error) {
	query := `
		SELECT id, room, author_id, author_name, text, created_at
		FROM chat_messages
		WHERE id = $1
	`
	msg := &domain.ChatMessage{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.Room,
		&msg.AuthorID,
		&msg.AuthorName,
		&msg.Text,
		&msg.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("message %d not found", id)
	}
	if err != nil {
		return nil, translateError("failed to get message", err)
	}
	return msg, nil
}

// Delete removes a message by id
func (r *MessageRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE id = $1`, id)
	if err != nil {
		return translateError("failed to delete message", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return translateError("failed to read delete result", err)
	}
	if affected == 0 {
		return domain.NotFoundf("message %d not found", id)
	}
	return nil
}

// DistinctRooms returns every room value observed across stored messages
func (r *MessageRepository) DistinctRooms(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT room FROM chat_messages ORDER BY room`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, translateError("failed to query distinct rooms", err)
	}
	defer rows.Close()

	var rooms []string
	for rows.Next() {
		var room string
		if err := rows.Scan(&room); err != nil {
			return nil, translateError("failed to scan room", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("error iterating rooms", err)
	}
	return rooms, nil
}

func scanMessages(rows *sql.Rows, capacity int) ([]*domain.ChatMessage, error) {
	messages := make([]*domain.ChatMessage, 0, capacity)
	for rows.Next() {
		msg := &domain.ChatMessage{}
		err := rows.Scan(
			&msg.ID,
			&msg.Room,
			&msg.AuthorID,
			&msg.AuthorName,
			&msg.Text,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}
