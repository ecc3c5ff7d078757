package domain

import (
	"context"
	"time"
)

const (
	// DefaultRoom receives messages that don't name a room.
	DefaultRoom = "general"

	MaxRoomLength    = 50
	MaxMessageLength = 1000
)

// ChatMessage represents a persisted chat message. Messages are never
// mutated after creation; only an author-authorized delete removes them.
type ChatMessage struct {
	ID         int64     `json:"id"`
	Room       string    `json:"room"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryPage is one page of a room's message history in chronological order.
type HistoryPage struct {
	Messages    []*ChatMessage `json:"messages"`
	Total       int            `json:"total"`
	Pages       int            `json:"pages"`
	CurrentPage int            `json:"current_page"`
	HasNext     bool           `json:"has_next"`
	HasPrev     bool           `json:"has_prev"`
}

// RoomStatistics summarizes a single room.
type RoomStatistics struct {
	Room         string       `json:"room"`
	MessageCount int          `json:"message_count"`
	LastMessage  *ChatMessage `json:"last_message"`
}

// MessageRepository defines the interface for message data access.
// Queries return messages newest-first; callers reverse for display order.
type MessageRepository interface {
	Insert(ctx context.Context, message *ChatMessage) error
	RecentByRoom(ctx context.Context, room string, limit int) ([]*ChatMessage, error)
	PageByRoom(ctx context.Context, room string, limit, offset int) ([]*ChatMessage, error)
	CountByRoom(ctx context.Context, room string) (int, error)
	GetByID(ctx context.Context, id int64) (*ChatMessage, error)
	Delete(ctx context.Context, id int64) error
	DistinctRooms(ctx context.Context) ([]string, error)
}
