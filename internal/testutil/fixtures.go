package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"melodia-chat/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique numeric ID for test fixtures
func nextID() int64 {
	return idCounter.Add(1)
}

// MessageOptions allows customizing message fixture creation
type MessageOptions struct {
	ID         int64
	Room       string
	AuthorID   string
	AuthorName string
	Text       string
	CreatedAt  time.Time
}

// NewTestMessage creates a test message with sensible defaults
// Pass options to override specific fields
func NewTestMessage(opts ...func(*MessageOptions)) *domain.ChatMessage {
	id := nextID()
	o := &MessageOptions{
		ID:        id,
		Room:      domain.DefaultRoom,
		AuthorID:  fmt.Sprintf("user-%d", id),
		Text:      "Hello, World!",
		CreatedAt: time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(o)
	}

	// Derive the display name the same way the service does
	if o.AuthorName == "" {
		o.AuthorName = "User_" + o.AuthorID
	}

	return &domain.ChatMessage{
		ID:         o.ID,
		Room:       o.Room,
		AuthorID:   o.AuthorID,
		AuthorName: o.AuthorName,
		Text:       o.Text,
		CreatedAt:  o.CreatedAt,
	}
}

// Message option functions

// WithMessageID sets the message ID
func WithMessageID(id int64) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.ID = id
	}
}

// WithRoom sets the room the message belongs to
func WithRoom(room string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.Room = room
	}
}

// WithAuthor sets the author id and display name
func WithAuthor(authorID, authorName string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.AuthorID = authorID
		o.AuthorName = authorName
	}
}

// WithText sets the message text
func WithText(text string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.Text = text
	}
}

// WithMessageCreatedAt sets the message creation time
func WithMessageCreatedAt(t time.Time) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.CreatedAt = t
	}
}

// NewTestMessages creates count messages in the same room with ascending
// timestamps one second apart.
func NewTestMessages(room string, count int) []*domain.ChatMessage {
	base := time.Now().UTC().Add(-time.Duration(count) * time.Second)
	messages := make([]*domain.ChatMessage, count)
	for i := 0; i < count; i++ {
		messages[i] = NewTestMessage(
			WithRoom(room),
			WithText(fmt.Sprintf("message %d", i+1)),
			WithMessageCreatedAt(base.Add(time.Duration(i)*time.Second)),
		)
	}
	return messages
}

// NewTestIdentity creates a verified identity fixture
func NewTestIdentity(opts ...func(*domain.Identity)) domain.Identity {
	id := nextID()
	identity := domain.Identity{
		UserID:      fmt.Sprintf("user-%d", id),
		DisplayName: fmt.Sprintf("testuser%d", id),
	}
	for _, opt := range opts {
		opt(&identity)
	}
	return identity
}

// WithIdentityUserID sets the identity's user id
func WithIdentityUserID(userID string) func(*domain.Identity) {
	return func(i *domain.Identity) {
		i.UserID = userID
	}
}

// WithIdentityDisplayName sets the identity's display name
func WithIdentityDisplayName(name string) func(*domain.Identity) {
	return func(i *domain.Identity) {
		i.DisplayName = name
	}
}

// ResetIDCounter resets the ID counter (useful for deterministic tests)
func ResetIDCounter() {
	idCounter.Store(0)
}
