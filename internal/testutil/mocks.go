// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the melodia-chat application.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"melodia-chat/internal/domain"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockStore          = errors.New("mock: store failure")
)

// MockMessageRepository implements domain.MessageRepository for testing.
// Without overrides it behaves like the real store: queries come back
// newest-first, inserts assign ids and timestamps.
type MockMessageRepository struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	InsertFunc        func(ctx context.Context, message *domain.ChatMessage) error
	RecentByRoomFunc  func(ctx context.Context, room string, limit int) ([]*domain.ChatMessage, error)
	PageByRoomFunc    func(ctx context.Context, room string, limit, offset int) ([]*domain.ChatMessage, error)
	CountByRoomFunc   func(ctx context.Context, room string) (int, error)
	GetByIDFunc       func(ctx context.Context, id int64) (*domain.ChatMessage, error)
	DeleteFunc        func(ctx context.Context, id int64) error
	DistinctRoomsFunc func(ctx context.Context) ([]string, error)

	// In-memory storage, insertion order
	Messages []*domain.ChatMessage
	nextID   int64
}

// NewMockMessageRepository creates a new MockMessageRepository.
func NewMockMessageRepository() *MockMessageRepository {
	return &MockMessageRepository{
		Messages: make([]*domain.ChatMessage, 0),
	}
}

func (m *MockMessageRepository) Insert(ctx context.Context, message *domain.ChatMessage) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, message)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	message.ID = m.nextID
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	stored := *message
	m.Messages = append(m.Messages, &stored)
	return nil
}

// byRoomNewestFirst returns the room's messages newest-first. Callers hold
// at least a read lock.
func (m *MockMessageRepository) byRoomNewestFirst(room string) []*domain.ChatMessage {
	result := make([]*domain.ChatMessage, 0)
	for i := len(m.Messages) - 1; i >= 0; i-- {
		if m.Messages[i].Room == room {
			msg := *m.Messages[i]
			result = append(result, &msg)
		}
	}
	return result
}

func (m *MockMessageRepository) RecentByRoom(ctx context.Context, room string, limit int) ([]*domain.ChatMessage, error) {
	if m.RecentByRoomFunc != nil {
		return m.RecentByRoomFunc(ctx, room, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := m.byRoomNewestFirst(room)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockMessageRepository) PageByRoom(ctx context.Context, room string, limit, offset int) ([]*domain.ChatMessage, error) {
	if m.PageByRoomFunc != nil {
		return m.PageByRoomFunc(ctx, room, limit, offset)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := m.byRoomNewestFirst(room)
	if offset >= len(result) {
		return []*domain.ChatMessage{}, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockMessageRepository) CountByRoom(ctx context.Context, room string) (int, error) {
	if m.CountByRoomFunc != nil {
		return m.CountByRoomFunc(ctx, room)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, msg := range m.Messages {
		if msg.Room == room {
			count++
		}
	}
	return count, nil
}

func (m *MockMessageRepository) GetByID(ctx context.Context, id int64) (*domain.ChatMessage, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, msg := range m.Messages {
		if msg.ID == id {
			found := *msg
			return &found, nil
		}
	}
	return nil, domain.NotFoundf("message %d not found", id)
}

func (m *MockMessageRepository) Delete(ctx context.Context, id int64) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, msg := range m.Messages {
		if msg.ID == id {
			m.Messages = append(m.Messages[:i], m.Messages[i+1:]...)
			return nil
		}
	}
	return domain.NotFoundf("message %d not found", id)
}

func (m *MockMessageRepository) DistinctRooms(ctx context.Context) ([]string, error) {
	if m.DistinctRoomsFunc != nil {
		return m.DistinctRoomsFunc(ctx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	rooms := make([]string, 0)
	for _, msg := range m.Messages {
		if !seen[msg.Room] {
			seen[msg.Room] = true
			rooms = append(rooms, msg.Room)
		}
	}
	sort.Strings(rooms)
	return rooms, nil
}

// MockEventPublisher implements service.EventPublisher for testing.
type MockEventPublisher struct {
	mu sync.RWMutex

	// Function overrides
	PublishMessageCreatedFunc func(ctx context.Context, message *domain.ChatMessage) error
	PublishMessageDeletedFunc func(ctx context.Context, id int64, room string) error

	// Call tracking
	Created []*domain.ChatMessage
	Deleted []int64
}

// NewMockEventPublisher creates a new MockEventPublisher.
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{
		Created: make([]*domain.ChatMessage, 0),
		Deleted: make([]int64, 0),
	}
}

func (m *MockEventPublisher) PublishMessageCreated(ctx context.Context, message *domain.ChatMessage) error {
	if m.PublishMessageCreatedFunc != nil {
		return m.PublishMessageCreatedFunc(ctx, message)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Created = append(m.Created, message)
	return nil
}

func (m *MockEventPublisher) PublishMessageDeleted(ctx context.Context, id int64, room string) error {
	if m.PublishMessageDeletedFunc != nil {
		return m.PublishMessageDeletedFunc(ctx, id, room)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Deleted = append(m.Deleted, id)
	return nil
}

// CreatedMessages returns all recorded created messages.
func (m *MockEventPublisher) CreatedMessages() []*domain.ChatMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.ChatMessage{}, m.Created...)
}

// DeletedIDs returns all recorded deleted message ids.
func (m *MockEventPublisher) DeletedIDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int64{}, m.Deleted...)
}

// MockTokenVerifier implements domain.TokenVerifier for testing.
type MockTokenVerifier struct {
	// Function override
	VerifyFunc func(ctx context.Context, token string) (domain.Identity, error)

	// Identities maps raw tokens to the identity they verify as.
	Identities map[string]domain.Identity
}

// NewMockTokenVerifier creates a new MockTokenVerifier.
func NewMockTokenVerifier() *MockTokenVerifier {
	return &MockTokenVerifier{
		Identities: make(map[string]domain.Identity),
	}
}

func (m *MockTokenVerifier) Verify(ctx context.Context, token string) (domain.Identity, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, token)
	}
	if identity, ok := m.Identities[token]; ok {
		return identity, nil
	}
	return domain.Identity{}, domain.Unauthorizedf("invalid token")
}
