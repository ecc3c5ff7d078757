package service

import (
	"context"
	"log/slog"
	"strings"

	"melodia-chat/internal/domain"
)

const (
	// DefaultRecentLimit is used when a recent-messages request names no limit.
	DefaultRecentLimit = 50
	// MaxRecentLimit caps recent-messages requests.
	MaxRecentLimit = 100
	// DefaultPerPage is used when a history request names no page size.
	DefaultPerPage = 20
	// MaxPerPage caps history page sizes.
	MaxPerPage = 50
)

// EventPublisher mirrors message lifecycle events to an external broker for
// downstream consumers. Publishing is best-effort and never fails the
// originating operation.
type EventPublisher interface {
	PublishMessageCreated(ctx context.Context, msg *domain.ChatMessage) error
	PublishMessageDeleted(ctx context.Context, id int64, room string) error
}

// ChatService validates, persists and retrieves chat messages.
type ChatService struct {
	messageRepo domain.MessageRepository
	publisher   EventPublisher
}

// NewChatService creates a chat service. publisher may be nil when no broker
// is configured.
func NewChatService(messageRepo domain.MessageRepository, publisher EventPublisher) *ChatService {
	return &ChatService{
		messageRepo: messageRepo,
		publisher:   publisher,
	}
}

// Send validates and persists a message, returning the stored record with its
// assigned id and timestamp. Validation failures never reach the store.
func (s *ChatService) Send(ctx context.Context, room, userID, displayName, text string) (*domain.ChatMessage, error) {
	trimmed := strings.TrimSpace(text)

	var errs []string
	if text == "" {
		errs = append(errs, "Message is required")
	} else if trimmed == "" {
		errs = append(errs, "Message cannot be empty")
	} else if len(trimmed) > domain.MaxMessageLength {
		errs = append(errs, "Message cannot exceed 1000 characters")
	}
	if userID == "" {
		errs = append(errs, "User ID is required")
	}
	if len(room) > domain.MaxRoomLength {
		errs = append(errs, "Room name cannot exceed 50 characters")
	}
	if len(errs) > 0 {
		return nil, domain.Validationf("%s", strings.Join(errs, "; "))
	}

	if room == "" {
		room = domain.DefaultRoom
	}
	if displayName == "" {
		displayName = "User_" + userID
	}

	msg := &domain.ChatMessage{
		Room:       room,
		AuthorID:   userID,
		AuthorName: displayName,
		Text:       trimmed,
	}

	if err := s.messageRepo.Insert(ctx, msg); err != nil {
		return nil, err
	}

	s.mirror(ctx, func(ctx context.Context) error {
		return s.publisher.PublishMessageCreated(ctx, msg)
	})

	return msg, nil
}

// Recent returns the most recent messages for a room in chronological order.
// The store returns newest-first; the reversal here is what makes initial
// room sync render oldest-to-newest.
func (s *ChatService) Recent(ctx context.Context, room string, limit int) ([]*domain.ChatMessage, error) {
	if room == "" {
		room = domain.DefaultRoom
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	messages, err := s.messageRepo.RecentByRoom(ctx, room, limit)
	if err != nil {
		return nil, err
	}

	reverse(messages)
	return messages, nil
}

// History returns one page of a room's messages in chronological order plus
// pagination metadata. A page past the end yields an empty list.
func (s *ChatService) History(ctx context.Context, room string, page, perPage int) (*domain.HistoryPage, error) {
	if room == "" {
		room = domain.DefaultRoom
	}
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	total, err := s.messageRepo.CountByRoom(ctx, room)
	if err != nil {
		return nil, err
	}

	offset := (page - 1) * perPage
	messages, err := s.messageRepo.PageByRoom(ctx, room, perPage, offset)
	if err != nil {
		return nil, err
	}
	reverse(messages)

	pages := 0
	if total > 0 {
		pages = (total + perPage - 1) / perPage
	}

	return &domain.HistoryPage{
		Messages:    messages,
		Total:       total,
		Pages:       pages,
		CurrentPage: page,
		HasNext:     page < pages,
		HasPrev:     page > 1,
	}, nil
}

// Delete removes a message when the requester is its author.
func (s *ChatService) Delete(ctx context.Context, messageID int64, requestingUserID string) error {
	if requestingUserID == "" {
		return domain.Validationf("User ID is required")
	}

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.AuthorID != requestingUserID {
		return domain.Unauthorizedf("you can only delete your own messages")
	}

	if err := s.messageRepo.Delete(ctx, messageID); err != nil {
		return err
	}

	s.mirror(ctx, func(ctx context.Context) error {
		return s.publisher.PublishMessageDeleted(ctx, messageID, msg.Room)
	})

	return nil
}

// ActiveRooms returns the distinct rooms observed across all messages. An
// empty store still reports the default room.
func (s *ChatService) ActiveRooms(ctx context.Context) ([]string, error) {
	rooms, err := s.messageRepo.DistinctRooms(ctx)
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return []string{domain.DefaultRoom}, nil
	}
	return rooms, nil
}

// RoomStatistics returns message count and last message for a room.
func (s *ChatService) RoomStatistics(ctx context.Context, room string) (*domain.RoomStatistics, error) {
	if room == "" {
		room = domain.DefaultRoom
	}

	count, err := s.messageRepo.CountByRoom(ctx, room)
	if err != nil {
		return nil, err
	}

	stats := &domain.RoomStatistics{Room: room, MessageCount: count}
	if count > 0 {
		last, err := s.messageRepo.RecentByRoom(ctx, room, 1)
		if err != nil {
			return nil, err
		}
		if len(last) > 0 {
			stats.LastMessage = last[0]
		}
	}
	return stats, nil
}

func (s *ChatService) mirror(ctx context.Context, publish func(context.Context) error) {
	if s.publisher == nil {
		return
	}
	if err := publish(ctx); err != nil {
		slog.Warn("failed to mirror chat event", slog.String("error", err.Error()))
	}
}

func reverse(messages []*domain.ChatMessage) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
