package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"melodia-chat/internal/domain"
	"melodia-chat/internal/registry"
	"melodia-chat/internal/service"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	maxMessageSize = 4096

	handlerTimeout = 5 * time.Second
)

// Session drives one live connection: it reads event frames, dispatches them
// to the chat service and registry, and pushes outbound frames through its
// send channel. A handler failure surfaces as an error event; it never tears
// down the connection.
type Session struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	registry *registry.Registry
	chat     *service.ChatService

	send chan []byte

	// identity is set when the connection presented a verifiable token; the
	// event payloads' user_id still wins, matching the original contract.
	identity *domain.Identity

	// boundUserID/boundName mirror the registry binding from the last join.
	// Only the read pump touches them.
	boundUserID string
	boundName   string

	writeMu    sync.Mutex
	closed     atomic.Bool
	sendClosed atomic.Bool
	ctx        context.Context
	ctxCancel  context.CancelFunc
}

// NewSession creates a session for an upgraded connection. identity may be
// nil for unauthenticated connections.
func NewSession(ctx context.Context, id string, hub *Hub, conn *websocket.Conn,
	reg *registry.Registry, chat *service.ChatService, identity *domain.Identity) *Session {
	sessionCtx, cancel := context.WithCancel(ctx)

	return &Session{
		id:        id,
		hub:       hub,
		conn:      conn,
		registry:  reg,
		chat:      chat,
		identity:  identity,
		send:      make(chan []byte, 256),
		ctx:       sessionCtx,
		ctxCancel: cancel,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// ReadPump reads frames until the connection drops, dispatching each event.
// On exit it removes the session from the registry before any departure
// notice is broadcast, so the departing session is never a delivery target.
func (s *Session) ReadPump() {
	defer func() {
		s.ctxCancel()

		affected := s.registry.Disconnect(s.id)
		s.hub.Unregister(s)
		s.closeConnection()

		for _, room := range affected {
			s.hub.Broadcast(room, EventUserLeft, map[string]string{
				"user_id":  s.userID(),
				"username": s.displayName(),
				"message":  s.displayName() + " left the room",
			}, s.id)
			s.hub.Broadcast(room, EventUserDisconnected, map[string]string{
				"user_id": s.userID(),
			}, s.id)
		}

		slog.Info("client disconnected", slog.String("session_id", s.id))
	}()

	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("failed to set read deadline",
			slog.String("error", err.Error()),
			slog.String("session_id", s.id))
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.sendToSelf(EventStatus, map[string]string{
		"msg": s.id + " has connected",
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket error",
					slog.String("error", err.Error()),
					slog.String("session_id", s.id))
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			slog.Warn("invalid frame",
				slog.String("error", err.Error()),
				slog.String("session_id", s.id))
			s.sendRaw(errorFrame(domain.Validationf("malformed event frame")))
			continue
		}

		s.dispatch(env.Event, env.Data)
	}
}

// dispatch routes one inbound event. Panics and errors both surface as an
// error event to the caller; the connection stays up either way.
func (s *Session) dispatch(event string, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panic",
				slog.String("event", event),
				slog.String("session_id", s.id),
				slog.Any("panic", r))
			s.sendRaw(errorFrame(domain.ServiceError("handler failure", fmt.Errorf("%v", r))))
		}
	}()

	var err error
	switch event {
	case EventJoinRoom:
		err = s.handleJoinRoom(data)
	case EventLeaveRoom:
		err = s.handleLeaveRoom(data)
	case EventSendMessage:
		err = s.handleSendMessage(data)
	case EventMessageHistory:
		err = s.handleHistory(data)
	case EventTyping:
		err = s.handleTyping(data)
	case EventConnectedUsers:
		err = s.handleConnectedUsers(data)
	default:
		err = domain.Validationf("unknown event %q", event)
	}

	if err != nil {
		if domain.KindOf(err) == domain.KindService {
			slog.Error("handler failed",
				slog.String("event", event),
				slog.String("session_id", s.id),
				slog.String("error", err.Error()))
		}
		s.sendRaw(errorFrame(err))
	}
}

func (s *Session) handleJoinRoom(data json.RawMessage) error {
	var p JoinRoomPayload
	if err := unmarshalPayload(data, &p); err != nil {
		return err
	}
	s.applyIdentityFallback(&p.UserID, &p.DisplayName)

	room := roomOrDefault(p.Room)
	if err := s.registry.Join(s.id, p.UserID, room, p.DisplayName); err != nil {
		return err
	}
	s.boundUserID = p.UserID
	s.boundName = displayNameOrDefault(p.DisplayName, p.UserID)

	ctx, cancel := context.WithTimeout(s.ctx, handlerTimeout)
	defer cancel()

	recent, err := s.chat.Recent(ctx, room, service.DefaultRecentLimit)
	if err != nil {
		return err
	}

	s.sendToSelf(EventRecentMessages, map[string]any{
		"room":     room,
		"messages": recent,
	})

	name := displayNameOrDefault(p.DisplayName, p.UserID)
	s.hub.Broadcast(room, EventUserJoined, map[string]string{
		"user_id":  p.UserID,
		"username": name,
		"message":  name + " joined the room",
	}, s.id)

	slog.Info("user joined room",
		slog.String("user_id", p.UserID),
		slog.String("room", room),
		slog.String("session_id", s.id))
	return nil
}

func (s *Session) handleLeaveRoom(data json.RawMessage) error {
	var p LeaveRoomPayload
	if err := unmarshalPayload(data, &p); err != nil {
		return err
	}
	s.applyIdentityFallback(&p.UserID, nil)

	room := roomOrDefault(p.Room)
	if !s.registry.InRoom(s.id, room) {
		return nil
	}
	s.registry.Leave(s.id, room)

	name := s.displayName()
	s.hub.Broadcast(room, EventUserLeft, map[string]string{
		"user_id":  p.UserID,
		"username": name,
		"message":  name + " left the room",
	}, s.id)

	slog.Info("user left room",
		slog.String("user_id", p.UserID),
		slog.String("room", room),
		slog.String("session_id", s.id))
	return nil
}

func (s *Session) handleSendMessage(data json.RawMessage) error {
	var p SendMessagePayload
	if err := unmarshalPayload(data, &p); err != nil {
		return err
	}
	s.applyIdentityFallback(&p.UserID, &p.DisplayName)

	ctx, cancel := context.WithTimeout(s.ctx, handlerTimeout)
	defer cancel()

	msg, err := s.chat.Send(ctx, p.Room, p.UserID, p.DisplayName, p.Message)
	if err != nil {
		return err
	}

	// Enqueued only after the store assigned id/created_at: the live stream
	// follows the persisted log. The sender is included so its UI reflects
	// the canonical record.
	s.hub.Broadcast(msg.Room, EventNewMessage, msg, "")

	slog.Info("message sent",
		slog.String("room", msg.Room),
		slog.String("user_id", msg.AuthorID),
		slog.Int64("message_id", msg.ID))
	return nil
}

func (s *Session) handleHistory(data json.RawMessage) error {
	var p HistoryPayload
	if err := unmarshalPayload(data, &p); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(s.ctx, handlerTimeout)
	defer cancel()

	history, err := s.chat.History(ctx, roomOrDefault(p.Room), p.Page, p.PerPage)
	if err != nil {
		return err
	}

	s.sendToSelf(EventHistoryResult, history)
	return nil
}

func (s *Session) handleTyping(data json.RawMessage) error {
	var p TypingPayload
	if err := unmarshalPayload(data, &p); err != nil {
		return err
	}
	s.applyIdentityFallback(&p.UserID, &p.DisplayName)

	room := roomOrDefault(p.Room)
	s.hub.Broadcast(room, EventUserTyping, map[string]any{
		"user_id":   p.UserID,
		"username":  displayNameOrDefault(p.DisplayName, p.UserID),
		"is_typing": p.IsTyping,
	}, s.id)
	return nil
}

func (s *Session) handleConnectedUsers(data json.RawMessage) error {
	var p ConnectedUsersPayload
	if err := unmarshalPayload(data, &p); err != nil {
		return err
	}

	room := roomOrDefault(p.Room)
	members := s.registry.Members(room)

	s.sendToSelf(EventConnectedUsersOut, map[string]any{
		"room":  room,
		"users": members,
		"count": len(members),
	})
	return nil
}

// WritePump pumps frames from the send channel to the connection.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.closeConnection()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			if !ok {
				// Hub closed the channel
				_ = s.writeFrame(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.writeFrame(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			if err := s.writeFrame(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendToSelf delivers an event to this session only.
func (s *Session) sendToSelf(event string, payload any) {
	frame, err := marshalEvent(event, payload)
	if err != nil {
		slog.Error("failed to marshal event",
			slog.String("event", event),
			slog.String("error", err.Error()))
		return
	}
	s.sendRaw(frame)
}

// sendRaw pushes a prepared frame, dropping it when the buffer is full or
// the channel already closed.
func (s *Session) sendRaw(frame []byte) {
	if s.sendClosed.Load() {
		return
	}
	select {
	case s.send <- frame:
	default:
		slog.Warn("send buffer full, dropping frame", slog.String("session_id", s.id))
	}
}

// writeFrame writes to the connection in a thread-safe manner.
func (s *Session) writeFrame(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return websocket.ErrCloseSent
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

// closeConnection safely closes the underlying connection once.
func (s *Session) closeConnection() {
	if s.closed.CompareAndSwap(false, true) {
		s.writeMu.Lock()
		s.conn.Close()
		s.writeMu.Unlock()
	}
}

// applyIdentityFallback fills empty identity fields from the verified token,
// when one was presented at connect time.
func (s *Session) applyIdentityFallback(userID *string, displayName *string) {
	if s.identity == nil {
		return
	}
	if userID != nil && *userID == "" {
		*userID = s.identity.UserID
	}
	if displayName != nil && *displayName == "" {
		*displayName = s.identity.DisplayName
	}
}

// userID returns the best-known user id for departure notices.
func (s *Session) userID() string {
	if s.boundUserID != "" {
		return s.boundUserID
	}
	if s.identity != nil {
		return s.identity.UserID
	}
	return ""
}

func (s *Session) displayName() string {
	if s.boundName != "" {
		return s.boundName
	}
	if s.identity != nil && s.identity.DisplayName != "" {
		return s.identity.DisplayName
	}
	return displayNameOrDefault("", s.userID())
}

func unmarshalPayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return domain.Validationf("malformed event payload")
	}
	return nil
}

func roomOrDefault(room string) string {
	if room == "" {
		return domain.DefaultRoom
	}
	return room
}

func displayNameOrDefault(name, userID string) string {
	if name != "" {
		return name
	}
	if userID == "" {
		return "Anonymous"
	}
	return "User_" + userID
}
