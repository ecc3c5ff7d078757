package websocket

import (
	"encoding/json"
	"fmt"

	"melodia-chat/internal/domain"
)

// Inbound event names.
const (
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventSendMessage    = "send_message"
	EventMessageHistory = "get_message_history"
	EventTyping         = "typing"
	EventConnectedUsers = "get_connected_users"
)

// Outbound event names.
const (
	EventStatus            = "status"
	EventRecentMessages    = "recent_messages"
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventUserDisconnected  = "user_disconnected"
	EventNewMessage        = "new_message"
	EventHistoryResult     = "message_history"
	EventUserTyping        = "user_typing"
	EventConnectedUsersOut = "connected_users"
	EventError             = "error"
)

// Envelope is the wire frame for both directions: an event name plus an
// event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRoomPayload struct {
	UserID      string `json:"user_id"`
	Room        string `json:"room,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

type LeaveRoomPayload struct {
	UserID string `json:"user_id"`
	Room   string `json:"room,omitempty"`
}

type SendMessagePayload struct {
	UserID      string `json:"user_id"`
	Message     string `json:"message"`
	Room        string `json:"room,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

type HistoryPayload struct {
	Room    string `json:"room,omitempty"`
	Page    int    `json:"page,omitempty"`
	PerPage int    `json:"per_page,omitempty"`
}

type TypingPayload struct {
	UserID      string `json:"user_id"`
	Room        string `json:"room,omitempty"`
	IsTyping    bool   `json:"is_typing"`
	DisplayName string `json:"display_name,omitempty"`
}

type ConnectedUsersPayload struct {
	Room string `json:"room,omitempty"`
}

// ErrorPayload is sent on the error event; kind distinguishes the failure
// category for the client.
type ErrorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// marshalEvent builds a wire frame for an outbound event.
func marshalEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// errorFrame maps any failure to an error event frame, preserving the kind.
func errorFrame(err error) []byte {
	payload := ErrorPayload{
		Message: err.Error(),
		Kind:    domain.KindOf(err).String(),
	}
	if domain.KindOf(err) == domain.KindService {
		// Don't leak internals to clients; the full error is logged.
		payload.Message = "internal error"
	}
	frame, marshalErr := marshalEvent(EventError, payload)
	if marshalErr != nil {
		return []byte(`{"event":"error","data":{"message":"internal error","kind":"service"}}`)
	}
	return frame
}
