package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"melodia-chat/internal/domain"
	"melodia-chat/internal/middleware"
	"melodia-chat/internal/service"
)

// ChatHandler handles the chat REST endpoints
type ChatHandler struct {
	chat *service.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chat: chat,
	}
}

// SendMessageRequest represents the message creation request body
type SendMessageRequest struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

// SendMessage persists a message authored by the authenticated identity
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}

	msg, err := h.chat.Send(r.Context(), req.Room, identity.UserID, identity.DisplayName, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// GetMessages retrieves recent messages for a room
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		room = domain.DefaultRoom
	}

	limit := service.DefaultRecentLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	messages, err := h.chat.Recent(r.Context(), room, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"room":     room,
		"count":    len(messages),
	})
}

// GetHistory retrieves a paginated page of a room's message history
func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		room = domain.DefaultRoom
	}

	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if parsed, err := strconv.Atoi(pageStr); err == nil {
			page = parsed
		}
	}

	perPage := service.DefaultPerPage
	if perPageStr := r.URL.Query().Get("per_page"); perPageStr != "" {
		if parsed, err := strconv.Atoi(perPageStr); err == nil {
			perPage = parsed
		}
	}

	history, err := h.chat.History(r.Context(), room, page, perPage)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, history)
}

// DeleteMessage removes a message; only its author may delete it
func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
		return
	}

	messageID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, `{"error":"Invalid message id"}`, http.StatusBadRequest)
		return
	}

	if err := h.chat.Delete(r.Context(), messageID, identity.UserID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Message deleted successfully",
	})
}

// ListRooms retrieves rooms with message activity
func (h *ChatHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.chat.ActiveRooms(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rooms": rooms,
		"count": len(rooms),
	})
}

// RoomStatistics retrieves message statistics for one room
func (h *ChatHandler) RoomStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.chat.RoomStatistics(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps a domain error to its HTTP status. Service failures keep
// their detail out of the response body.
func writeError(w http.ResponseWriter, err error) {
	var status int
	var category string
	message := err.Error()

	switch domain.KindOf(err) {
	case domain.KindValidation:
		status = http.StatusBadRequest
		category = "Message validation failed"
	case domain.KindNotFound:
		status = http.StatusNotFound
		category = "Message not found"
	case domain.KindUnauthorized:
		status = http.StatusForbidden
		category = "Unauthorized"
	default:
		status = http.StatusInternalServerError
		category = "Chat service error"
		message = "internal error"
	}

	writeJSON(w, status, map[string]string{
		"error":   category,
		"message": message,
	})
}
