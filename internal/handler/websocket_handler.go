package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"melodia-chat/internal/domain"
	"melodia-chat/internal/registry"
	"melodia-chat/internal/service"
	ws "melodia-chat/internal/websocket"
)

// WebSocketHandler upgrades HTTP connections into live chat sessions
type WebSocketHandler struct {
	hub      *ws.Hub
	registry *registry.Registry
	chat     *service.ChatService
	verifier domain.TokenVerifier
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. allowedOrigins follows
// the CORS middleware convention; "*" admits every origin.
func NewWebSocketHandler(hub *ws.Hub, reg *registry.Registry, chat *service.ChatService,
	verifier domain.TokenVerifier, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		registry: reg,
		chat:     chat,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// HandleConnection upgrades the request and starts the session pumps. A
// token query parameter is optional: a verifiable one binds an identity the
// session falls back to, anything else leaves the connection unauthenticated.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	identity := h.verifyOptionalToken(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	sessionID := uuid.New().String()
	h.registry.Connect(sessionID)

	session := ws.NewSession(context.Background(), sessionID, h.hub, conn, h.registry, h.chat, identity)
	h.hub.Register(session)

	slog.Info("client connected",
		slog.String("session_id", sessionID),
		slog.Bool("authenticated", identity != nil))

	go session.WritePump()
	go session.ReadPump()
}

// verifyOptionalToken checks a token query parameter when present. Failed
// verification is logged and the connection proceeds unauthenticated.
func (h *WebSocketHandler) verifyOptionalToken(r *http.Request) *domain.Identity {
	token := r.URL.Query().Get("token")
	if token == "" || h.verifier == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	identity, err := h.verifier.Verify(ctx, token)
	if err != nil {
		slog.Warn("socket token verification failed, proceeding unauthenticated",
			slog.String("error", err.Error()))
		return nil
	}
	return &identity
}

// originChecker builds the upgrade origin check from the allowed-origins
// list. Requests without an Origin header (non-browser clients) pass.
func originChecker(allowedOrigins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowedOrigins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
