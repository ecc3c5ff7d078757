package websocket

import (
	"context"
	"log/slog"

	"melodia-chat/internal/observability"
	"melodia-chat/internal/registry"
)

// broadcastRequest targets every current member of a room, optionally
// excluding the originating session.
type broadcastRequest struct {
	Room             string
	ExcludeSessionID string
	Event            string
	Frame            []byte
}

// Hub fans events out to room members. Membership lives in the Registry; the
// hub only owns the per-session send channels, so registry mutations from one
// connection never block another connection's delivery.
type Hub struct {
	registry *registry.Registry

	// Registered sessions by session id
	sessions map[string]*Session

	broadcast  chan *broadcastRequest
	register   chan *Session
	unregister chan *Session

	done chan struct{}
}

// NewHub creates a new Hub backed by the given registry.
func NewHub(reg *registry.Registry) *Hub {
	return &Hub{
		registry:   reg,
		sessions:   make(map[string]*Session),
		broadcast:  make(chan *broadcastRequest, 256),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's dispatch loop. All fan-out is serialized here, so
// within one room every session observes events in the same order.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case s := <-h.register:
			h.sessions[s.id] = s
			observability.WebSocketConnectionsActive.Inc()
			slog.Info("session registered", slog.String("session_id", s.id))

		case s := <-h.unregister:
			h.unregisterSession(s)

		case req := <-h.broadcast:
			h.deliver(req)
		}
	}
}

// deliver sends one frame to every session the registry currently lists for
// the room. Delivery is at-most-once: a session whose buffer is full is
// dropped rather than allowed to stall the room.
func (h *Hub) deliver(req *broadcastRequest) {
	for _, sid := range h.registry.SessionIDs(req.Room) {
		if sid == req.ExcludeSessionID {
			continue
		}
		s, ok := h.sessions[sid]
		if !ok {
			// Session is mid-disconnect; registry cleanup races are benign.
			continue
		}
		select {
		case s.send <- req.Frame:
			observability.WebSocketMessagesSent.WithLabelValues(req.Room, req.Event).Inc()
		default:
			slog.Warn("dropping slow session",
				slog.String("session_id", sid),
				slog.String("room", req.Room))
			h.unregisterSession(s)
		}
	}
}

// unregisterSession removes a session from the hub and closes its send
// channel. Registry cleanup is the session's own responsibility on read-loop
// exit.
func (h *Hub) unregisterSession(s *Session) {
	if _, ok := h.sessions[s.id]; !ok {
		return
	}
	delete(h.sessions, s.id)
	h.closeSessionSend(s)
	observability.WebSocketConnectionsActive.Dec()
	slog.Info("session unregistered", slog.String("session_id", s.id))
}

// closeSessionSend safely closes a session's send channel.
func (h *Hub) closeSessionSend(s *Session) {
	if s.sendClosed.CompareAndSwap(false, true) {
		close(s.send)
	}
}

// shutdown closes every remaining session's send channel.
func (h *Hub) shutdown() {
	close(h.done)

	for id, s := range h.sessions {
		h.closeSessionSend(s)
		slog.Info("closed session", slog.String("session_id", id))
	}

	slog.Info("hub shutdown complete")
}

// Broadcast sends an event to every current member of a room. Pass a session
// id in exclude to skip the originating session, or "" to include everyone.
func (h *Hub) Broadcast(room, event string, payload any, exclude string) {
	frame, err := marshalEvent(event, payload)
	if err != nil {
		slog.Error("failed to marshal broadcast",
			slog.String("event", event),
			slog.String("error", err.Error()))
		return
	}
	h.broadcast <- &broadcastRequest{
		Room:             room,
		ExcludeSessionID: exclude,
		Event:            event,
		Frame:            frame,
	}
}

// Register adds a session to the hub.
func (h *Hub) Register(s *Session) {
	h.register <- s
}

// Unregister removes a session from the hub.
func (h *Hub) Unregister(s *Session) {
	h.unregister <- s
}
