// Package registry tracks live connections: which sessions exist, which user
// each session carries, and which rooms each session has joined. It is the
// only mutable shared state in the chat core and owns it exclusively; callers
// get snapshots, never live references.
package registry

import (
	"sync"

	"melodia-chat/internal/domain"
)

// Member is one entry in a room's membership snapshot.
type Member struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type session struct {
	id          string
	userID      string
	displayName string
	rooms       map[string]struct{}
}

// Registry maps sessions to users and rooms with a bidirectional index, so
// disconnect is O(1) in the number of connected sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session            // session id -> session
	byUser   map[string]string              // user id -> session id, last writer wins
	rooms    map[string]map[string]struct{} // room -> session id set
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		byUser:   make(map[string]string),
		rooms:    make(map[string]map[string]struct{}),
	}
}

// Connect registers a session with no user binding yet. Reconnecting an
// already-known session id is a no-op.
func (r *Registry) Connect(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sessionID]; ok {
		return
	}
	r.sessions[sessionID] = &session{
		id:    sessionID,
		rooms: make(map[string]struct{}),
	}
}

// Join adds the session to a room and binds the user to the session in the
// by-user lookup. Joining a room twice is a no-op beyond re-subscribing.
func (r *Registry) Join(sessionID, userID, room, displayName string) error {
	if userID == "" {
		return domain.Validationf("User ID is required")
	}
	if room == "" {
		room = domain.DefaultRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return domain.NotFoundf("session %s not connected", sessionID)
	}

	s.userID = userID
	if displayName != "" {
		s.displayName = displayName
	} else if s.displayName == "" {
		s.displayName = "User_" + userID
	}
	s.rooms[room] = struct{}{}

	// Last writer wins: a second session for the same user replaces the
	// by-user entry while the first stays connected and a room member.
	r.byUser[userID] = sessionID

	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]struct{})
	}
	r.rooms[room][sessionID] = struct{}{}
	return nil
}

// Leave removes the session from a room. Leaving a room the session never
// joined is a no-op.
func (r *Registry) Leave(sessionID, room string) {
	if room == "" {
		room = domain.DefaultRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(s.rooms, room)
	r.removeFromRoom(sessionID, room)
}

// Disconnect removes the session entirely and returns the rooms it belonged
// to, so the caller can notify each of them. Unknown sessions return nil.
func (r *Registry) Disconnect(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}

	affected := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		r.removeFromRoom(sessionID, room)
		affected = append(affected, room)
	}

	if s.userID != "" && r.byUser[s.userID] == sessionID {
		delete(r.byUser, s.userID)
	}
	delete(r.sessions, sessionID)
	return affected
}

// Members returns a snapshot of the room's current membership.
func (r *Registry) Members(room string) []Member {
	if room == "" {
		room = domain.DefaultRoom
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.rooms[room]
	if !ok {
		return nil
	}
	members := make([]Member, 0, len(ids))
	for id := range ids {
		if s, ok := r.sessions[id]; ok {
			members = append(members, Member{
				SessionID:   s.id,
				UserID:      s.userID,
				DisplayName: s.displayName,
			})
		}
	}
	return members
}

// SessionIDs returns the session ids currently subscribed to a room.
func (r *Registry) SessionIDs(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.rooms[room]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out
}

// SessionByUser returns the session id the by-user lookup currently holds for
// a user. When the user has opened several connections this is the most
// recent one to join a room; older sessions remain connected and subscribed.
func (r *Registry) SessionByUser(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUser[userID]
	return id, ok
}

// InRoom reports whether the session is currently a member of the room.
func (r *Registry) InRoom(sessionID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.rooms[room]
	if !ok {
		return false
	}
	_, ok = ids[sessionID]
	return ok
}

// Len returns the number of connected sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// removeFromRoom drops the session from a room's member set and cleans up
// empty rooms. Caller holds the write lock.
func (r *Registry) removeFromRoom(sessionID, room string) {
	ids, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(ids, sessionID)
	if len(ids) == 0 {
		delete(r.rooms, room)
	}
}
