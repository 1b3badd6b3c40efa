// Package presence tracks live connection sessions. State is intentionally
// ephemeral: nothing survives a restart, clients simply reconnect.
package presence

import (
	"sync"
	"time"

	"github.com/lumachat/luma-gateway/internal/model/chat"
)

// Registry is the in-memory connection -> session map. All operations are
// total: acting on an unknown connection is a no-op rather than an error.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	now      func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return NewWithClock(time.Now)
}

// NewWithClock creates a registry with an injected clock so tests can drive
// liveness deterministically.
func NewWithClock(now func() time.Time) *Registry {
	return &Registry{
		sessions: make(map[string]chat.Session),
		now:      now,
	}
}

// OnConnect creates the session for a new connection. At most one session
// exists per connection id; reconnecting with the same id replaces it.
func (r *Registry) OnConnect(connectionID string, identity chat.Identity) chat.Session {
	now := r.now().UTC()
	session := chat.Session{
		ConnectionID:   connectionID,
		Identity:       identity,
		JoinedAt:       now,
		LastActivityAt: now,
	}

	r.mu.Lock()
	r.sessions[connectionID] = session
	r.mu.Unlock()

	return session
}

// Touch bumps the session's last-activity time. LastActivityAt never moves
// backwards, and touching an unknown connection is a no-op.
func (r *Registry) Touch(connectionID string) {
	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[connectionID]
	if !ok {
		return
	}
	if now.After(session.LastActivityAt) {
		session.LastActivityAt = now
		r.sessions[connectionID] = session
	}
}

// OnDisconnect removes the session, returning it so callers can cascade
// membership and typing cleanup.
func (r *Registry) OnDisconnect(connectionID string) (chat.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[connectionID]
	if ok {
		delete(r.sessions, connectionID)
	}
	return session, ok
}

// Get looks up the session for a connection.
func (r *Registry) Get(connectionID string) (chat.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[connectionID]
	return session, ok
}

// Snapshot returns a copy of every live session.
func (r *Registry) Snapshot() []chat.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]chat.Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// Expired returns sessions whose last activity lapsed beyond the threshold.
// The caller is responsible for closing their transports.
func (r *Registry) Expired(threshold time.Duration) []chat.Session {
	now := r.now().UTC()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var expired []chat.Session
	for _, session := range r.sessions {
		if now.Sub(session.LastActivityAt) > threshold {
			expired = append(expired, session)
		}
	}
	return expired
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
