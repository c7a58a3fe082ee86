package dispatch

import (
	"sync"

	"github.com/domtech/lifeline/core/model"
)

// Session is a live duplex connection bound to one authenticated principal.
// Principal returns a snapshot including the current role and last reported
// location. Send must be safe for concurrent use.
type Session interface {
	Principal() model.Principal
	Send(v any) error
	Close() error
}

// Registry tracks one live session per authenticated principal. A new
// session for the same principal replaces the previous one, which supports
// reconnect-before-timeout.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// Register binds the session to the principal id, replacing any prior entry.
func (r *Registry) Register(principalID string, s Session) {
	r.mu.Lock()
	r.sessions[principalID] = s
	r.mu.Unlock()
	connectedSessions.Set(float64(r.lenLocked()))
}

// Lookup returns the live session for the principal, if any.
func (r *Registry) Lookup(principalID string) (Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[principalID]
	r.mu.RUnlock()
	return s, ok
}

// Unregister removes the entry only if it still belongs to the caller's
// session. A stale close handler therefore cannot evict a newer session for
// the same principal. It reports whether an entry was removed.
func (r *Registry) Unregister(principalID string, s Session) bool {
	r.mu.Lock()
	cur, ok := r.sessions[principalID]
	if !ok || cur != s {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, principalID)
	r.mu.Unlock()
	connectedSessions.Set(float64(r.lenLocked()))
	return true
}

// Len returns the number of connected principals.
func (r *Registry) Len() int {
	return r.lenLocked()
}

func (r *Registry) lenLocked() int {
	r.mu.RLock()
	n := len(r.sessions)
	r.mu.RUnlock()
	return n
}

// Snapshot returns a copy of the current principal to session mapping for
// candidate iteration.
func (r *Registry) Snapshot() map[string]Session {
	r.mu.RLock()
	out := make(map[string]Session, len(r.sessions))
	for id, s := range r.sessions {
		out[id] = s
	}
	r.mu.RUnlock()
	return out
}
