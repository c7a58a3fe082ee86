// Package session owns the per-connection protocol state machine. A
// connection starts unauthenticated, becomes a registered session after a
// valid AUTH message and is torn down when the transport errors or closes.
package session

import (
	"sync"

	"github.com/domtech/lifeline/core/model"
)

// Conn is the minimal duplex transport a session runs on. Implementations
// wrap a websocket or an in-memory pipe in tests.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}

// session binds an authenticated principal to its transport. It satisfies the
// dispatch registry's session contract.
type session struct {
	conn    Conn
	writeMu sync.Mutex

	mu        sync.RWMutex
	principal model.Principal
}

func newSession(conn Conn, p model.Principal) *session {
	return &session{conn: conn, principal: p}
}

// Principal returns a snapshot of the bound identity and last known location.
func (s *session) Principal() model.Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.principal
	if p.Location != nil {
		loc := *p.Location
		p.Location = &loc
	}
	return p
}

func (s *session) Send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *session) Close() error {
	return s.conn.Close()
}

func (s *session) setLocation(lat, lng float64) {
	s.mu.Lock()
	s.principal.Location = &model.Coordinate{Latitude: lat, Longitude: lng}
	s.mu.Unlock()
}
