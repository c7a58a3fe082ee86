package dispatch

import (
	"sync"
	"time"
)

// LockTable is the exclusive per-alert assignment lock. An entry means that
// responder has received, or is about to receive, the assignment and no other
// responder may be offered the same alert concurrently.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]lockEntry
}

type lockEntry struct {
	responderID string
	acquiredAt  time.Time
	accepted    bool
}

// StaleLock describes a lock that outlived its lease without an accept.
type StaleLock struct {
	AlertID     string
	ResponderID string
	HeldFor     time.Duration
}

// NewLockTable returns an empty LockTable.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]lockEntry)}
}

// Acquire claims the alert for the responder. The check-and-set is a single
// atomic step: if any entry exists, even for the same responder, the call
// fails and the existing holder wins.
func (t *LockTable) Acquire(alertID, responderID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, held := t.locks[alertID]; held {
		return false
	}
	t.locks[alertID] = lockEntry{responderID: responderID, acquiredAt: time.Now()}
	locksHeld.Set(float64(len(t.locks)))
	return true
}

// Release drops the lock for the alert, if any.
func (t *LockTable) Release(alertID string) {
	t.mu.Lock()
	delete(t.locks, alertID)
	locksHeld.Set(float64(len(t.locks)))
	t.mu.Unlock()
}

// MarkAccepted flags the lock as accepted, exempting it from lease
// reclamation. The lock keeps binding the alert to its responder for the
// rest of the alert's life.
func (t *LockTable) MarkAccepted(alertID string) {
	t.mu.Lock()
	if e, ok := t.locks[alertID]; ok {
		e.accepted = true
		t.locks[alertID] = e
	}
	t.mu.Unlock()
}

// Holder returns the responder currently holding the alert.
func (t *LockTable) Holder(alertID string) (string, bool) {
	t.mu.Lock()
	e, ok := t.locks[alertID]
	t.mu.Unlock()
	return e.responderID, ok
}

// ReleaseStale removes and returns every lock held longer than lease at the
// given instant. A lease of zero disables reclamation.
func (t *LockTable) ReleaseStale(lease time.Duration, now time.Time) []StaleLock {
	if lease <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var stale []StaleLock
	for id, e := range t.locks {
		if e.accepted {
			continue
		}
		if held := now.Sub(e.acquiredAt); held > lease {
			stale = append(stale, StaleLock{AlertID: id, ResponderID: e.responderID, HeldFor: held})
			delete(t.locks, id)
		}
	}
	if len(stale) > 0 {
		locksHeld.Set(float64(len(t.locks)))
	}
	return stale
}
