package store

import (
	"context"
	"sort"
	"sync"

	"github.com/domtech/lifeline/core/model"
)

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts map[string]model.Alert
	users  map[string]model.Principal
	votes  map[string]map[string]bool          // alertID -> voterID -> vote
	subs   map[string]model.PushSubscription   // endpoint -> subscription
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts: make(map[string]model.Alert),
		users:  make(map[string]model.Principal),
		votes:  make(map[string]map[string]bool),
		subs:   make(map[string]model.PushSubscription),
	}
}

// PutUser seeds or replaces a user record.
func (s *MemoryStore) PutUser(p model.Principal) {
	s.mu.Lock()
	s.users[p.ID] = p
	s.mu.Unlock()
}

func (s *MemoryStore) CreateAlert(_ context.Context, a model.Alert) error {
	s.mu.Lock()
	s.alerts[a.ID] = a
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetAlertByID(_ context.Context, id string) (model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return model.Alert{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) UpdateAlertStatus(_ context.Context, id string, status model.AlertStatus, assignedResponderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	if assignedResponderID != "" {
		a.AssignedResponderID = assignedResponderID
	}
	s.alerts[id] = a
	return nil
}

func (s *MemoryStore) PromoteAlert(_ context.Context, id string, from, to model.AlertStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return false, ErrNotFound
	}
	if a.Status != from {
		return false, nil
	}
	a.Status = to
	s.alerts[id] = a
	return true, nil
}

func (s *MemoryStore) AlertsAssignedTo(_ context.Context, responderID string, status model.AlertStatus) ([]model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Alert
	for _, a := range s.alerts {
		if a.AssignedResponderID == responderID && a.Status == status {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SetRoutePath(_ context.Context, id string, path []model.Coordinate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return ErrNotFound
	}
	a.RoutePath = append([]model.Coordinate(nil), path...)
	s.alerts[id] = a
	return nil
}

func (s *MemoryStore) SetTrafficController(_ context.Context, alertID, trafficID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alertID]
	if !ok {
		return ErrNotFound
	}
	a.TrafficID = trafficID
	s.alerts[alertID] = a
	return nil
}

func (s *MemoryStore) SaveValidation(_ context.Context, alertID, voterID string, vote bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.votes[alertID]
	if !ok {
		m = make(map[string]bool)
		s.votes[alertID] = m
	}
	m[voterID] = vote
	return nil
}

func (s *MemoryStore) CountTrueVotes(_ context.Context, alertID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, v := range s.votes[alertID] {
		if v {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (model.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[id]
	if !ok {
		return model.Principal{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]model.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Principal, 0, len(s.users))
	for _, p := range s.users {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListUsersByRole(_ context.Context, roles []model.Role) ([]model.Principal, error) {
	want := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		want[r] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Principal
	for _, p := range s.users {
		if want[p.Role] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateUserLocation(_ context.Context, id string, loc model.Coordinate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	l := loc
	p.Location = &l
	s.users[id] = p
	return nil
}

func (s *MemoryStore) SaveSubscription(_ context.Context, sub model.PushSubscription) error {
	s.mu.Lock()
	s.subs[sub.Endpoint] = sub
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SubscriptionsForUser(_ context.Context, userID string) ([]model.PushSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.PushSubscription
	for _, sub := range s.subs {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

func (s *MemoryStore) ListSubscriptions(_ context.Context) ([]model.PushSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PushSubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

func (s *MemoryStore) DeleteSubscription(_ context.Context, endpoint string) error {
	s.mu.Lock()
	delete(s.subs, endpoint)
	s.mu.Unlock()
	return nil
}
