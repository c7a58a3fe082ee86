package dispatch

import (
	"context"
	"sync"

	"github.com/domtech/lifeline/core/model"
	"github.com/domtech/lifeline/core/push"
)

type fakeSession struct {
	mu        sync.Mutex
	principal model.Principal
	sent      []any
	sendErr   error
	closed    bool
}

func newFakeSession(id string, role model.Role, lat, lng float64) *fakeSession {
	return &fakeSession{principal: model.Principal{
		ID:       id,
		Role:     role,
		Location: &model.Coordinate{Latitude: lat, Longitude: lng},
	}}
}

func (s *fakeSession) Principal() model.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

func (s *fakeSession) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, v)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) sentMessages() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.sent...)
}

type pushRecord struct {
	sub     model.PushSubscription
	payload []byte
}

type fakePush struct {
	mu     sync.Mutex
	sent   []pushRecord
	errFor map[string]error // endpoint -> scripted error
}

func newFakePush() *fakePush {
	return &fakePush{errFor: make(map[string]error)}
}

func (f *fakePush) failWith(endpoint string, err error) {
	f.mu.Lock()
	f.errFor[endpoint] = err
	f.mu.Unlock()
}

func (f *fakePush) Send(_ context.Context, sub model.PushSubscription, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errFor[sub.Endpoint]; ok {
		return err
	}
	f.sent = append(f.sent, pushRecord{sub: sub, payload: payload})
	return nil
}

func (f *fakePush) deliveries() []pushRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pushRecord(nil), f.sent...)
}

var _ push.Sender = (*fakePush)(nil)
var _ Session = (*fakeSession)(nil)
