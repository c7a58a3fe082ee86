package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/domtech/lifeline/core/dispatch"
	"github.com/domtech/lifeline/core/events"
	coremetrics "github.com/domtech/lifeline/core/metrics"
	"github.com/domtech/lifeline/core/model"
	"github.com/domtech/lifeline/core/store"
	"github.com/domtech/lifeline/infra/logger"
	"github.com/domtech/lifeline/internal/eventbus"
)

type countingSink struct {
	mu     sync.Mutex
	votes  int
	pushes int
}

func (s *countingSink) RecordAssignment([]coremetrics.AssignmentResult) error { return nil }

func (s *countingSink) RecordVote(coremetrics.VoteEvent) error {
	s.mu.Lock()
	s.votes++
	s.mu.Unlock()
	return nil
}

func (s *countingSink) RecordPush(coremetrics.PushEvent) error {
	s.mu.Lock()
	s.pushes++
	s.mu.Unlock()
	return nil
}

func (s *countingSink) voteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.votes
}

func (s *countingSink) pushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushes
}

type silentPush struct{}

func (silentPush) Send(context.Context, model.PushSubscription, []byte) error { return nil }

func TestCollectorRecordsVoteAndPushEvents(t *testing.T) {
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	sink := &countingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	StartEventCollector(ctx, bus, sink)

	bus.Publish(events.VoteRecorded{AlertID: "a1", VoterID: "w1", Vote: true})
	bus.Publish(events.PushResult{UserID: "u1", Gone: true})

	require.Eventually(t, func() bool {
		return sink.voteCount() == 1 && sink.pushCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestVoteRecordedExactlyOnceInSink(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	log := logger.NopLogger{}

	d, err := dispatch.NewDispatcher(dispatch.NewRegistry(), dispatch.NewLockTable(), st, silentPush{}, dispatch.NewRoleMap(nil), bus, log, nil)
	require.NoError(t, err)
	q, err := dispatch.NewQuorum(st, d, 5, bus, log)
	require.NoError(t, err)

	sink := &countingSink{}
	cctx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	StartEventCollector(cctx, bus, sink)

	require.NoError(t, st.CreateAlert(ctx, model.Alert{ID: "a1", CreatorID: "u1", Status: model.StatusPending}))
	require.NoError(t, q.RecordVote(ctx, "a1", "w1", true))

	require.Eventually(t, func() bool {
		return sink.voteCount() == 1
	}, 2*time.Second, 10*time.Millisecond, "one vote must be recorded in the sink")
	require.Never(t, func() bool {
		return sink.voteCount() > 1
	}, 300*time.Millisecond, 20*time.Millisecond, "one vote must be recorded exactly once in the sink")
}
