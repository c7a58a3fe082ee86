package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domtech/lifeline/core/model"
	"github.com/domtech/lifeline/infra/logger"
)

func newTestQuorum(t *testing.T, e *testEngine, threshold int) *Quorum {
	t.Helper()
	q, err := NewQuorum(e.store, e.dispatcher, threshold, nil, logger.NopLogger{})
	require.NoError(t, err)
	return q
}

func pendingAlert(id string) model.Alert {
	a := fireAlert(id)
	a.Status = model.StatusPending
	return a
}

func TestQuorumPromotesAtThreshold(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	responder := newFakeSession("f1", model.RoleFirefighter, 0.0009, 0)
	e.registry.Register("f1", responder)
	q := newTestQuorum(t, e, 2)

	require.NoError(t, e.store.CreateAlert(ctx, pendingAlert("a1")))

	require.NoError(t, q.RecordVote(ctx, "a1", "w1", true))
	got, err := e.store.GetAlertByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status, "one vote below threshold must not promote")
	assert.Empty(t, responder.sentMessages())

	require.NoError(t, q.RecordVote(ctx, "a1", "w2", true))
	got, err = e.store.GetAlertByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Len(t, responder.sentMessages(), 1, "promotion must trigger dispatch")
}

func TestQuorumFalseVotesDoNotCount(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	q := newTestQuorum(t, e, 1)

	require.NoError(t, e.store.CreateAlert(ctx, pendingAlert("a1")))
	require.NoError(t, q.RecordVote(ctx, "a1", "w1", false))
	require.NoError(t, q.RecordVote(ctx, "a1", "w2", false))

	got, err := e.store.GetAlertByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestQuorumRevoteDoesNotDoubleCount(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	q := newTestQuorum(t, e, 2)

	require.NoError(t, e.store.CreateAlert(ctx, pendingAlert("a1")))
	require.NoError(t, q.RecordVote(ctx, "a1", "w1", true))
	require.NoError(t, q.RecordVote(ctx, "a1", "w1", true))

	got, err := e.store.GetAlertByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status, "same voter twice is one vote")

	// Flipping to false withdraws the earlier true vote.
	require.NoError(t, q.RecordVote(ctx, "a1", "w1", false))
	n, err := e.store.CountTrueVotes(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestQuorumUnknownAlertIsIgnored(t *testing.T) {
	e := newTestEngine(t)
	q := newTestQuorum(t, e, 1)
	assert.NoError(t, q.RecordVote(context.Background(), "ghost", "w1", true))
}

func TestQuorumVoteAfterPromotionIsNoop(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	responder := newFakeSession("f1", model.RoleFirefighter, 0.0009, 0)
	e.registry.Register("f1", responder)
	q := newTestQuorum(t, e, 1)

	require.NoError(t, e.store.CreateAlert(ctx, pendingAlert("a1")))
	require.NoError(t, q.RecordVote(ctx, "a1", "w1", true))
	require.NoError(t, q.RecordVote(ctx, "a1", "w2", true))

	assert.Len(t, responder.sentMessages(), 1, "dispatch runs once per promotion")
}

func TestQuorumConcurrentVotesPromoteOnce(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	responder := newFakeSession("f1", model.RoleFirefighter, 0.0009, 0)
	e.registry.Register("f1", responder)
	q := newTestQuorum(t, e, 1)

	require.NoError(t, e.store.CreateAlert(ctx, pendingAlert("a1")))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = q.RecordVote(ctx, "a1", fmt.Sprintf("w%d", i), true)
		}(i)
	}
	wg.Wait()

	got, err := e.store.GetAlertByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Len(t, responder.sentMessages(), 1, "threshold crossings race but only one dispatch happens")
}
