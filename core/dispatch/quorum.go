package dispatch

import (
	"context"
	"fmt"
	"strconv"

	"github.com/domtech/lifeline/core/events"
	"github.com/domtech/lifeline/core/logger"
	"github.com/domtech/lifeline/core/model"
	"github.com/domtech/lifeline/core/store"
	"github.com/domtech/lifeline/internal/eventbus"
)

// Quorum tallies bystander validation votes and promotes a PENDING alert to
// ACTIVE once the configured number of true votes is reached. The promotion
// is a compare-and-set in the store, so concurrent votes crossing the
// threshold trigger dispatch exactly once.
type Quorum struct {
	store      store.Store
	dispatcher *Dispatcher
	threshold  int
	bus        eventbus.EventBus
	log        logger.Logger
}

// NewQuorum creates a Quorum gate. Bus may be nil. Vote metrics are recorded
// by the bus collector, never here.
func NewQuorum(st store.Store, dispatcher *Dispatcher, threshold int, bus eventbus.EventBus, log logger.Logger) (*Quorum, error) {
	if st == nil || dispatcher == nil || log == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewQuorum")
	}
	if threshold <= 0 {
		threshold = 1
	}
	return &Quorum{store: st, dispatcher: dispatcher, threshold: threshold, bus: bus, log: log}, nil
}

// RecordVote persists the vote (last vote wins per voter) and promotes the
// alert when the true-vote tally reaches the threshold.
func (q *Quorum) RecordVote(ctx context.Context, alertID, voterID string, vote bool) error {
	if err := q.store.SaveValidation(ctx, alertID, voterID, vote); err != nil {
		return fmt.Errorf("save vote: %w", err)
	}
	votesRecorded.WithLabelValues(strconv.FormatBool(vote)).Inc()
	trueVotes, err := q.store.CountTrueVotes(ctx, alertID)
	if err != nil {
		return fmt.Errorf("count votes: %w", err)
	}
	if q.bus != nil {
		q.bus.Publish(events.VoteRecorded{AlertID: alertID, VoterID: voterID, Vote: vote, TrueVotes: trueVotes})
	}
	if trueVotes < q.threshold {
		return nil
	}
	return q.maybePromote(ctx, alertID)
}

// maybePromote attempts the PENDING to ACTIVE transition. Only the caller
// that wins the compare-and-set triggers dispatch; everyone else sees a
// no-op.
func (q *Quorum) maybePromote(ctx context.Context, alertID string) error {
	alert, err := q.store.GetAlertByID(ctx, alertID)
	if err != nil {
		if err == store.ErrNotFound {
			q.log.Warnf("vote for unknown alert %s", alertID)
			return nil
		}
		return fmt.Errorf("load alert %s: %w", alertID, err)
	}
	if alert.Status != model.StatusPending {
		return nil
	}
	won, err := q.store.PromoteAlert(ctx, alertID, model.StatusPending, model.StatusActive)
	if err != nil {
		return fmt.Errorf("promote alert %s: %w", alertID, err)
	}
	if !won {
		return nil
	}
	q.log.Infof("alert %s promoted to ACTIVE by quorum", alertID)
	if q.bus != nil {
		q.bus.Publish(events.AlertPromoted{AlertID: alertID})
	}
	alert.Status = model.StatusActive
	return q.dispatcher.Dispatch(ctx, alert)
}
