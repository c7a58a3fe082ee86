// Package events defines the dispatch related events emitted on the event bus.
//
// Available event types:
//   - AlertCreated: a new emergency report entered the system
//   - VoteRecorded: a bystander vote was persisted
//   - AlertPromoted: the validation quorum was reached
//   - AssignmentOffered: a responder was locked and offered an alert
//   - AssignmentAccepted / AssignmentRejected: responder decision
//   - AlertResolved: the alert reached its terminal state
//   - PushResult: outcome of one push delivery attempt
package events

import "github.com/domtech/lifeline/core/model"

// AlertCreated is published when an alert is persisted in PENDING state.
type AlertCreated struct {
	Alert model.Alert
}

// VoteRecorded is published after a validation vote is saved.
type VoteRecorded struct {
	AlertID   string
	VoterID   string
	Vote      bool
	TrueVotes int
}

// AlertPromoted is published by the quorum gate when it wins the
// PENDING to ACTIVE transition.
type AlertPromoted struct {
	AlertID string
}

// AssignmentOffered is published when a responder acquired the assignment
// lock. Online reports the delivery channel: live session or push.
type AssignmentOffered struct {
	AlertID        string
	ResponderID    string
	Online         bool
	DistanceMeters float64
}

// AssignmentAccepted is published when the locked responder accepts.
type AssignmentAccepted struct {
	AlertID     string
	ResponderID string
}

// AssignmentRejected is published when the locked responder rejects and the
// lock is released.
type AssignmentRejected struct {
	AlertID     string
	ResponderID string
}

// AlertResolved is published when the alert is terminalized.
type AlertResolved struct {
	AlertID    string
	ResolvedBy string
}

// PushResult records one push delivery attempt.
type PushResult struct {
	UserID   string
	Endpoint string
	Err      error
	Gone     bool
}
