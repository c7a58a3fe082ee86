// Package metrics defines the observability sink contract for the dispatch
// engine. Concrete sinks live in infra/metrics.
package metrics

import "time"

// AssignmentResult represents one responder assignment offer to be recorded.
type AssignmentResult struct {
	AlertID        string
	ResponderID    string
	EmergencyType  string
	DistanceMeters float64
	Online         bool
	Time           time.Time
}

// Sink records assignment results for observability purposes.
type Sink interface {
	RecordAssignment(results []AssignmentResult) error
}

// VoteEvent captures one persisted validation vote.
type VoteEvent struct {
	AlertID string
	Vote    bool
	Time    time.Time
}

// VoteRecorder records validation votes.
type VoteRecorder interface {
	RecordVote(ev VoteEvent) error
}

// PushEvent captures the outcome of one push delivery attempt.
type PushEvent struct {
	UserID string
	Gone   bool
	Failed bool
	Time   time.Time
}

// PushRecorder records push delivery outcomes.
type PushRecorder interface {
	RecordPush(ev PushEvent) error
}

// SessionRecorder records the number of currently connected principals.
type SessionRecorder interface {
	RecordConnectedSessions(n int) error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordAssignment([]AssignmentResult) error { return nil }
