package metrics

import coremetrics "github.com/domtech/lifeline/core/metrics"

// MultiSink fanouts dispatch records to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAssignment forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordAssignment(results []coremetrics.AssignmentResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordAssignment(results); err != nil {
			return err
		}
	}
	return nil
}

// RecordVote forwards vote events to sinks that support them.
func (m *MultiSink) RecordVote(ev coremetrics.VoteEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.VoteRecorder); ok {
			if err := rec.RecordVote(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordPush forwards push outcomes to sinks that support them.
func (m *MultiSink) RecordPush(ev coremetrics.PushEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.PushRecorder); ok {
			if err := rec.RecordPush(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordConnectedSessions forwards the session count to sinks that support it.
func (m *MultiSink) RecordConnectedSessions(n int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.SessionRecorder); ok {
			if err := rec.RecordConnectedSessions(n); err != nil {
				return err
			}
		}
	}
	return nil
}
