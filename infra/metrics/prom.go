package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/domtech/lifeline/core/metrics"
)

// PromSink records dispatch events in Prometheus metrics.
type PromSink struct {
	assignments *prometheus.CounterVec
	distance    *prometheus.HistogramVec
	votes       *prometheus.CounterVec
	pushes      *prometheus.CounterVec
	sessions    prometheus.Gauge
}

// NewPromSink registers dispatch metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using the configured port.
func NewPromSink() (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_assignments_total",
		Help: "Total number of responder assignment offers",
	}, []string{"emergency_type", "channel"})
	distance := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_assignment_distance_meters",
		Help:    "Distance between alert and selected responder",
		Buckets: prometheus.ExponentialBuckets(50, 2, 10),
	}, []string{"emergency_type"})
	votes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_validation_votes_total",
		Help: "Total number of bystander validation votes",
	}, []string{"vote"})
	pushes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_push_results_total",
		Help: "Push delivery attempts by outcome",
	}, []string{"result"})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_connected_principals",
		Help: "Number of principals with a live session",
	})

	if err := reg.Register(assignments); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			assignments = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(distance); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			distance = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(votes); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			votes = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(pushes); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			pushes = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(sessions); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			sessions = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{assignments: assignments, distance: distance, votes: votes, pushes: pushes, sessions: sessions}, nil
}

// RecordAssignment increments the counter for each assignment offer.
func (s *PromSink) RecordAssignment(results []coremetrics.AssignmentResult) error {
	for _, r := range results {
		channel := "push"
		if r.Online {
			channel = "session"
		}
		s.assignments.WithLabelValues(r.EmergencyType, channel).Inc()
		s.distance.WithLabelValues(r.EmergencyType).Observe(r.DistanceMeters)
	}
	return nil
}

// RecordVote increments the vote counter.
func (s *PromSink) RecordVote(ev coremetrics.VoteEvent) error {
	s.votes.WithLabelValues(strconv.FormatBool(ev.Vote)).Inc()
	return nil
}

// RecordPush increments the push outcome counter.
func (s *PromSink) RecordPush(ev coremetrics.PushEvent) error {
	result := "ok"
	switch {
	case ev.Gone:
		result = "gone"
	case ev.Failed:
		result = "error"
	}
	s.pushes.WithLabelValues(result).Inc()
	return nil
}

// RecordConnectedSessions sets the session gauge.
func (s *PromSink) RecordConnectedSessions(n int) error {
	s.sessions.Set(float64(n))
	return nil
}
