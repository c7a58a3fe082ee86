package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	assignmentsOffered *prometheus.CounterVec
	votesRecorded      *prometheus.CounterVec
	pushDeliveries     *prometheus.CounterVec
	locksHeld          prometheus.Gauge
	connectedSessions  prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Gauge, prometheus.Gauge) {
	asn := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_assignments_offered_total",
			Help: "Number of responder assignment offers",
		},
		[]string{"emergency_type", "channel"},
	)
	votes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_validation_votes_total",
			Help: "Number of bystander validation votes recorded",
		},
		[]string{"vote"},
	)
	pushes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_deliveries_total",
			Help: "Number of push delivery attempts by result",
		},
		[]string{"result"},
	)
	locks := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "alert_assignment_locks_held",
			Help: "Number of assignment locks currently held",
		},
	)
	sessions := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "connected_sessions",
			Help: "Number of principals with a live session",
		},
	)
	return asn, votes, pushes, locks, sessions
}

func init() {
	assignmentsOffered, votesRecorded, pushDeliveries, locksHeld, connectedSessions = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(assignmentsOffered, votesRecorded, pushDeliveries, locksHeld, connectedSessions)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	assignmentsOffered, votesRecorded, pushDeliveries, locksHeld, connectedSessions = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
