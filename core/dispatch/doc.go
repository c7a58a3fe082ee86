// Package dispatch implements the alert dispatch engine: the live-connection
// registry, the per-alert assignment lock table, the proximity notifier, the
// validation quorum gate and the nearest-responder dispatcher with
// exclusion-based reassignment.
//
// Concurrency model: one goroutine per open connection feeds the engine.
// Registry and lock table serialize access internally; the PENDING to ACTIVE
// status transition is a compare-and-set in the store. Every operation that
// touches the store or the push provider takes a context and may block.
package dispatch
