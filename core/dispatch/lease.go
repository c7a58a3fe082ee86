package dispatch

import (
	"context"
	"time"

	"github.com/domtech/lifeline/core/model"
)

// RunLeaseSweeper reclaims assignment locks that outlived the lease without
// an accept and re-dispatches the affected alerts, excluding the stale
// holder for the retry. It blocks until the context is canceled. A
// non-positive lease disables the sweeper entirely.
func (d *Dispatcher) RunLeaseSweeper(ctx context.Context, lease, interval time.Duration) {
	if lease <= 0 {
		return
	}
	if interval <= 0 {
		interval = lease / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.sweep(ctx, lease, now)
		}
	}
}

func (d *Dispatcher) sweep(ctx context.Context, lease time.Duration, now time.Time) {
	for _, stale := range d.locks.ReleaseStale(lease, now) {
		d.log.Warnf("assignment lock for alert %s held by %s expired after %s, re-dispatching",
			stale.AlertID, stale.ResponderID, stale.HeldFor.Round(time.Second))
		alert, err := d.store.GetAlertByID(ctx, stale.AlertID)
		if err != nil {
			d.log.Errorf("load alert %s for lease sweep: %v", stale.AlertID, err)
			continue
		}
		// An accept moves the alert to IN_PROGRESS while keeping the lock;
		// only still-ACTIVE alerts are re-dispatched.
		if alert.Status != model.StatusActive {
			continue
		}
		if err := d.Dispatch(ctx, alert, stale.ResponderID); err != nil {
			d.log.Errorf("lease re-dispatch for alert %s: %v", stale.AlertID, err)
		}
	}
}
