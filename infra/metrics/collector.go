package metrics

import (
	"context"
	"time"

	"github.com/domtech/lifeline/core/events"
	coremetrics "github.com/domtech/lifeline/core/metrics"
	"github.com/domtech/lifeline/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// lifecycle events. It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.Sink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				switch e := ev.(type) {
				case events.VoteRecorded:
					if r, ok := sink.(coremetrics.VoteRecorder); ok {
						_ = r.RecordVote(coremetrics.VoteEvent{AlertID: e.AlertID, Vote: e.Vote, Time: time.Now()})
					}
				case events.PushResult:
					if r, ok := sink.(coremetrics.PushRecorder); ok {
						_ = r.RecordPush(coremetrics.PushEvent{
							UserID: e.UserID,
							Gone:   e.Gone,
							Failed: e.Err != nil,
							Time:   time.Now(),
						})
					}
				}
			}
		}
	}()
}
