package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/cnp-delivery/core/events"
	coremetrics "github.com/kilianp07/cnp-delivery/core/metrics"
	"github.com/kilianp07/cnp-delivery/core/model"
	"github.com/kilianp07/cnp-delivery/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for events.
// Sinks fed this way stay off the tick loop, which suits network-backed sinks.
// It stops when the context is canceled or the bus is closed. The returned
// channel is closed once the collector has exited.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[events.Event], sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				record(sink, ev, time.Now())
			}
		}
	}()
	return done
}

func record(sink coremetrics.MetricsSink, ev events.Event, now time.Time) {
	switch e := ev.(type) {
	case events.AwardEvent:
		feasible := 0
		for _, b := range e.Award.Bids {
			if b.Feasible {
				feasible++
			}
		}
		_ = sink.RecordAward(coremetrics.AwardEvent{
			RunID:     e.RunID,
			Tick:      e.Award.Tick,
			PackageID: e.Award.PackageID,
			AgentID:   e.Award.AgentID,
			Cost:      e.Award.Cost,
			Bidders:   len(e.Award.Bids),
			Feasible:  feasible,
			Time:      now,
		})
	case events.TickEvent:
		snap := e.Snapshot
		if r, ok := sink.(coremetrics.TickRecorder); ok {
			tick := coremetrics.TickEvent{RunID: snap.RunID, Tick: snap.Tick, Duration: e.Duration, Time: now}
			for _, p := range snap.Packages {
				switch p.Status {
				case model.PackagePending:
					tick.Pending++
				case model.PackageAssigned:
					tick.Assigned++
				case model.PackageInTransit:
					tick.InTransit++
				case model.PackageDelivered:
					tick.Delivered++
				}
			}
			_ = r.RecordTick(tick)
		}
		if r, ok := sink.(coremetrics.AgentStateRecorder); ok {
			for _, a := range snap.Agents {
				_ = r.RecordAgentState(coremetrics.AgentStateEvent{
					RunID: snap.RunID, Tick: snap.Tick, AgentID: a.ID, Status: a.Status,
					Battery: a.Battery, Max: a.MaxBattery, Load: a.Load, Capacity: a.Capacity, Time: now,
				})
			}
		}
	case events.DeliveryEvent:
		if r, ok := sink.(coremetrics.DeliveryRecorder); ok {
			_ = r.RecordDelivery(coremetrics.DeliveryEvent{
				RunID: e.RunID, Tick: e.Tick, PackageID: e.PackageID, AgentID: e.AgentID,
				Ticks: e.Tick - e.AwardedAt, Time: now,
			})
		}
	case events.CompletedEvent:
		if r, ok := sink.(coremetrics.RunRecorder); ok {
			_ = r.RecordRun(coremetrics.RunEvent{
				RunID: e.RunID, Ticks: e.Ticks, Delivered: e.Delivered, Total: e.Total, Err: e.Err, Time: now,
			})
		}
	}
}
