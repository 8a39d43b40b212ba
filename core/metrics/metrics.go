package metrics

import (
	"time"

	"github.com/kilianp07/cnp-delivery/core/model"
)

// AwardEvent records one task awarded by the depot.
type AwardEvent struct {
	RunID     string
	Tick      int
	PackageID model.PackageID
	AgentID   model.AgentID
	Cost      float64
	Bidders   int
	Feasible  int
	Time      time.Time
}

// MetricsSink records simulation events for observability purposes.
type MetricsSink interface {
	RecordAward(ev AwardEvent) error
}

// TickEvent summarises the state after one tick.
type TickEvent struct {
	RunID     string
	Tick      int
	Pending   int
	Assigned  int
	InTransit int
	Delivered int
	Duration  time.Duration
	Time      time.Time
}

// TickRecorder records per-tick summaries.
type TickRecorder interface {
	RecordTick(ev TickEvent) error
}

// AgentStateEvent is a snapshot of one agent after a tick.
type AgentStateEvent struct {
	RunID    string
	Tick     int
	AgentID  model.AgentID
	Status   model.AgentStatus
	Battery  float64
	Max      float64
	Load     int
	Capacity int
	Time     time.Time
}

// AgentStateRecorder records agent snapshots.
type AgentStateRecorder interface {
	RecordAgentState(ev AgentStateEvent) error
}

// DeliveryEvent records a package reaching its dropoff.
type DeliveryEvent struct {
	RunID     string
	Tick      int
	PackageID model.PackageID
	AgentID   model.AgentID
	// Ticks is the number of ticks between award and delivery.
	Ticks int
	Time  time.Time
}

// DeliveryRecorder records deliveries.
type DeliveryRecorder interface {
	RecordDelivery(ev DeliveryEvent) error
}

// RunEvent is emitted once when a run ends.
type RunEvent struct {
	RunID     string
	Ticks     int
	Delivered int
	Total     int
	Err       string
	Time      time.Time
}

// RunRecorder records run completions.
type RunRecorder interface {
	RecordRun(ev RunEvent) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordAward(AwardEvent) error           { return nil }
func (NopSink) RecordTick(TickEvent) error             { return nil }
func (NopSink) RecordAgentState(AgentStateEvent) error { return nil }
func (NopSink) RecordDelivery(DeliveryEvent) error     { return nil }
func (NopSink) RecordRun(RunEvent) error               { return nil }
