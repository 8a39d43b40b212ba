package events

import (
	"time"

	"github.com/kilianp07/cnp-delivery/core/cnp"
	"github.com/kilianp07/cnp-delivery/core/model"
)

// Event is any value published on the simulation bus.
type Event interface {
	EventRunID() string
}

// TickEvent is published after each tick.
type TickEvent struct {
	Snapshot Snapshot
	Duration time.Duration
}

func (e TickEvent) EventRunID() string { return e.Snapshot.RunID }

// AwardEvent is published for each task awarded during a round.
type AwardEvent struct {
	RunID string
	Award cnp.Award
}

func (e AwardEvent) EventRunID() string { return e.RunID }

// DeliveryEvent is published when a package is delivered.
type DeliveryEvent struct {
	RunID     string
	Tick      int
	PackageID model.PackageID
	AgentID   model.AgentID
	AwardedAt int
}

func (e DeliveryEvent) EventRunID() string { return e.RunID }

// CompletedEvent is published once per run.
type CompletedEvent struct {
	RunID     string
	Ticks     int
	Delivered int
	Total     int
	// Err is empty when every package was delivered.
	Err string
}

func (e CompletedEvent) EventRunID() string { return e.RunID }
