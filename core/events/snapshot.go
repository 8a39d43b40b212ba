package events

import "github.com/kilianp07/cnp-delivery/core/model"

// AgentView is the observable state of one agent.
type AgentView struct {
	ID         model.AgentID       `json:"id"`
	Status     model.AgentStatus   `json:"status"`
	Node       model.NodeID        `json:"node"`
	Location   model.Coordinates   `json:"location"`
	Battery    float64             `json:"battery"`
	MaxBattery float64             `json:"max_battery"`
	Load       int                 `json:"packages_count"`
	Capacity   int                 `json:"capacity"`
	Route      []model.Coordinates `json:"route"`
}

// PackageView is the observable state of one package.
type PackageView struct {
	ID              model.PackageID     `json:"id"`
	Status          model.PackageStatus `json:"status"`
	Pickup          model.NodeID        `json:"pickup"`
	Dropoff         model.NodeID        `json:"dropoff"`
	PickupLocation  model.Coordinates   `json:"pickup_location"`
	DropoffLocation model.Coordinates   `json:"dropoff_location"`
	AssignedAgent   *model.AgentID      `json:"assigned_agent"`
}

// Snapshot is a copy of the whole simulation taken between two ticks.
// Nothing in it aliases live state.
type Snapshot struct {
	RunID     string            `json:"run_id"`
	Tick      int               `json:"time_step"`
	Depot     model.Coordinates `json:"depot"`
	Agents    []AgentView       `json:"agents"`
	Packages  []PackageView     `json:"packages"`
	Pending   int               `json:"pending"`
	Completed int               `json:"completed"`
	Total     int               `json:"total"`
	Finished  bool              `json:"finished"`
}
