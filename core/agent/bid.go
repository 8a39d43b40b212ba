package agent

import (
	"errors"
	"slices"

	"github.com/kilianp07/cnp-delivery/core/model"
	"github.com/kilianp07/cnp-delivery/core/roadmap"
)

// Refusal reasons carried on infeasible bids.
const (
	ReasonRecharging  = "recharging"
	ReasonCapacity    = "capacity"
	ReasonEnergy      = "energy"
	ReasonUnreachable = "unreachable"
)

// Bid answers a call for proposals without changing the agent.
//
// The task is feasible when one more package fits and the battery left after
// the re-planned tour, depot leg included, stays above the working buffer.
// The cost is the road distance from the agent's projected position to the
// pickup.
func (a *Agent) Bid(task model.Task) model.Bid {
	if a.status == model.AgentRecharging {
		return model.Refuse(a.id, ReasonRecharging)
	}
	if a.loadFull() || a.hasPackage(task.PackageID) {
		return model.Refuse(a.id, ReasonCapacity)
	}

	load := append(slices.Clone(a.load), held{ID: task.PackageID, Pickup: task.Pickup, Dropoff: task.Dropoff})
	_, tour, err := a.plan(a.position, load)
	if err != nil {
		if !errors.Is(err, roadmap.ErrNoPath) && !errors.Is(err, roadmap.ErrUnknownNode) {
			a.log.Warnf("agent %d: bid on package %d: %v", a.id, task.PackageID, err)
		}
		return model.Refuse(a.id, ReasonUnreachable)
	}
	if a.battery.Level-a.battery.Cost(tour) < a.minWorking() {
		return model.Refuse(a.id, ReasonEnergy)
	}

	cost, err := a.maps.ShortestPathDistance(a.bidOrigin(), task.Pickup)
	if err != nil {
		return model.Refuse(a.id, ReasonUnreachable)
	}
	return model.Bid{AgentID: a.id, Feasible: true, Cost: cost}
}

// bidOrigin is the node the agent will be at once its current deliveries are
// done: the last delivery stop while it is on the road, else where it stands.
func (a *Agent) bidOrigin() model.NodeID {
	if a.status != model.AgentBusy && a.status != model.AgentReturning {
		return a.position
	}
	for i := len(a.route) - 1; i >= 0; i-- {
		if a.route[i].Kind != StopDepot {
			return a.route[i].Node
		}
	}
	return a.position
}

// ReadyToDepart reports whether the agent may leave the depot.
func (a *Agent) ReadyToDepart() bool {
	return a.battery.Level >= a.minWorking() && len(a.route) > 0
}

// anyFeasible reports whether at least one pending task would be accepted.
func (a *Agent) anyFeasible(pending []model.Task) bool {
	for _, t := range pending {
		if a.Bid(t).Feasible {
			return true
		}
	}
	return false
}
