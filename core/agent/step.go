package agent

import (
	"slices"

	"github.com/kilianp07/cnp-delivery/core/model"
)

// Ledger is the package registry the agent reports progress to.
type Ledger interface {
	PickedUp(id model.PackageID, by model.AgentID) error
	Delivered(id model.PackageID, by model.AgentID) error
}

// TickContext is the per-tick handle the driver passes to each agent.
type TickContext struct {
	Tick     int
	Packages Ledger
	// Pending holds the tasks still unassigned after this tick's round.
	Pending []model.Task
}

// Step executes one tick of the agent. An idle agent does nothing.
func (a *Agent) Step(tc TickContext) error {
	switch a.status {
	case model.AgentIdle:
		return nil
	case model.AgentRecharging:
		return a.recharge(tc)
	case model.AgentBidding:
		if !a.loadFull() && a.anyFeasible(tc.Pending) {
			return nil
		}
		if !a.ReadyToDepart() {
			a.log.Warnf("agent %d: holding at depot, battery %.2f route %d stops", a.id, a.battery.Level, len(a.route))
			return nil
		}
		a.log.Infow("departing", map[string]any{"agent_id": a.id, "tick": tc.Tick, "load": len(a.load), "battery": a.battery.Level})
		if err := a.setStatus(model.AgentBusy); err != nil {
			return model.AgentFault(tc.Tick, a.id, err, "depart")
		}
		return a.advance(tc)
	case model.AgentBusy, model.AgentReturning:
		return a.advance(tc)
	default:
		return model.AgentFault(tc.Tick, a.id, nil, "unknown status %d", a.status)
	}
}

func (a *Agent) recharge(tc TickContext) error {
	full := true
	if a.cfg.RechargePolicy == RechargeInstant {
		a.battery.Refill()
	} else {
		full = a.battery.Recharge()
	}
	if !full {
		return nil
	}
	a.log.Debugw("recharged", map[string]any{"agent_id": a.id, "tick": tc.Tick})
	if err := a.setStatus(model.AgentIdle); err != nil {
		return model.AgentFault(tc.Tick, a.id, err, "finish recharge")
	}
	return nil
}

// advance moves the agent one hop toward its next stop and handles the
// stops it reaches.
func (a *Agent) advance(tc TickContext) error {
	if len(a.route) == 0 {
		a.log.Warnf("agent %d: %s with an empty route, going idle", a.id, a.status)
		a.status = model.AgentIdle
		return nil
	}
	if err := a.arrive(tc); err != nil {
		return err
	}
	if len(a.route) > 0 {
		if err := a.hop(tc); err != nil {
			return err
		}
		if err := a.arrive(tc); err != nil {
			return err
		}
	}
	return a.settle(tc)
}

func (a *Agent) hop(tc TickContext) error {
	target := a.route[0].Node
	nodes, err := a.maps.ShortestPathNodes(a.position, target)
	if err != nil || len(nodes) < 2 {
		return model.AgentFault(tc.Tick, a.id, err, "no path from %d to %d", a.position, target)
	}
	next := nodes[1]
	d, err := a.maps.ShortestPathDistance(a.position, next)
	if err != nil {
		return model.AgentFault(tc.Tick, a.id, err, "hop %d -> %d", a.position, next)
	}
	if err := a.battery.Drain(d); err != nil {
		return model.AgentFault(tc.Tick, a.id, err, "drain on hop %d -> %d", a.position, next)
	}
	a.position = next
	return nil
}

// arrive pops every leading stop located at the current node.
func (a *Agent) arrive(tc TickContext) error {
	for len(a.route) > 0 && a.route[0].Node == a.position {
		s := a.route[0]
		switch s.Kind {
		case StopPickup:
			i := a.indexOf(s.Package)
			if i < 0 {
				return a.packageFault(tc, s, "pickup of a package not in load")
			}
			if err := tc.Packages.PickedUp(s.Package, a.id); err != nil {
				return a.packageFault(tc, s, "pickup: %v", err)
			}
			a.load[i].PickedUp = true
		case StopDropoff:
			i := a.indexOf(s.Package)
			if i < 0 || !a.load[i].PickedUp {
				return a.packageFault(tc, s, "dropoff before pickup")
			}
			if err := tc.Packages.Delivered(s.Package, a.id); err != nil {
				return a.packageFault(tc, s, "dropoff: %v", err)
			}
			a.load = slices.Delete(a.load, i, i+1)
			a.log.Infow("delivered", map[string]any{"agent_id": a.id, "package_id": s.Package, "tick": tc.Tick})
		}
		a.route = a.route[1:]
	}
	return nil
}

func (a *Agent) packageFault(tc TickContext, s Stop, format string, args ...any) error {
	f := model.AgentFault(tc.Tick, a.id, nil, format, args...)
	id := s.Package
	f.PackageID = &id
	return f
}

// settle picks the status matching what is left of the route.
func (a *Agent) settle(tc TickContext) error {
	next := model.AgentBusy
	switch {
	case len(a.route) == 0:
		if len(a.load) > 0 {
			return model.AgentFault(tc.Tick, a.id, nil, "back at depot with %d packages", len(a.load))
		}
		a.route = nil
		next = model.AgentRecharging
		if a.cfg.RechargePolicy == RechargeInstant || a.battery.Full() {
			a.battery.Refill()
			next = model.AgentIdle
		}
	case len(a.route) == 1 && a.route[0].Kind == StopDepot:
		next = model.AgentReturning
	}
	if err := a.setStatus(next); err != nil {
		return model.AgentFault(tc.Tick, a.id, err, "settle")
	}
	return nil
}
