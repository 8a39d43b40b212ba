package sim

import (
	"github.com/kilianp07/cnp-delivery/core/agent"
	"github.com/kilianp07/cnp-delivery/core/events"
	"github.com/kilianp07/cnp-delivery/core/model"
)

// Snapshot copies the current state. Coordinates the map cannot resolve are
// left zero; the map was validated at setup so this does not happen in
// practice.
func (s *Simulation) Snapshot() events.Snapshot {
	snap := events.Snapshot{
		RunID:     s.runID,
		Tick:      s.tick,
		Depot:     s.coords(s.depot),
		Completed: s.coord.DeliveredCount(),
		Total:     s.coord.Total(),
		Pending:   len(s.coord.Pending()),
		Finished:  s.done,
	}
	for _, a := range s.agents {
		b := a.Battery()
		snap.Agents = append(snap.Agents, events.AgentView{
			ID:         a.ID(),
			Status:     a.Status(),
			Node:       a.Position(),
			Location:   s.coords(a.Position()),
			Battery:    b.Level,
			MaxBattery: b.Max,
			Load:       len(a.Load()),
			Capacity:   a.Capacity(),
			Route:      s.routePath(a),
		})
	}
	for _, p := range s.coord.Packages() {
		snap.Packages = append(snap.Packages, events.PackageView{
			ID:              p.ID,
			Status:          p.Status,
			Pickup:          p.Pickup,
			Dropoff:         p.Dropoff,
			PickupLocation:  s.coords(p.Pickup),
			DropoffLocation: s.coords(p.Dropoff),
			AssignedAgent:   p.AssignedAgent,
		})
	}
	return snap
}

// routePath expands the planned stops into the road polyline the agent will
// follow, starting at its position.
func (s *Simulation) routePath(a *agent.Agent) []model.Coordinates {
	stops := a.Route()
	if len(stops) == 0 {
		return nil
	}
	path := []model.Coordinates{s.coords(a.Position())}
	current := a.Position()
	for _, st := range stops {
		nodes, err := s.maps.ShortestPathNodes(current, st.Node)
		if err != nil {
			break
		}
		for _, n := range nodes[1:] {
			path = append(path, s.coords(n))
		}
		current = st.Node
	}
	return path
}

func (s *Simulation) coords(id model.NodeID) model.Coordinates {
	c, _ := s.maps.NodeCoordinates(id)
	return c
}
