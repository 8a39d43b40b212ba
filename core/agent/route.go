package agent

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/cnp-delivery/core/model"
)

// StopKind tells what happens when an agent reaches a stop.
type StopKind int

const (
	StopPickup StopKind = iota
	StopDropoff
	StopDepot
)

func (k StopKind) String() string {
	switch k {
	case StopPickup:
		return "pickup"
	case StopDropoff:
		return "dropoff"
	case StopDepot:
		return "depot"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k StopKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Stop is one entry of a planned route. Package is zero for the depot stop.
type Stop struct {
	Node    model.NodeID    `json:"node"`
	Package model.PackageID `json:"package_id,omitempty"`
	Kind    StopKind        `json:"kind"`
}

func (s Stop) String() string {
	if s.Kind == StopDepot {
		return fmt.Sprintf("depot@%d", s.Node)
	}
	return fmt.Sprintf("%s#%d@%d", s.Kind, s.Package, s.Node)
}

// plan orders the stops of load starting at from.
//
// Greedy nearest neighbour over legal stops: a dropoff becomes legal once the
// pickup of the same package has been placed or already happened. Candidates
// are kept in package id order with the pickup first, and only a strictly
// shorter distance replaces the current best, so ties resolve by package id
// then pickup before dropoff. The depot is always the final stop.
// It returns the stops and the total length of the tour in meters.
func (a *Agent) plan(from model.NodeID, load []held) ([]Stop, float64, error) {
	type candidate struct {
		stop  Stop
		pkg   int
		taken bool
	}

	cands := make([]candidate, 0, 2*len(load))
	for i, h := range load {
		if !h.PickedUp {
			cands = append(cands, candidate{stop: Stop{Node: h.Pickup, Package: h.ID, Kind: StopPickup}, pkg: i})
		}
		cands = append(cands, candidate{stop: Stop{Node: h.Dropoff, Package: h.ID, Kind: StopDropoff}, pkg: i})
	}
	placed := make([]bool, len(load))
	for i, h := range load {
		placed[i] = h.PickedUp
	}

	stops := make([]Stop, 0, len(cands)+1)
	current := from
	total := 0.0
	for len(stops) < len(cands) {
		best := -1
		bestDist := math.Inf(1)
		for i, c := range cands {
			if c.taken || (c.stop.Kind == StopDropoff && !placed[c.pkg]) {
				continue
			}
			d, err := a.maps.ShortestPathDistance(current, c.stop.Node)
			if err != nil {
				return nil, 0, fmt.Errorf("plan route: %s from %d: %w", c.stop, current, err)
			}
			if best < 0 || d < bestDist {
				best, bestDist = i, d
			}
		}
		if best < 0 {
			return nil, 0, errors.New("plan route: no legal stop left")
		}
		c := &cands[best]
		c.taken = true
		if c.stop.Kind == StopPickup {
			placed[c.pkg] = true
		}
		stops = append(stops, c.stop)
		total += bestDist
		current = c.stop.Node
	}

	back, err := a.maps.ShortestPathDistance(current, a.depot)
	if err != nil {
		return nil, 0, fmt.Errorf("plan route: return leg from %d: %w", current, err)
	}
	stops = append(stops, Stop{Node: a.depot, Kind: StopDepot})
	return stops, total + back, nil
}

// routeLength sums the shortest distances along stops starting at from.
func (a *Agent) routeLength(from model.NodeID, stops []Stop) (float64, error) {
	total := 0.0
	current := from
	for _, s := range stops {
		d, err := a.maps.ShortestPathDistance(current, s.Node)
		if err != nil {
			return 0, err
		}
		total += d
		current = s.Node
	}
	return total, nil
}
