package sim

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/kilianp07/cnp-delivery/core/model"
	"github.com/kilianp07/cnp-delivery/core/roadmap"
)

const maxDraws = 1000

// pickDepot returns the configured depot or draws one from nodes.
func pickDepot(rng *rand.Rand, nodes []model.NodeID, pinned *int64) (model.NodeID, error) {
	if len(nodes) == 0 {
		return 0, fmt.Errorf("%w: empty road graph", roadmap.ErrInvalidRegion)
	}
	if pinned != nil {
		id := model.NodeID(*pinned)
		if !slices.Contains(nodes, id) {
			return 0, fmt.Errorf("depot node %d: %w", id, roadmap.ErrUnknownNode)
		}
		return id, nil
	}
	return nodes[rng.Intn(len(nodes))], nil
}

// GeneratePackages draws n packages with ids 1..n. Every pickup is reachable
// from the depot and every dropoff is reachable from its pickup and differs
// from it.
func GeneratePackages(rng *rand.Rand, maps roadmap.Provider, depot model.NodeID, n int, mode PickupMode) ([]*model.Package, error) {
	nodes := maps.Nodes()
	pkgs := make([]*model.Package, 0, n)
	for i := 1; i <= n; i++ {
		pickup := depot
		if mode == PickupRandom {
			var err error
			pickup, err = drawReachable(rng, maps, nodes, depot, false)
			if err != nil {
				return nil, fmt.Errorf("package %d pickup: %w", i, err)
			}
		}
		dropoff, err := drawReachable(rng, maps, nodes, pickup, true)
		if err != nil {
			return nil, fmt.Errorf("package %d dropoff: %w", i, err)
		}
		pkgs = append(pkgs, model.NewPackage(model.PackageID(i), pickup, dropoff))
	}
	return pkgs, nil
}

func drawReachable(rng *rand.Rand, maps roadmap.Provider, nodes []model.NodeID, from model.NodeID, distinct bool) (model.NodeID, error) {
	for range maxDraws {
		n := nodes[rng.Intn(len(nodes))]
		if distinct && n == from {
			continue
		}
		if reachable(maps, from, n) && reachable(maps, n, from) {
			return n, nil
		}
	}
	return 0, fmt.Errorf("no reachable node from %d after %d draws: %w", from, maxDraws, roadmap.ErrNoPath)
}

func reachable(maps roadmap.Provider, a, b model.NodeID) bool {
	_, err := maps.ShortestPathDistance(a, b)
	return err == nil
}
