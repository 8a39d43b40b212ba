package roadmap

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/kilianp07/cnp-delivery/core/model"
)

// Graph is an undirected weighted road graph. Edge weights are meters.
type Graph struct {
	g      *simple.WeightedUndirectedGraph
	coords map[model.NodeID]model.Coordinates
	ids    []model.NodeID

	mu     sync.Mutex
	trees  map[model.NodeID]path.Shortest
	routes map[[2]model.NodeID]route
}

// route is a resolved shortest path and its length summed along the nodes.
type route struct {
	nodes  []model.NodeID
	length float64
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		g:      simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		coords: make(map[model.NodeID]model.Coordinates),
		trees:  make(map[model.NodeID]path.Shortest),
		routes: make(map[[2]model.NodeID]route),
	}
}

// AddNode adds a node with its coordinates.
func (g *Graph) AddNode(id model.NodeID, c model.Coordinates) error {
	if _, ok := g.coords[id]; ok {
		return fmt.Errorf("%w: duplicate node %d", ErrInvalidRegion, id)
	}
	g.g.AddNode(simple.Node(id))
	g.coords[id] = c
	i, _ := slices.BinarySearch(g.ids, id)
	g.ids = slices.Insert(g.ids, i, id)
	g.invalidate()
	return nil
}

// AddEdge connects a and b. A non-positive length is replaced by the
// great-circle distance between the endpoints.
func (g *Graph) AddEdge(a, b model.NodeID, length float64) error {
	ca, ok := g.coords[a]
	if !ok {
		return fmt.Errorf("%w: edge %d-%d: %w", ErrInvalidRegion, a, b, ErrUnknownNode)
	}
	cb, ok := g.coords[b]
	if !ok {
		return fmt.Errorf("%w: edge %d-%d: %w", ErrInvalidRegion, a, b, ErrUnknownNode)
	}
	if a == b {
		return fmt.Errorf("%w: self loop on %d", ErrInvalidRegion, a)
	}
	if length <= 0 {
		length = ca.DistanceTo(cb)
	}
	g.g.SetWeightedEdge(g.g.NewWeightedEdge(simple.Node(a), simple.Node(b), length))
	g.invalidate()
	return nil
}

func (g *Graph) invalidate() {
	g.mu.Lock()
	clear(g.trees)
	clear(g.routes)
	g.mu.Unlock()
}

func (g *Graph) tree(from model.NodeID) path.Shortest {
	if t, ok := g.trees[from]; ok {
		return t
	}
	t := path.DijkstraFrom(simple.Node(from), g.g)
	g.trees[from] = t
	return t
}

// resolve returns the shortest path from a to b. Among equal-length paths
// it walks back from b taking the lowest-id predecessor at each step, so
// the result depends only on the graph and never on map iteration order.
func (g *Graph) resolve(a, b model.NodeID) (route, error) {
	if _, ok := g.coords[a]; !ok {
		return route{}, fmt.Errorf("%w: %d", ErrUnknownNode, a)
	}
	if _, ok := g.coords[b]; !ok {
		return route{}, fmt.Errorf("%w: %d", ErrUnknownNode, b)
	}
	if a == b {
		return route{nodes: []model.NodeID{a}}, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	key := [2]model.NodeID{a, b}
	if r, ok := g.routes[key]; ok {
		return r, nil
	}
	t := g.tree(a)
	if math.IsInf(t.WeightTo(int64(b)), 1) {
		return route{}, fmt.Errorf("%w: %d -> %d", ErrNoPath, a, b)
	}

	rev := []model.NodeID{b}
	seen := map[model.NodeID]bool{b: true}
	for cur := b; cur != a; {
		next, ok := g.predecessor(t, cur, seen)
		if !ok {
			rev = g.treePath(t, b)
			break
		}
		rev = append(rev, next)
		seen[next] = true
		cur = next
	}
	slices.Reverse(rev)

	r := route{nodes: rev}
	for i := 1; i < len(rev); i++ {
		w, _ := g.g.Weight(int64(rev[i-1]), int64(rev[i]))
		r.length += w
	}
	g.routes[key] = r
	return r, nil
}

// predecessor picks the lowest-id unvisited neighbour of cur lying on a
// shortest path from the tree's source.
func (g *Graph) predecessor(t path.Shortest, cur model.NodeID, seen map[model.NodeID]bool) (model.NodeID, bool) {
	dist := t.WeightTo(int64(cur))
	eps := 1e-9 * math.Max(1, dist)
	var cands []model.NodeID
	it := g.g.From(int64(cur))
	for it.Next() {
		cands = append(cands, model.NodeID(it.Node().ID()))
	}
	slices.Sort(cands)
	for _, n := range cands {
		if seen[n] {
			continue
		}
		w, _ := g.g.Weight(int64(n), int64(cur))
		if math.Abs(t.WeightTo(int64(n))+w-dist) <= eps {
			return n, true
		}
	}
	return 0, false
}

// treePath reads the path straight from the Dijkstra tree, reversed.
func (g *Graph) treePath(t path.Shortest, b model.NodeID) []model.NodeID {
	nodes, _ := t.To(int64(b))
	rev := make([]model.NodeID, len(nodes))
	for i, n := range nodes {
		rev[len(nodes)-1-i] = model.NodeID(n.ID())
	}
	return rev
}

// ShortestPathDistance implements Provider.
func (g *Graph) ShortestPathDistance(a, b model.NodeID) (float64, error) {
	r, err := g.resolve(a, b)
	if err != nil {
		return 0, err
	}
	return r.length, nil
}

// ShortestPathNodes implements Provider.
func (g *Graph) ShortestPathNodes(a, b model.NodeID) ([]model.NodeID, error) {
	r, err := g.resolve(a, b)
	if err != nil {
		return nil, err
	}
	return slices.Clone(r.nodes), nil
}

// NodeCoordinates implements Provider.
func (g *Graph) NodeCoordinates(id model.NodeID) (model.Coordinates, error) {
	c, ok := g.coords[id]
	if !ok {
		return model.Coordinates{}, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return c, nil
}

// Nodes implements Provider.
func (g *Graph) Nodes() []model.NodeID { return slices.Clone(g.ids) }

// Edges returns the number of edges.
func (g *Graph) Edges() int { return g.g.Edges().Len() }
