// Package roadmaptest builds small road graphs for tests.
package roadmaptest

import (
	"testing"

	"github.com/kilianp07/cnp-delivery/core/model"
	"github.com/kilianp07/cnp-delivery/core/roadmap"
)

// Origin is the coordinate of node 0 in every fixture.
var Origin = model.Coordinates{Lat: 21.0362, Lng: 105.7906}

// Line builds nodes 0..n-1 laid out east of Origin, each edge hop meters long.
func Line(t testing.TB, n int, hop float64) *roadmap.Graph {
	t.Helper()
	g := roadmap.NewGraph()
	for i := 0; i < n; i++ {
		mustNode(t, g, model.NodeID(i), Origin.Offset(0, float64(i)*hop))
	}
	for i := 1; i < n; i++ {
		mustEdge(t, g, model.NodeID(i-1), model.NodeID(i), hop)
	}
	return g
}

// Cross builds a depot at 0 with two arms of hop-long edges:
// 0 - 1 - 2 to the east and 0 - 3 - 4 to the west.
func Cross(t testing.TB, hop float64) *roadmap.Graph {
	t.Helper()
	g := roadmap.NewGraph()
	mustNode(t, g, 0, Origin)
	mustNode(t, g, 1, Origin.Offset(0, hop))
	mustNode(t, g, 2, Origin.Offset(0, 2*hop))
	mustNode(t, g, 3, Origin.Offset(0, -hop))
	mustNode(t, g, 4, Origin.Offset(0, -2*hop))
	mustEdge(t, g, 0, 1, hop)
	mustEdge(t, g, 1, 2, hop)
	mustEdge(t, g, 0, 3, hop)
	mustEdge(t, g, 3, 4, hop)
	return g
}

// Square builds two equally long routes from 0 to 3: 0 - 1 - 3 and
// 0 - 2 - 3, every edge hop meters long.
func Square(t testing.TB, hop float64) *roadmap.Graph {
	t.Helper()
	g := roadmap.NewGraph()
	mustNode(t, g, 0, Origin)
	mustNode(t, g, 1, Origin.Offset(hop, 0))
	mustNode(t, g, 2, Origin.Offset(0, hop))
	mustNode(t, g, 3, Origin.Offset(hop, hop))
	mustEdge(t, g, 0, 1, hop)
	mustEdge(t, g, 0, 2, hop)
	mustEdge(t, g, 1, 3, hop)
	mustEdge(t, g, 2, 3, hop)
	return g
}

func mustNode(t testing.TB, g *roadmap.Graph, id model.NodeID, c model.Coordinates) {
	t.Helper()
	if err := g.AddNode(id, c); err != nil {
		t.Fatalf("add node %d: %v", id, err)
	}
}

func mustEdge(t testing.TB, g *roadmap.Graph, a, b model.NodeID, length float64) {
	t.Helper()
	if err := g.AddEdge(a, b, length); err != nil {
		t.Fatalf("add edge %d-%d: %v", a, b, err)
	}
}
