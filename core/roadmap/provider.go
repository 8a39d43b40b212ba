package roadmap

import (
	"errors"

	"github.com/kilianp07/cnp-delivery/core/model"
)

var (
	// ErrUnknownNode is returned for a node id absent from the graph.
	ErrUnknownNode = errors.New("unknown node")
	// ErrNoPath is returned when two nodes are not connected.
	ErrNoPath = errors.New("no path")
	// ErrInvalidRegion is returned when a region cannot be built.
	ErrInvalidRegion = errors.New("invalid region")
)

// Provider answers routing queries for a fixed graph snapshot.
type Provider interface {
	ShortestPathDistance(a, b model.NodeID) (float64, error)
	// ShortestPathNodes returns the nodes from a to b, both included.
	ShortestPathNodes(a, b model.NodeID) ([]model.NodeID, error)
	NodeCoordinates(id model.NodeID) (model.Coordinates, error)
	// Nodes lists node ids in ascending order.
	Nodes() []model.NodeID
}

// Bounds is the bounding box of a region.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// MapInfo summarises a region for map views.
type MapInfo struct {
	Center model.Coordinates `json:"center"`
	Bounds Bounds            `json:"bounds"`
	Nodes  int               `json:"nodes"`
}

// Describe computes the centre and bounding box of every node of p.
func Describe(p Provider) (MapInfo, error) {
	ids := p.Nodes()
	if len(ids) == 0 {
		return MapInfo{}, ErrInvalidRegion
	}
	var info MapInfo
	var sumLat, sumLng float64
	for i, id := range ids {
		c, err := p.NodeCoordinates(id)
		if err != nil {
			return MapInfo{}, err
		}
		sumLat += c.Lat
		sumLng += c.Lng
		if i == 0 {
			info.Bounds = Bounds{North: c.Lat, South: c.Lat, East: c.Lng, West: c.Lng}
			continue
		}
		info.Bounds.North = max(info.Bounds.North, c.Lat)
		info.Bounds.South = min(info.Bounds.South, c.Lat)
		info.Bounds.East = max(info.Bounds.East, c.Lng)
		info.Bounds.West = min(info.Bounds.West, c.Lng)
	}
	n := float64(len(ids))
	info.Center = model.Coordinates{Lat: sumLat / n, Lng: sumLng / n}
	info.Nodes = len(ids)
	return info, nil
}
