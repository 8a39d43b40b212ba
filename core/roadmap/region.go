package roadmap

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/cnp-delivery/core/model"
)

// RegionConfig selects and shapes the road graph.
type RegionConfig struct {
	// Region is either "grid:<rows>x<cols>" or the path of a JSON/YAML region file.
	Region        string  `json:"region" validate:"required"`
	SpacingMeters float64 `json:"spacing_meters" validate:"gte=0"`
	CenterLat     float64 `json:"center_lat" validate:"gte=-90,lte=90"`
	CenterLng     float64 `json:"center_lng" validate:"gte=-180,lte=180"`
	// Jitter moves grid nodes by up to this fraction of the spacing so that
	// edge lengths, and therefore shortest paths, are unique.
	Jitter float64 `json:"jitter" validate:"gte=0,lt=0.5"`
}

// DefaultRegionConfig returns a jittered 10x10 grid centred on Cau Giay,
// Hanoi.
func DefaultRegionConfig() RegionConfig {
	return RegionConfig{
		Region:        "grid:10x10",
		SpacingMeters: 250,
		CenterLat:     21.0362,
		CenterLng:     105.7906,
		Jitter:        0.15,
	}
}

// SetDefaults fills the fields whose zero value is invalid. A zero centre
// or jitter is kept as configured.
func (c *RegionConfig) SetDefaults() {
	if c.Region == "" {
		c.Region = "grid:10x10"
	}
	if c.SpacingMeters <= 0 {
		c.SpacingMeters = 250
	}
}

// RegionFile is the on-disk format of a region.
type RegionFile struct {
	Nodes []struct {
		ID  int64   `json:"id" yaml:"id"`
		Lat float64 `json:"lat" yaml:"lat"`
		Lng float64 `json:"lng" yaml:"lng"`
	} `json:"nodes" yaml:"nodes"`
	Edges []struct {
		From   int64   `json:"from" yaml:"from"`
		To     int64   `json:"to" yaml:"to"`
		Length float64 `json:"length" yaml:"length"`
	} `json:"edges" yaml:"edges"`
}

// Open builds the graph described by cfg. Any failure is reported before a
// simulation is allowed to start.
func Open(cfg RegionConfig, seed int64) (*Graph, error) {
	cfg.SetDefaults()
	if rest, ok := strings.CutPrefix(cfg.Region, "grid:"); ok {
		var rows, cols int
		if _, err := fmt.Sscanf(rest, "%dx%d", &rows, &cols); err != nil {
			return nil, fmt.Errorf("%w: grid spec %q: %v", ErrInvalidRegion, cfg.Region, err)
		}
		return NewGrid(rows, cols, cfg, rand.New(rand.NewSource(seed)))
	}
	return LoadRegionFile(cfg.Region)
}

// NewGrid builds a rows×cols street grid around the configured centre.
// Node ids are row*cols+col.
func NewGrid(rows, cols int, cfg RegionConfig, rng *rand.Rand) (*Graph, error) {
	if rows < 1 || cols < 1 || rows*cols < 2 {
		return nil, fmt.Errorf("%w: grid %dx%d too small", ErrInvalidRegion, rows, cols)
	}
	center := model.Coordinates{Lat: cfg.CenterLat, Lng: cfg.CenterLng}
	origin := center.Offset(-float64(rows-1)*cfg.SpacingMeters/2, -float64(cols-1)*cfg.SpacingMeters/2)
	g := NewGraph()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			jn := (rng.Float64()*2 - 1) * cfg.Jitter * cfg.SpacingMeters
			je := (rng.Float64()*2 - 1) * cfg.Jitter * cfg.SpacingMeters
			pos := origin.Offset(float64(r)*cfg.SpacingMeters+jn, float64(c)*cfg.SpacingMeters+je)
			if err := g.AddNode(model.NodeID(r*cols+c), pos); err != nil {
				return nil, err
			}
		}
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			id := model.NodeID(r*cols + c)
			if c+1 < cols {
				if err := g.AddEdge(id, id+1, 0); err != nil {
					return nil, err
				}
			}
			if r+1 < rows {
				if err := g.AddEdge(id, id+model.NodeID(cols), 0); err != nil {
					return nil, err
				}
			}
		}
	}
	return g, nil
}

// LoadRegionFile reads a region from a JSON or YAML file.
func LoadRegionFile(path string) (*Graph, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegion, err)
	}
	var rf RegionFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &rf)
	case ".json":
		err = json.Unmarshal(b, &rf)
	default:
		return nil, fmt.Errorf("%w: unsupported region format %s", ErrInvalidRegion, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidRegion, path, err)
	}
	return rf.Build()
}

// Build turns the file contents into a graph.
func (rf RegionFile) Build() (*Graph, error) {
	if len(rf.Nodes) < 2 {
		return nil, fmt.Errorf("%w: need at least two nodes", ErrInvalidRegion)
	}
	g := NewGraph()
	for _, n := range rf.Nodes {
		if err := g.AddNode(model.NodeID(n.ID), model.Coordinates{Lat: n.Lat, Lng: n.Lng}); err != nil {
			return nil, err
		}
	}
	for _, e := range rf.Edges {
		if err := g.AddEdge(model.NodeID(e.From), model.NodeID(e.To), e.Length); err != nil {
			return nil, err
		}
	}
	return g, nil
}
