package sim

import (
	"fmt"
	"time"
)

// PickupMode selects where generated packages are collected.
type PickupMode string

const (
	// PickupDepot loads every package at the depot.
	PickupDepot PickupMode = "depot"
	// PickupRandom draws a pickup node per package.
	PickupRandom PickupMode = "random"
)

// Config holds the run parameters.
type Config struct {
	NumAgents      int        `json:"num_agents" validate:"gte=1,lte=1000"`
	NumPackages    int        `json:"num_packages" validate:"gte=0,lte=100000"`
	Seed           int64      `json:"seed"`
	MaxTicks       int        `json:"max_ticks" validate:"gte=1"`
	TickIntervalMs int        `json:"tick_interval_ms" validate:"gte=0"`
	PickupMode     PickupMode `json:"pickup_mode" validate:"oneof=depot random"`
	// DepotNode pins the depot; when nil it is drawn from the seed.
	DepotNode *int64 `json:"depot_node,omitempty"`
}

// DefaultConfig returns the run parameters used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		NumAgents:   3,
		NumPackages: 20,
		MaxTicks:    10000,
		PickupMode:  PickupRandom,
	}
}

// SetDefaults fills the fields whose zero value is invalid. NumPackages
// may legitimately be zero.
func (c *Config) SetDefaults() {
	if c.NumAgents == 0 {
		c.NumAgents = 3
	}
	if c.MaxTicks == 0 {
		c.MaxTicks = 10000
	}
	if c.PickupMode == "" {
		c.PickupMode = PickupRandom
	}
}

// Validate performs the checks struct tags cannot express.
func (c Config) Validate() error {
	if c.NumAgents < 1 {
		return fmt.Errorf("simulation: num_agents must be at least 1")
	}
	if c.PickupMode != PickupDepot && c.PickupMode != PickupRandom {
		return fmt.Errorf("simulation: unknown pickup_mode %q", c.PickupMode)
	}
	return nil
}

// TickInterval returns the pacing interval of the background runner.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}
