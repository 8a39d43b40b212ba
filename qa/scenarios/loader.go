package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/cnp-delivery/core/agent"
	"github.com/kilianp07/cnp-delivery/core/model"
	"github.com/kilianp07/cnp-delivery/core/roadmap"
)

// AgentDef overrides the default agent constants. A nil buffer keeps the
// default; an explicit 0 disables it.
type AgentDef struct {
	Capacity          int      `yaml:"capacity"`
	MaxBattery        float64  `yaml:"max_battery"`
	DrainPerMeter     float64  `yaml:"drain_per_meter"`
	MinBufferFraction *float64 `yaml:"min_buffer_fraction"`
	RechargeRate      float64  `yaml:"recharge_rate_per_tick"`
	RechargePolicy    string   `yaml:"recharge_policy"`
}

func (a AgentDef) ToConfig() agent.Config {
	cfg := agent.DefaultConfig()
	if a.Capacity > 0 {
		cfg.Capacity = a.Capacity
	}
	if a.MaxBattery > 0 {
		cfg.MaxBattery = a.MaxBattery
	}
	if a.DrainPerMeter > 0 {
		cfg.DrainPerMeter = a.DrainPerMeter
	}
	if a.MinBufferFraction != nil {
		cfg.MinBufferFraction = *a.MinBufferFraction
	}
	if a.RechargeRate > 0 {
		cfg.RechargeRate = a.RechargeRate
	}
	if a.RechargePolicy != "" {
		cfg.RechargePolicy = agent.RechargePolicy(a.RechargePolicy)
	}
	return cfg
}

type PackageDef struct {
	ID      int   `yaml:"id"`
	Pickup  int64 `yaml:"pickup"`
	Dropoff int64 `yaml:"dropoff"`
}

func (p PackageDef) ToModel() *model.Package {
	return model.NewPackage(model.PackageID(p.ID), model.NodeID(p.Pickup), model.NodeID(p.Dropoff))
}

type AwardDef struct {
	Tick    int `yaml:"tick"`
	Package int `yaml:"package"`
	Agent   int `yaml:"agent"`
}

// Expected lists the checked outcomes. Zero Ticks and nil Awards are not
// checked; an empty Error means the run must finish cleanly.
type Expected struct {
	Delivered int        `yaml:"delivered"`
	Ticks     int        `yaml:"ticks"`
	Awards    []AwardDef `yaml:"awards"`
	Error     string     `yaml:"error"`
}

type Scenario struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description,omitempty"`
	Region      roadmap.RegionFile `yaml:"region"`
	Depot       int64              `yaml:"depot"`
	Agents      int                `yaml:"agents"`
	AgentStarts map[int]int64      `yaml:"agent_starts,omitempty"`
	Agent       AgentDef           `yaml:"agent"`
	Packages    []PackageDef       `yaml:"packages"`
	MaxTicks    int                `yaml:"max_ticks"`
	Expected    Expected           `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if sc.Agents == 0 {
		sc.Agents = 1
	}
	if sc.MaxTicks == 0 {
		sc.MaxTicks = 1000
	}
	return &sc, nil
}
