package agent

import (
	"fmt"
	"slices"

	"github.com/kilianp07/cnp-delivery/core/battery"
	"github.com/kilianp07/cnp-delivery/core/logger"
	"github.com/kilianp07/cnp-delivery/core/model"
	"github.com/kilianp07/cnp-delivery/core/roadmap"
)

// RechargePolicy selects how the battery is refilled at the depot.
type RechargePolicy string

const (
	RechargeGradual RechargePolicy = "gradual"
	RechargeInstant RechargePolicy = "instant"
)

// Config holds the per-agent constants.
type Config struct {
	Capacity          int            `json:"capacity" validate:"gte=1"`
	MaxBattery        float64        `json:"max_battery" validate:"gt=0"`
	DrainPerMeter     float64        `json:"drain_per_meter" validate:"gt=0"`
	MinBufferFraction float64        `json:"min_buffer_fraction" validate:"gte=0,lt=1"`
	RechargeRate      float64        `json:"recharge_rate_per_tick" validate:"gt=0"`
	RechargePolicy    RechargePolicy `json:"recharge_policy" validate:"oneof=gradual instant"`
}

// DefaultConfig mirrors the reference fleet: 5 parcels, 100 units of charge,
// 0.005 per meter, 30% working buffer.
func DefaultConfig() Config {
	return Config{
		Capacity:          5,
		MaxBattery:        100,
		DrainPerMeter:     0.005,
		MinBufferFraction: 0.3,
		RechargeRate:      10,
		RechargePolicy:    RechargeGradual,
	}
}

// SetDefaults fills the fields whose zero value is invalid. A zero
// MinBufferFraction is a valid setting and is kept.
func (c *Config) SetDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = 5
	}
	if c.MaxBattery <= 0 {
		c.MaxBattery = 100
	}
	if c.DrainPerMeter <= 0 {
		c.DrainPerMeter = 0.005
	}
	if c.RechargeRate <= 0 {
		c.RechargeRate = 10
	}
	if c.RechargePolicy == "" {
		c.RechargePolicy = RechargeGradual
	}
}

// held is the agent's copy of a package it carries or will pick up.
type held struct {
	ID       model.PackageID
	Pickup   model.NodeID
	Dropoff  model.NodeID
	PickedUp bool
}

// Agent is a delivery vehicle taking part in contract net rounds.
type Agent struct {
	id       model.AgentID
	cfg      Config
	maps     roadmap.Provider
	depot    model.NodeID
	position model.NodeID
	battery  battery.Battery
	load     []held
	route    []Stop
	status   model.AgentStatus
	log      logger.Logger
}

// New creates an idle agent at start with a full battery.
func New(id model.AgentID, cfg Config, maps roadmap.Provider, depot, start model.NodeID, log logger.Logger) (*Agent, error) {
	cfg.SetDefaults()
	if maps == nil {
		return nil, fmt.Errorf("agent %d: nil map provider", id)
	}
	if _, err := maps.NodeCoordinates(start); err != nil {
		return nil, fmt.Errorf("agent %d: start: %w", id, err)
	}
	if _, err := maps.NodeCoordinates(depot); err != nil {
		return nil, fmt.Errorf("agent %d: depot: %w", id, err)
	}
	return &Agent{
		id:       id,
		cfg:      cfg,
		maps:     maps,
		depot:    depot,
		position: start,
		battery:  battery.New(cfg.MaxBattery, cfg.DrainPerMeter, cfg.RechargeRate),
		status:   model.AgentIdle,
		log:      logger.OrNop(log),
	}, nil
}

func (a *Agent) ID() model.AgentID { return a.id }
func (a *Agent) Status() model.AgentStatus { return a.status }
func (a *Agent) Position() model.NodeID { return a.position }
func (a *Agent) Battery() battery.Battery { return a.battery }
func (a *Agent) Capacity() int { return a.cfg.Capacity }
func (a *Agent) Config() Config { return a.cfg }
func (a *Agent) Route() []Stop { return slices.Clone(a.route) }
func (a *Agent) minWorking() float64 { return a.cfg.MinBufferFraction * a.battery.Max }
func (a *Agent) atDepot() bool { return a.position == a.depot }
func (a *Agent) loadFull() bool { return len(a.load) >= a.cfg.Capacity }
func (a *Agent) hasPackage(id model.PackageID) bool { return a.indexOf(id) >= 0 }

// Load returns the ids of the held packages in ascending order.
func (a *Agent) Load() []model.PackageID {
	ids := make([]model.PackageID, len(a.load))
	for i, h := range a.load {
		ids[i] = h.ID
	}
	return ids
}

func (a *Agent) indexOf(id model.PackageID) int {
	return slices.IndexFunc(a.load, func(h held) bool { return h.ID == id })
}

func (a *Agent) setStatus(to model.AgentStatus) error {
	if !a.status.CanTransition(to) {
		return fmt.Errorf("%w: agent %d %s -> %s", model.ErrInvalidTransition, a.id, a.status, to)
	}
	if a.status != to {
		a.log.Debugw("agent status", map[string]any{"agent_id": a.id, "from": a.status.String(), "to": to.String()})
	}
	a.status = to
	return nil
}

// AcceptTask adds an awarded task to the load and re-plans the whole route.
// The depot only calls it for tasks this agent bid feasibly on.
func (a *Agent) AcceptTask(task model.Task) error {
	if a.status == model.AgentRecharging {
		return fmt.Errorf("%w: agent %d awarded package %d while recharging", model.ErrInvariant, a.id, task.PackageID)
	}
	if a.loadFull() {
		return fmt.Errorf("%w: agent %d over capacity %d accepting package %d", model.ErrInvariant, a.id, a.cfg.Capacity, task.PackageID)
	}
	if a.hasPackage(task.PackageID) {
		return fmt.Errorf("%w: agent %d already holds package %d", model.ErrInvariant, a.id, task.PackageID)
	}
	load := append(slices.Clone(a.load), held{ID: task.PackageID, Pickup: task.Pickup, Dropoff: task.Dropoff})
	slices.SortFunc(load, func(x, y held) int { return int(x.ID) - int(y.ID) })
	route, dist, err := a.plan(a.position, load)
	if err != nil {
		return fmt.Errorf("agent %d: plan after accepting package %d: %w", a.id, task.PackageID, err)
	}

	next := model.AgentBusy
	if a.atDepot() && (a.status == model.AgentIdle || a.status == model.AgentBidding) {
		next = model.AgentBidding
	}
	if err := a.setStatus(next); err != nil {
		return err
	}
	a.load = load
	a.route = route
	a.log.Infow("task accepted", map[string]any{
		"agent_id":   a.id,
		"package_id": task.PackageID,
		"load":       len(a.load),
		"route_m":    dist,
		"drain":      a.battery.Cost(dist),
		"battery":    a.battery.Level,
	})
	return nil
}

// Check verifies the agent invariants: battery bounds, capacity, and a route
// that only visits nodes of held packages plus the depot.
func (a *Agent) Check() error {
	if err := a.battery.Check(); err != nil {
		return fmt.Errorf("agent %d: %w", a.id, err)
	}
	if len(a.load) > a.cfg.Capacity {
		return fmt.Errorf("%w: agent %d load %d over capacity %d", model.ErrInvariant, a.id, len(a.load), a.cfg.Capacity)
	}
	for _, s := range a.route {
		if s.Kind == StopDepot {
			if s.Node != a.depot {
				return fmt.Errorf("%w: agent %d depot stop at %d", model.ErrInvariant, a.id, s.Node)
			}
			continue
		}
		i := a.indexOf(s.Package)
		if i < 0 {
			return fmt.Errorf("%w: agent %d route visits package %d it does not hold", model.ErrInvariant, a.id, s.Package)
		}
		h := a.load[i]
		if (s.Kind == StopPickup && s.Node != h.Pickup) || (s.Kind == StopDropoff && s.Node != h.Dropoff) {
			return fmt.Errorf("%w: agent %d stop %s does not match package %d", model.ErrInvariant, a.id, s, s.Package)
		}
	}
	return nil
}
