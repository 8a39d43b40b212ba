package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kilianp07/cnp-delivery/core/agent"
	"github.com/kilianp07/cnp-delivery/core/awardlog"
	"github.com/kilianp07/cnp-delivery/core/cnp"
	"github.com/kilianp07/cnp-delivery/core/events"
	"github.com/kilianp07/cnp-delivery/core/logger"
	"github.com/kilianp07/cnp-delivery/core/metrics"
	"github.com/kilianp07/cnp-delivery/core/model"
	"github.com/kilianp07/cnp-delivery/core/roadmap"
	"github.com/kilianp07/cnp-delivery/internal/eventbus"
)

const tracerName = "github.com/kilianp07/cnp-delivery/core/sim"

var (
	// ErrTickLimit is returned when a run reaches MaxTicks before finishing.
	ErrTickLimit = errors.New("tick limit reached")
	// ErrNotConfigured is returned when a control action needs a simulation
	// that was never configured.
	ErrNotConfigured = errors.New("simulation not configured")
	// ErrAlreadyRunning is returned when starting a running simulation.
	ErrAlreadyRunning = errors.New("simulation already running")
	// ErrFinished is returned when ticking a simulation that has ended.
	ErrFinished = errors.New("simulation finished")
	// ErrStopped marks a run ended by a stop request.
	ErrStopped = errors.New("simulation stopped")
)

// Result summarises a finished run.
type Result struct {
	RunID     string `json:"run_id"`
	Ticks     int    `json:"ticks"`
	Delivered int    `json:"delivered"`
	Total     int    `json:"total"`
}

// Simulation owns the depot, the agents and the packages of one run and
// advances them one tick at a time. It is not safe for concurrent use.
type Simulation struct {
	cfg    Config
	runID  string
	tick   int
	maps   roadmap.Provider
	depot  model.NodeID
	coord  *cnp.Coordinator
	agents []*agent.Agent

	awardedAt map[model.PackageID]int
	delivered []events.DeliveryEvent

	bus    *eventbus.TypedBus[events.Event]
	sink   metrics.MetricsSink
	awards awardlog.Store
	log    logger.Logger
	now    func() time.Time

	packages []*model.Package
	starts   map[model.AgentID]model.NodeID
	done     bool
	err      error
}

// Option customises a Simulation.
type Option func(*Simulation)

// WithBus publishes events on bus.
func WithBus(bus *eventbus.TypedBus[events.Event]) Option {
	return func(s *Simulation) { s.bus = bus }
}

// WithMetrics records events in sink.
func WithMetrics(sink metrics.MetricsSink) Option {
	return func(s *Simulation) { s.sink = sink }
}

// WithAwardLog persists every award in store.
func WithAwardLog(store awardlog.Store) Option {
	return func(s *Simulation) { s.awards = store }
}

// WithLogger sets the logger of the driver, the depot and the agents.
func WithLogger(l logger.Logger) Option {
	return func(s *Simulation) { s.log = l }
}

// WithPackages replaces the seeded generator with a fixed package list.
func WithPackages(pkgs ...*model.Package) Option {
	return func(s *Simulation) { s.packages = pkgs }
}

// WithAgentStart places an agent somewhere other than the depot.
func WithAgentStart(id model.AgentID, node model.NodeID) Option {
	return func(s *Simulation) { s.starts[id] = node }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(s *Simulation) { s.runID = id }
}

// New builds a simulation on maps. Map errors surface here, before the
// first tick. Agents get ids 1..NumAgents and start at the depot.
func New(cfg Config, agentCfg agent.Config, maps roadmap.Provider, opts ...Option) (*Simulation, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if maps == nil {
		return nil, fmt.Errorf("new simulation: nil map provider")
	}
	s := &Simulation{
		cfg:       cfg,
		runID:     uuid.NewString(),
		maps:      maps,
		awardedAt: make(map[model.PackageID]int),
		sink:      metrics.NopSink{},
		awards:    awardlog.NopStore{},
		log:       logger.NopLogger{},
		now:       time.Now,
		starts:    make(map[model.AgentID]model.NodeID),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = logger.OrNop(s.log)

	rng := rand.New(rand.NewSource(cfg.Seed))
	depot, err := pickDepot(rng, maps.Nodes(), cfg.DepotNode)
	if err != nil {
		return nil, fmt.Errorf("new simulation: %w", err)
	}
	s.depot = depot

	s.coord = cnp.NewCoordinator(s.log)
	for i := 1; i <= cfg.NumAgents; i++ {
		id := model.AgentID(i)
		start, ok := s.starts[id]
		if !ok {
			start = depot
		}
		a, err := agent.New(id, agentCfg, maps, depot, start, s.log)
		if err != nil {
			return nil, fmt.Errorf("new simulation: %w", err)
		}
		s.agents = append(s.agents, a)
		if err := s.coord.Register(a); err != nil {
			return nil, fmt.Errorf("new simulation: %w", err)
		}
	}

	pkgs := s.packages
	if pkgs == nil {
		pkgs, err = GeneratePackages(rng, maps, depot, cfg.NumPackages, cfg.PickupMode)
		if err != nil {
			return nil, fmt.Errorf("new simulation: %w", err)
		}
	}
	for _, p := range pkgs {
		if err := s.checkReachable(p); err != nil {
			return nil, fmt.Errorf("new simulation: package %d: %w", p.ID, err)
		}
		if err := s.coord.AddPackage(p); err != nil {
			return nil, fmt.Errorf("new simulation: %w", err)
		}
	}
	s.packages = nil

	s.log.Infow("simulation configured", map[string]any{
		"run_id":   s.runID,
		"agents":   cfg.NumAgents,
		"packages": s.coord.Total(),
		"depot":    depot,
		"seed":     cfg.Seed,
	})
	return s, nil
}

func (s *Simulation) checkReachable(p *model.Package) error {
	if _, err := s.maps.ShortestPathDistance(s.depot, p.Pickup); err != nil {
		return err
	}
	_, err := s.maps.ShortestPathDistance(p.Pickup, p.Dropoff)
	return err
}

func (s *Simulation) RunID() string { return s.runID }
func (s *Simulation) Tick() int { return s.tick }
func (s *Simulation) Depot() model.NodeID { return s.depot }
func (s *Simulation) Done() bool { return s.done }
func (s *Simulation) Err() error { return s.err }
func (s *Simulation) Config() Config { return s.cfg }
func (s *Simulation) Agents() []*agent.Agent { return s.agents }

// Packages returns copies of every package.
func (s *Simulation) Packages() []model.Package { return s.coord.Packages() }

// Result reports the elapsed ticks and the delivered count so far.
func (s *Simulation) Result() Result {
	return Result{RunID: s.runID, Ticks: s.tick, Delivered: s.coord.DeliveredCount(), Total: s.coord.Total()}
}

// Step advances the simulation by one tick: one contract net round, one step
// per agent in id order, the consistency checks and the termination test.
// Any fault halts the run and is returned on every later call.
func (s *Simulation) Step(ctx context.Context) (events.Snapshot, error) {
	if s.done {
		if s.err != nil {
			return s.Snapshot(), s.err
		}
		return s.Snapshot(), ErrFinished
	}
	started := s.now()
	s.tick++

	ctx, span := otel.Tracer(tracerName).Start(ctx, "sim.tick")
	span.SetAttributes(attribute.String("sim.run_id", s.runID), attribute.Int("sim.tick", s.tick))
	defer span.End()

	if err := s.advance(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return s.halt(err)
	}

	s.done = s.coord.AllDelivered() && s.allIdle()
	snap := s.Snapshot()
	s.publishTick(snap, s.now().Sub(started))
	if s.done {
		s.complete(nil)
		return snap, nil
	}
	if s.tick >= s.cfg.MaxTicks {
		return s.halt(fmt.Errorf("%w: %d ticks, %d/%d delivered", ErrTickLimit, s.tick, s.coord.DeliveredCount(), s.coord.Total()))
	}
	return snap, nil
}

func (s *Simulation) advance(ctx context.Context) error {
	round, err := s.coord.RunRound(ctx, s.tick)
	if err != nil {
		return err
	}
	for _, a := range round.Awards {
		s.recordAward(ctx, a)
	}

	tc := agent.TickContext{Tick: s.tick, Packages: &tickLedger{s: s}, Pending: s.coord.Pending()}
	for _, a := range s.agents {
		if err := a.Step(tc); err != nil {
			return err
		}
	}
	s.flushDeliveries()
	return s.check()
}

func (s *Simulation) recordAward(ctx context.Context, a cnp.Award) {
	s.awardedAt[a.PackageID] = a.Tick
	feasible := 0
	for _, b := range a.Bids {
		if b.Feasible {
			feasible++
		}
	}
	if err := s.sink.RecordAward(metrics.AwardEvent{
		RunID:     s.runID,
		Tick:      a.Tick,
		PackageID: a.PackageID,
		AgentID:   a.AgentID,
		Cost:      a.Cost,
		Bidders:   len(a.Bids),
		Feasible:  feasible,
		Time:      s.now(),
	}); err != nil {
		s.log.Warnf("record award metric: %v", err)
	}
	if err := s.awards.Append(ctx, awardlog.FromAward(s.runID, a, s.now())); err != nil {
		s.log.Warnf("append award log: %v", err)
	}
	s.publish(events.AwardEvent{RunID: s.runID, Award: a})
}

// tickLedger forwards agent progress to the depot and remembers deliveries
// for the events emitted at the end of the tick.
type tickLedger struct{ s *Simulation }

func (l *tickLedger) PickedUp(id model.PackageID, by model.AgentID) error {
	return l.s.coord.PickedUp(id, by)
}

func (l *tickLedger) Delivered(id model.PackageID, by model.AgentID) error {
	if err := l.s.coord.Delivered(id, by); err != nil {
		return err
	}
	l.s.delivered = append(l.s.delivered, events.DeliveryEvent{
		RunID:     l.s.runID,
		Tick:      l.s.tick,
		PackageID: id,
		AgentID:   by,
		AwardedAt: l.s.awardedAt[id],
	})
	return nil
}

func (s *Simulation) flushDeliveries() {
	for _, d := range s.delivered {
		if r, ok := s.sink.(metrics.DeliveryRecorder); ok {
			if err := r.RecordDelivery(metrics.DeliveryEvent{
				RunID:     d.RunID,
				Tick:      d.Tick,
				PackageID: d.PackageID,
				AgentID:   d.AgentID,
				Ticks:     d.Tick - d.AwardedAt,
				Time:      s.now(),
			}); err != nil {
				s.log.Warnf("record delivery metric: %v", err)
			}
		}
		s.publish(d)
	}
	s.delivered = s.delivered[:0]
}

func (s *Simulation) allIdle() bool {
	for _, a := range s.agents {
		if a.Status() != model.AgentIdle {
			return false
		}
	}
	return true
}

// check verifies the cross-cutting invariants after a tick: every agent is
// within its battery and capacity bounds, and each assigned or in-transit
// package sits in exactly the load of the agent it was awarded to.
func (s *Simulation) check() error {
	if err := s.coord.Check(); err != nil {
		return &model.FaultError{Tick: s.tick, Msg: "depot registry", Err: err}
	}
	holder := make(map[model.PackageID]model.AgentID)
	for _, a := range s.agents {
		if err := a.Check(); err != nil {
			return model.AgentFault(s.tick, a.ID(), err, "agent state")
		}
		for _, id := range a.Load() {
			if other, ok := holder[id]; ok {
				f := model.AgentFault(s.tick, a.ID(), nil, "package also held by agent %d", other)
				f.PackageID = &id
				return f
			}
			holder[id] = a.ID()
		}
	}
	for _, p := range s.coord.Packages() {
		h, held := holder[p.ID]
		switch p.Status {
		case model.PackageAssigned, model.PackageInTransit:
			if !held || h != *p.AssignedAgent {
				id := p.ID
				return &model.FaultError{Tick: s.tick, PackageID: &id, Msg: fmt.Sprintf("%s package not in the load of agent %d", p.Status, *p.AssignedAgent)}
			}
		default:
			if held {
				id := p.ID
				return &model.FaultError{Tick: s.tick, AgentID: &h, PackageID: &id, Msg: fmt.Sprintf("%s package still held", p.Status)}
			}
		}
	}
	return nil
}

// Run ticks until the simulation finishes, fails or ctx is cancelled.
func (s *Simulation) Run(ctx context.Context) (Result, error) {
	for !s.done {
		if err := ctx.Err(); err != nil {
			return s.Result(), err
		}
		if _, err := s.Step(ctx); err != nil {
			return s.Result(), err
		}
	}
	return s.Result(), s.err
}

// Stop ends the run at the current tick boundary. Later calls to Step
// return ErrStopped.
func (s *Simulation) Stop() {
	if s.done {
		return
	}
	s.log.Infof("simulation %s stopped at tick %d", s.runID, s.tick)
	s.done = true
	s.err = ErrStopped
	s.complete(ErrStopped)
}

func (s *Simulation) halt(err error) (events.Snapshot, error) {
	s.log.Errorf("simulation %s halted at tick %d: %v", s.runID, s.tick, err)
	s.done = true
	s.err = err
	snap := s.Snapshot()
	s.complete(err)
	return snap, err
}

func (s *Simulation) complete(err error) {
	res := s.Result()
	ev := events.CompletedEvent{RunID: s.runID, Ticks: res.Ticks, Delivered: res.Delivered, Total: res.Total}
	if err != nil {
		ev.Err = err.Error()
	}
	if r, ok := s.sink.(metrics.RunRecorder); ok {
		if rerr := r.RecordRun(metrics.RunEvent{
			RunID: ev.RunID, Ticks: ev.Ticks, Delivered: ev.Delivered, Total: ev.Total, Err: ev.Err, Time: s.now(),
		}); rerr != nil {
			s.log.Warnf("record run metric: %v", rerr)
		}
	}
	s.publish(ev)
	if err == nil {
		s.log.Infow("simulation completed", map[string]any{"run_id": s.runID, "ticks": res.Ticks, "delivered": res.Delivered})
	}
}

func (s *Simulation) publishTick(snap events.Snapshot, took time.Duration) {
	if r, ok := s.sink.(metrics.TickRecorder); ok {
		ev := metrics.TickEvent{RunID: s.runID, Tick: s.tick, Duration: took, Time: s.now()}
		for _, p := range snap.Packages {
			switch p.Status {
			case model.PackagePending:
				ev.Pending++
			case model.PackageAssigned:
				ev.Assigned++
			case model.PackageInTransit:
				ev.InTransit++
			case model.PackageDelivered:
				ev.Delivered++
			}
		}
		if err := r.RecordTick(ev); err != nil {
			s.log.Warnf("record tick metric: %v", err)
		}
	}
	if r, ok := s.sink.(metrics.AgentStateRecorder); ok {
		for _, a := range snap.Agents {
			if err := r.RecordAgentState(metrics.AgentStateEvent{
				RunID: s.runID, Tick: s.tick, AgentID: a.ID, Status: a.Status,
				Battery: a.Battery, Max: a.MaxBattery, Load: a.Load, Capacity: a.Capacity, Time: s.now(),
			}); err != nil {
				s.log.Warnf("record agent metric: %v", err)
			}
		}
	}
	s.publish(events.TickEvent{Snapshot: snap, Duration: took})
}

func (s *Simulation) publish(ev events.Event) {
	if s.bus == nil {
		return
	}
	if missed := s.bus.Publish(ev); missed > 0 {
		s.log.Warnf("event %T for tick %d dropped by %d subscriber(s)", ev, s.tick, missed)
	}
}
