package cnp

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kilianp07/cnp-delivery/core/logger"
	"github.com/kilianp07/cnp-delivery/core/model"
)

const tracerName = "github.com/kilianp07/cnp-delivery/core/cnp"

// Bidder is the agent side of the protocol.
type Bidder interface {
	ID() model.AgentID
	Bid(task model.Task) model.Bid
	AcceptTask(task model.Task) error
}

// Award records the outcome of one successful negotiation.
type Award struct {
	Tick      int             `json:"tick"`
	PackageID model.PackageID `json:"package_id"`
	AgentID   model.AgentID   `json:"agent_id"`
	Cost      float64         `json:"cost"`
	// Bids holds every answer received, feasible or not, in agent id order.
	Bids []model.Bid `json:"bids"`
}

// RoundResult summarises one round.
type RoundResult struct {
	Tick      int
	Announced int
	Awards    []Award
	// Unassigned counts the announced tasks nobody could take.
	Unassigned int
}

// Coordinator is the depot. It owns the package registry and the queue of
// unassigned packages, and is the only writer of package assignment.
type Coordinator struct {
	phase    Phase
	agents   []Bidder
	packages map[model.PackageID]*model.Package
	ids      []model.PackageID
	queue    []model.PackageID
	log      logger.Logger
}

// NewCoordinator returns an idle depot with no agents and no packages.
func NewCoordinator(log logger.Logger) *Coordinator {
	return &Coordinator{
		packages: make(map[model.PackageID]*model.Package),
		log:      logger.OrNop(log),
	}
}

// Register adds agents. They are always consulted in id order.
func (c *Coordinator) Register(agents ...Bidder) error {
	for _, a := range agents {
		if slices.ContainsFunc(c.agents, func(b Bidder) bool { return b.ID() == a.ID() }) {
			return fmt.Errorf("register agent %d: duplicate id", a.ID())
		}
		c.agents = append(c.agents, a)
	}
	slices.SortFunc(c.agents, func(x, y Bidder) int { return int(x.ID()) - int(y.ID()) })
	return nil
}

// AddPackage appends a new pending package to the queue.
func (c *Coordinator) AddPackage(p *model.Package) error {
	if p.Status != model.PackagePending || p.AssignedAgent != nil {
		return fmt.Errorf("add package %d: not pending", p.ID)
	}
	if _, ok := c.packages[p.ID]; ok {
		return fmt.Errorf("add package %d: duplicate id", p.ID)
	}
	c.packages[p.ID] = p
	c.ids = append(c.ids, p.ID)
	c.queue = append(c.queue, p.ID)
	return nil
}

func (c *Coordinator) Phase() Phase { return c.phase }

// Pending returns the unassigned tasks in arrival order.
func (c *Coordinator) Pending() []model.Task {
	tasks := make([]model.Task, 0, len(c.queue))
	for _, id := range c.queue {
		tasks = append(tasks, c.packages[id].Task())
	}
	return tasks
}

// Packages returns copies of every package in arrival order.
func (c *Coordinator) Packages() []model.Package {
	out := make([]model.Package, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.packages[id].Clone())
	}
	return out
}

// Package returns a copy of one package.
func (c *Coordinator) Package(id model.PackageID) (model.Package, bool) {
	p, ok := c.packages[id]
	if !ok {
		return model.Package{}, false
	}
	return p.Clone(), true
}

// Total returns the number of registered packages.
func (c *Coordinator) Total() int { return len(c.ids) }

// DeliveredCount returns the number of delivered packages.
func (c *Coordinator) DeliveredCount() int {
	n := 0
	for _, p := range c.packages {
		if p.Status == model.PackageDelivered {
			n++
		}
	}
	return n
}

// AllDelivered reports whether every package reached its dropoff.
func (c *Coordinator) AllDelivered() bool { return c.DeliveredCount() == len(c.ids) }

// RunRound negotiates every pending package once, in queue order. Awards
// are applied immediately so later bids see the committed load. Packages
// nobody bids feasibly on stay queued for the next round.
func (c *Coordinator) RunRound(ctx context.Context, tick int) (RoundResult, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "cnp.round")
	defer span.End()

	res := RoundResult{Tick: tick}
	if c.phase != PhaseIdle {
		return res, fmt.Errorf("%w: round started in phase %s", model.ErrInvariant, c.phase)
	}

	announced := slices.Clone(c.queue)
	remaining := c.queue[:0:0]
	// abort keeps the queue consistent with the registry: packages awarded
	// before the failure leave it, the failed one and the rest stay.
	abort := func(i int, err error) (RoundResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.queue = append(remaining, announced[i:]...)
		c.phase = PhaseIdle
		return res, err
	}
	for i, id := range announced {
		task := c.packages[id].Task()
		if err := c.enter(PhaseAnnouncing); err != nil {
			return abort(i, err)
		}
		res.Announced++

		bids, err := c.collect(task)
		if err != nil {
			return abort(i, err)
		}
		winner, ok := selectWinner(bids)
		if !ok {
			res.Unassigned++
			remaining = append(remaining, id)
			c.log.Debugw("no feasible bid", map[string]any{"tick": tick, "package_id": id, "bids": len(bids)})
			continue
		}

		if err := c.enter(PhaseAwarding); err != nil {
			return abort(i, err)
		}
		award, err := c.award(tick, task, winner, bids)
		if err != nil {
			return abort(i, err)
		}
		res.Awards = append(res.Awards, award)
	}
	if len(announced) > 0 {
		if err := c.enter(PhaseIdle); err != nil {
			return abort(len(announced), err)
		}
	}
	c.queue = remaining

	span.SetAttributes(
		attribute.Int("cnp.tick", tick),
		attribute.Int("cnp.announced", res.Announced),
		attribute.Int("cnp.awarded", len(res.Awards)),
		attribute.Int("cnp.unassigned", res.Unassigned),
	)
	return res, nil
}

func (c *Coordinator) collect(task model.Task) ([]model.Bid, error) {
	if err := c.enter(PhaseCollectingBids); err != nil {
		return nil, err
	}
	bids := make([]model.Bid, 0, len(c.agents))
	for _, a := range c.agents {
		b := a.Bid(task)
		b.AgentID = a.ID()
		bids = append(bids, b)
	}
	return bids, nil
}

// selectWinner returns the cheapest feasible bid, lowest agent id on ties.
func selectWinner(bids []model.Bid) (model.Bid, bool) {
	var best model.Bid
	found := false
	for _, b := range bids {
		if !b.Feasible {
			continue
		}
		if !found || b.Better(best) {
			best, found = b, true
		}
	}
	return best, found
}

func (c *Coordinator) award(tick int, task model.Task, winner model.Bid, bids []model.Bid) (Award, error) {
	p := c.packages[task.PackageID]
	agent := c.agent(winner.AgentID)
	if err := agent.AcceptTask(task); err != nil {
		f := model.AgentFault(tick, winner.AgentID, err, "accept awarded task")
		f.PackageID = &p.ID
		return Award{}, f
	}
	if err := p.Assign(winner.AgentID); err != nil {
		f := model.AgentFault(tick, winner.AgentID, err, "assign package")
		f.PackageID = &p.ID
		return Award{}, f
	}
	c.log.Infow("task awarded", map[string]any{
		"tick":       tick,
		"package_id": p.ID,
		"agent_id":   winner.AgentID,
		"cost":       winner.Cost,
		"bidders":    len(bids),
	})
	return Award{Tick: tick, PackageID: p.ID, AgentID: winner.AgentID, Cost: winner.Cost, Bids: bids}, nil
}

func (c *Coordinator) agent(id model.AgentID) Bidder {
	i, _ := slices.BinarySearchFunc(c.agents, id, func(b Bidder, id model.AgentID) int { return int(b.ID()) - int(id) })
	return c.agents[i]
}
