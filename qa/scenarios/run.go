package scenarios

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/kilianp07/cnp-delivery/core/logger"
	"github.com/kilianp07/cnp-delivery/core/metrics"
	"github.com/kilianp07/cnp-delivery/core/model"
	"github.com/kilianp07/cnp-delivery/core/sim"
)

// Outcome is what a scenario run produced.
type Outcome struct {
	Result sim.Result
	Awards []AwardDef
	Err    error
}

// awardRecorder keeps the awards of a run in order.
type awardRecorder struct {
	metrics.NopSink
	mu     sync.Mutex
	awards []AwardDef
}

func (r *awardRecorder) RecordAward(ev metrics.AwardEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.awards = append(r.awards, AwardDef{Tick: ev.Tick, Package: int(ev.PackageID), Agent: int(ev.AgentID)})
	return nil
}

// Run executes the scenario to completion. Setup failures are returned as
// errors; failures of the run itself end up in Outcome.Err.
func Run(ctx context.Context, sc *Scenario, log logger.Logger) (Outcome, error) {
	g, err := sc.Region.Build()
	if err != nil {
		return Outcome{}, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	pkgs := make([]*model.Package, len(sc.Packages))
	for i, p := range sc.Packages {
		pkgs[i] = p.ToModel()
	}
	rec := &awardRecorder{}
	opts := []sim.Option{sim.WithPackages(pkgs...), sim.WithMetrics(rec), sim.WithLogger(log)}
	for id, node := range sc.AgentStarts {
		opts = append(opts, sim.WithAgentStart(model.AgentID(id), model.NodeID(node)))
	}
	depot := sc.Depot
	cfg := sim.Config{NumAgents: sc.Agents, NumPackages: len(pkgs), MaxTicks: sc.MaxTicks, PickupMode: sim.PickupRandom, DepotNode: &depot}
	s, err := sim.New(cfg, sc.Agent.ToConfig(), g, opts...)
	if err != nil {
		return Outcome{}, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	res, runErr := s.Run(ctx)
	return Outcome{Result: res, Awards: rec.awards, Err: runErr}, nil
}

// Verify compares an outcome with the scenario expectations and reports
// every mismatch.
func Verify(sc *Scenario, o Outcome) error {
	var errs []error
	exp := sc.Expected
	switch {
	case exp.Error == "" && o.Err != nil:
		errs = append(errs, fmt.Errorf("unexpected error: %w", o.Err))
	case exp.Error != "" && (o.Err == nil || (o.Err.Error() != exp.Error && !errors.Is(o.Err, namedError(exp.Error)))):
		errs = append(errs, fmt.Errorf("expected error %q, got %v", exp.Error, o.Err))
	}
	if o.Result.Delivered != exp.Delivered {
		errs = append(errs, fmt.Errorf("expected %d delivered, got %d", exp.Delivered, o.Result.Delivered))
	}
	if exp.Ticks > 0 && o.Result.Ticks != exp.Ticks {
		errs = append(errs, fmt.Errorf("expected %d ticks, got %d", exp.Ticks, o.Result.Ticks))
	}
	if exp.Awards != nil && !slices.Equal(exp.Awards, o.Awards) {
		errs = append(errs, fmt.Errorf("expected awards %v, got %v", exp.Awards, o.Awards))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("scenario %s: %w", sc.Name, errors.Join(errs...))
}

// namedError maps the short names usable in scenario files to sentinels.
func namedError(name string) error {
	switch name {
	case "tick_limit":
		return sim.ErrTickLimit
	case "invariant":
		return model.ErrInvariant
	default:
		return errors.New(name)
	}
}
