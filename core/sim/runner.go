package sim

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/kilianp07/cnp-delivery/core/events"
	"github.com/kilianp07/cnp-delivery/core/logger"
	"github.com/kilianp07/cnp-delivery/core/model"
	"github.com/kilianp07/cnp-delivery/core/monitoring"
)

// RunState is the lifecycle of a background run.
type RunState string

const (
	StateIdle     RunState = "idle"
	StateRunning  RunState = "running"
	StatePaused   RunState = "paused"
	StateFinished RunState = "finished"
	StateFailed   RunState = "failed"
	StateStopped  RunState = "stopped"
)

// Status is the runner state reported to the control surface.
type Status struct {
	RunID     string   `json:"run_id,omitempty"`
	State     RunState `json:"state"`
	Running   bool     `json:"is_running"`
	Paused    bool     `json:"is_paused"`
	Tick      int      `json:"time_step"`
	Delivered int      `json:"completed"`
	Total     int      `json:"total"`
	Error     string   `json:"error,omitempty"`
}

// Runner executes a Simulation on a background goroutine, one tick at a
// time, paced by a rate limiter. Pause, resume and stop take effect at tick
// boundaries. The latest snapshot is readable at any time.
type Runner struct {
	log logger.Logger

	mu      sync.Mutex
	state   RunState
	resume  chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error

	latest atomic.Pointer[events.Snapshot]
}

// NewRunner returns an idle runner.
func NewRunner(log logger.Logger) *Runner {
	return &Runner{log: logger.OrNop(log), state: StateIdle}
}

// Start runs sim in the background with one tick per interval. A zero
// interval runs ticks back to back. A previous run that has ended is
// replaced; a live one yields ErrAlreadyRunning.
func (r *Runner) Start(ctx context.Context, sim *Simulation, interval time.Duration) error {
	if sim == nil {
		return ErrNotConfigured
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRunning || r.state == StatePaused {
		return ErrAlreadyRunning
	}

	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.state = StateRunning
	r.cancel = cancel
	r.done = done
	r.resume = nil
	r.lastErr = nil
	snap := sim.Snapshot()
	r.latest.Store(&snap)

	r.log.Infow("run started", map[string]any{"run_id": sim.RunID(), "interval": interval.String()})
	go func() {
		defer monitoring.Recover()
		defer cancel()
		r.loop(runCtx, sim, limiter, done)
	}()
	return nil
}

func (r *Runner) loop(ctx context.Context, sim *Simulation, limiter *rate.Limiter, done chan struct{}) {
	defer close(done)
	for {
		if err := limiter.Wait(ctx); err != nil {
			r.finish(sim, err)
			return
		}
		if gate := r.pauseGate(); gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				r.finish(sim, ctx.Err())
				return
			}
		}
		snap, err := sim.Step(ctx)
		r.latest.Store(&snap)
		if err != nil || sim.Done() {
			r.finish(sim, err)
			return
		}
	}
}

func (r *Runner) pauseGate() chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StatePaused {
		return r.resume
	}
	return nil
}

func (r *Runner) finish(sim *Simulation, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, ErrStopped):
		sim.Stop()
		r.state = StateStopped
	case err != nil:
		r.state = StateFailed
		r.lastErr = err
		r.log.Errorf("run %s failed: %v", sim.RunID(), err)
		monitoring.CaptureException(err, faultTags(sim, err))
	default:
		r.state = StateFinished
	}
	snap := sim.Snapshot()
	r.latest.Store(&snap)
	r.log.Infow("run ended", map[string]any{"run_id": sim.RunID(), "state": string(r.state), "tick": sim.Tick()})
}

func faultTags(sim *Simulation, err error) map[string]string {
	tags := map[string]string{
		"module": "sim",
		"run_id": sim.RunID(),
		"tick":   strconv.Itoa(sim.Tick()),
	}
	var fault *model.FaultError
	if errors.As(err, &fault) {
		if fault.AgentID != nil {
			tags["agent_id"] = strconv.Itoa(int(*fault.AgentID))
		}
		if fault.PackageID != nil {
			tags["package_id"] = strconv.Itoa(int(*fault.PackageID))
		}
	}
	return tags
}

// Pause holds the run before its next tick.
func (r *Runner) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateRunning:
		r.state = StatePaused
		r.resume = make(chan struct{})
		return nil
	case StatePaused:
		return nil
	default:
		return ErrNotConfigured
	}
}

// Resume releases a paused run.
func (r *Runner) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StatePaused:
		r.state = StateRunning
		close(r.resume)
		r.resume = nil
		return nil
	case StateRunning:
		return nil
	default:
		return ErrNotConfigured
	}
}

// TogglePause pauses a running simulation or resumes a paused one.
func (r *Runner) TogglePause() error {
	r.mu.Lock()
	paused := r.state == StatePaused
	r.mu.Unlock()
	if paused {
		return r.Resume()
	}
	return r.Pause()
}

// Stop ends the run after the tick in progress and waits for the loop.
func (r *Runner) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	live := r.state == StateRunning || r.state == StatePaused
	r.mu.Unlock()
	if cancel == nil {
		return ErrNotConfigured
	}
	if live {
		cancel()
	}
	<-done
	return nil
}

// Wait blocks until the current run ends and returns its error, if any.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return ErrNotConfigured
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Latest returns the most recent snapshot.
func (r *Runner) Latest() (events.Snapshot, bool) {
	snap := r.latest.Load()
	if snap == nil {
		return events.Snapshot{}, false
	}
	return *snap, true
}

// Status reports the run state and progress.
func (r *Runner) Status() Status {
	r.mu.Lock()
	st := Status{State: r.state, Running: r.state == StateRunning || r.state == StatePaused, Paused: r.state == StatePaused}
	if r.lastErr != nil {
		st.Error = r.lastErr.Error()
	}
	r.mu.Unlock()
	if snap, ok := r.Latest(); ok {
		st.RunID = snap.RunID
		st.Tick = snap.Tick
		st.Delivered = snap.Completed
		st.Total = snap.Total
	}
	return st
}
