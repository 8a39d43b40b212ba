package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kilianp07/cnp-delivery/api/awards"
	"github.com/kilianp07/cnp-delivery/api/control"
	"github.com/kilianp07/cnp-delivery/config"
	"github.com/kilianp07/cnp-delivery/core/awardlog"
	"github.com/kilianp07/cnp-delivery/core/events"
	coremetrics "github.com/kilianp07/cnp-delivery/core/metrics"
	coremon "github.com/kilianp07/cnp-delivery/core/monitoring"
	"github.com/kilianp07/cnp-delivery/core/roadmap"
	"github.com/kilianp07/cnp-delivery/core/sim"
	"github.com/kilianp07/cnp-delivery/infra/logger"
	"github.com/kilianp07/cnp-delivery/infra/metrics"
	"github.com/kilianp07/cnp-delivery/infra/monitoring"
	"github.com/kilianp07/cnp-delivery/infra/mqtt"
	"github.com/kilianp07/cnp-delivery/infra/tracing"
	"github.com/kilianp07/cnp-delivery/internal/eventbus"
)

// busBuffer keeps slow consumers from missing events when ticks are not paced.
const busBuffer = 256

// Service wires the simulation to its outer surfaces: metrics sinks, the
// award log, MQTT mirroring, tracing and the HTTP control API.
type Service struct {
	cfg    *config.Config
	log    logger.Logger
	bus    *eventbus.TypedBus[events.Event]
	sink   coremetrics.MetricsSink
	awards awardlog.Store
	mqtt   *mqtt.PahoClient
	runner *sim.Runner

	shutdownTracing func(context.Context) error

	startOnce sync.Once
	consumers []<-chan struct{}
	ctx       context.Context

	// startMu serializes Start so a rejected request never replaces the
	// running simulation.
	startMu sync.Mutex

	mu      sync.Mutex
	current *sim.Simulation
	maps    roadmap.Provider
	started bool
}

var _ control.Controller = (*Service)(nil)

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	log := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	shutdown, err := tracing.Init(context.Background(), cfg.Tracing, logger.New("tracing"))
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	awards, err := awardlog.Open(cfg.AwardLog)
	if err != nil {
		return nil, fmt.Errorf("award log: %w", err)
	}

	svc := &Service{
		cfg:             cfg,
		log:             log,
		bus:             eventbus.NewTypedWithBuffer[events.Event](busBuffer),
		sink:            sink,
		awards:          awards,
		runner:          sim.NewRunner(logger.New("runner")),
		shutdownTracing: shutdown,
		ctx:             context.Background(),
	}
	if cfg.MQTT.Enabled {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			_ = awards.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.mqtt = client
	}
	return svc, nil
}

// startConsumers launches the bus consumers once.
func (s *Service) startConsumers(ctx context.Context) {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.ctx = ctx
		s.mu.Unlock()
		if s.cfg.Metrics.Async {
			s.consumers = append(s.consumers, metrics.StartEventCollector(ctx, s.bus, s.sink))
		}
		if s.mqtt != nil {
			pub := mqtt.NewSnapshotPublisher(s.mqtt, s.cfg.MQTT, logger.New("mqtt-publisher"))
			s.consumers = append(s.consumers, pub.Start(ctx, s.bus))
		}
	})
}

// Run serves the control API until ctx is canceled. A simulation is
// prepared from the configuration so the map and state are available before
// the first start request.
func (s *Service) Run(ctx context.Context) error {
	s.startConsumers(ctx)
	if err := s.prepare(control.StartRequest{}); err != nil {
		return err
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("http shutdown: %v", err)
		}
	}()
	s.log.Infof("control API listening on %s", s.cfg.HTTP.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := s.runner.Stop(); err != nil && !errors.Is(err, sim.ErrNotConfigured) {
		return err
	}
	return nil
}

// Handler routes the control API and the award log endpoint.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/awards", awards.NewLogHandler(s.awards, s.cfg.HTTP.Token))
	mux.Handle("/", control.NewHandler(s, control.Options{
		Token:      s.cfg.HTTP.Token,
		CORSOrigin: s.cfg.HTTP.CORSOrigin,
		Logger:     logger.New("api"),
	}))
	return mux
}

// RunOnce runs one simulation from the configuration to completion on the
// calling goroutine, without pacing.
func (s *Service) RunOnce(ctx context.Context) (sim.Result, error) {
	s.startConsumers(ctx)
	sm, _, err := s.build(control.StartRequest{})
	if err != nil {
		return sim.Result{}, err
	}
	res, err := sm.Run(ctx)
	if ctx.Err() != nil {
		sm.Stop()
		return sm.Result(), ctx.Err()
	}
	return res, err
}

// prepare builds an idle simulation so map and state are served before start.
func (s *Service) prepare(req control.StartRequest) error {
	sm, maps, err := s.build(req)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current, s.maps, s.started = sm, maps, false
	return nil
}

func (s *Service) build(req control.StartRequest) (*sim.Simulation, roadmap.Provider, error) {
	simCfg := s.cfg.Simulation
	agentCfg := s.cfg.Agent
	region := s.cfg.Map
	if req.NumAgents != nil {
		simCfg.NumAgents = *req.NumAgents
	}
	if req.NumPackages != nil {
		simCfg.NumPackages = *req.NumPackages
	}
	if req.Seed != nil {
		simCfg.Seed = *req.Seed
	}
	if req.MinBufferFraction != nil {
		agentCfg.MinBufferFraction = *req.MinBufferFraction
	}
	if req.MapRegion != "" {
		region.Region = req.MapRegion
	}
	v := config.NewValidator()
	for _, section := range []any{&simCfg, &agentCfg, &region} {
		if err := v.Validate(section); err != nil {
			return nil, nil, errors.Join(control.ErrInvalidRequest, err)
		}
	}
	if err := simCfg.Validate(); err != nil {
		return nil, nil, errors.Join(control.ErrInvalidRequest, err)
	}

	maps, err := roadmap.Open(region, simCfg.Seed)
	if err != nil {
		return nil, nil, fmt.Errorf("open map %s: %w", region.Region, err)
	}
	opts := []sim.Option{
		sim.WithBus(s.bus),
		sim.WithAwardLog(s.awards),
		sim.WithLogger(logger.New("sim")),
	}
	if !s.cfg.Metrics.Async {
		opts = append(opts, sim.WithMetrics(s.sink))
	}
	sm, err := sim.New(simCfg, agentCfg, maps, opts...)
	if err != nil {
		return nil, nil, err
	}
	return sm, maps, nil
}

// Start configures a fresh simulation from req and runs it in the background.
func (s *Service) Start(req control.StartRequest) (sim.Status, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if st := s.runner.Status(); st.Running {
		return st, sim.ErrAlreadyRunning
	}
	sm, maps, err := s.build(req)
	if err != nil {
		return sim.Status{}, err
	}
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if err := s.runner.Start(ctx, sm, sm.Config().TickInterval()); err != nil {
		return sim.Status{}, err
	}
	s.mu.Lock()
	s.current, s.maps, s.started = sm, maps, true
	s.mu.Unlock()
	return s.runner.Status(), nil
}

func (s *Service) Pause() error  { return s.runner.Pause() }
func (s *Service) Resume() error { return s.runner.Resume() }
func (s *Service) Stop() error   { return s.runner.Stop() }

// Status reports the runner state, or the prepared run when none started.
func (s *Service) Status() sim.Status {
	st := s.runner.Status()
	if st.RunID != "" {
		return st
	}
	if snap, ok := s.Latest(); ok {
		st.RunID, st.Tick, st.Delivered, st.Total = snap.RunID, snap.Tick, snap.Completed, snap.Total
	}
	return st
}

// Latest returns the runner's last snapshot, or the prepared simulation's
// initial state before the first start.
func (s *Service) Latest() (events.Snapshot, bool) {
	if snap, ok := s.runner.Latest(); ok {
		return snap, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.started {
		return events.Snapshot{}, false
	}
	return s.current.Snapshot(), true
}

// MapData describes the region of the current simulation.
func (s *Service) MapData() (control.MapData, error) {
	s.mu.Lock()
	sm, maps := s.current, s.maps
	s.mu.Unlock()
	if sm == nil {
		return control.MapData{}, sim.ErrNotConfigured
	}
	info, err := roadmap.Describe(maps)
	if err != nil {
		return control.MapData{}, err
	}
	depot, err := maps.NodeCoordinates(sm.Depot())
	if err != nil {
		return control.MapData{}, err
	}
	return control.MapData{MapInfo: info, Depot: depot, DepotNode: sm.Depot()}, nil
}

// Config returns the live configuration. Changes apply to the next run.
func (s *Service) Config() *config.Config { return s.cfg }

// AwardLog exposes the configured award store.
func (s *Service) AwardLog() awardlog.Store { return s.awards }

// Bus exposes the event bus, mainly for tests and embedding.
func (s *Service) Bus() *eventbus.TypedBus[events.Event] { return s.bus }

// Close releases resources held by the service.
func (s *Service) Close() error {
	if err := s.runner.Stop(); err != nil && !errors.Is(err, sim.ErrNotConfigured) {
		s.log.Warnf("stop runner: %v", err)
	}
	s.bus.Close()
	for _, done := range s.consumers {
		<-done
	}
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	var errs []error
	errs = append(errs, s.awards.Close())
	if c, ok := s.sink.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	tracing.ShutdownWithTimeout(context.Background(), s.shutdownTracing, s.log)
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
