package metrics

import (
	"strconv"

	coremetrics "github.com/kilianp07/cnp-delivery/core/metrics"
	"github.com/kilianp07/cnp-delivery/core/model"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records simulation events in Prometheus metrics.
type PromSink struct {
	awards        *prometheus.CounterVec
	awardCost     prometheus.Histogram
	bidders       prometheus.Histogram
	deliveries    *prometheus.CounterVec
	deliveryTicks prometheus.Histogram
	tick          prometheus.Gauge
	packages      *prometheus.GaugeVec
	tickDuration  prometheus.Histogram
	battery       *prometheus.GaugeVec
	load          *prometheus.GaugeVec
	runs          *prometheus.CounterVec
}

// NewPromSink registers simulation metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		awards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cnp_awards_total",
			Help: "Tasks awarded by the depot",
		}, []string{"agent_id"}),
		awardCost: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cnp_award_cost_meters",
			Help:    "Winning bid cost in meters",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10),
		}),
		bidders: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cnp_feasible_bids",
			Help:    "Feasible bids received per awarded task",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cnp_deliveries_total",
			Help: "Packages delivered",
		}, []string{"agent_id"}),
		deliveryTicks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cnp_delivery_ticks",
			Help:    "Ticks between award and delivery",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		tick: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cnp_tick",
			Help: "Last completed tick",
		}),
		packages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cnp_packages",
			Help: "Packages per status after the last tick",
		}, []string{"status"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cnp_tick_duration_seconds",
			Help:    "Wall time spent computing one tick",
			Buckets: prometheus.DefBuckets,
		}),
		battery: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cnp_agent_battery_ratio",
			Help: "Battery level as a fraction of capacity",
		}, []string{"agent_id"}),
		load: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cnp_agent_load",
			Help: "Packages held by the agent",
		}, []string{"agent_id"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cnp_runs_total",
			Help: "Finished simulation runs",
		}, []string{"outcome"}),
	}

	var err error
	if s.awards, err = register(reg, s.awards); err != nil {
		return nil, err
	}
	if s.awardCost, err = register(reg, s.awardCost); err != nil {
		return nil, err
	}
	if s.bidders, err = register(reg, s.bidders); err != nil {
		return nil, err
	}
	if s.deliveries, err = register(reg, s.deliveries); err != nil {
		return nil, err
	}
	if s.deliveryTicks, err = register(reg, s.deliveryTicks); err != nil {
		return nil, err
	}
	if s.tick, err = register(reg, s.tick); err != nil {
		return nil, err
	}
	if s.packages, err = register(reg, s.packages); err != nil {
		return nil, err
	}
	if s.tickDuration, err = register(reg, s.tickDuration); err != nil {
		return nil, err
	}
	if s.battery, err = register(reg, s.battery); err != nil {
		return nil, err
	}
	if s.load, err = register(reg, s.load); err != nil {
		return nil, err
	}
	if s.runs, err = register(reg, s.runs); err != nil {
		return nil, err
	}
	return s, nil
}

// register adds c to reg, reusing the collector already registered under the
// same descriptor so that several sinks can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return c, err
		}
		existing, ok := are.ExistingCollector.(C)
		if !ok {
			return c, err
		}
		return existing, nil
	}
	return c, nil
}

// RecordAward counts the award and observes its cost.
func (s *PromSink) RecordAward(ev coremetrics.AwardEvent) error {
	s.awards.WithLabelValues(agentLabel(ev.AgentID)).Inc()
	s.awardCost.Observe(ev.Cost)
	s.bidders.Observe(float64(ev.Feasible))
	return nil
}

// RecordDelivery counts the delivery and its latency in ticks.
func (s *PromSink) RecordDelivery(ev coremetrics.DeliveryEvent) error {
	s.deliveries.WithLabelValues(agentLabel(ev.AgentID)).Inc()
	s.deliveryTicks.Observe(float64(ev.Ticks))
	return nil
}

// RecordTick updates the tick and package gauges.
func (s *PromSink) RecordTick(ev coremetrics.TickEvent) error {
	s.tick.Set(float64(ev.Tick))
	s.packages.WithLabelValues("pending").Set(float64(ev.Pending))
	s.packages.WithLabelValues("assigned").Set(float64(ev.Assigned))
	s.packages.WithLabelValues("in_transit").Set(float64(ev.InTransit))
	s.packages.WithLabelValues("delivered").Set(float64(ev.Delivered))
	s.tickDuration.Observe(ev.Duration.Seconds())
	return nil
}

// RecordAgentState updates the per-agent gauges.
func (s *PromSink) RecordAgentState(ev coremetrics.AgentStateEvent) error {
	id := agentLabel(ev.AgentID)
	if ev.Max > 0 {
		s.battery.WithLabelValues(id).Set(ev.Battery / ev.Max)
	}
	s.load.WithLabelValues(id).Set(float64(ev.Load))
	return nil
}

// RecordRun counts a finished run by outcome.
func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	outcome := "completed"
	if ev.Err != "" {
		outcome = "halted"
	}
	s.runs.WithLabelValues(outcome).Inc()
	return nil
}

func agentLabel(id model.AgentID) string {
	return strconv.Itoa(int(id))
}
