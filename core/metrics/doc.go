// Package metrics defines the sink interfaces for simulation metrics. The
// base MetricsSink records awards; optional recorder interfaces cover ticks,
// agent states, deliveries and run completion. Sinks are built from
// configuration through a factory registry and combined with NewMultiSink.
package metrics
