package metrics

import (
	"fmt"
	"io"

	"github.com/kilianp07/cnp-delivery/core/factory"
)

// sinkRegistry maps the "type" of a metrics.sinks entry to its constructor.
// infra/metrics registers nop, prometheus and influx at init.
var sinkRegistry = factory.NewRegistry[MetricsSink]()

// RegisterMetricsSink adds a metrics sink factory identified by name.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkRegistry.Register(name, f)
}

// NewMetricsSink builds the sinks that record awards, deliveries and ticks
// of a run. No entry yields a NopSink and several are fanned out through a
// MultiSink. When one entry fails, sinks already built are closed.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	sinks := make([]MetricsSink, 0, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			for _, built := range sinks {
				if cl, ok := built.(io.Closer); ok {
					_ = cl.Close()
				}
			}
			return nil, fmt.Errorf("metrics sink %d (%s): %w", i, c.Type, err)
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return NewMultiSink(sinks...), nil
}
