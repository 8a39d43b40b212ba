package metrics

import (
	"fmt"

	"github.com/kilianp07/cnp-delivery/core/factory"
)

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusAddr enables the /metrics endpoint when set, e.g. ":9090".
	PrometheusAddr string `json:"prometheus_addr"`
	// Async feeds the sinks from the event bus instead of the tick loop.
	Async bool `json:"async"`
}

// Validate checks that every configured sink type is registered.
func (c Config) Validate() error {
	for _, s := range c.Sinks {
		if !sinkRegistry.Has(s.Type) {
			return fmt.Errorf("metrics: unknown sink type %q", s.Type)
		}
	}
	return nil
}
