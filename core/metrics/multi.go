package metrics

import (
	"errors"
	"io"
)

// MultiSink fans events out to multiple sinks. Sinks that do not implement an
// optional recorder are skipped for that event.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAward forwards to every sink and joins their errors.
func (m *MultiSink) RecordAward(ev AwardEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordAward(ev))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordTick(ev TickEvent) error {
	return fanout(m.Sinks, func(r TickRecorder) error { return r.RecordTick(ev) })
}

func (m *MultiSink) RecordAgentState(ev AgentStateEvent) error {
	return fanout(m.Sinks, func(r AgentStateRecorder) error { return r.RecordAgentState(ev) })
}

func (m *MultiSink) RecordDelivery(ev DeliveryEvent) error {
	return fanout(m.Sinks, func(r DeliveryRecorder) error { return r.RecordDelivery(ev) })
}

func (m *MultiSink) RecordRun(ev RunEvent) error {
	return fanout(m.Sinks, func(r RunRecorder) error { return r.RecordRun(ev) })
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() error {
	return fanout(m.Sinks, func(c io.Closer) error { return c.Close() })
}

func fanout[R any](sinks []MetricsSink, call func(R) error) error {
	var errs []error
	for _, s := range sinks {
		if r, ok := s.(R); ok {
			errs = append(errs, call(r))
		}
	}
	return errors.Join(errs...)
}
