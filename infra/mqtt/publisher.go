package mqtt

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/kilianp07/cnp-delivery/core/awardlog"
	"github.com/kilianp07/cnp-delivery/core/events"
	"github.com/kilianp07/cnp-delivery/core/logger"
	coremon "github.com/kilianp07/cnp-delivery/core/monitoring"
	coremqtt "github.com/kilianp07/cnp-delivery/core/mqtt"
	"github.com/kilianp07/cnp-delivery/internal/eventbus"
)

// SnapshotPublisher mirrors simulation events on MQTT topics:
//
//	<prefix>/snapshot   one JSON snapshot per published tick
//	<prefix>/award      one JSON award record per awarded task
//	<prefix>/completed  the final summary of a run
type SnapshotPublisher struct {
	pub    coremqtt.Publisher
	topics coremqtt.Topics
	cfg    Config
	log    logger.Logger
	now    func() time.Time
}

// NewSnapshotPublisher wraps pub. cfg supplies the topic prefix, QoS, retain
// flag and publish rate.
func NewSnapshotPublisher(pub coremqtt.Publisher, cfg Config, log logger.Logger) *SnapshotPublisher {
	return &SnapshotPublisher{
		pub:    pub,
		topics: coremqtt.NewTopics(cfg.TopicPrefix),
		cfg:    cfg,
		log:    logger.OrNop(log),
		now:    time.Now,
	}
}

// Start subscribes to bus and publishes until ctx is canceled or the bus is
// closed. The returned channel is closed when the publisher has exited.
func (p *SnapshotPublisher) Start(ctx context.Context, bus *eventbus.TypedBus[events.Event]) <-chan struct{} {
	sub := bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				p.Handle(ev)
			}
		}
	}()
	return done
}

type completedPayload struct {
	RunID     string `json:"run_id"`
	Ticks     int    `json:"total_steps"`
	Delivered int    `json:"completed"`
	Total     int    `json:"total"`
	Error     string `json:"error,omitempty"`
}

// Handle publishes a single event.
func (p *SnapshotPublisher) Handle(ev events.Event) {
	switch e := ev.(type) {
	case events.TickEvent:
		every := p.cfg.PublishEvery
		if every > 1 && e.Snapshot.Tick%every != 0 && !e.Snapshot.Finished {
			return
		}
		p.send(p.topics.Snapshot, "snapshot", p.cfg.RetainSnapshot, e.Snapshot, e)
	case events.AwardEvent:
		p.send(p.topics.Award, "award", false, awardlog.FromAward(e.RunID, e.Award, p.now()), e)
	case events.CompletedEvent:
		p.send(p.topics.Completed, "completed", true, completedPayload{
			RunID: e.RunID, Ticks: e.Ticks, Delivered: e.Delivered, Total: e.Total, Error: e.Err,
		}, e)
	}
}

func (p *SnapshotPublisher) send(topic, kind string, retained bool, v any, ev events.Event) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.log.Errorf("encode %s: %v", kind, err)
		return
	}
	if err := p.pub.Publish(topic, p.cfg.qos(kind), retained, payload); err != nil {
		p.log.Warnf("publish %s for run %s: %v", kind, ev.EventRunID(), err)
		coremon.CaptureException(err, map[string]string{
			"module": "mqtt",
			"topic":  topic,
			"run_id": ev.EventRunID(),
			"kind":   kind,
			"size":   strconv.Itoa(len(payload)),
		})
	}
}
