package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/cnp-delivery/core/awardlog"
	"github.com/kilianp07/cnp-delivery/core/cnp"
	"github.com/kilianp07/cnp-delivery/core/events"
	coremon "github.com/kilianp07/cnp-delivery/core/monitoring"
	"github.com/kilianp07/cnp-delivery/core/model"
	"github.com/kilianp07/cnp-delivery/internal/eventbus"
)

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type stubPublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (s *stubPublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, message{topic, qos, retained, payload})
	return s.err
}

func (s *stubPublisher) messages() []message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message(nil), s.msgs...)
}

func TestSnapshotPublisherTopics(t *testing.T) {
	pub := &stubPublisher{}
	p := NewSnapshotPublisher(pub, Config{TopicPrefix: "sim", RetainSnapshot: true, QoS: map[string]byte{"snapshot": 1}}, nil)

	p.Handle(events.TickEvent{Snapshot: events.Snapshot{RunID: "r1", Tick: 3, Completed: 1, Total: 2}})
	p.Handle(events.AwardEvent{RunID: "r1", Award: cnp.Award{
		Tick: 3, PackageID: 2, AgentID: 1, Cost: 500,
		Bids: []model.Bid{{AgentID: 1, Feasible: true, Cost: 500}, model.Refuse(2, "energy")},
	}})
	p.Handle(events.CompletedEvent{RunID: "r1", Ticks: 12, Delivered: 2, Total: 2})

	msgs := pub.messages()
	require.Len(t, msgs, 3)

	assert.Equal(t, "sim/snapshot", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)
	assert.True(t, msgs[0].retained)
	var snap events.Snapshot
	require.NoError(t, json.Unmarshal(msgs[0].payload, &snap))
	assert.Equal(t, 3, snap.Tick)
	assert.Equal(t, 1, snap.Completed)

	assert.Equal(t, "sim/award", msgs[1].topic)
	var rec awardlog.Record
	require.NoError(t, json.Unmarshal(msgs[1].payload, &rec))
	assert.Equal(t, model.AgentID(1), rec.AgentID)
	require.Len(t, rec.Bids, 2)
	assert.Nil(t, rec.Bids[1].Cost)

	assert.Equal(t, "sim/completed", msgs[2].topic)
	assert.True(t, msgs[2].retained)
	assert.JSONEq(t, `{"run_id":"r1","total_steps":12,"completed":2,"total":2}`, string(msgs[2].payload))
}

func TestSnapshotPublisherRate(t *testing.T) {
	pub := &stubPublisher{}
	p := NewSnapshotPublisher(pub, Config{PublishEvery: 5}, nil)
	for tick := 1; tick <= 12; tick++ {
		p.Handle(events.TickEvent{Snapshot: events.Snapshot{Tick: tick, Finished: tick == 12}})
	}
	var ticks []int
	for _, m := range pub.messages() {
		var snap events.Snapshot
		require.NoError(t, json.Unmarshal(m.payload, &snap))
		ticks = append(ticks, snap.Tick)
	}
	assert.Equal(t, []int{5, 10, 12}, ticks)
}

type captureMonitor struct {
	mu   sync.Mutex
	tags []map[string]string
}

func (c *captureMonitor) CaptureException(_ error, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags = append(c.tags, tags)
}
func (c *captureMonitor) CapturePanic(any)    {}
func (c *captureMonitor) Flush(time.Duration) {}

func TestSnapshotPublisherErrorCaptured(t *testing.T) {
	mon := &captureMonitor{}
	coremon.Init(mon)
	defer coremon.Init(coremon.NopMonitor{})

	p := NewSnapshotPublisher(&stubPublisher{err: errors.New("broker down")}, Config{}, nil)
	p.Handle(events.CompletedEvent{RunID: "r9"})

	require.Len(t, mon.tags, 1)
	assert.Equal(t, "mqtt", mon.tags[0]["module"])
	assert.Equal(t, "r9", mon.tags[0]["run_id"])
	assert.Equal(t, "cnp/completed", mon.tags[0]["topic"])
}

func TestSnapshotPublisherStart(t *testing.T) {
	bus := eventbus.NewTyped[events.Event]()
	pub := &stubPublisher{}
	p := NewSnapshotPublisher(pub, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := p.Start(ctx, bus)

	bus.Publish(events.TickEvent{Snapshot: events.Snapshot{RunID: "r", Tick: 1}})
	require.Eventually(t, func() bool { return len(pub.messages()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
	assert.Equal(t, 0, bus.Subscribers())
}
