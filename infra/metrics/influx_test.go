package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/cnp-delivery/core/metrics"
	"github.com/kilianp07/cnp-delivery/core/model"
)

type lineRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (l *lineRecorder) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		l.mu.Lock()
		l.bodies = append(l.bodies, strings.TrimSpace(string(b)))
		l.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (l *lineRecorder) lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.bodies...)
}

func line(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSink_RecordAward(t *testing.T) {
	var rec lineRecorder
	sink := NewInfluxSink(rec.server(t).URL, "token", "org", "bucket")
	now := time.Now()

	require.NoError(t, sink.RecordAward(coremetrics.AwardEvent{
		RunID: "r1", Tick: 3, PackageID: 7, AgentID: 2, Cost: 1234.56789, Bidders: 3, Feasible: 2, Time: now,
	}))

	p := write.NewPointWithMeasurement("cnp_award").
		AddTag("run_id", "r1").
		AddTag("agent_id", "2").
		AddTag("package_id", "7").
		AddField("tick", 3).
		AddField("cost", 1234.568).
		AddField("bidders", 3).
		AddField("feasible", 2).
		SetTime(now)
	assert.Equal(t, []string{line(p)}, rec.lines())
}

func TestInfluxSink_RecordAgentState(t *testing.T) {
	var rec lineRecorder
	sink := NewInfluxSink(rec.server(t).URL+"/api/v2/write", "token", "org", "bucket")
	now := time.Now()

	require.NoError(t, sink.RecordAgentState(coremetrics.AgentStateEvent{
		RunID: "r1", Tick: 5, AgentID: 1, Status: model.AgentBusy,
		Battery: 87.5, Max: 100, Load: 2, Capacity: 5, Time: now,
	}))

	p := write.NewPointWithMeasurement("cnp_agent_state").
		AddTag("run_id", "r1").
		AddTag("agent_id", "1").
		AddTag("status", "busy").
		AddField("tick", 5).
		AddField("battery", 87.5).
		AddField("max_battery", 100.0).
		AddField("load", 2).
		AddField("capacity", 5).
		SetTime(now)
	assert.Equal(t, []string{line(p)}, rec.lines())
}

func TestInfluxSink_RecordRun(t *testing.T) {
	var rec lineRecorder
	sink := NewInfluxSink(rec.server(t).URL, "token", "org", "bucket")
	now := time.Now()

	require.NoError(t, sink.RecordRun(coremetrics.RunEvent{RunID: "r1", Ticks: 40, Delivered: 3, Total: 4, Err: "tick limit", Time: now}))
	require.NoError(t, sink.RecordDelivery(coremetrics.DeliveryEvent{RunID: "r1", Tick: 9, PackageID: 1, AgentID: 1, Ticks: 8, Time: now}))

	run := write.NewPointWithMeasurement("cnp_run").
		AddTag("run_id", "r1").
		AddField("ticks", 40).
		AddField("delivered", 3).
		AddField("total", 4).
		AddField("error", "tick limit").
		SetTime(now)
	del := write.NewPointWithMeasurement("cnp_delivery").
		AddTag("run_id", "r1").
		AddTag("agent_id", "1").
		AddTag("package_id", "1").
		AddField("tick", 9).
		AddField("ticks", 8).
		SetTime(now)
	assert.Equal(t, []string{line(run), line(del)}, rec.lines())
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	_, isInflux := sink.(*InfluxSink)
	assert.False(t, isInflux, "expected NopSink on failing health check")
	assert.True(t, called, "health endpoint not called")
}
