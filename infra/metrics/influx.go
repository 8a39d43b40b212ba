package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/cnp-delivery/core/metrics"
	"github.com/kilianp07/cnp-delivery/infra/logger"
)

// InfluxSink writes simulation events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

// RecordAward writes one cnp_award point.
func (s *InfluxSink) RecordAward(ev coremetrics.AwardEvent) error {
	p := write.NewPointWithMeasurement("cnp_award").
		AddTag("run_id", ev.RunID).
		AddTag("agent_id", strconv.Itoa(int(ev.AgentID))).
		AddTag("package_id", strconv.Itoa(int(ev.PackageID))).
		AddField("tick", ev.Tick).
		AddField("cost", round3(ev.Cost)).
		AddField("bidders", ev.Bidders).
		AddField("feasible", ev.Feasible).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordTick writes the package counters of one tick.
func (s *InfluxSink) RecordTick(ev coremetrics.TickEvent) error {
	p := write.NewPointWithMeasurement("cnp_tick").
		AddTag("run_id", ev.RunID).
		AddField("tick", ev.Tick).
		AddField("pending", ev.Pending).
		AddField("assigned", ev.Assigned).
		AddField("in_transit", ev.InTransit).
		AddField("delivered", ev.Delivered).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordAgentState writes a snapshot of one agent.
func (s *InfluxSink) RecordAgentState(ev coremetrics.AgentStateEvent) error {
	p := write.NewPointWithMeasurement("cnp_agent_state").
		AddTag("run_id", ev.RunID).
		AddTag("agent_id", strconv.Itoa(int(ev.AgentID))).
		AddTag("status", ev.Status.String()).
		AddField("tick", ev.Tick).
		AddField("battery", round3(ev.Battery)).
		AddField("max_battery", round3(ev.Max)).
		AddField("load", ev.Load).
		AddField("capacity", ev.Capacity).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordDelivery writes one cnp_delivery point.
func (s *InfluxSink) RecordDelivery(ev coremetrics.DeliveryEvent) error {
	p := write.NewPointWithMeasurement("cnp_delivery").
		AddTag("run_id", ev.RunID).
		AddTag("agent_id", strconv.Itoa(int(ev.AgentID))).
		AddTag("package_id", strconv.Itoa(int(ev.PackageID))).
		AddField("tick", ev.Tick).
		AddField("ticks", ev.Ticks).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordRun writes the outcome of a finished run.
func (s *InfluxSink) RecordRun(ev coremetrics.RunEvent) error {
	p := write.NewPointWithMeasurement("cnp_run").
		AddTag("run_id", ev.RunID).
		AddField("ticks", ev.Ticks).
		AddField("delivered", ev.Delivered).
		AddField("total", ev.Total)
	if ev.Err != "" {
		p = p.AddField("error", ev.Err)
	}
	return s.write(p.SetTime(ev.Time))
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
