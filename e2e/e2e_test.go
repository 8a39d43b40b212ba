//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/cnp-delivery/app"
	"github.com/kilianp07/cnp-delivery/config"
	"github.com/kilianp07/cnp-delivery/core/events"
	"github.com/kilianp07/cnp-delivery/core/factory"
	coremqtt "github.com/kilianp07/cnp-delivery/core/mqtt"
)

const (
	influxOrg    = "e2e_org"
	influxBucket = "e2e_bucket"
	influxToken  = "e2e-token"
)

// startInflux starts an InfluxDB 2.7 container initialised with the test
// organisation, bucket and token.
func startInflux(ctx context.Context, t *testing.T) string {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "influxdb:2.7",
		ExposedPorts: []string{"8086/tcp"},
		Env: map[string]string{
			"DOCKER_INFLUXDB_INIT_MODE":        "setup",
			"DOCKER_INFLUXDB_INIT_USERNAME":    "e2e",
			"DOCKER_INFLUXDB_INIT_PASSWORD":    "e2e-password",
			"DOCKER_INFLUXDB_INIT_ORG":         influxOrg,
			"DOCKER_INFLUXDB_INIT_BUCKET":      influxBucket,
			"DOCKER_INFLUXDB_INIT_ADMIN_TOKEN": influxToken,
		},
		WaitingFor: wait.ForHTTP("/health").WithPort("8086/tcp").WithStartupTimeout(60 * time.Second),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start influx container: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })
	host, _ := cont.Host(ctx)
	port, _ := cont.MappedPort(ctx, "8086")
	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

// startMosquitto spins up a Mosquitto broker that accepts anonymous clients.
func startMosquitto(ctx context.Context, t *testing.T) string {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start mosquitto: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })
	host, _ := cont.Host(ctx)
	port, _ := cont.MappedPort(ctx, "1883")
	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

type completed struct {
	RunID      string `json:"run_id"`
	TotalSteps int    `json:"total_steps"`
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
}

func TestRunMirroredToBrokerAndInflux(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skipf("docker not installed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	influxURL := startInflux(ctx, t)
	broker := startMosquitto(ctx, t)

	topics := coremqtt.NewTopics("e2e")
	snapshots := make(chan events.Snapshot, 1024)
	done := make(chan completed, 1)

	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("e2e-observer")
	observer := paho.NewClient(opts)
	tok := observer.Connect()
	require.True(t, tok.WaitTimeout(10*time.Second))
	require.NoError(t, tok.Error())
	defer observer.Disconnect(250)

	sub := observer.SubscribeMultiple(map[string]byte{topics.Snapshot: 1, topics.Completed: 1}, func(_ paho.Client, m paho.Message) {
		switch m.Topic() {
		case topics.Snapshot:
			var snap events.Snapshot
			if json.Unmarshal(m.Payload(), &snap) == nil {
				snapshots <- snap
			}
		case topics.Completed:
			var c completed
			if json.Unmarshal(m.Payload(), &c) == nil {
				done <- c
			}
		}
	})
	require.True(t, sub.WaitTimeout(10*time.Second))
	require.NoError(t, sub.Error())

	cfg := config.Default()
	cfg.Simulation.NumAgents = 2
	cfg.Simulation.NumPackages = 5
	cfg.Simulation.Seed = 3
	cfg.Map.Region = "grid:5x5"
	cfg.MQTT.Enabled = true
	cfg.MQTT.Broker = broker
	cfg.MQTT.TopicPrefix = "e2e"
	cfg.Metrics.Sinks = []factory.ModuleConfig{{
		Type: "influx",
		Conf: map[string]any{"url": influxURL, "token": influxToken, "org": influxOrg, "bucket": influxBucket},
	}}
	require.NoError(t, cfg.Validate())

	svc, err := app.New(cfg)
	require.NoError(t, err)
	res, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Close())
	assert.Equal(t, 5, res.Delivered)

	select {
	case c := <-done:
		assert.Equal(t, res.RunID, c.RunID)
		assert.Equal(t, res.Ticks, c.TotalSteps)
		assert.Equal(t, 5, c.Completed)
	case <-time.After(10 * time.Second):
		t.Fatal("no completion message on the broker")
	}

	require.NotEmpty(t, snapshots)
	var last events.Snapshot
	for len(snapshots) > 0 {
		last = <-snapshots
	}
	assert.True(t, last.Finished)
	assert.Len(t, last.Agents, 2)

	cli := NewInfluxClient(influxURL, influxOrg, influxBucket, influxToken)
	defer cli.Close()
	require.NoError(t, cli.SetupBucket(ctx))
	n, err := cli.CountPoints(ctx, "cnp_tick")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, res.Ticks)
}
