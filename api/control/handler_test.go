package control

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/cnp-delivery/core/events"
	"github.com/kilianp07/cnp-delivery/core/model"
	"github.com/kilianp07/cnp-delivery/core/roadmap"
	"github.com/kilianp07/cnp-delivery/core/sim"
)

type fakeController struct {
	started  []StartRequest
	startErr error
	pauseErr error
	calls    []string
	status   sim.Status
	snap     *events.Snapshot
	mapData  MapData
	mapErr   error
}

func (f *fakeController) Start(req StartRequest) (sim.Status, error) {
	f.started = append(f.started, req)
	if f.startErr != nil {
		return sim.Status{}, f.startErr
	}
	f.status = sim.Status{RunID: "r1", State: sim.StateRunning, Running: true}
	return f.status, nil
}
func (f *fakeController) Pause() error {
	f.calls = append(f.calls, "pause")
	return f.pauseErr
}
func (f *fakeController) Resume() error {
	f.calls = append(f.calls, "resume")
	return nil
}
func (f *fakeController) Stop() error {
	f.calls = append(f.calls, "stop")
	return nil
}
func (f *fakeController) Status() sim.Status { return f.status }
func (f *fakeController) Latest() (events.Snapshot, bool) {
	if f.snap == nil {
		return events.Snapshot{}, false
	}
	return *f.snap, true
}
func (f *fakeController) MapData() (MapData, error) { return f.mapData, f.mapErr }

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestStart(t *testing.T) {
	ctl := &fakeController{}
	h := NewHandler(ctl, Options{})

	rr := do(t, h, http.MethodPost, "/api/simulation/start", `{"num_agents":4,"num_packages":10,"map_region":"grid:5x5","min_buffer_fraction":0.2}`)
	require.Equal(t, http.StatusAccepted, rr.Code)

	require.Len(t, ctl.started, 1)
	req := ctl.started[0]
	require.NotNil(t, req.NumAgents)
	assert.Equal(t, 4, *req.NumAgents)
	assert.Equal(t, 10, *req.NumPackages)
	assert.Equal(t, "grid:5x5", req.MapRegion)
	assert.Equal(t, 0.2, *req.MinBufferFraction)
	assert.Nil(t, req.Seed)

	var st sim.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, "r1", st.RunID)
	assert.True(t, st.Running)
}

func TestStartEmptyBody(t *testing.T) {
	ctl := &fakeController{}
	rr := do(t, NewHandler(ctl, Options{}), http.MethodPost, "/api/simulation/start", "")
	assert.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, ctl.started, 1)
	assert.Nil(t, ctl.started[0].NumAgents)
}

func TestStartErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		code int
	}{
		{"malformed json", `{"num_agents":`, nil, http.StatusBadRequest},
		{"unknown field", `{"agents":3}`, nil, http.StatusBadRequest},
		{"already running", `{}`, sim.ErrAlreadyRunning, http.StatusConflict},
		{"bad region", `{}`, fmt.Errorf("open map: %w", roadmap.ErrInvalidRegion), http.StatusBadRequest},
		{"unreachable", `{}`, fmt.Errorf("package 3: %w", roadmap.ErrNoPath), http.StatusUnprocessableEntity},
		{"internal", `{}`, fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := &fakeController{startErr: tt.err}
			rr := do(t, NewHandler(ctl, Options{}), http.MethodPost, "/api/simulation/start", tt.body)
			assert.Equal(t, tt.code, rr.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestActions(t *testing.T) {
	ctl := &fakeController{}
	h := NewHandler(ctl, Options{})
	for _, path := range []string{"pause", "resume", "stop"} {
		rr := do(t, h, http.MethodPost, "/api/simulation/"+path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
	assert.Equal(t, []string{"pause", "resume", "stop"}, ctl.calls)

	ctl.pauseErr = sim.ErrNotConfigured
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/simulation/pause", "").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewHandler(&fakeController{}, Options{})
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/simulation/start", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodPost, "/api/simulation/status", "").Code)
}

func TestStatusAndState(t *testing.T) {
	ctl := &fakeController{status: sim.Status{State: sim.StateIdle}}
	h := NewHandler(ctl, Options{})

	rr := do(t, h, http.MethodGet, "/api/simulation/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"state":"idle","is_running":false,"is_paused":false,"time_step":0,"completed":0,"total":0}`, rr.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/simulation/state", "").Code)

	ctl.snap = &events.Snapshot{RunID: "r1", Tick: 4, Completed: 2, Total: 5}
	rr = do(t, h, http.MethodGet, "/api/simulation/state", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var snap events.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 4, snap.Tick)
	assert.Equal(t, 2, snap.Completed)
}

func TestMapData(t *testing.T) {
	ctl := &fakeController{mapData: MapData{
		MapInfo:   roadmap.MapInfo{Center: model.Coordinates{Lat: 21, Lng: 105}, Nodes: 9},
		Depot:     model.Coordinates{Lat: 21.001, Lng: 105.002},
		DepotNode: 4,
	}}
	rr := do(t, NewHandler(ctl, Options{}), http.MethodGet, "/api/map", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Contains(t, out, "center")
	assert.Contains(t, out, "bounds")
	assert.EqualValues(t, 9, out["nodes"])
	assert.EqualValues(t, 4, out["depot_node"])

	ctl.mapErr = sim.ErrNotConfigured
	assert.Equal(t, http.StatusConflict, do(t, NewHandler(ctl, Options{}), http.MethodGet, "/api/map", "").Code)
}

func TestTokenRequiredOnPost(t *testing.T) {
	ctl := &fakeController{}
	h := NewHandler(ctl, Options{Token: "s3cret"})

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/simulation/stop", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/simulation/stop", "", "Authorization", "Bearer s3cret").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/simulation/status", "").Code)
	assert.Equal(t, []string{"stop"}, ctl.calls)
}

func TestCORS(t *testing.T) {
	h := NewHandler(&fakeController{}, Options{CORSOrigin: "http://localhost:3000"})
	rr := do(t, h, http.MethodOptions, "/api/simulation/start", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}
