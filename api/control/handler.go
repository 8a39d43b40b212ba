// Package control exposes the simulation control surface over HTTP.
package control

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/kilianp07/cnp-delivery/core/events"
	"github.com/kilianp07/cnp-delivery/core/logger"
	"github.com/kilianp07/cnp-delivery/core/model"
	"github.com/kilianp07/cnp-delivery/core/roadmap"
	"github.com/kilianp07/cnp-delivery/core/sim"
)

// ErrInvalidRequest marks errors caused by the request body.
var ErrInvalidRequest = errors.New("invalid request")

// StartRequest configures a run. Nil fields keep the configured value.
type StartRequest struct {
	NumAgents         *int     `json:"num_agents,omitempty"`
	NumPackages       *int     `json:"num_packages,omitempty"`
	MapRegion         string   `json:"map_region,omitempty"`
	MinBufferFraction *float64 `json:"min_buffer_fraction,omitempty"`
	Seed              *int64   `json:"seed,omitempty"`
}

// MapData describes the region of the configured run.
type MapData struct {
	roadmap.MapInfo
	Depot     model.Coordinates `json:"depot"`
	DepotNode model.NodeID      `json:"depot_node"`
}

// Controller drives simulation runs.
type Controller interface {
	Start(req StartRequest) (sim.Status, error)
	Pause() error
	Resume() error
	Stop() error
	Status() sim.Status
	Latest() (events.Snapshot, bool)
	MapData() (MapData, error)
}

// Options tune the handler.
type Options struct {
	// Token, when set, is required as "Bearer <token>" on every POST.
	Token string
	// CORSOrigin is echoed in Access-Control-Allow-Origin when set.
	CORSOrigin string
	Logger     logger.Logger
}

// NewHandler routes:
//
//	POST /api/simulation/start
//	POST /api/simulation/pause
//	POST /api/simulation/resume
//	POST /api/simulation/stop
//	GET  /api/simulation/status
//	GET  /api/simulation/state
//	GET  /api/map
func NewHandler(c Controller, opts Options) http.Handler {
	h := &handler{ctl: c, opts: opts, log: logger.OrNop(opts.Logger)}
	mux := http.NewServeMux()
	mux.Handle("POST /api/simulation/start", h.authorized(h.start))
	mux.Handle("POST /api/simulation/pause", h.authorized(h.action(c.Pause)))
	mux.Handle("POST /api/simulation/resume", h.authorized(h.action(c.Resume)))
	mux.Handle("POST /api/simulation/stop", h.authorized(h.action(c.Stop)))
	mux.HandleFunc("GET /api/simulation/status", h.status)
	mux.HandleFunc("GET /api/simulation/state", h.state)
	mux.HandleFunc("GET /api/map", h.mapData)
	return h.logged(h.cors(mux))
}

type handler struct {
	ctl  Controller
	opts Options
	log  logger.Logger
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *handler) start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if r.Body != nil {
		dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			h.writeError(w, errors.Join(ErrInvalidRequest, err))
			return
		}
	}
	st, err := h.ctl.Start(req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (h *handler) action(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := fn(); err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h.ctl.Status())
	}
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctl.Status())
}

func (h *handler) state(w http.ResponseWriter, _ *http.Request) {
	snap, ok := h.ctl.Latest()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "simulation not started"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) mapData(w http.ResponseWriter, _ *http.Request) {
	data, err := h.ctl.MapData()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.Errorf("control request failed: %v", err)
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, roadmap.ErrInvalidRegion):
		return http.StatusBadRequest
	case errors.Is(err, sim.ErrAlreadyRunning), errors.Is(err, sim.ErrNotConfigured):
		return http.StatusConflict
	case errors.Is(err, roadmap.ErrNoPath), errors.Is(err, roadmap.ErrUnknownNode):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handler) authorized(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.opts.Token != "" && r.Header.Get("Authorization") != "Bearer "+h.opts.Token {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next(w, r)
	})
}

func (h *handler) cors(next http.Handler) http.Handler {
	if h.opts.CORSOrigin == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", h.opts.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *handler) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Debugw("http request", map[string]any{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.code,
			"duration": time.Since(start).String(),
		})
	})
}
