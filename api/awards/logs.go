package awards

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/kilianp07/cnp-delivery/core/awardlog"
	"github.com/kilianp07/cnp-delivery/core/model"
	"github.com/kilianp07/cnp-delivery/pkg/export"
)

// NewLogHandler returns an HTTP handler exposing the award log via GET /api/awards.
// Requests must include an Authorization header with "Bearer <token>" when token is non-empty.
// Filters: run_id, agent_id, package_id, from_tick, to_tick. format=csv switches the body to CSV.
func NewLogHandler(store awardlog.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		params := r.URL.Query()
		q := awardlog.Query{RunID: params.Get("run_id")}
		if v, ok := intParam(w, params.Get("agent_id"), "agent_id"); !ok {
			return
		} else if v > 0 {
			id := model.AgentID(v)
			q.AgentID = &id
		}
		if v, ok := intParam(w, params.Get("package_id"), "package_id"); !ok {
			return
		} else if v > 0 {
			id := model.PackageID(v)
			q.PackageID = &id
		}
		var ok bool
		if q.FromTick, ok = intParam(w, params.Get("from_tick"), "from_tick"); !ok {
			return
		}
		if q.ToTick, ok = intParam(w, params.Get("to_tick"), "to_tick"); !ok {
			return
		}

		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if params.Get("format") == "csv" {
			w.Header().Set("Content-Type", "text/csv")
			if err := export.WriteCSV(w, records); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if records == nil {
			records = []awardlog.Record{}
		}
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// intParam parses an optional non-negative integer parameter and answers
// 400 when it is malformed.
func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return v, true
}
