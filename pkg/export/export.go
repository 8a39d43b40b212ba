package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/cnp-delivery/core/awardlog"
)

// WriteJSON writes the award records to w as a JSON array.
func WriteJSON(w io.Writer, recs []awardlog.Record) error {
	if recs == nil {
		recs = []awardlog.Record{}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(recs)
}

// WriteCSV writes one row per award. Bids are summarised as the number of
// bidders and how many of them were feasible.
func WriteCSV(w io.Writer, recs []awardlog.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"run_id", "tick", "package_id", "agent_id", "cost_m", "bidders", "feasible", "timestamp"}); err != nil {
		return err
	}
	for _, r := range recs {
		feasible := 0
		for _, b := range r.Bids {
			if b.Feasible {
				feasible++
			}
		}
		rec := []string{
			r.RunID,
			strconv.Itoa(r.Tick),
			strconv.Itoa(int(r.PackageID)),
			strconv.Itoa(int(r.AgentID)),
			strconv.FormatFloat(r.Cost, 'f', -1, 64),
			strconv.Itoa(len(r.Bids)),
			strconv.Itoa(feasible),
			r.Timestamp.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
