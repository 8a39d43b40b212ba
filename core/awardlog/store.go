package awardlog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/cnp-delivery/core/cnp"
	"github.com/kilianp07/cnp-delivery/core/model"
)

// Record captures one award and the bids it was decided on.
type Record struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	Tick      int             `json:"tick"`
	PackageID model.PackageID `json:"package_id"`
	AgentID   model.AgentID   `json:"agent_id"`
	Cost      float64         `json:"cost"`
	Bids      []BidRecord     `json:"bids"`
	Timestamp time.Time       `json:"timestamp"`
}

// BidRecord is a bid as persisted. Refusals carry no cost since their cost
// is infinite.
type BidRecord struct {
	AgentID  model.AgentID `json:"agent_id"`
	Feasible bool          `json:"feasible"`
	Cost     *float64      `json:"cost,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

// FromAward converts an award into a new record.
func FromAward(runID string, a cnp.Award, ts time.Time) Record {
	bids := make([]BidRecord, len(a.Bids))
	for i, b := range a.Bids {
		bids[i] = BidRecord{AgentID: b.AgentID, Feasible: b.Feasible, Reason: b.Reason}
		if b.Feasible {
			cost := b.Cost
			bids[i].Cost = &cost
		}
	}
	return Record{
		ID:        uuid.NewString(),
		RunID:     runID,
		Tick:      a.Tick,
		PackageID: a.PackageID,
		AgentID:   a.AgentID,
		Cost:      a.Cost,
		Bids:      bids,
		Timestamp: ts,
	}
}

// Query defines filters for retrieving records. Zero values match anything.
type Query struct {
	RunID     string
	AgentID   *model.AgentID
	PackageID *model.PackageID
	FromTick  int
	ToTick    int
}

func (q Query) match(r Record) bool {
	if q.RunID != "" && r.RunID != q.RunID {
		return false
	}
	if q.AgentID != nil && r.AgentID != *q.AgentID {
		return false
	}
	if q.PackageID != nil && r.PackageID != *q.PackageID {
		return false
	}
	if q.FromTick > 0 && r.Tick < q.FromTick {
		return false
	}
	if q.ToTick > 0 && r.Tick > q.ToTick {
		return false
	}
	return true
}

// Store persists award records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }
