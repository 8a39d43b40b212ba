package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/cnp-delivery/core/awardlog"
)

func sampleRecords() []awardlog.Record {
	cost := 1500.0
	return []awardlog.Record{{
		ID:        "a1",
		RunID:     "run-1",
		Tick:      3,
		PackageID: 7,
		AgentID:   2,
		Cost:      1500,
		Bids: []awardlog.BidRecord{
			{AgentID: 1, Feasible: false, Reason: "capacity"},
			{AgentID: 2, Feasible: true, Cost: &cost},
		},
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords()))
	assert.Equal(t,
		"run_id,tick,package_id,agent_id,cost_m,bidders,feasible,timestamp\n"+
			"run-1,3,7,2,1500,2,1,2024-05-01T12:00:00Z\n",
		buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleRecords()))
	var got []awardlog.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Nil(t, got[0].Bids[0].Cost)
}

func TestWriteJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}
