package model

import "math"

// NodeID identifies a node of the road graph.
type NodeID int64

// AgentID identifies a delivery agent. Lower ids win cost ties.
type AgentID int

// Task is the call for proposals broadcast for one package.
type Task struct {
	PackageID PackageID
	Pickup    NodeID
	Dropoff   NodeID
}

// Bid is an agent's answer to a Task. It only lives for one round.
type Bid struct {
	AgentID  AgentID
	Feasible bool
	Cost     float64
	// Reason explains a refusal.
	Reason string
}

// Refuse builds an infeasible bid.
func Refuse(agent AgentID, reason string) Bid {
	return Bid{AgentID: agent, Feasible: false, Cost: math.Inf(1), Reason: reason}
}

// Better reports whether b should win over o: lower cost, then lower agent id.
func (b Bid) Better(o Bid) bool {
	if b.Cost != o.Cost {
		return b.Cost < o.Cost
	}
	return b.AgentID < o.AgentID
}
