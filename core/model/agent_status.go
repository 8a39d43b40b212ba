package model

import "fmt"

// AgentStatus is the state of a delivery agent.
//
//	idle       at rest, empty load
//	bidding    at the depot holding packages, still collecting awards
//	busy       executing a route with deliveries left
//	returning  deliveries done, heading to the depot
//	recharging at the depot refilling the battery
type AgentStatus int

const (
	AgentIdle AgentStatus = iota
	AgentBidding
	AgentBusy
	AgentReturning
	AgentRecharging
)

func (s AgentStatus) String() string {
	switch s {
	case AgentIdle:
		return "idle"
	case AgentBidding:
		return "bidding"
	case AgentBusy:
		return "busy"
	case AgentReturning:
		return "returning"
	case AgentRecharging:
		return "recharging"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s AgentStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a status name.
func (s *AgentStatus) UnmarshalText(b []byte) error {
	for c := AgentIdle; c <= AgentRecharging; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown agent status %q", b)
}

var agentTransitions = map[AgentStatus]map[AgentStatus]bool{
	AgentIdle:       {AgentBidding: true, AgentBusy: true, AgentRecharging: true},
	AgentBidding:    {AgentBusy: true, AgentIdle: true},
	AgentBusy:       {AgentReturning: true, AgentRecharging: true, AgentIdle: true},
	AgentReturning:  {AgentBusy: true, AgentRecharging: true, AgentIdle: true},
	AgentRecharging: {AgentIdle: true},
}

// CanTransition reports whether the agent may move from s to to.
// Staying in the same state is always allowed.
func (s AgentStatus) CanTransition(to AgentStatus) bool {
	return s == to || agentTransitions[s][to]
}
