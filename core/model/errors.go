package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvariant marks an internal-consistency fault. The simulation halts on it.
	ErrInvariant = errors.New("invariant violation")
	// ErrInvalidTransition is returned for a status move the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// FaultError carries the diagnostic of an invariant violation.
type FaultError struct {
	Tick      int
	AgentID   *AgentID
	PackageID *PackageID
	Msg       string
	Err       error
}

func (e *FaultError) Error() string {
	s := fmt.Sprintf("tick %d: %s", e.Tick, e.Msg)
	if e.AgentID != nil {
		s += fmt.Sprintf(" (agent %d)", *e.AgentID)
	}
	if e.PackageID != nil {
		s += fmt.Sprintf(" (package %d)", *e.PackageID)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both ErrInvariant and the underlying cause.
func (e *FaultError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvariant}
	}
	return []error{ErrInvariant, e.Err}
}

// AgentFault builds a fault attributed to an agent.
func AgentFault(tick int, agent AgentID, err error, format string, args ...any) *FaultError {
	id := agent
	return &FaultError{Tick: tick, AgentID: &id, Msg: fmt.Sprintf(format, args...), Err: err}
}
