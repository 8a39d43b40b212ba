package cnp

import (
	"fmt"

	"github.com/kilianp07/cnp-delivery/core/model"
)

// Phase is the state of the depot's round state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAnnouncing
	PhaseCollectingBids
	PhaseAwarding
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAnnouncing:
		return "announcing"
	case PhaseCollectingBids:
		return "collecting_bids"
	case PhaseAwarding:
		return "awarding"
	default:
		return "unknown"
	}
}

// A task with no feasible bid skips the award and the depot moves on to the
// next announcement.
var phaseTransitions = map[Phase][]Phase{
	PhaseIdle:           {PhaseAnnouncing},
	PhaseAnnouncing:     {PhaseCollectingBids},
	PhaseCollectingBids: {PhaseAwarding, PhaseAnnouncing, PhaseIdle},
	PhaseAwarding:       {PhaseAnnouncing, PhaseIdle},
}

func (c *Coordinator) enter(to Phase) error {
	for _, next := range phaseTransitions[c.phase] {
		if next == to {
			c.phase = to
			return nil
		}
	}
	return fmt.Errorf("%w: round %s -> %s", model.ErrInvalidTransition, c.phase, to)
}
