package battery

import (
	"fmt"

	"github.com/kilianp07/cnp-delivery/core/model"
)

// Battery is a linear energy model: drain per meter travelled, fixed
// recharge per tick at the depot.
type Battery struct {
	Level         float64 // current charge in [0, Max]
	Max           float64 // full charge
	DrainPerMeter float64 // charge consumed per meter
	RechargeRate  float64 // charge gained per tick while recharging
}

// New returns a full battery.
func New(max, drainPerMeter, rechargeRate float64) Battery {
	return Battery{Level: max, Max: max, DrainPerMeter: drainPerMeter, RechargeRate: rechargeRate}
}

// Cost returns the charge needed to travel meters.
func (b Battery) Cost(meters float64) float64 { return meters * b.DrainPerMeter }

// Fraction returns Level/Max.
func (b Battery) Fraction() float64 {
	if b.Max <= 0 {
		return 0
	}
	return b.Level / b.Max
}

// Full reports whether the battery is at Max.
func (b Battery) Full() bool { return b.Level >= b.Max }

// Drain consumes the charge for meters. The level is never clamped: a drain
// below zero means an infeasible trip was accepted and is reported as an
// invariant violation.
func (b *Battery) Drain(meters float64) error {
	if meters < 0 {
		return fmt.Errorf("%w: negative distance %.2f", model.ErrInvariant, meters)
	}
	next := b.Level - b.Cost(meters)
	if next < 0 {
		return fmt.Errorf("%w: battery %.3f cannot cover %.1fm (needs %.3f)", model.ErrInvariant, b.Level, meters, b.Cost(meters))
	}
	b.Level = next
	return nil
}

// Recharge adds one tick of charge, capped at Max. It returns true once full.
func (b *Battery) Recharge() bool {
	b.Level += b.RechargeRate
	if b.Level > b.Max {
		b.Level = b.Max
	}
	return b.Full()
}

// Refill sets the battery to Max.
func (b *Battery) Refill() { b.Level = b.Max }

// Check verifies 0 <= Level <= Max.
func (b Battery) Check() error {
	if b.Level < 0 || b.Level > b.Max {
		return fmt.Errorf("%w: battery %.3f outside [0, %.1f]", model.ErrInvariant, b.Level, b.Max)
	}
	return nil
}
