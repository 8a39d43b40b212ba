package model

import "fmt"

// PackageID identifies a delivery task.
type PackageID int

// PackageStatus is the lifecycle state of a package.
type PackageStatus int

const (
	PackagePending PackageStatus = iota
	PackageAssigned
	PackageInTransit
	PackageDelivered
)

// String returns the wire name of the status.
func (s PackageStatus) String() string {
	switch s {
	case PackagePending:
		return "pending"
	case PackageAssigned:
		return "assigned"
	case PackageInTransit:
		return "in_transit"
	case PackageDelivered:
		return "delivered"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s PackageStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a status name.
func (s *PackageStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pending":
		*s = PackagePending
	case "assigned":
		*s = PackageAssigned
	case "in_transit":
		*s = PackageInTransit
	case "delivered":
		*s = PackageDelivered
	default:
		return fmt.Errorf("unknown package status %q", b)
	}
	return nil
}

// Package is a delivery task moving from Pickup to Dropoff.
// AssignedAgent is an agent id, never a pointer to the agent.
type Package struct {
	ID            PackageID
	Pickup        NodeID
	Dropoff       NodeID
	Status        PackageStatus
	AssignedAgent *AgentID
}

// NewPackage returns a pending package.
func NewPackage(id PackageID, pickup, dropoff NodeID) *Package {
	return &Package{ID: id, Pickup: pickup, Dropoff: dropoff, Status: PackagePending}
}

// Task returns the announcement for this package.
func (p *Package) Task() Task {
	return Task{PackageID: p.ID, Pickup: p.Pickup, Dropoff: p.Dropoff}
}

// Assign moves the package from pending to assigned.
func (p *Package) Assign(agent AgentID) error {
	if err := p.advance(PackageAssigned); err != nil {
		return err
	}
	id := agent
	p.AssignedAgent = &id
	return nil
}

// PickUp moves the package from assigned to in_transit.
func (p *Package) PickUp() error { return p.advance(PackageInTransit) }

// Deliver moves the package from in_transit to delivered.
func (p *Package) Deliver() error { return p.advance(PackageDelivered) }

// advance only allows the next status in order.
func (p *Package) advance(to PackageStatus) error {
	if to != p.Status+1 {
		return fmt.Errorf("%w: package %d %s -> %s", ErrInvalidTransition, p.ID, p.Status, to)
	}
	p.Status = to
	return nil
}

// Clone returns a copy that shares no memory with p.
func (p *Package) Clone() Package {
	c := *p
	if p.AssignedAgent != nil {
		id := *p.AssignedAgent
		c.AssignedAgent = &id
	}
	return c
}
