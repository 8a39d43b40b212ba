package cnp

import (
	"fmt"

	"github.com/kilianp07/cnp-delivery/core/model"
)

// PickedUp records that the assigned agent collected a package.
func (c *Coordinator) PickedUp(id model.PackageID, by model.AgentID) error {
	p, err := c.owned(id, by)
	if err != nil {
		return err
	}
	return p.PickUp()
}

// Delivered records that the assigned agent dropped a package off.
func (c *Coordinator) Delivered(id model.PackageID, by model.AgentID) error {
	p, err := c.owned(id, by)
	if err != nil {
		return err
	}
	return p.Deliver()
}

func (c *Coordinator) owned(id model.PackageID, by model.AgentID) (*model.Package, error) {
	p, ok := c.packages[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown package %d", model.ErrInvariant, id)
	}
	if p.AssignedAgent == nil || *p.AssignedAgent != by {
		return nil, fmt.Errorf("%w: package %d is not assigned to agent %d", model.ErrInvariant, id, by)
	}
	return p, nil
}

// Check verifies the registry: queued packages are pending and unassigned,
// every other package has an owner.
func (c *Coordinator) Check() error {
	queued := make(map[model.PackageID]bool, len(c.queue))
	for _, id := range c.queue {
		if queued[id] {
			return fmt.Errorf("%w: package %d queued twice", model.ErrInvariant, id)
		}
		queued[id] = true
	}
	for _, id := range c.ids {
		p := c.packages[id]
		switch {
		case queued[id] && (p.Status != model.PackagePending || p.AssignedAgent != nil):
			return fmt.Errorf("%w: queued package %d is %s", model.ErrInvariant, id, p.Status)
		case !queued[id] && p.Status == model.PackagePending:
			return fmt.Errorf("%w: pending package %d dropped from the queue", model.ErrInvariant, id)
		case p.Status != model.PackagePending && p.AssignedAgent == nil:
			return fmt.Errorf("%w: package %d is %s without an agent", model.ErrInvariant, id, p.Status)
		}
	}
	return nil
}
