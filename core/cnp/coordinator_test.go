package cnp

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/cnp-delivery/core/agent"
	"github.com/kilianp07/cnp-delivery/core/model"
	"github.com/kilianp07/cnp-delivery/core/roadmap/roadmaptest"
)

// stubBidder quotes a fixed cost and takes at most capacity tasks.
type stubBidder struct {
	id        model.AgentID
	cost      float64
	capacity  int
	accepted  []model.PackageID
	acceptErr error
	// failOn limits acceptErr to one package; zero means every package.
	failOn model.PackageID
}

func (s *stubBidder) ID() model.AgentID { return s.id }

func (s *stubBidder) Bid(model.Task) model.Bid {
	if len(s.accepted) >= s.capacity || math.IsInf(s.cost, 1) {
		return model.Refuse(s.id, "full")
	}
	return model.Bid{AgentID: s.id, Feasible: true, Cost: s.cost}
}

func (s *stubBidder) AcceptTask(t model.Task) error {
	if s.acceptErr != nil && (s.failOn == 0 || s.failOn == t.PackageID) {
		return s.acceptErr
	}
	s.accepted = append(s.accepted, t.PackageID)
	return nil
}

func newDepot(t *testing.T, bidders []Bidder, packages ...*model.Package) *Coordinator {
	t.Helper()
	c := NewCoordinator(nil)
	require.NoError(t, c.Register(bidders...))
	for _, p := range packages {
		require.NoError(t, c.AddPackage(p))
	}
	return c
}

func TestAwardGoesToCheapestBid(t *testing.T) {
	far := &stubBidder{id: 1, cost: 900, capacity: 5}
	near := &stubBidder{id: 2, cost: 100, capacity: 5}
	c := newDepot(t, []Bidder{near, far}, model.NewPackage(1, 0, 1))

	res, err := c.RunRound(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, res.Awards, 1)
	assert.Equal(t, model.AgentID(2), res.Awards[0].AgentID)
	assert.Equal(t, 100.0, res.Awards[0].Cost)
	assert.Len(t, res.Awards[0].Bids, 2)
	assert.Equal(t, model.AgentID(1), res.Awards[0].Bids[0].AgentID)

	p, ok := c.Package(1)
	require.True(t, ok)
	assert.Equal(t, model.PackageAssigned, p.Status)
	require.NotNil(t, p.AssignedAgent)
	assert.Equal(t, model.AgentID(2), *p.AssignedAgent)
	assert.Empty(t, c.Pending())
	assert.Equal(t, PhaseIdle, c.Phase())
	require.NoError(t, c.Check())
}

func TestTieGoesToLowestAgentID(t *testing.T) {
	a3 := &stubBidder{id: 3, cost: 50, capacity: 5}
	a1 := &stubBidder{id: 1, cost: 50, capacity: 5}
	a2 := &stubBidder{id: 2, cost: 50, capacity: 5}
	c := newDepot(t, []Bidder{a3, a1, a2}, model.NewPackage(1, 0, 1))

	res, err := c.RunRound(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, res.Awards, 1)
	assert.Equal(t, model.AgentID(1), res.Awards[0].AgentID)
	assert.Empty(t, a2.accepted)
	assert.Empty(t, a3.accepted)
}

func TestNoFeasibleBidKeepsTaskPending(t *testing.T) {
	busy := &stubBidder{id: 1, cost: math.Inf(1), capacity: 5}
	c := newDepot(t, []Bidder{busy}, model.NewPackage(1, 0, 1), model.NewPackage(2, 0, 2))

	res, err := c.RunRound(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Announced)
	assert.Equal(t, 2, res.Unassigned)
	assert.Empty(t, res.Awards)
	assert.Len(t, c.Pending(), 2)

	// Retried on the next round once the agent can take it.
	busy.cost = 10
	res, err = c.RunRound(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, res.Awards, 2)
	assert.Equal(t, []model.PackageID{1, 2}, busy.accepted)
	assert.Empty(t, c.Pending())
}

func TestAwardsCommitBeforeNextBid(t *testing.T) {
	cheap := &stubBidder{id: 1, cost: 10, capacity: 1}
	dear := &stubBidder{id: 2, cost: 99, capacity: 1}
	c := newDepot(t, []Bidder{cheap, dear}, model.NewPackage(1, 0, 1), model.NewPackage(2, 0, 1), model.NewPackage(3, 0, 1))

	res, err := c.RunRound(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, res.Awards, 2)
	assert.Equal(t, []model.PackageID{1}, cheap.accepted)
	assert.Equal(t, []model.PackageID{2}, dear.accepted)
	assert.Equal(t, 1, res.Unassigned)
	require.Len(t, c.Pending(), 1)
	assert.Equal(t, model.PackageID(3), c.Pending()[0].PackageID)
	require.NoError(t, c.Check())
}

func TestAcceptFailureIsFault(t *testing.T) {
	bad := &stubBidder{id: 4, cost: 1, capacity: 5, acceptErr: errors.New("boom")}
	c := newDepot(t, []Bidder{bad}, model.NewPackage(7, 0, 1))

	_, err := c.RunRound(context.Background(), 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvariant))
	var fault *model.FaultError
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, 3, fault.Tick)
	assert.Equal(t, model.PackageID(7), *fault.PackageID)

	p, _ := c.Package(7)
	assert.Equal(t, model.PackagePending, p.Status)
}

func TestFailedAwardLeavesQueueConsistent(t *testing.T) {
	bad := &stubBidder{id: 1, cost: 1, capacity: 5, acceptErr: errors.New("boom"), failOn: 2}
	c := newDepot(t, []Bidder{bad}, model.NewPackage(1, 0, 1), model.NewPackage(2, 0, 2), model.NewPackage(3, 0, 3))

	_, err := c.RunRound(context.Background(), 1)
	require.ErrorIs(t, err, model.ErrInvariant)

	var pending []model.PackageID
	for _, task := range c.Pending() {
		pending = append(pending, task.PackageID)
	}
	assert.Equal(t, []model.PackageID{2, 3}, pending)
	p, _ := c.Package(1)
	assert.Equal(t, model.PackageAssigned, p.Status)
	assert.Equal(t, PhaseIdle, c.Phase())
	require.NoError(t, c.Check())
}

func TestEmptyRoundStaysIdle(t *testing.T) {
	c := newDepot(t, []Bidder{&stubBidder{id: 1, capacity: 1}})
	res, err := c.RunRound(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, res.Announced)
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.True(t, c.AllDelivered())
}

func TestRegistrationErrors(t *testing.T) {
	c := NewCoordinator(nil)
	require.NoError(t, c.Register(&stubBidder{id: 1}))
	assert.Error(t, c.Register(&stubBidder{id: 1}))

	require.NoError(t, c.AddPackage(model.NewPackage(1, 0, 1)))
	assert.Error(t, c.AddPackage(model.NewPackage(1, 0, 2)))

	assigned := model.NewPackage(2, 0, 1)
	require.NoError(t, assigned.Assign(1))
	assert.Error(t, c.AddPackage(assigned))
}

func TestLedgerChecksOwnership(t *testing.T) {
	c := newDepot(t, []Bidder{&stubBidder{id: 1, cost: 1, capacity: 5}}, model.NewPackage(1, 0, 1))
	_, err := c.RunRound(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, errors.Is(c.PickedUp(1, 2), model.ErrInvariant))
	assert.True(t, errors.Is(c.PickedUp(9, 1), model.ErrInvariant))
	assert.True(t, errors.Is(c.Delivered(1, 1), model.ErrInvalidTransition))

	require.NoError(t, c.PickedUp(1, 1))
	require.NoError(t, c.Delivered(1, 1))
	assert.Equal(t, 1, c.DeliveredCount())
	assert.True(t, c.AllDelivered())
	assert.True(t, errors.Is(c.Delivered(1, 1), model.ErrInvalidTransition))
}

func TestNearestAgentWins(t *testing.T) {
	g := roadmaptest.Cross(t, 1000)
	cfg := agent.Config{Capacity: 5, MaxBattery: 100, DrainPerMeter: 0.01, MinBufferFraction: 0.3, RechargeRate: 10}
	west, err := agent.New(1, cfg, g, 0, 3, nil)
	require.NoError(t, err)
	depot, err := agent.New(2, cfg, g, 0, 0, nil)
	require.NoError(t, err)

	c := newDepot(t, []Bidder{west, depot}, model.NewPackage(1, 1, 2))
	res, err := c.RunRound(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, res.Awards, 1)

	award := res.Awards[0]
	assert.Equal(t, model.AgentID(2), award.AgentID)
	assert.InDelta(t, 1000, award.Cost, 1e-6)
	require.Len(t, award.Bids, 2)
	assert.True(t, award.Bids[0].Feasible)
	assert.InDelta(t, 2000, award.Bids[0].Cost, 1e-6)

	assert.Equal(t, model.AgentIdle, west.Status())
	assert.Empty(t, west.Load())
	assert.Equal(t, []model.PackageID{1}, depot.Load())
}
