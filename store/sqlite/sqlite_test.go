package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeterna/momentum-engine/momentum"
	"github.com/aeterna/momentum-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedCycle(t *testing.T, s *sqlite.Store, owner momentum.OwnerID) momentum.Cycle {
	t.Helper()
	start := momentum.NewDay(2025, time.January, 6)
	c := momentum.Cycle{
		ID:        momentum.CycleID(momentum.NewID()),
		OwnerID:   owner,
		Name:      "Test Cycle",
		StartDate: start,
		EndDate:   momentum.CycleEnd(start),
		Status:    momentum.CycleActive,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.InsertCycle(context.Background(), c))
	return c
}

func credit(owner momentum.OwnerID, cycleID momentum.CycleID, week int) momentum.MomentumCredit {
	return momentum.MomentumCredit{
		ID:         momentum.CreditID(momentum.NewID()),
		OwnerID:    owner,
		CycleID:    cycleID,
		WeekNumber: week,
		Reason:     "seeded by test",
		AppliedAt:  time.Now().UTC(),
	}
}

// =============================================================================
// LEDGER UNIQUENESS TESTS
// =============================================================================

func TestInsertCredit_SameWeekRejectedByIndex(t *testing.T) {
	// GIVEN: A non-revoked credit for (owner, cycle, week 3)
	// WHEN: Inserting another for the same week
	// THEN: ErrWeekAlreadyShielded from the partial unique index

	s := newTestStore(t)
	ctx := context.Background()
	c := seedCycle(t, s, "owner-1")

	require.NoError(t, s.InsertCredit(ctx, credit("owner-1", c.ID, 3)))

	err := s.InsertCredit(ctx, credit("owner-1", c.ID, 3))
	assert.ErrorIs(t, err, momentum.ErrWeekAlreadyShielded)

	// Other weeks and other owners pass through
	require.NoError(t, s.InsertCredit(ctx, credit("owner-1", c.ID, 4)))
	c2 := seedCycle(t, s, "owner-2")
	require.NoError(t, s.InsertCredit(ctx, credit("owner-2", c2.ID, 3)))
}

func TestInsertCredit_RevokedRowFreesTheWeek(t *testing.T) {
	// The index binds non-revoked rows only: revoke, then reinsert.
	s := newTestStore(t)
	ctx := context.Background()
	c := seedCycle(t, s, "owner-1")

	first := credit("owner-1", c.ID, 3)
	require.NoError(t, s.InsertCredit(ctx, first))

	swapped, err := s.RevokeCredit(ctx, first.ID, "admin-1", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, swapped)

	require.NoError(t, s.InsertCredit(ctx, credit("owner-1", c.ID, 3)))

	// Counts see non-revoked rows only
	count, err := s.CountActiveCredits(ctx, "owner-1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// =============================================================================
// COMPARE-AND-SWAP TESTS
// =============================================================================

func TestRevokeCredit_SecondSwapFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := seedCycle(t, s, "owner-1")

	cr := credit("owner-1", c.ID, 1)
	require.NoError(t, s.InsertCredit(ctx, cr))

	swapped, err := s.RevokeCredit(ctx, cr.ID, "admin-1", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, swapped)

	swapped, err = s.RevokeCredit(ctx, cr.ID, "admin-2", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, swapped, "a revoked row must not swap again")

	stored, err := s.GetCredit(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", stored.RevokedBy, "the losing revoker must not overwrite")
}

func TestDeactivateTactic_SecondSwapFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := seedCycle(t, s, "owner-1")

	g := momentum.Goal{ID: momentum.GoalID(momentum.NewID()), CycleID: c.ID, Title: "Goal", Priority: 1, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.InsertGoal(ctx, g))
	tac := momentum.Tactic{
		ID: momentum.TacticID(momentum.NewID()), GoalID: g.ID, OwnerID: "owner-1",
		Title: "Tactic", Weight: 5, IsActive: true, Version: 1, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.InsertTactic(ctx, tac))

	swapped, err := s.DeactivateTactic(ctx, tac.ID)
	require.NoError(t, err)
	assert.True(t, swapped)

	swapped, err = s.DeactivateTactic(ctx, tac.ID)
	require.NoError(t, err)
	assert.False(t, swapped)
}

func TestCloseCycle_SecondSwapFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := seedCycle(t, s, "owner-1")

	swapped, err := s.CloseCycle(ctx, c.ID, time.Now().UTC(), "75.5")
	require.NoError(t, err)
	assert.True(t, swapped)

	swapped, err = s.CloseCycle(ctx, c.ID, time.Now().UTC(), "10")
	require.NoError(t, err)
	assert.False(t, swapped)

	stored, err := s.GetCycle(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FinalScore)
	assert.Equal(t, "75.5", stored.FinalScore.String())
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A unit inserting a credit then failing
	// WHEN: The unit returns an error
	// THEN: Nothing it wrote survives

	s := newTestStore(t)
	ctx := context.Background()
	c := seedCycle(t, s, "owner-1")

	sentinel := errors.New("boom")
	err := s.WithTx(ctx, func(tx momentum.Store) error {
		if err := tx.InsertCredit(ctx, credit("owner-1", c.ID, 1)); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	count, err := s.CountActiveCredits(ctx, "owner-1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestWithTx_ReadsSeeUncommittedWrites(t *testing.T) {
	// The ledger's in-transaction recount depends on this.
	s := newTestStore(t)
	ctx := context.Background()
	c := seedCycle(t, s, "owner-1")

	err := s.WithTx(ctx, func(tx momentum.Store) error {
		if err := tx.InsertCredit(ctx, credit("owner-1", c.ID, 1)); err != nil {
			return err
		}
		count, err := tx.CountActiveCredits(ctx, "owner-1", c.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, 1, count, "in-tx read must observe the in-tx write")
		return nil
	})
	require.NoError(t, err)
}

// =============================================================================
// ROUND-TRIP TESTS
// =============================================================================

func TestActionCompletion_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := seedCycle(t, s, "owner-1")

	a := momentum.DailyAction{
		ID: momentum.ActionID(momentum.NewID()), CycleID: c.ID, OwnerID: "owner-1",
		Title: "Task", ActionDate: c.StartDate, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.InsertActions(ctx, []momentum.DailyAction{a}))

	completedAt := time.Now().UTC().Truncate(time.Second)
	energy := 4
	require.NoError(t, s.SetActionCompletion(ctx, a.ID, true, &completedAt, &energy))

	stored, err := s.GetAction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsCompleted)
	require.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.CompletedAt.Equal(completedAt))
	require.NotNil(t, stored.EnergyLevel)
	assert.Equal(t, 4, *stored.EnergyLevel)

	// Clearing nulls the pair and the energy together
	require.NoError(t, s.SetActionCompletion(ctx, a.ID, false, nil, nil))
	stored, err = s.GetAction(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsCompleted)
	assert.Nil(t, stored.CompletedAt)
	assert.Nil(t, stored.EnergyLevel)

	// An unknown id is a not-found, not a silent no-op
	err = s.SetActionCompletion(ctx, momentum.ActionID("missing"), true, &completedAt, nil)
	assert.True(t, momentum.IsNotFound(err))
}

func TestUpsertWeeklyScore_OneRowPerCycleWeek(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := seedCycle(t, s, "owner-1")

	ws := momentum.WeeklyScore{
		ID: momentum.NewID(), OwnerID: "owner-1", CycleID: c.ID,
		WeekNumber: 1, WeekStart: c.StartDate, Score: 40,
		TasksCompleted: 3, TasksTotal: 7, UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.UpsertWeeklyScore(ctx, ws))

	ws.ID = momentum.NewID()
	ws.Score = 55
	ws.IsShielded = true
	require.NoError(t, s.UpsertWeeklyScore(ctx, ws))

	all, err := s.WeeklyScoresByCycle(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 55, all[0].Score)
	assert.True(t, all[0].IsShielded)
}

func TestRecentScores_NewestFirstAcrossCycles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := seedCycle(t, s, "owner-1")

	for week := 1; week <= 4; week++ {
		require.NoError(t, s.UpsertWeeklyScore(ctx, momentum.WeeklyScore{
			ID: momentum.NewID(), OwnerID: "owner-1", CycleID: c.ID,
			WeekNumber: week, WeekStart: momentum.WeekStart(&c, week),
			Score: week * 10, UpdatedAt: time.Now().UTC(),
		}))
	}

	scores, err := s.RecentScores(ctx, "owner-1", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{40, 30, 20}, scores)
}

func TestActiveOwners_ListsActiveCyclesOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedCycle(t, s, "owner-a")
	closed := seedCycle(t, s, "owner-b")
	_, err := s.CloseCycle(ctx, closed.ID, time.Now().UTC(), "0")
	require.NoError(t, err)

	owners, err := s.ActiveOwners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []momentum.OwnerID{"owner-a"}, owners)
}
