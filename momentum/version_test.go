package momentum_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeterna/momentum-engine/momentum"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func newTacticFixture(t *testing.T) (*engine, momentum.GoalID) {
	t.Helper()
	e := newTestEngine(t)
	init := startCycle(t, e, "owner-1", momentum.NewDay(2025, time.January, 6))
	return e, init.Goals[0].ID
}

// =============================================================================
// CREATE TESTS
// =============================================================================

func TestVersionChain_Create(t *testing.T) {
	// GIVEN: A goal owned by the caller
	// WHEN: Creating a tactic
	// THEN: Version 1, active, no back-reference

	e, goalID := newTacticFixture(t)

	tactic, err := e.tactics.Create(context.Background(), goalID, "owner-1", "Deep work 9-11", "Two focused hours", 8)
	require.NoError(t, err)

	assert.Equal(t, 1, tactic.Version)
	assert.True(t, tactic.IsActive)
	assert.Nil(t, tactic.PreviousVersionID)
	assert.Equal(t, 8, tactic.Weight)
}

func TestVersionChain_CreateValidation(t *testing.T) {
	e, goalID := newTacticFixture(t)
	ctx := context.Background()

	_, err := e.tactics.Create(ctx, goalID, "owner-1", "  ", "", 5)
	var v *momentum.ValidationError
	assert.ErrorAs(t, err, &v)

	_, err = e.tactics.Create(ctx, goalID, "owner-1", "Tactic", "", 11)
	assert.ErrorAs(t, err, &v)

	// Zero weight defaults instead of failing
	tactic, err := e.tactics.Create(ctx, goalID, "owner-1", "Tactic", "", 0)
	require.NoError(t, err)
	assert.Equal(t, momentum.MinTacticWeight, tactic.Weight)

	// A goal owned by someone else looks missing
	_, err = e.tactics.Create(ctx, goalID, "intruder", "Tactic", "", 5)
	assert.True(t, momentum.IsNotFound(err))
}

// =============================================================================
// FORK TESTS
// =============================================================================

func TestVersionChain_ForkBuildsChain(t *testing.T) {
	// GIVEN: A tactic forked twice
	// WHEN: Walking the history from the newest head
	// THEN: Three revisions, newest first, linked by back-references

	e, goalID := newTacticFixture(t)
	ctx := context.Background()

	v1, err := e.tactics.Create(ctx, goalID, "owner-1", "Deep work 9-11", "", 5)
	require.NoError(t, err)

	v2, err := e.tactics.Fork(ctx, v1.ID, "owner-1", momentum.TacticPatch{Weight: intPtr(8)})
	require.NoError(t, err)
	assert.NotEqual(t, v1.ID, v2.ID, "fork must mint a new id")
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, 8, v2.Weight)
	assert.Equal(t, "Deep work 9-11", v2.Title, "unpatched fields copy from the head")
	require.NotNil(t, v2.PreviousVersionID)
	assert.Equal(t, v1.ID, *v2.PreviousVersionID)

	v3, err := e.tactics.Fork(ctx, v2.ID, "owner-1", momentum.TacticPatch{Title: strPtr("Deep work 6-8")})
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Version)
	assert.Equal(t, "Deep work 6-8", v3.Title)
	assert.Equal(t, 8, v3.Weight)

	history, err := e.tactics.History(v3.ID).Collect(ctx)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{history[0].Version, history[1].Version, history[2].Version})
	assert.False(t, history[1].IsActive)
	assert.False(t, history[2].IsActive)
	assert.True(t, history[0].IsActive)
}

func TestVersionChain_OneActiveHeadPerLineage(t *testing.T) {
	e, goalID := newTacticFixture(t)
	ctx := context.Background()

	v1, err := e.tactics.Create(ctx, goalID, "owner-1", "Tactic", "", 5)
	require.NoError(t, err)
	_, err = e.tactics.Fork(ctx, v1.ID, "owner-1", momentum.TacticPatch{Weight: intPtr(9)})
	require.NoError(t, err)

	active, err := e.tactics.ListActive(ctx, goalID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 2, active[0].Version)
}

func TestVersionChain_ForkStaleHeadRejected(t *testing.T) {
	// GIVEN: A head already superseded by a fork
	// WHEN: Forking the old head again
	// THEN: StateError; the chain gains no second branch

	e, goalID := newTacticFixture(t)
	ctx := context.Background()

	v1, err := e.tactics.Create(ctx, goalID, "owner-1", "Tactic", "", 5)
	require.NoError(t, err)
	_, err = e.tactics.Fork(ctx, v1.ID, "owner-1", momentum.TacticPatch{Weight: intPtr(9)})
	require.NoError(t, err)

	_, err = e.tactics.Fork(ctx, v1.ID, "owner-1", momentum.TacticPatch{Weight: intPtr(3)})
	require.Error(t, err)
	assert.ErrorIs(t, err, momentum.ErrState)

	active, err := e.tactics.ListActive(ctx, goalID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestVersionChain_ForkValidation(t *testing.T) {
	e, goalID := newTacticFixture(t)
	ctx := context.Background()

	v1, err := e.tactics.Create(ctx, goalID, "owner-1", "Tactic", "", 5)
	require.NoError(t, err)

	var v *momentum.ValidationError
	_, err = e.tactics.Fork(ctx, v1.ID, "owner-1", momentum.TacticPatch{Weight: intPtr(0)})
	assert.ErrorAs(t, err, &v)

	_, err = e.tactics.Fork(ctx, v1.ID, "owner-1", momentum.TacticPatch{Title: strPtr("  ")})
	assert.ErrorAs(t, err, &v)

	_, err = e.tactics.Fork(ctx, v1.ID, "intruder", momentum.TacticPatch{})
	assert.True(t, momentum.IsNotFound(err))
}

// =============================================================================
// RETIRE TESTS
// =============================================================================

func TestVersionChain_Retire(t *testing.T) {
	// GIVEN: An active head
	// WHEN: Retiring it
	// THEN: The lineage ends; retiring again is a StateError

	e, goalID := newTacticFixture(t)
	ctx := context.Background()

	v1, err := e.tactics.Create(ctx, goalID, "owner-1", "Tactic", "", 5)
	require.NoError(t, err)

	require.NoError(t, e.tactics.Retire(ctx, v1.ID, "owner-1"))

	active, err := e.tactics.ListActive(ctx, goalID)
	require.NoError(t, err)
	assert.Empty(t, active)

	err = e.tactics.Retire(ctx, v1.ID, "owner-1")
	assert.ErrorIs(t, err, momentum.ErrState)

	// A retired head cannot be forked either
	_, err = e.tactics.Fork(ctx, v1.ID, "owner-1", momentum.TacticPatch{Weight: intPtr(7)})
	assert.ErrorIs(t, err, momentum.ErrState)
}

// =============================================================================
// HISTORY ITERATOR TESTS
// =============================================================================

func TestHistory_LazyWalk(t *testing.T) {
	e, goalID := newTacticFixture(t)
	ctx := context.Background()

	v1, err := e.tactics.Create(ctx, goalID, "owner-1", "Tactic", "", 5)
	require.NoError(t, err)
	v2, err := e.tactics.Fork(ctx, v1.ID, "owner-1", momentum.TacticPatch{Weight: intPtr(9)})
	require.NoError(t, err)

	h := e.tactics.History(v2.ID)

	first, err := h.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, v2.ID, first.ID)

	second, err := h.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, v1.ID, second.ID)

	// Exhausted: nil forever after
	end, err := h.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, end)
	end, err = h.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, end)
}

func TestHistory_UnknownTailIsEmpty(t *testing.T) {
	e, _ := newTacticFixture(t)

	history, err := e.tactics.History(momentum.TacticID("no-such-id")).Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history)
}
