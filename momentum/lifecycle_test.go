package momentum_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeterna/momentum-engine/momentum"
)

// =============================================================================
// INITIALIZATION TESTS
// =============================================================================

func TestInitialize_SeedsExactly84Days(t *testing.T) {
	// GIVEN: A valid initialization request
	// WHEN: Creating the cycle
	// THEN: Exactly 84 daily actions exist, spanning start..start+83

	e := newTestEngine(t)
	ctx := context.Background()
	start := momentum.NewDay(2025, time.January, 6)

	init := startCycle(t, e, "owner-1", start)

	assert.Equal(t, 84, init.DaysGenerated)
	assert.Equal(t, "2025-01-06", init.Cycle.StartDate.String())
	assert.Equal(t, "2025-03-30", init.Cycle.EndDate.String())
	assert.Equal(t, momentum.CycleActive, init.Cycle.Status)
	assert.Len(t, init.Goals, 2)

	count, err := e.store.CountActions(ctx, init.Cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, 84, count)

	// First and last day each carry one seeded action
	first, err := e.store.ActionsOn(ctx, init.Cycle.ID, start)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	last, err := e.store.ActionsOn(ctx, init.Cycle.ID, start.AddDays(83))
	require.NoError(t, err)
	assert.Len(t, last, 1)

	// Seeded actions take their title from the highest-priority goal
	assert.Equal(t, "Ship the product", first[0].Title)
}

func TestInitialize_SecondActiveCycleRejected(t *testing.T) {
	// GIVEN: An owner with an active cycle
	// WHEN: Initializing another cycle
	// THEN: ConflictError; the existing cycle is untouched

	e := newTestEngine(t)
	ctx := context.Background()
	start := momentum.NewDay(2025, time.January, 6)

	startCycle(t, e, "owner-1", start)

	_, err := e.lifecycle.Initialize(ctx, "owner-1", "Another", "", start.AddDays(7), testGoals())
	require.Error(t, err)
	assert.ErrorIs(t, err, momentum.ErrActiveCycleExists)
	assert.True(t, momentum.IsClientError(err))
}

func TestInitialize_OtherOwnersUnaffected(t *testing.T) {
	// Uniqueness is per owner: two owners may hold active cycles at once.
	e := newTestEngine(t)
	start := momentum.NewDay(2025, time.January, 6)

	startCycle(t, e, "owner-1", start)
	startCycle(t, e, "owner-2", start)
}

func TestInitialize_Validation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	start := momentum.NewDay(2025, time.January, 6)

	tests := []struct {
		name  string
		owner momentum.OwnerID
		cName string
		start momentum.Day
		goals []momentum.GoalInput
	}{
		{"empty name", "owner-1", "  ", start, testGoals()},
		{"zero start", "owner-1", "Cycle", momentum.Day{}, testGoals()},
		{"no goals", "owner-1", "Cycle", start, nil},
		{"four goals", "owner-1", "Cycle", start, []momentum.GoalInput{
			{Title: "a", Priority: 1}, {Title: "b", Priority: 2},
			{Title: "c", Priority: 3}, {Title: "d", Priority: 3},
		}},
		{"blank goal title", "owner-1", "Cycle", start, []momentum.GoalInput{{Title: " ", Priority: 1}}},
		{"priority out of range", "owner-1", "Cycle", start, []momentum.GoalInput{{Title: "a", Priority: 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.lifecycle.Initialize(ctx, tt.owner, tt.cName, "", tt.start, tt.goals)
			require.Error(t, err)
			var v *momentum.ValidationError
			assert.ErrorAs(t, err, &v)
		})
	}

	_, err := e.lifecycle.Initialize(ctx, "", "Cycle", "", start, testGoals())
	assert.ErrorIs(t, err, momentum.ErrUnauthorized)
}

func TestInitialize_ThreadsVisionOntoProfile(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	startCycle(t, e, "owner-1", momentum.NewDay(2025, time.January, 6))

	profile, err := e.store.GetProfile(ctx, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Become undeniable", profile.Vision)
}

// =============================================================================
// CLOSE TESTS
// =============================================================================

func TestClose_FinalScoreIsMeanOfWeeklyScores(t *testing.T) {
	// GIVEN: A cycle with weekly scores 80 and 85
	// WHEN: Closing it
	// THEN: Final score 82.5, status closed, ClosedAt stamped

	e := newTestEngine(t)
	ctx := context.Background()

	init := startCycle(t, e, "owner-1", momentum.NewDay(2025, time.January, 6))
	seedWeeklyScore(t, e, "owner-1", &init.Cycle, 1, 80)
	seedWeeklyScore(t, e, "owner-1", &init.Cycle, 2, 85)

	closed, err := e.lifecycle.Close(ctx, init.Cycle.ID, "owner-1")
	require.NoError(t, err)

	assert.Equal(t, momentum.CycleClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	require.NotNil(t, closed.FinalScore)
	assert.True(t, closed.FinalScore.Equal(decimal.RequireFromString("82.5")),
		"final score should be 82.5, got %s", closed.FinalScore)

	// The stored row agrees
	stored, err := e.store.GetCycle(ctx, init.Cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, momentum.CycleClosed, stored.Status)
	require.NotNil(t, stored.FinalScore)
	assert.True(t, stored.FinalScore.Equal(decimal.RequireFromString("82.5")))
}

func TestClose_NoScoredWeeksYieldsZero(t *testing.T) {
	e := newTestEngine(t)

	init := startCycle(t, e, "owner-1", momentum.NewDay(2025, time.January, 6))
	closed, err := e.lifecycle.Close(context.Background(), init.Cycle.ID, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, closed.FinalScore)
	assert.True(t, closed.FinalScore.IsZero())
}

func TestClose_SecondCloseRejected(t *testing.T) {
	// GIVEN: A closed cycle
	// WHEN: Closing it again
	// THEN: StateError, never a silent second transition

	e := newTestEngine(t)
	ctx := context.Background()

	init := startCycle(t, e, "owner-1", momentum.NewDay(2025, time.January, 6))
	_, err := e.lifecycle.Close(ctx, init.Cycle.ID, "owner-1")
	require.NoError(t, err)

	_, err = e.lifecycle.Close(ctx, init.Cycle.ID, "owner-1")
	require.Error(t, err)
	var state *momentum.StateError
	assert.ErrorAs(t, err, &state)
}

func TestClose_WrongOwnerSeesNotFound(t *testing.T) {
	// Ownership failures are indistinguishable from missing cycles.
	e := newTestEngine(t)

	init := startCycle(t, e, "owner-1", momentum.NewDay(2025, time.January, 6))
	_, err := e.lifecycle.Close(context.Background(), init.Cycle.ID, "intruder")
	require.Error(t, err)
	assert.True(t, momentum.IsNotFound(err))
}

func TestClose_FreesTheOwnerForANewCycle(t *testing.T) {
	// GIVEN: An owner who closed their cycle
	// WHEN: Initializing a new one
	// THEN: It succeeds; uniqueness binds active cycles only

	e := newTestEngine(t)
	ctx := context.Background()
	start := momentum.NewDay(2025, time.January, 6)

	init := startCycle(t, e, "owner-1", start)
	_, err := e.lifecycle.Close(ctx, init.Cycle.ID, "owner-1")
	require.NoError(t, err)

	startCycle(t, e, "owner-1", start.AddDays(84))
}

func TestFinalScore_TwoPlaceRounding(t *testing.T) {
	scores := []momentum.WeeklyScore{{Score: 70}, {Score: 75}, {Score: 80}}
	// 225 / 3 = 75
	assert.True(t, momentum.FinalScore(scores).Equal(decimal.NewFromInt(75)))

	scores = []momentum.WeeklyScore{{Score: 70}, {Score: 75}, {Score: 81}}
	// 226 / 3 = 75.333... -> 75.33
	assert.True(t, momentum.FinalScore(scores).Equal(decimal.RequireFromString("75.33")))
}
