package momentum_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeterna/momentum-engine/momentum"
)

// =============================================================================
// SUMMARY TESTS
// =============================================================================

func TestSummarize_NoActiveCycleIsExplicitlyEmpty(t *testing.T) {
	// GIVEN: An owner with no cycle
	// WHEN: Summarizing
	// THEN: (nil, nil), not an error

	e := newTestEngine(t)

	summary, err := e.agg.Summarize(context.Background(), "owner-1", momentum.Today())
	require.NoError(t, err)
	assert.Nil(t, summary)
}

func TestSummarize_FreshCycle(t *testing.T) {
	// GIVEN: A cycle started today, nothing completed
	// WHEN: Summarizing
	// THEN: Zero scores, critical status, neutral momentum, full quota

	e := newTestEngine(t)
	today := momentum.Today()
	init := startCycle(t, e, "owner-1", today)

	s, err := e.agg.Summarize(context.Background(), "owner-1", today)
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, init.Cycle.ID, s.Cycle.ID)
	assert.Equal(t, 1, s.CurrentWeek)
	assert.Equal(t, 83, s.RemainingDays)
	assert.Len(t, s.TodayActions, 1)
	assert.Equal(t, 0, s.DailyScore)
	assert.Equal(t, 0, s.Week.Score)
	assert.Equal(t, 0, s.DisplayScore)
	assert.Equal(t, momentum.StatusCritical, s.Status)
	assert.Equal(t, momentum.StateNeutral, s.Momentum)
	assert.Equal(t, 0, s.WinningStreak)
	assert.Equal(t, 0, s.LosingStreak)
	assert.Equal(t, momentum.ShieldQuota, s.RemainingCredits)

	// Coach context mirrors the summary
	assert.Equal(t, "Become undeniable", s.Coach.Vision)
	assert.Equal(t, "Ship the product", s.Coach.CurrentGoal)
	assert.Equal(t, 1, s.Coach.CurrentWeek)
	assert.Equal(t, 83, s.Coach.RemainingDays)
	assert.False(t, s.Coach.IsShielded)
}

func TestSummarize_MonkModeCapsVisibleActionsAndScore(t *testing.T) {
	// GIVEN: A day holding six action rows, four completed
	// WHEN: Summarizing
	// THEN: Three visible actions; the daily score caps at 100

	e := newTestEngine(t)
	ctx := context.Background()
	today := momentum.Today()
	init := startCycle(t, e, "owner-1", today)

	extra := make([]momentum.DailyAction, 5)
	for i := range extra {
		extra[i] = momentum.DailyAction{
			ID:         momentum.ActionID(momentum.NewID()),
			CycleID:    init.Cycle.ID,
			OwnerID:    "owner-1",
			Title:      "Extra task",
			ActionDate: today,
		}
	}
	require.NoError(t, e.store.InsertActions(ctx, extra))

	actions, err := e.store.ActionsOn(ctx, init.Cycle.ID, today)
	require.NoError(t, err)
	require.Len(t, actions, 6)
	for _, a := range actions[:4] {
		_, err := e.exec.CheckOff(ctx, a.ID, "owner-1", nil)
		require.NoError(t, err)
	}

	s, err := e.agg.Summarize(ctx, "owner-1", today)
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Len(t, s.TodayActions, momentum.MonkModeMaxTasks)
	assert.Equal(t, 100, s.DailyScore, "completions beyond the cap are not rewarded")
}

func TestSummarize_ShieldOverridesDisplayAndRevocationReverts(t *testing.T) {
	// GIVEN: A perfect week 1 and an untouched, shielded week 2
	// WHEN: Summarizing during week 2
	// THEN: Week 1's score is displayed with SHIELDED status; revoking the
	//       credit reverts the display to the computed score on the next read

	e := newTestEngine(t)
	ctx := context.Background()
	today := momentum.Today()
	start := today.AddDays(-7) // today is day 8: week 2
	init := startCycle(t, e, "owner-1", start)

	for i := 0; i < 7; i++ {
		completeDay(t, e, "owner-1", init.Cycle.ID, start.AddDays(i))
	}

	credit, err := e.ledger.Activate(ctx, "owner-1", init.Cycle.ID, 2, validReason)
	require.NoError(t, err)

	s, err := e.agg.Summarize(ctx, "owner-1", today)
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, 2, s.CurrentWeek)
	assert.True(t, s.Week.IsShielded)
	assert.Equal(t, 0, s.Week.Score, "stored history is never altered by the shield")
	assert.Equal(t, 33, s.DisplayScore, "previous week's score substitutes for display")
	assert.Equal(t, momentum.StatusShielded, s.Status)
	assert.Equal(t, momentum.ShieldQuota-1, s.RemainingCredits)
	assert.True(t, s.Coach.IsShielded)
	assert.Equal(t, 33, s.Coach.WeeklyScore)

	// Seven straight perfect days put the owner in flow
	assert.Equal(t, 7, s.WinningStreak)
	assert.Equal(t, momentum.StateFlowVelocity, s.Momentum)

	// Revocation reverts the very next summary; no eager rewrite needed
	_, err = e.admin.Revoke(ctx, credit.ID, "admin-1")
	require.NoError(t, err)

	s, err = e.agg.Summarize(ctx, "owner-1", today)
	require.NoError(t, err)
	assert.False(t, s.Week.IsShielded)
	assert.Equal(t, 0, s.DisplayScore)
	assert.Equal(t, momentum.StatusCritical, s.Status)
	assert.Equal(t, momentum.ShieldQuota, s.RemainingCredits)
}

func TestSummarize_ShieldedWeekOneShowsComputedScore(t *testing.T) {
	// Week 1 has no previous week to substitute; the computed score stands.
	e := newTestEngine(t)
	ctx := context.Background()
	today := momentum.Today()
	init := startCycle(t, e, "owner-1", today)

	_, err := e.ledger.Activate(ctx, "owner-1", init.Cycle.ID, 1, validReason)
	require.NoError(t, err)

	s, err := e.agg.Summarize(ctx, "owner-1", today)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.True(t, s.Week.IsShielded)
	assert.Equal(t, 0, s.DisplayScore)
	assert.Equal(t, momentum.StatusShielded, s.Status, "the status still reports the shield")
}

// =============================================================================
// WEEK RECOMPUTE TESTS
// =============================================================================

func TestRecomputeWeek_RebuildsFromCompletions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	start := momentum.Today().AddDays(-7)
	init := startCycle(t, e, "owner-1", start)

	// Complete 5 of week 1's 7 days
	for i := 0; i < 5; i++ {
		completeDay(t, e, "owner-1", init.Cycle.ID, start.AddDays(i))
	}

	ws, err := e.agg.RecomputeWeek(ctx, "owner-1", &init.Cycle, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, ws.WeekNumber)
	assert.Equal(t, start, ws.WeekStart)
	assert.Equal(t, 5, ws.TasksCompleted)
	assert.Equal(t, 7, ws.TasksTotal)
	// Five days at 33, two at 0: 165/7 = 23.57 -> 24
	assert.Equal(t, 24, ws.Score)
	assert.False(t, ws.IsShielded)
}

func TestRecomputeWeek_IsIdempotentOnTheRow(t *testing.T) {
	// Two recomputes of the same week upsert one row, same identity.
	e := newTestEngine(t)
	ctx := context.Background()
	start := momentum.Today().AddDays(-7)
	init := startCycle(t, e, "owner-1", start)

	first, err := e.agg.RecomputeWeek(ctx, "owner-1", &init.Cycle, 1)
	require.NoError(t, err)
	second, err := e.agg.RecomputeWeek(ctx, "owner-1", &init.Cycle, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "a refresh must not mint a new row identity")

	all, err := e.store.WeeklyScoresByCycle(ctx, init.Cycle.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, first.ID, all[0].ID, "returned score must match the persisted row")
	assert.Equal(t, first.WeekNumber, all[0].WeekNumber)
}

func TestRecomputeWeek_RejectsOutOfRangeWeek(t *testing.T) {
	e := newTestEngine(t)
	init := startCycle(t, e, "owner-1", momentum.Today())

	var v *momentum.ValidationError
	_, err := e.agg.RecomputeWeek(context.Background(), "owner-1", &init.Cycle, 0)
	assert.ErrorAs(t, err, &v)
	_, err = e.agg.RecomputeWeek(context.Background(), "owner-1", &init.Cycle, 13)
	assert.ErrorAs(t, err, &v)
}

// =============================================================================
// STREAK TESTS
// =============================================================================

func TestRefreshStreaks_WinningRun(t *testing.T) {
	// GIVEN: The last three days fully completed, today untouched
	// WHEN: Refreshing streaks
	// THEN: The in-progress day anchors the streak a day earlier

	e := newTestEngine(t)
	ctx := context.Background()
	today := momentum.Today()
	start := today.AddDays(-9)
	init := startCycle(t, e, "owner-1", start)

	for i := 1; i <= 3; i++ {
		completeDay(t, e, "owner-1", init.Cycle.ID, today.AddDays(-i))
	}

	win, lose, err := e.agg.RefreshStreaks(ctx, "owner-1", &init.Cycle, today)
	require.NoError(t, err)
	assert.Equal(t, 3, win)
	assert.Equal(t, 0, lose)

	profile, err := e.store.GetProfile(ctx, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, 3, profile.WinningStreak)
	assert.Equal(t, 0, profile.LosingStreak)
}

func TestRefreshStreaks_TodayExtendsOnceWon(t *testing.T) {
	e := newTestEngine(t)
	today := momentum.Today()
	start := today.AddDays(-2)
	init := startCycle(t, e, "owner-1", start)

	completeDay(t, e, "owner-1", init.Cycle.ID, today.AddDays(-1))
	completeDay(t, e, "owner-1", init.Cycle.ID, today)

	win, lose, err := e.agg.RefreshStreaks(context.Background(), "owner-1", &init.Cycle, today)
	require.NoError(t, err)
	assert.Equal(t, 2, win)
	assert.Equal(t, 0, lose)
}

func TestRefreshStreaks_LosingRunAnchorsOnYesterday(t *testing.T) {
	// GIVEN: Nine days into a cycle with nothing ever completed
	// WHEN: Refreshing streaks
	// THEN: Today in progress never counts against; nine lost days before it

	e := newTestEngine(t)
	today := momentum.Today()
	start := today.AddDays(-9)
	init := startCycle(t, e, "owner-1", start)

	win, lose, err := e.agg.RefreshStreaks(context.Background(), "owner-1", &init.Cycle, today)
	require.NoError(t, err)
	assert.Equal(t, 0, win)
	assert.Equal(t, 9, lose)

	s, err := e.agg.Summarize(context.Background(), "owner-1", today)
	require.NoError(t, err)
	assert.Equal(t, momentum.StateResetSanctuary, s.Momentum)
}

func TestRefreshStreaks_BrokenRunResets(t *testing.T) {
	// A miss two days ago caps the streak at yesterday's single win.
	e := newTestEngine(t)
	today := momentum.Today()
	start := today.AddDays(-5)
	init := startCycle(t, e, "owner-1", start)

	completeDay(t, e, "owner-1", init.Cycle.ID, today.AddDays(-3))
	completeDay(t, e, "owner-1", init.Cycle.ID, today.AddDays(-1))

	win, lose, err := e.agg.RefreshStreaks(context.Background(), "owner-1", &init.Cycle, today)
	require.NoError(t, err)
	assert.Equal(t, 1, win)
	assert.Equal(t, 0, lose)
}
