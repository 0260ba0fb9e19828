package momentum_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aeterna/momentum-engine/momentum"
	"github.com/aeterna/momentum-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// engine bundles the services over a shared in-memory database so tests
// can exercise cross-service flows (check-offs feeding scores, shields
// changing summaries) the way the HTTP layer composes them.
type engine struct {
	store     *sqlite.Store
	lifecycle *momentum.CycleLifecycle
	tactics   *momentum.VersionChain
	ledger    *momentum.CreditLedger
	admin     *momentum.CreditAdministrator
	agg       *momentum.AggregationService
	exec      *momentum.ExecutionService
}

func newTestEngine(t *testing.T) *engine {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	agg := momentum.NewAggregationService(store)
	return &engine{
		store:     store,
		lifecycle: momentum.NewCycleLifecycle(store),
		tactics:   momentum.NewVersionChain(store),
		ledger:    momentum.NewCreditLedger(store),
		admin:     momentum.NewCreditAdministrator(store),
		agg:       agg,
		exec:      momentum.NewExecutionService(store, agg),
	}
}

func testGoals() []momentum.GoalInput {
	return []momentum.GoalInput{
		{Title: "Ship the product", Priority: 1, TargetMetric: "releases", TargetValue: 1},
		{Title: "Grow the audience", Priority: 2, TargetMetric: "subscribers", TargetValue: 1000},
	}
}

// startCycle initializes a cycle for owner beginning on start.
func startCycle(t *testing.T, e *engine, owner momentum.OwnerID, start momentum.Day) *momentum.CycleInit {
	t.Helper()
	init, err := e.lifecycle.Initialize(context.Background(), owner, "Test Cycle", "Become undeniable", start, testGoals())
	require.NoError(t, err)
	return init
}

// completeDay checks off every seeded action dated on day.
func completeDay(t *testing.T, e *engine, owner momentum.OwnerID, cycleID momentum.CycleID, day momentum.Day) {
	t.Helper()
	ctx := context.Background()
	actions, err := e.store.ActionsOn(ctx, cycleID, day)
	require.NoError(t, err)
	require.NotEmpty(t, actions, "no seeded actions on %s", day)
	for _, a := range actions {
		_, err := e.exec.CheckOff(ctx, a.ID, owner, nil)
		require.NoError(t, err)
	}
}

// seedWeeklyScore writes a weekly score row directly, bypassing the
// aggregator, for shaping score history.
func seedWeeklyScore(t *testing.T, e *engine, owner momentum.OwnerID, cycle *momentum.Cycle, week, score int) {
	t.Helper()
	err := e.store.UpsertWeeklyScore(context.Background(), momentum.WeeklyScore{
		ID:         momentum.NewID(),
		OwnerID:    owner,
		CycleID:    cycle.ID,
		WeekNumber: week,
		WeekStart:  momentum.WeekStart(cycle, week),
		Score:      score,
	})
	require.NoError(t, err)
}
