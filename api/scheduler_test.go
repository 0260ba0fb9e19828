package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeterna/momentum-engine/api"
	"github.com/aeterna/momentum-engine/momentum"
	"github.com/aeterna/momentum-engine/store/sqlite"
)

func newSchedulerFixture(t *testing.T) (*sqlite.Store, *api.RefreshScheduler) {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := api.NewHandler(st, nil)
	return st, api.NewRefreshScheduler(st, h)
}

func TestRefreshScheduler_SweepRefreshesIdleOwners(t *testing.T) {
	// GIVEN: An owner whose cycle started days ago with no check-ins since
	// WHEN: A sweep runs
	// THEN: The losing streak and the current week's score are re-derived
	//       even though the owner never triggered a read

	st, scheduler := newSchedulerFixture(t)
	ctx := context.Background()

	h := scheduler.Handler
	start := momentum.Today().AddDays(-3)
	init, err := h.Lifecycle.Initialize(ctx, "idle-owner", "Test Cycle", "Become undeniable", start, []momentum.GoalInput{
		{Title: "Ship the product", Priority: 1},
	})
	require.NoError(t, err)

	scheduler.RunNow()

	profile, err := st.GetProfile(ctx, "idle-owner")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, 0, profile.WinningStreak)
	assert.Equal(t, 3, profile.LosingStreak)

	scores, err := st.WeeklyScoresByCycle(ctx, init.Cycle.ID)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, 1, scores[0].WeekNumber)
	assert.Equal(t, 0, scores[0].Score)
	assert.Equal(t, 0, scores[0].TasksCompleted)
}

func TestRefreshScheduler_SkipsOwnersWithoutActiveCycles(t *testing.T) {
	st, scheduler := newSchedulerFixture(t)
	ctx := context.Background()

	h := scheduler.Handler
	init, err := h.Lifecycle.Initialize(ctx, "done-owner", "Test Cycle", "", momentum.Today(), []momentum.GoalInput{
		{Title: "Ship the product", Priority: 1},
	})
	require.NoError(t, err)
	_, err = h.Lifecycle.Close(ctx, init.Cycle.ID, "done-owner")
	require.NoError(t, err)

	// Sweeping must not error or resurrect caches for the closed cycle.
	scheduler.RunNow()

	owners, err := st.ActiveOwners(ctx)
	require.NoError(t, err)
	assert.Empty(t, owners)
}

func TestRefreshScheduler_StartStop(t *testing.T) {
	_, scheduler := newSchedulerFixture(t)
	scheduler.CheckInterval = time.Hour

	scheduler.Start()
	scheduler.Stop()

	// A disabled scheduler never arms the ticker; Stop is a no-op.
	_, disabled := newSchedulerFixture(t)
	disabled.Enabled = false
	disabled.Start()
	disabled.Stop()
}
