package momentum_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeterna/momentum-engine/momentum"
)

func TestCycleEnd_InclusiveSpan(t *testing.T) {
	// GIVEN: A cycle starting January 1
	// WHEN: Computing the end date
	// THEN: The end is day 84 inclusive (March 25 in a non-leap year)

	start := momentum.NewDay(2025, time.January, 1)
	end := momentum.CycleEnd(start)

	assert.Equal(t, "2025-03-25", end.String())
	assert.Equal(t, 84, momentum.DaysBetween(start, end)+1)
}

func TestCurrentWeek_BoundariesAndClamping(t *testing.T) {
	start := momentum.NewDay(2025, time.January, 1)
	cycle := &momentum.Cycle{StartDate: start, EndDate: momentum.CycleEnd(start)}

	// Days 1-7 are week 1; day 8 starts week 2
	assert.Equal(t, 1, momentum.CurrentWeek(cycle, start))
	assert.Equal(t, 1, momentum.CurrentWeek(cycle, start.AddDays(6)))
	assert.Equal(t, 2, momentum.CurrentWeek(cycle, start.AddDays(7)))
	assert.Equal(t, 12, momentum.CurrentWeek(cycle, start.AddDays(83)))

	// Outside the span clamps to the nearest valid week
	assert.Equal(t, 1, momentum.CurrentWeek(cycle, start.AddDays(-10)))
	assert.Equal(t, 12, momentum.CurrentWeek(cycle, start.AddDays(200)))
}

func TestWeekPeriod_SevenDayWindows(t *testing.T) {
	start := momentum.NewDay(2025, time.January, 1)
	cycle := &momentum.Cycle{StartDate: start, EndDate: momentum.CycleEnd(start)}

	from, to := momentum.WeekPeriod(cycle, 1)
	assert.Equal(t, "2025-01-01", from.String())
	assert.Equal(t, "2025-01-07", to.String())

	from, to = momentum.WeekPeriod(cycle, 12)
	assert.Equal(t, "2025-03-19", from.String())
	assert.Equal(t, "2025-03-25", to.String())
}

func TestRemainingDays_NeverNegative(t *testing.T) {
	start := momentum.NewDay(2025, time.January, 1)
	cycle := &momentum.Cycle{StartDate: start, EndDate: momentum.CycleEnd(start)}

	assert.Equal(t, 83, momentum.RemainingDays(cycle, start))
	assert.Equal(t, 0, momentum.RemainingDays(cycle, cycle.EndDate))
	assert.Equal(t, 0, momentum.RemainingDays(cycle, cycle.EndDate.AddDays(30)))
}

func TestParseDay_RoundTrip(t *testing.T) {
	d, err := momentum.ParseDay("2025-06-15")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-15", d.String())

	_, err = momentum.ParseDay("15/06/2025")
	assert.Error(t, err)
}

func TestDayOf_TruncatesToUTCDate(t *testing.T) {
	// Date assignment follows the UTC clock: a late evening in a western
	// timezone is already the next UTC day.
	loc := time.FixedZone("PST", -8*3600)
	d := momentum.DayOf(time.Date(2025, time.June, 15, 23, 30, 0, 0, loc))
	assert.Equal(t, "2025-06-16", d.String())

	d = momentum.DayOf(time.Date(2025, time.June, 15, 14, 0, 0, 0, time.UTC))
	assert.Equal(t, "2025-06-15", d.String())
}
