package momentum

import "time"

// =============================================================================
// DAY - Civil date at day granularity (cycle arithmetic works in whole days)
// =============================================================================

// Day is a calendar date, normalized to UTC midnight. All cycle and week
// arithmetic is done in whole days; clock time never matters to scoring.
type Day struct {
	t time.Time
}

func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf truncates an instant to its UTC calendar date.
func DayOf(t time.Time) Day {
	u := t.UTC()
	return NewDay(u.Year(), u.Month(), u.Day())
}

// Today returns the current UTC calendar date.
func Today() Day { return DayOf(time.Now()) }

// ParseDay parses a YYYY-MM-DD date string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, err
	}
	return DayOf(t), nil
}

// Comparison
func (d Day) Before(other Day) bool        { return d.t.Before(other.t) }
func (d Day) After(other Day) bool         { return d.t.After(other.t) }
func (d Day) Equal(other Day) bool         { return d.t.Equal(other.t) }
func (d Day) BeforeOrEqual(other Day) bool { return !d.After(other) }
func (d Day) AfterOrEqual(other Day) bool  { return !d.Before(other) }

// Arithmetic
func (d Day) AddDays(n int) Day { return Day{t: d.t.AddDate(0, 0, n)} }

// Properties
func (d Day) IsZero() bool    { return d.t.IsZero() }
func (d Day) Time() time.Time { return d.t }
func (d Day) String() string  { return d.t.Format("2006-01-02") }

// DaysBetween returns the signed number of whole days from one date to another.
func DaysBetween(from, to Day) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

// =============================================================================
// CYCLE WEEK ARITHMETIC
// =============================================================================

// CycleEnd returns the inclusive end date of a cycle starting on start.
// An 84-day span: start + 83 days.
func CycleEnd(start Day) Day { return start.AddDays(CycleDays - 1) }

// CurrentWeek returns which 1-based week of the cycle today falls in,
// clamped to [1, 12]. Days before the start clamp to week 1; days past the
// end clamp to week 12.
func CurrentWeek(c *Cycle, today Day) int {
	week := DaysBetween(c.StartDate, today)/DaysPerWeek + 1
	return clamp(week, 1, WeeksPerCycle)
}

// RemainingDays returns whole days from today until the cycle end, never
// negative. On the end date itself zero days remain.
func RemainingDays(c *Cycle, today Day) int {
	return max(0, DaysBetween(today, c.EndDate))
}

// WeekStart returns the first day of the given 1-based week.
func WeekStart(c *Cycle, week int) Day {
	return c.StartDate.AddDays((week - 1) * DaysPerWeek)
}

// WeekPeriod returns the inclusive [start, end] span of the given week.
func WeekPeriod(c *Cycle, week int) (Day, Day) {
	start := WeekStart(c, week)
	return start, start.AddDays(DaysPerWeek - 1)
}

// WeekOf returns which week of the cycle a date falls in, clamped to [1, 12].
func WeekOf(c *Cycle, d Day) int { return CurrentWeek(c, d) }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
