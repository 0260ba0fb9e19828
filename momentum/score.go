/*
score.go - Pure score math

PURPOSE:
  The numeric core: daily score, weekly score, display-score override,
  execution-status classification, momentum-state classification.
  Total functions over their documented domains. No I/O, no errors.

ROUNDING:
  Means are computed with decimal arithmetic and rounded half away from
  zero, so 33.33 -> 33 and 49.75 -> 50. Scores are always non-negative,
  which makes this identical to conventional half-up rounding.

TUNING:
  Classification thresholds live in ScoreConfig. The shipped defaults come
  from the product (85/70/50 status bands, 7-day flow streak, 3-day reset
  streak) and are deliberately configurable rather than hard-coded.
*/
package momentum

import "github.com/shopspring/decimal"

// =============================================================================
// CLASSIFICATIONS
// =============================================================================

// ExecutionStatus classifies a weekly score for display.
type ExecutionStatus string

const (
	StatusShielded       ExecutionStatus = "SHIELDED"
	StatusExecutionElite ExecutionStatus = "EXECUTION_ELITE"
	StatusOnTrack        ExecutionStatus = "ON_TRACK"
	StatusWarning        ExecutionStatus = "WARNING"
	StatusCritical       ExecutionStatus = "CRITICAL"
)

// MomentumState drives UI theming from streak counters.
type MomentumState string

const (
	StateFlowVelocity   MomentumState = "FLOW_VELOCITY"
	StateResetSanctuary MomentumState = "RESET_SANCTUARY"
	StateNeutral        MomentumState = "NEUTRAL"
)

// =============================================================================
// SCORE CONFIG - Tunable classification thresholds
// =============================================================================

type ScoreConfig struct {
	EliteThreshold   int // score >= this -> EXECUTION_ELITE
	OnTrackThreshold int // score >= this -> ON_TRACK
	WarningThreshold int // score >= this -> WARNING, below -> CRITICAL
	FlowStreak       int // winning streak >= this -> FLOW_VELOCITY
	ResetStreak      int // losing streak >= this -> RESET_SANCTUARY
}

func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		EliteThreshold:   85,
		OnTrackThreshold: 70,
		WarningThreshold: 50,
		FlowStreak:       7,
		ResetStreak:      3,
	}
}

// =============================================================================
// SCORE FUNCTIONS
// =============================================================================

// DailyScore converts a completed-task count into a 0-100 score against a
// fixed denominator. Completions beyond max are capped, not rewarded.
// max <= 0 falls back to MonkModeMaxTasks.
func DailyScore(completed, max int) int {
	if max <= 0 {
		max = MonkModeMaxTasks
	}
	if completed < 0 {
		completed = 0
	}
	if completed > max {
		completed = max
	}
	score := decimal.NewFromInt(int64(completed)).
		Div(decimal.NewFromInt(int64(max))).
		Mul(decimal.NewFromInt(100))
	return int(score.Round(0).IntPart())
}

// WeeklyScoreFrom averages daily scores into a weekly score, 0 for empty input.
func WeeklyScoreFrom(dailyScores []int) int {
	if len(dailyScores) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, s := range dailyScores {
		sum = sum.Add(decimal.NewFromInt(int64(s)))
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(dailyScores))))
	return int(mean.Round(0).IntPart())
}

// DisplayScore applies the shield override: a shielded week shows the
// previous week's score when one exists. This is the shield's entire
// visible effect; stored history is never altered.
func DisplayScore(current int, isShielded bool, previous *int) int {
	if isShielded && previous != nil {
		return *previous
	}
	return current
}

// ExecutionStatus classifies a score. The shield check always wins,
// regardless of the numeric score.
func (c ScoreConfig) ExecutionStatus(score int, isShielded bool) ExecutionStatus {
	switch {
	case isShielded:
		return StatusShielded
	case score >= c.EliteThreshold:
		return StatusExecutionElite
	case score >= c.OnTrackThreshold:
		return StatusOnTrack
	case score >= c.WarningThreshold:
		return StatusWarning
	default:
		return StatusCritical
	}
}

// MomentumState classifies streak counters. The winning streak takes
// precedence if both thresholds are somehow met at once; streaks are
// mutually exclusive counters so that should not occur.
func (c ScoreConfig) MomentumState(winStreak, loseStreak int) MomentumState {
	switch {
	case winStreak >= c.FlowStreak:
		return StateFlowVelocity
	case loseStreak >= c.ResetStreak:
		return StateResetSanctuary
	default:
		return StateNeutral
	}
}
