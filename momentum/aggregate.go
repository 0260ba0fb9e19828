/*
aggregate.go - Score aggregation and the coach context

PURPOSE:
  Orchestrates the engine: rebuilds weekly scores from daily completions,
  applies shield overrides, derives streaks and momentum state, and
  assembles the CoachContext consumed by the external text-generation
  collaborator. The core's responsibility ends at producing that context;
  rendering or streaming the coaching text is someone else's job.

STALENESS:
  Aggregates are derived state. RecomputeWeek always rebuilds from the
  daily completions, and IsShielded is re-derived from the credit ledger
  on every recompute - which is exactly how a revoked shield reverts the
  week to its computed score on the next read.

ERRORS:
  Summarize aggregates the first error from its dependents and never
  partially applies a summary. A missing active cycle is an explicit
  empty result (nil, nil), not an error.
*/
package momentum

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// COACH CONTEXT - Sole payload for the text-generation collaborator
// =============================================================================

type CoachContext struct {
	Vision        string `json:"vision"`
	CurrentGoal   string `json:"currentGoal"`
	WeeklyScore   int    `json:"weeklyScore"`
	DailyScore    int    `json:"dailyScore"`
	Streak        int    `json:"streak"`
	IsShielded    bool   `json:"isShielded"`
	CurrentWeek   int    `json:"currentWeek"`
	RemainingDays int    `json:"remainingDays"`
}

// =============================================================================
// SUMMARY - Read-only view for renderers
// =============================================================================

type Summary struct {
	Cycle            Cycle
	CurrentWeek      int
	RemainingDays    int
	TodayActions     []DailyAction // capped at MonkModeMaxTasks
	DailyScore       int
	Week             WeeklyScore // the raw recomputed row
	DisplayScore     int         // shield-aware
	Status           ExecutionStatus
	Momentum         MomentumState
	WinningStreak    int
	LosingStreak     int
	RemainingCredits int
	Coach            CoachContext
}

// =============================================================================
// AGGREGATION SERVICE
// =============================================================================

type AggregationService struct {
	store  TxStore
	scores ScoreConfig
	quota  int
	now    func() time.Time
}

func NewAggregationService(store TxStore) *AggregationService {
	return &AggregationService{
		store:  store,
		scores: DefaultScoreConfig(),
		quota:  ShieldQuota,
		now:    time.Now,
	}
}

// SetScoreConfig overrides the classification thresholds.
func (s *AggregationService) SetScoreConfig(cfg ScoreConfig) { s.scores = cfg }

// SetClock overrides the wall clock. Test hook.
func (s *AggregationService) SetClock(now func() time.Time) { s.now = now }

// RecomputeWeek rebuilds the weekly score row for (cycle, week) from the
// daily completions and upserts it. The daily score for each of the
// week's 7 days is computed against the Monk Mode denominator; days with
// no completions score 0. IsShielded is re-derived from the ledger.
func (s *AggregationService) RecomputeWeek(ctx context.Context, owner OwnerID, cycle *Cycle, week int) (*WeeklyScore, error) {
	if week < 1 || week > WeeksPerCycle {
		return nil, &ValidationError{Field: "week_number", Message: fmt.Sprintf("week must be between 1 and %d", WeeksPerCycle)}
	}

	from, to := WeekPeriod(cycle, week)
	actions, err := s.store.ActionsInRange(ctx, cycle.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("loading week actions: %w", err)
	}

	completedByDay := make(map[Day]int, DaysPerWeek)
	tasksCompleted := 0
	for _, a := range actions {
		if a.IsCompleted {
			completedByDay[a.ActionDate]++
			tasksCompleted++
		}
	}

	dailyScores := make([]int, DaysPerWeek)
	for i := 0; i < DaysPerWeek; i++ {
		dailyScores[i] = DailyScore(completedByDay[from.AddDays(i)], MonkModeMaxTasks)
	}

	shield, err := s.store.ActiveCreditForWeek(ctx, owner, cycle.ID, week)
	if err != nil {
		return nil, fmt.Errorf("checking shield: %w", err)
	}

	// Recomputing an existing week keeps its row identity: the upsert keys
	// on (cycle, week) and never rewrites the stored id.
	id := NewID()
	if existing, err := s.store.WeeklyScoreFor(ctx, cycle.ID, week); err != nil {
		return nil, fmt.Errorf("loading weekly score: %w", err)
	} else if existing != nil {
		id = existing.ID
	}

	ws := WeeklyScore{
		ID:             id,
		OwnerID:        owner,
		CycleID:        cycle.ID,
		WeekNumber:     week,
		WeekStart:      from,
		Score:          WeeklyScoreFrom(dailyScores),
		TasksCompleted: tasksCompleted,
		TasksTotal:     len(actions),
		IsShielded:     shield != nil,
		UpdatedAt:      s.now().UTC(),
	}
	if err := s.store.UpsertWeeklyScore(ctx, ws); err != nil {
		return nil, fmt.Errorf("saving weekly score: %w", err)
	}
	return &ws, nil
}

// RefreshStreaks recomputes the owner's streak counters from daily
// completions and writes them through to the profile.
//
// A winning day completes every scheduled action; a losing day completes
// none. Today only extends a winning streak once it is actually won, and
// never counts as a losing day while still in progress, so the losing walk
// anchors on yesterday.
func (s *AggregationService) RefreshStreaks(ctx context.Context, owner OwnerID, cycle *Cycle, today Day) (win, lose int, err error) {
	win, err = s.countStreak(ctx, cycle, today, true, isWinningDay)
	if err != nil {
		return 0, 0, err
	}
	lose, err = s.countStreak(ctx, cycle, today.AddDays(-1), false, isLosingDay)
	if err != nil {
		return 0, 0, err
	}
	if win > 0 {
		lose = 0 // mutually exclusive counters
	}

	profile, err := s.store.GetProfile(ctx, owner)
	if err != nil {
		return 0, 0, fmt.Errorf("loading profile: %w", err)
	}
	if profile == nil {
		profile = &Profile{OwnerID: owner, ShieldCredits: s.quota}
	}
	profile.WinningStreak = win
	profile.LosingStreak = lose
	profile.UpdatedAt = s.now().UTC()
	if err := s.store.SaveProfile(ctx, *profile); err != nil {
		return 0, 0, fmt.Errorf("saving profile: %w", err)
	}
	return win, lose, nil
}

func (s *AggregationService) countStreak(ctx context.Context, cycle *Cycle, from Day, graceFirst bool, qualifies func([]DailyAction) bool) (int, error) {
	streak := 0
	for d := from; d.AfterOrEqual(cycle.StartDate); d = d.AddDays(-1) {
		actions, err := s.store.ActionsOn(ctx, cycle.ID, d)
		if err != nil {
			return 0, fmt.Errorf("loading actions for %s: %w", d, err)
		}
		if !qualifies(actions) {
			// An in-progress first day just means the streak anchors a day
			// earlier; any older miss ends the walk.
			if graceFirst && d.Equal(from) {
				continue
			}
			break
		}
		streak++
	}
	return streak, nil
}

// A winning day completes every scheduled action; a losing day completes none.
func isWinningDay(actions []DailyAction) bool {
	if len(actions) == 0 {
		return false
	}
	for _, a := range actions {
		if !a.IsCompleted {
			return false
		}
	}
	return true
}

func isLosingDay(actions []DailyAction) bool {
	if len(actions) == 0 {
		return false
	}
	for _, a := range actions {
		if a.IsCompleted {
			return false
		}
	}
	return true
}

// Summarize assembles the read-only execution summary for the owner's
// active cycle as of today. Returns (nil, nil) when the owner has no
// active cycle: an explicit empty result, not an error.
func (s *AggregationService) Summarize(ctx context.Context, owner OwnerID, today Day) (*Summary, error) {
	if owner == "" {
		return nil, ErrUnauthorized
	}

	cycle, err := s.store.ActiveCycle(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("loading active cycle: %w", err)
	}
	if cycle == nil {
		return nil, nil
	}

	week := CurrentWeek(cycle, today)
	remaining := RemainingDays(cycle, today)

	// Today's actions, ordered by creation time and capped at the Monk
	// Mode ceiling at read time, however many rows the day actually has.
	todayActions, err := s.store.ActionsOn(ctx, cycle.ID, today)
	if err != nil {
		return nil, fmt.Errorf("loading today's actions: %w", err)
	}
	completedToday := 0
	for _, a := range todayActions {
		if a.IsCompleted {
			completedToday++
		}
	}
	if len(todayActions) > MonkModeMaxTasks {
		todayActions = todayActions[:MonkModeMaxTasks]
	}
	daily := DailyScore(completedToday, MonkModeMaxTasks)

	// Recompute rather than trust a possibly stale row; this also folds
	// in any shield revocation since the last write.
	week_, err := s.RecomputeWeek(ctx, owner, cycle, week)
	if err != nil {
		return nil, err
	}

	var previous *int
	if week > 1 {
		prev, err := s.store.WeeklyScoreFor(ctx, cycle.ID, week-1)
		if err != nil {
			return nil, fmt.Errorf("loading previous week: %w", err)
		}
		if prev != nil {
			previous = &prev.Score
		}
	}
	display := DisplayScore(week_.Score, week_.IsShielded, previous)
	status := s.scores.ExecutionStatus(display, week_.IsShielded)

	winStreak, loseStreak, err := s.RefreshStreaks(ctx, owner, cycle, today)
	if err != nil {
		return nil, err
	}
	momentum := s.scores.MomentumState(winStreak, loseStreak)

	creditCount, err := s.store.CountActiveCredits(ctx, owner, cycle.ID)
	if err != nil {
		return nil, fmt.Errorf("counting credits: %w", err)
	}

	profile, err := s.store.GetProfile(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	vision := DefaultVision
	if profile != nil && profile.Vision != "" {
		vision = profile.Vision
	} else if cycle.Vision != "" {
		vision = cycle.Vision
	}

	goals, err := s.store.GoalsByCycle(ctx, cycle.ID)
	if err != nil {
		return nil, fmt.Errorf("loading goals: %w", err)
	}
	currentGoal := DefaultGoalTitle
	if len(goals) > 0 {
		currentGoal = goals[0].Title // priority ascending, 1 = highest
	}

	return &Summary{
		Cycle:            *cycle,
		CurrentWeek:      week,
		RemainingDays:    remaining,
		TodayActions:     todayActions,
		DailyScore:       daily,
		Week:             *week_,
		DisplayScore:     display,
		Status:           status,
		Momentum:         momentum,
		WinningStreak:    winStreak,
		LosingStreak:     loseStreak,
		RemainingCredits: max(0, s.quota-creditCount),
		Coach: CoachContext{
			Vision:        vision,
			CurrentGoal:   currentGoal,
			WeeklyScore:   display,
			DailyScore:    daily,
			Streak:        winStreak,
			IsShielded:    week_.IsShielded,
			CurrentWeek:   week,
			RemainingDays: remaining,
		},
	}, nil
}
