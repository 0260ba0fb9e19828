/*
lifecycle.go - Cycle state transitions and the daily-action fan-out

PURPOSE:
  Creates cycles atomically (cycle + goals + exactly 84 daily actions as
  one unit) and closes them irreversibly with a final score.

ATOMICITY:
  Initialize runs inside a single store transaction. If the fan-out
  under-produces, the count check raises an IntegrityError and the whole
  unit rolls back; a cycle never exists half-seeded.

UNIQUENESS:
  At most one active cycle per owner is a business rule, not a storage
  constraint. It is pre-checked explicitly before the transactional insert
  and fails with ErrActiveCycleExists, rather than relying on the insert to fail.
*/
package momentum

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CYCLE LIFECYCLE
// =============================================================================

type CycleLifecycle struct {
	store TxStore
	now   func() time.Time
}

func NewCycleLifecycle(store TxStore) *CycleLifecycle {
	return &CycleLifecycle{store: store, now: time.Now}
}

// SetClock overrides the wall clock. Test hook.
func (l *CycleLifecycle) SetClock(now func() time.Time) { l.now = now }

// GoalInput describes one goal at cycle initialization.
type GoalInput struct {
	Title        string
	Description  string
	Priority     int // 1..3, 1 = highest
	TargetMetric string
	TargetValue  float64
}

// CycleInit is the result of a successful initialization.
type CycleInit struct {
	Cycle         Cycle
	Goals         []Goal
	DaysGenerated int
}

// Initialize creates a cycle with its goals and exactly CycleDays daily
// actions spanning start..start+83 inclusive, as one atomic unit.
//
// Preconditions: the owner has no other active cycle (pre-checked, fails
// with ErrActiveCycleExists), and 1..3 goals with priorities in {1,2,3}.
// Postcondition: count(DailyAction for the new cycle) == 84, verified
// inside the transaction; a shortfall is an IntegrityError, not a warning.
func (l *CycleLifecycle) Initialize(ctx context.Context, owner OwnerID, name, vision string, start Day, goals []GoalInput) (*CycleInit, error) {
	if owner == "" {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Field: "name", Message: "cycle name is required"}
	}
	if start.IsZero() {
		return nil, &ValidationError{Field: "start_date", Message: "start date is required"}
	}
	if len(goals) < 1 || len(goals) > MaxGoalsPerCycle {
		return nil, &ValidationError{Field: "goals", Message: fmt.Sprintf("between 1 and %d goals required", MaxGoalsPerCycle)}
	}
	for i, g := range goals {
		if strings.TrimSpace(g.Title) == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("goals[%d].title", i), Message: "goal title is required"}
		}
		if g.Priority < 1 || g.Priority > 3 {
			return nil, &ValidationError{Field: fmt.Sprintf("goals[%d].priority", i), Message: "priority must be 1, 2, or 3"}
		}
	}

	// Business-rule pre-check, deliberately outside the transaction: the
	// single-active-cycle rule is not a storage-level constraint.
	existing, err := l.store.ActiveCycle(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("checking active cycle: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w; close it before creating a new one", ErrActiveCycleExists)
	}

	now := l.now().UTC()
	cycle := Cycle{
		ID:        CycleID(NewID()),
		OwnerID:   owner,
		Name:      strings.TrimSpace(name),
		Vision:    strings.TrimSpace(vision),
		StartDate: start,
		EndDate:   CycleEnd(start),
		Status:    CycleActive,
		CreatedAt: now,
	}

	created := make([]Goal, 0, len(goals))
	seedTitle := seedActionTitle(goals)

	err = l.store.WithTx(ctx, func(tx Store) error {
		if err := tx.InsertCycle(ctx, cycle); err != nil {
			return fmt.Errorf("inserting cycle: %w", err)
		}

		for _, in := range goals {
			g := Goal{
				ID:           GoalID(NewID()),
				CycleID:      cycle.ID,
				Title:        strings.TrimSpace(in.Title),
				Description:  in.Description,
				Priority:     in.Priority,
				TargetMetric: in.TargetMetric,
				TargetValue:  in.TargetValue,
				CreatedAt:    now,
			}
			if err := tx.InsertGoal(ctx, g); err != nil {
				return fmt.Errorf("inserting goal: %w", err)
			}
			created = append(created, g)
		}

		// Fan-out: one seeded action per day of the 84-day span.
		actions := make([]DailyAction, CycleDays)
		for i := 0; i < CycleDays; i++ {
			actions[i] = DailyAction{
				ID:         ActionID(NewID()),
				CycleID:    cycle.ID,
				OwnerID:    owner,
				Title:      seedTitle,
				ActionDate: start.AddDays(i),
				CreatedAt:  now,
			}
		}
		if err := tx.InsertActions(ctx, actions); err != nil {
			return fmt.Errorf("seeding daily actions: %w", err)
		}

		count, err := tx.CountActions(ctx, cycle.ID)
		if err != nil {
			return fmt.Errorf("counting seeded actions: %w", err)
		}
		if count != CycleDays {
			return &IntegrityError{
				Invariant: "daily-action fan-out",
				Detail:    fmt.Sprintf("expected %d rows, found %d", CycleDays, count),
			}
		}

		// Thread the vision onto the profile so the coach context can use it.
		if cycle.Vision != "" {
			profile, err := tx.GetProfile(ctx, owner)
			if err != nil {
				return fmt.Errorf("loading profile: %w", err)
			}
			if profile == nil {
				profile = &Profile{OwnerID: owner, ShieldCredits: ShieldQuota}
			}
			profile.Vision = cycle.Vision
			profile.UpdatedAt = now
			if err := tx.SaveProfile(ctx, *profile); err != nil {
				return fmt.Errorf("saving profile: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &CycleInit{Cycle: cycle, Goals: created, DaysGenerated: CycleDays}, nil
}

// Close transitions a cycle from active to closed, stamps ClosedAt, and
// stores the final score: the mean of all weekly scores, or 0 if none.
// Closing twice yields a StateError on the second call, never a silent
// second transition.
func (l *CycleLifecycle) Close(ctx context.Context, cycleID CycleID, caller OwnerID) (*Cycle, error) {
	if caller == "" {
		return nil, ErrUnauthorized
	}

	cycle, err := l.store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("loading cycle: %w", err)
	}
	if cycle == nil || cycle.OwnerID != caller {
		return nil, &NotFoundError{Kind: "cycle"}
	}
	if cycle.Status == CycleClosed {
		return nil, &StateError{Message: "cycle is already closed"}
	}

	scores, err := l.store.WeeklyScoresByCycle(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("loading weekly scores: %w", err)
	}
	final := FinalScore(scores)

	closedAt := l.now().UTC()
	swapped, err := l.store.CloseCycle(ctx, cycleID, closedAt, final.String())
	if err != nil {
		return nil, fmt.Errorf("closing cycle: %w", err)
	}
	if !swapped {
		// Lost the race to a concurrent close.
		return nil, &StateError{Message: "cycle is already closed"}
	}

	cycle.Status = CycleClosed
	cycle.ClosedAt = &closedAt
	cycle.FinalScore = &final
	return cycle, nil
}

// FinalScore computes the close-time score: the mean of all weekly scores
// for the cycle, rounded to two places, or 0 when no weeks were scored.
func FinalScore(scores []WeeklyScore) decimal.Decimal {
	if len(scores) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, ws := range scores {
		sum = sum.Add(decimal.NewFromInt(int64(ws.Score)))
	}
	return sum.Div(decimal.NewFromInt(int64(len(scores)))).Round(2)
}

// seedActionTitle derives the fan-out title from the highest-priority goal.
func seedActionTitle(goals []GoalInput) string {
	best := goals[0]
	for _, g := range goals[1:] {
		if g.Priority < best.Priority {
			best = g
		}
	}
	return strings.TrimSpace(best.Title)
}
