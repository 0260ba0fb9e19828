/*
execution.go - Daily action completion toggles

PURPOSE:
  The only mutation path for daily actions after the fan-out. Completion
  is a coupled pair: is_completed and completed_at are set together and
  cleared together, and the optional energy level is cleared with them.

  Every toggle triggers a recompute of the affected week's score and a
  refresh of the owner's streak counters, so the aggregates the UI reads
  are never stale relative to the completions.
*/
package momentum

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// EXECUTION SERVICE
// =============================================================================

type ExecutionService struct {
	store TxStore
	agg   *AggregationService
	now   func() time.Time
}

func NewExecutionService(store TxStore, agg *AggregationService) *ExecutionService {
	return &ExecutionService{store: store, agg: agg, now: time.Now}
}

// SetClock overrides the wall clock. Test hook.
func (e *ExecutionService) SetClock(now func() time.Time) { e.now = now }

// CheckOff marks an action completed, stamping CompletedAt and recording
// the optional energy level. Re-checking an already-completed action
// refreshes the stamp rather than failing.
func (e *ExecutionService) CheckOff(ctx context.Context, actionID ActionID, owner OwnerID, energy *int) (*DailyAction, error) {
	if energy != nil && (*energy < MinEnergyLevel || *energy > MaxEnergyLevel) {
		return nil, &ValidationError{Field: "energy_level", Message: fmt.Sprintf("energy level must be between %d and %d", MinEnergyLevel, MaxEnergyLevel)}
	}
	completedAt := e.now().UTC()
	return e.toggle(ctx, actionID, owner, true, &completedAt, energy)
}

// Uncheck clears a completion: CompletedAt and EnergyLevel are nulled
// together with the flag.
func (e *ExecutionService) Uncheck(ctx context.Context, actionID ActionID, owner OwnerID) (*DailyAction, error) {
	return e.toggle(ctx, actionID, owner, false, nil, nil)
}

func (e *ExecutionService) toggle(ctx context.Context, actionID ActionID, owner OwnerID, completed bool, completedAt *time.Time, energy *int) (*DailyAction, error) {
	if owner == "" {
		return nil, ErrUnauthorized
	}

	action, err := e.store.GetAction(ctx, actionID)
	if err != nil {
		return nil, fmt.Errorf("loading action: %w", err)
	}
	if action == nil || action.OwnerID != owner {
		return nil, &NotFoundError{Kind: "action"}
	}

	if err := e.store.SetActionCompletion(ctx, actionID, completed, completedAt, energy); err != nil {
		return nil, fmt.Errorf("updating completion: %w", err)
	}
	action.IsCompleted = completed
	action.CompletedAt = completedAt
	action.EnergyLevel = energy

	cycle, err := e.store.GetCycle(ctx, action.CycleID)
	if err != nil {
		return nil, fmt.Errorf("loading cycle: %w", err)
	}
	if cycle == nil {
		return nil, &IntegrityError{Invariant: "action-cycle link", Detail: "action references a missing cycle"}
	}

	// Completion changed, so the week's aggregate and the streak counters
	// derived from completions are stale. Recompute both now.
	week := WeekOf(cycle, action.ActionDate)
	if _, err := e.agg.RecomputeWeek(ctx, owner, cycle, week); err != nil {
		return nil, err
	}
	if _, _, err := e.agg.RefreshStreaks(ctx, owner, cycle, DayOf(e.now())); err != nil {
		return nil, err
	}

	return action, nil
}
