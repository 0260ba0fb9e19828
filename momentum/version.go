/*
version.go - Tactic version chain (copy-on-write)

PURPOSE:
  Manages the tactic revision graph. Updates never mutate a revision in
  place: a fork deactivates the current head and inserts a new immutable
  head with Version+1, linked back via PreviousVersionID.

FORK PROTOCOL:
  1. Load the targeted head; it must be active.
  2. In one transaction: compare-and-swap its is_active flag false, then
     insert the new head. If the CAS fails the head was superseded by a
     concurrent fork and the call fails with a StateError - it never
     silently overwrites.
  3. The NEW id is returned. Callers must repoint all future references;
     the old id stays valid for historical reads but is permanently inert
     for mutation.

INVARIANT:
  Exactly one active revision per lineage at all times, even under
  concurrent forks.
*/
package momentum

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// VERSION CHAIN
// =============================================================================

type VersionChain struct {
	store TxStore
	now   func() time.Time
}

func NewVersionChain(store TxStore) *VersionChain {
	return &VersionChain{store: store, now: time.Now}
}

// SetClock overrides the wall clock. Test hook.
func (v *VersionChain) SetClock(now func() time.Time) { v.now = now }

// TacticPatch carries the fields a fork may change. Nil fields are copied
// from the head unchanged.
type TacticPatch struct {
	Title       *string
	Description *string
	Weight      *int
}

// Create starts a new lineage: version 1, active.
// A zero weight defaults to MinTacticWeight.
func (v *VersionChain) Create(ctx context.Context, goalID GoalID, owner OwnerID, title, description string, weight int) (*Tactic, error) {
	if owner == "" {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(title) == "" {
		return nil, &ValidationError{Field: "title", Message: "tactic title is required"}
	}
	if weight == 0 {
		weight = MinTacticWeight
	}
	if weight < MinTacticWeight || weight > MaxTacticWeight {
		return nil, &ValidationError{Field: "weight", Message: fmt.Sprintf("weight must be between %d and %d", MinTacticWeight, MaxTacticWeight)}
	}

	goal, err := v.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("loading goal: %w", err)
	}
	if goal == nil {
		return nil, &NotFoundError{Kind: "goal"}
	}
	cycle, err := v.store.GetCycle(ctx, goal.CycleID)
	if err != nil {
		return nil, fmt.Errorf("loading cycle: %w", err)
	}
	if cycle == nil || cycle.OwnerID != owner {
		return nil, &NotFoundError{Kind: "goal"}
	}

	t := Tactic{
		ID:          TacticID(NewID()),
		GoalID:      goalID,
		OwnerID:     owner,
		Title:       strings.TrimSpace(title),
		Description: description,
		Weight:      weight,
		IsActive:    true,
		Version:     1,
		CreatedAt:   v.now().UTC(),
	}
	if err := v.store.InsertTactic(ctx, t); err != nil {
		return nil, fmt.Errorf("inserting tactic: %w", err)
	}
	return &t, nil
}

// Fork supersedes the head at headID with a new revision carrying the patch.
// Returns the NEW revision; the original id becomes permanently inert for
// mutation. Fails with a StateError if the target is not the active head,
// including the case where a concurrent fork deactivated it first.
func (v *VersionChain) Fork(ctx context.Context, headID TacticID, owner OwnerID, patch TacticPatch) (*Tactic, error) {
	if owner == "" {
		return nil, ErrUnauthorized
	}
	if patch.Weight != nil && (*patch.Weight < MinTacticWeight || *patch.Weight > MaxTacticWeight) {
		return nil, &ValidationError{Field: "weight", Message: fmt.Sprintf("weight must be between %d and %d", MinTacticWeight, MaxTacticWeight)}
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, &ValidationError{Field: "title", Message: "tactic title cannot be empty"}
	}

	head, err := v.store.GetTactic(ctx, headID)
	if err != nil {
		return nil, fmt.Errorf("loading tactic: %w", err)
	}
	if head == nil || head.OwnerID != owner {
		return nil, &NotFoundError{Kind: "tactic"}
	}
	if !head.IsActive {
		return nil, &StateError{Message: "cannot update an inactive tactic - use the latest version"}
	}

	next := Tactic{
		ID:                TacticID(NewID()),
		GoalID:            head.GoalID,
		OwnerID:           head.OwnerID,
		Title:             head.Title,
		Description:       head.Description,
		Weight:            head.Weight,
		IsActive:          true,
		Version:           head.Version + 1,
		PreviousVersionID: &head.ID,
		CreatedAt:         v.now().UTC(),
	}
	if patch.Title != nil {
		next.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.Weight != nil {
		next.Weight = *patch.Weight
	}

	err = v.store.WithTx(ctx, func(tx Store) error {
		swapped, err := tx.DeactivateTactic(ctx, head.ID)
		if err != nil {
			return fmt.Errorf("deactivating head: %w", err)
		}
		if !swapped {
			// A concurrent fork deactivated this head after we read it.
			return ErrStaleTacticHead
		}
		if err := tx.InsertTactic(ctx, next); err != nil {
			return fmt.Errorf("inserting new head: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// Retire deactivates a lineage's head without forking, ending the lineage.
func (v *VersionChain) Retire(ctx context.Context, id TacticID, owner OwnerID) error {
	if owner == "" {
		return ErrUnauthorized
	}
	t, err := v.store.GetTactic(ctx, id)
	if err != nil {
		return fmt.Errorf("loading tactic: %w", err)
	}
	if t == nil || t.OwnerID != owner {
		return &NotFoundError{Kind: "tactic"}
	}
	if !t.IsActive {
		return &StateError{Message: "tactic is already inactive"}
	}
	swapped, err := v.store.DeactivateTactic(ctx, id)
	if err != nil {
		return fmt.Errorf("deactivating tactic: %w", err)
	}
	if !swapped {
		return &StateError{Message: "tactic is already inactive"}
	}
	return nil
}

// ListActive returns all lineages' current heads for a goal, ordered by
// creation time ascending.
func (v *VersionChain) ListActive(ctx context.Context, goalID GoalID) ([]Tactic, error) {
	return v.store.ActiveTactics(ctx, goalID)
}

// History returns a lazy walk over the revision chain ending at tailID,
// newest to oldest. The walk is finite and not restartable: each revision
// is fetched on demand, and the sequence ends at the first revision with
// no back-reference or the first lookup miss (end-of-chain, not an error).
func (v *VersionChain) History(tailID TacticID) *History {
	id := tailID
	return &History{store: v.store, nextID: &id}
}

// History is a one-shot iterator over a tactic lineage.
type History struct {
	store  Store
	nextID *TacticID
}

// Next returns the next (older) revision, or nil at end of chain.
func (h *History) Next(ctx context.Context) (*Tactic, error) {
	if h.nextID == nil {
		return nil, nil
	}
	t, err := h.store.GetTactic(ctx, *h.nextID)
	if err != nil {
		return nil, fmt.Errorf("walking history: %w", err)
	}
	if t == nil {
		// Broken back-reference: treated as end-of-chain.
		h.nextID = nil
		return nil, nil
	}
	h.nextID = t.PreviousVersionID
	return t, nil
}

// Collect drains the iterator into a slice, newest first.
func (h *History) Collect(ctx context.Context) ([]Tactic, error) {
	var revisions []Tactic
	for {
		t, err := h.Next(ctx)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return revisions, nil
		}
		revisions = append(revisions, *t)
	}
}
