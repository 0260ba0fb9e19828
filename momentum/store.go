/*
store.go - Persistence interface for the momentum engine

PURPOSE:
  Defines the boundary between the engine and the durable store. The store
  is the only shared mutable resource in the system; every serializing
  mechanism the engine relies on lives behind this interface.

CONTRACT HIGHLIGHTS:
  - InsertCredit MUST enforce at-most-one non-revoked credit per
    (owner, cycle, week) and return ErrWeekAlreadyShielded on violation.
    This is the arbitration point for concurrent shield activations.
  - DeactivateTactic is a compare-and-swap: it flips is_active true->false
    and reports whether it actually swapped. A false return means a
    concurrent fork got there first.
  - CloseCycle is the same CAS shape for the active->closed transition.
  - UpsertWeeklyScore keys on (cycle, week): weekly scores are recomputed,
    never appended.
  - Credits have no owner-facing update or delete. RevokeCredit is the only
    mutation and is invoked exclusively by the administrator capability.

TRANSACTIONS:
  TxStore.WithTx runs a function against a transactional view. Any error
  rolls the whole unit back. Cycle initialization (cycle + goals + 84
  actions), tactic forks, and shield activations each run as one unit.

IMPLEMENTATIONS:
  - store/sqlite:       production store (database/sql + SQLite, WAL)
  - momentum/store:     in-memory store for tests and development
*/
package momentum

import (
	"context"
	"time"
)

// Store is the durable-state boundary. All reads and writes may suspend
// awaiting the underlying database; pure score math never touches it.
type Store interface {
	// --- Cycles ---

	InsertCycle(ctx context.Context, c Cycle) error
	GetCycle(ctx context.Context, id CycleID) (*Cycle, error)

	// ActiveCycle returns the owner's active cycle, or nil if none.
	ActiveCycle(ctx context.Context, owner OwnerID) (*Cycle, error)

	// CloseCycle transitions active -> closed, stamping ClosedAt and
	// FinalScore. Returns false if the cycle was not active (CAS failed).
	CloseCycle(ctx context.Context, id CycleID, closedAt time.Time, finalScore string) (bool, error)

	// --- Goals ---

	InsertGoal(ctx context.Context, g Goal) error
	GetGoal(ctx context.Context, id GoalID) (*Goal, error)

	// GoalsByCycle returns goals ordered by priority ascending.
	GoalsByCycle(ctx context.Context, cycleID CycleID) ([]Goal, error)

	// --- Tactics ---

	InsertTactic(ctx context.Context, t Tactic) error
	GetTactic(ctx context.Context, id TacticID) (*Tactic, error)

	// DeactivateTactic flips is_active true -> false for the given revision.
	// Returns false if the revision was already inactive (CAS failed).
	DeactivateTactic(ctx context.Context, id TacticID) (bool, error)

	// ActiveTactics returns the active heads for a goal, ordered by
	// creation time ascending.
	ActiveTactics(ctx context.Context, goalID GoalID) ([]Tactic, error)

	// --- Daily actions ---

	InsertActions(ctx context.Context, actions []DailyAction) error
	GetAction(ctx context.Context, id ActionID) (*DailyAction, error)
	CountActions(ctx context.Context, cycleID CycleID) (int, error)

	// ActionsOn returns a cycle's actions for one date, ordered by
	// creation time ascending.
	ActionsOn(ctx context.Context, cycleID CycleID, date Day) ([]DailyAction, error)

	// ActionsInRange returns a cycle's actions with ActionDate in
	// [from, to], ordered by date then creation time.
	ActionsInRange(ctx context.Context, cycleID CycleID, from, to Day) ([]DailyAction, error)

	// SetActionCompletion writes the coupled completion pair. A clear
	// (completed=false) must null CompletedAt and EnergyLevel together.
	SetActionCompletion(ctx context.Context, id ActionID, completed bool, completedAt *time.Time, energy *int) error

	// --- Momentum credits ---

	// InsertCredit appends a credit. Returns ErrWeekAlreadyShielded if a
	// non-revoked credit already covers (owner, cycle, week).
	InsertCredit(ctx context.Context, c MomentumCredit) error

	GetCredit(ctx context.Context, id CreditID) (*MomentumCredit, error)

	// CountActiveCredits counts non-revoked credits for (owner, cycle).
	CountActiveCredits(ctx context.Context, owner OwnerID, cycleID CycleID) (int, error)

	// ActiveCreditForWeek returns the non-revoked credit covering the week,
	// or nil if the week is unshielded.
	ActiveCreditForWeek(ctx context.Context, owner OwnerID, cycleID CycleID, week int) (*MomentumCredit, error)

	// CreditsByCycle returns all credits (revoked included) for display,
	// ordered by week number ascending.
	CreditsByCycle(ctx context.Context, owner OwnerID, cycleID CycleID) ([]MomentumCredit, error)

	// RevokeCredit marks a credit revoked. Returns false if it was
	// already revoked (CAS failed).
	RevokeCredit(ctx context.Context, id CreditID, revokedBy string, revokedAt time.Time) (bool, error)

	// --- Weekly scores ---

	// UpsertWeeklyScore inserts or replaces the row keyed (cycle, week).
	UpsertWeeklyScore(ctx context.Context, ws WeeklyScore) error

	WeeklyScoreFor(ctx context.Context, cycleID CycleID, week int) (*WeeklyScore, error)

	// WeeklyScoresByCycle returns scores ordered by week number ascending.
	WeeklyScoresByCycle(ctx context.Context, cycleID CycleID) ([]WeeklyScore, error)

	// RecentScores returns up to limit weekly score values for the owner
	// across all cycles, newest week first. Feeds the abuse heuristic.
	RecentScores(ctx context.Context, owner OwnerID, limit int) ([]int, error)

	// --- Profiles ---

	// GetProfile returns the owner's profile, or nil if none exists.
	GetProfile(ctx context.Context, owner OwnerID) (*Profile, error)

	// SaveProfile upserts the profile.
	SaveProfile(ctx context.Context, p Profile) error
}

// TxStore wraps Store with transaction support.
//
// WithTx executes fn against a transactional view of the store. If fn
// returns an error the transaction rolls back entirely; cancellation or
// timeout mid-flight has the same all-or-nothing effect.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
