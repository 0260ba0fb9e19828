/*
Package momentum implements the Momentum & Execution Scoring Engine.

PURPOSE:
  Tracks a user's 12-week execution cycle: goals, versioned tactics, daily
  actions, and a weekly execution score, with a quota-limited "shield" credit
  that lets a user excuse a bad week a limited number of times.

KEY CONCEPTS IN THIS FILE (types.go):
  - Cycle:          A fixed 84-day execution period, at most one active per owner
  - Goal:           Up to 3 prioritized goals per cycle
  - Tactic:         An immutable revision in a version chain (copy-on-write)
  - DailyAction:    One of exactly 84 seeded rows per cycle; completion toggles only
  - MomentumCredit: An append-only, quota-limited shield grant
  - WeeklyScore:    One recomputed row per (cycle, week)
  - Profile:        Owner vision + derived streak/credit caches

DESIGN PRINCIPLES:
  1. Immutability: tactic revisions and shield credits are never edited in place
  2. Derived caches never win: "remaining credits" and streak counters are
     recomputed from the store; the ledger count is authoritative
  3. Explicit identity: owner id is a parameter on every operation, never
     ambient state

SEE ALSO:
  - week.go:      Day type and cycle week arithmetic
  - score.go:     Pure score math (no I/O)
  - lifecycle.go: Cycle creation and close
  - version.go:   Tactic version chain
  - ledger.go:    Shield credit ledger
  - aggregate.go: Weekly score aggregation and coach context
*/
package momentum

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// CycleDays is the fixed cycle span: 84 days, inclusive (12 weeks).
	CycleDays = 84

	// WeeksPerCycle is the number of scored weeks per cycle.
	WeeksPerCycle = 12

	// DaysPerWeek is used for week boundary arithmetic.
	DaysPerWeek = 7

	// MaxGoalsPerCycle caps goals at cycle initialization.
	MaxGoalsPerCycle = 3

	// MonkModeMaxTasks caps visible daily actions and the daily score
	// denominator at 3, regardless of how many rows a day actually has.
	MonkModeMaxTasks = 3

	// ShieldQuota is the number of non-revoked credits allowed per (owner, cycle).
	ShieldQuota = 3

	// MinShieldReasonLength is the minimum length of a shield activation reason.
	MinShieldReasonLength = 10

	// MinTacticWeight / MaxTacticWeight bound the tactic weight field.
	MinTacticWeight = 1
	MaxTacticWeight = 10

	// MinEnergyLevel / MaxEnergyLevel bound the optional completion energy.
	MinEnergyLevel = 1
	MaxEnergyLevel = 5
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OwnerID string
type CycleID string
type GoalID string
type TacticID string
type ActionID string
type CreditID string

// NewID returns a fresh surrogate id. All entities use UUID strings.
func NewID() string { return uuid.NewString() }

// =============================================================================
// CYCLE - 84-day execution period
// =============================================================================

type CycleStatus string

const (
	CycleActive CycleStatus = "active"
	CycleClosed CycleStatus = "closed"
)

// Cycle is a fixed 84-day execution period.
//
// INVARIANTS:
//   - At most one active cycle per owner at any time (business rule,
//     pre-checked by CycleLifecycle, not a storage constraint).
//   - EndDate = StartDate + 83 days (inclusive 84-day span).
//   - Status transition active -> closed is irreversible; cycles are never deleted.
//   - FinalScore is set only at close (mean of all weekly scores, 0 if none).
type Cycle struct {
	ID         CycleID
	OwnerID    OwnerID
	Name       string
	Vision     string
	StartDate  Day
	EndDate    Day
	Status     CycleStatus
	FinalScore *decimal.Decimal
	ClosedAt   *time.Time
	CreatedAt  time.Time
}

// =============================================================================
// GOAL - Up to 3 per cycle, priority 1 is highest
// =============================================================================

// Goal is immutable after creation except CurrentValue and Description.
type Goal struct {
	ID           GoalID
	CycleID      CycleID
	Title        string
	Description  string
	Priority     int // 1..3, 1 = highest
	TargetMetric string
	TargetValue  float64
	CurrentValue float64
	CreatedAt    time.Time
}

// =============================================================================
// TACTIC - Immutable revision in a version chain
// =============================================================================

// Tactic is one revision in a lineage. Updates never mutate a revision in
// place: a fork deactivates the current head and inserts a new head with
// Version+1 and PreviousVersionID pointing back.
//
// INVARIANT: exactly one revision per lineage has IsActive = true; all
// ancestors are permanently inactive and otherwise immutable.
type Tactic struct {
	ID                TacticID
	GoalID            GoalID
	OwnerID           OwnerID
	Title             string
	Description       string
	Weight            int // 1..10
	IsActive          bool
	Version           int // monotonic, >= 1
	PreviousVersionID *TacticID
	CreatedAt         time.Time
}

// =============================================================================
// DAILY ACTION - Seeded schedule row, completion toggles only
// =============================================================================

// DailyAction is one of the exactly 84 rows seeded at cycle initialization.
// IsCompleted and CompletedAt are a coupled pair: both set or both cleared.
// EnergyLevel is cleared whenever completion is cleared.
type DailyAction struct {
	ID          ActionID
	CycleID     CycleID
	OwnerID     OwnerID
	TacticID    *TacticID // nullable: an action may be unassigned
	Title       string
	ActionDate  Day
	IsCompleted bool
	CompletedAt *time.Time
	EnergyLevel *int // 1..5, optional
	Notes       string
	CreatedAt   time.Time
}

// =============================================================================
// MOMENTUM CREDIT - Append-only shield grant
// =============================================================================

// MomentumCredit shields one week of one cycle by substituting the previous
// week's score for display.
//
// INVARIANTS:
//   - Append-only from the owner's perspective: no update or delete path
//     exists for the creating user.
//   - At most one non-revoked credit per (owner, cycle, week).
//   - At most ShieldQuota non-revoked credits per (owner, cycle).
//   - Revocation fields are settable only by an elevated principal.
type MomentumCredit struct {
	ID         CreditID
	OwnerID    OwnerID
	CycleID    CycleID
	WeekNumber int // 1..12
	Reason     string
	AppliedAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
	RevokedBy  string
}

// =============================================================================
// WEEKLY SCORE - Recomputed aggregate, one row per (cycle, week)
// =============================================================================

// WeeklyScore is recomputed (not appended) whenever the underlying daily
// completions for the week change. IsShielded reflects whether a non-revoked
// credit covers the week as of the last recompute.
type WeeklyScore struct {
	ID             string
	OwnerID        OwnerID
	CycleID        CycleID
	WeekNumber     int
	WeekStart      Day
	Score          int // 0..100
	TasksCompleted int
	TasksTotal     int
	IsShielded     bool
	UpdatedAt      time.Time
}

// =============================================================================
// PROFILE - Owner vision and derived caches
// =============================================================================

// Profile carries the owner's vision statement plus derived counters.
// WinningStreak, LosingStreak, and ShieldCredits are caches recomputed from
// completions and the credit ledger; they must never be trusted over a fresh
// count when the two disagree.
type Profile struct {
	OwnerID       OwnerID
	Vision        string
	WinningStreak int
	LosingStreak  int
	ShieldCredits int
	UpdatedAt     time.Time
}

// DefaultVision is the coach context fallback when no vision is set.
const DefaultVision = "Build a meaningful legacy"

// DefaultGoalTitle is the coach context fallback when a cycle has no goals.
const DefaultGoalTitle = "Focus on execution"
