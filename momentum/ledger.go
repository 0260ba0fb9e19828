/*
ledger.go - Shield credit ledger

PURPOSE:
  Manages shield credit issuance: quota accounting, duplicate-week
  rejection, the abuse-pattern gate, and atomic activation. A shield
  substitutes the previous week's score for a bad week's display; it is a
  limited resource with exactly-once semantics under concurrent access.

CRITICAL INVARIANTS:
  1. APPEND-ONLY for owners: no update or delete path exists for the
     creating user. Revocation is a separate, elevated-only capability.
  2. At most one non-revoked credit per (owner, cycle, week).
  3. At most ShieldQuota non-revoked credits per (owner, cycle).
  4. The ledger count is authoritative. Any cached "credits remaining"
     counter is derived; when they disagree, the count wins.

CONCURRENCY:
  Activate re-validates and inserts inside one store transaction. The
  store's partial unique index arbitrates same-week races; a post-insert
  recount inside the transaction arbitrates quota races. Two simultaneous
  activations can never both succeed past either limit.

ABUSE GATE:
  detectChronicLowEffort compares a short recent window of weekly scores
  against a longer baseline. The thresholds are heuristic tuning constants
  with no derivation from first principles; they live in AbuseConfig and
  are expected to be tuned.
*/
package momentum

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ABUSE CONFIG - Tunable heuristic thresholds
// =============================================================================

// AbuseConfig parametrizes the chronic-low-effort gate.
type AbuseConfig struct {
	Window          int             // weekly scores fetched, newest first
	RecentWindow    int             // scores forming the "recent" mean
	MinSamples      int             // below this, no judgment is made
	RecentRatio     decimal.Decimal // flag if recent < baseline * ratio ...
	BaselineCeiling decimal.Decimal // ... and baseline < ceiling
}

func DefaultAbuseConfig() AbuseConfig {
	return AbuseConfig{
		Window:          12,
		RecentWindow:    4,
		MinSamples:      8,
		RecentRatio:     decimal.RequireFromString("0.6"),
		BaselineCeiling: decimal.NewFromInt(60),
	}
}

// =============================================================================
// ACTIVATION DECISIONS
// =============================================================================

// Activation reason strings. Returned verbatim so a decision is
// self-explanatory without consulting the rejecting check.
const (
	ReasonNoCreditsRemaining = "No shield credits remaining this cycle"
	ReasonAlreadyShielded    = "Shield already activated for this week"
	ReasonChronicLowEffort   = "Shield rejected: chronic low effort pattern detected"
	ReasonActivationAllowed  = "Shield activation allowed"
)

// ActivationDecision is the outcome of validating a shield activation.
// RemainingCredits always carries the true remaining count, whatever the
// decision, so the caller never needs a second query.
type ActivationDecision struct {
	CanActivate      bool
	Reason           string
	RemainingCredits int
}

// =============================================================================
// CREDIT LEDGER - Owner capability (insert-only)
// =============================================================================

type CreditLedger struct {
	store TxStore
	quota int
	abuse AbuseConfig
	now   func() time.Time
}

func NewCreditLedger(store TxStore) *CreditLedger {
	return &CreditLedger{
		store: store,
		quota: ShieldQuota,
		abuse: DefaultAbuseConfig(),
		now:   time.Now,
	}
}

// SetAbuseConfig overrides the heuristic thresholds.
func (cl *CreditLedger) SetAbuseConfig(cfg AbuseConfig) { cl.abuse = cfg }

// SetClock overrides the wall clock. Test hook.
func (cl *CreditLedger) SetClock(now func() time.Time) { cl.now = now }

// Remaining returns the owner's remaining credits for a cycle, computed
// fresh from the ledger: max(0, quota - non-revoked count).
func (cl *CreditLedger) Remaining(ctx context.Context, owner OwnerID, cycleID CycleID) (int, error) {
	return cl.remaining(ctx, cl.store, owner, cycleID)
}

func (cl *CreditLedger) remaining(ctx context.Context, s Store, owner OwnerID, cycleID CycleID) (int, error) {
	count, err := s.CountActiveCredits(ctx, owner, cycleID)
	if err != nil {
		return 0, fmt.Errorf("counting credits: %w", err)
	}
	return max(0, cl.quota-count), nil
}

// Validate returns an activation decision for (owner, cycle, week). It
// never errors for ordinary business-rule failures - those come back as a
// rejecting decision; only storage faults surface as errors.
//
// Checks run in order: remaining quota, duplicate week, abuse gate.
func (cl *CreditLedger) Validate(ctx context.Context, owner OwnerID, cycleID CycleID, week int) (ActivationDecision, error) {
	return cl.validate(ctx, cl.store, owner, cycleID, week)
}

func (cl *CreditLedger) validate(ctx context.Context, s Store, owner OwnerID, cycleID CycleID, week int) (ActivationDecision, error) {
	remaining, err := cl.remaining(ctx, s, owner, cycleID)
	if err != nil {
		return ActivationDecision{}, err
	}
	if remaining <= 0 {
		return ActivationDecision{Reason: ReasonNoCreditsRemaining, RemainingCredits: 0}, nil
	}

	existing, err := s.ActiveCreditForWeek(ctx, owner, cycleID, week)
	if err != nil {
		return ActivationDecision{}, fmt.Errorf("checking existing shield: %w", err)
	}
	if existing != nil {
		return ActivationDecision{Reason: ReasonAlreadyShielded, RemainingCredits: remaining}, nil
	}

	abusive, err := cl.detectChronicLowEffort(ctx, s, owner)
	if err != nil {
		return ActivationDecision{}, err
	}
	if abusive {
		return ActivationDecision{Reason: ReasonChronicLowEffort, RemainingCredits: remaining}, nil
	}

	return ActivationDecision{CanActivate: true, Reason: ReasonActivationAllowed, RemainingCredits: remaining}, nil
}

// Activate issues a shield credit for (owner, cycle, week). Validation and
// insertion run as one atomic step relative to concurrent activations:
// the store's uniqueness index rejects a same-week race with a
// ConflictError, and an in-transaction recount rejects a quota race.
// Retries of an already-applied activation are rejected as duplicates.
func (cl *CreditLedger) Activate(ctx context.Context, owner OwnerID, cycleID CycleID, week int, reason string) (*MomentumCredit, error) {
	if owner == "" {
		return nil, ErrUnauthorized
	}
	if week < 1 || week > WeeksPerCycle {
		return nil, &ValidationError{Field: "week_number", Message: fmt.Sprintf("week must be between 1 and %d", WeeksPerCycle)}
	}
	if len(strings.TrimSpace(reason)) < MinShieldReasonLength {
		return nil, &ValidationError{Field: "reason", Message: fmt.Sprintf("please provide a reason (min %d chars)", MinShieldReasonLength)}
	}

	cycle, err := cl.store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("loading cycle: %w", err)
	}
	if cycle == nil || cycle.OwnerID != owner {
		return nil, &NotFoundError{Kind: "cycle"}
	}
	if cycle.Status != CycleActive {
		return nil, &StateError{Message: "cannot shield a week of a closed cycle"}
	}

	credit := MomentumCredit{
		ID:         CreditID(NewID()),
		OwnerID:    owner,
		CycleID:    cycleID,
		WeekNumber: week,
		Reason:     strings.TrimSpace(reason),
		AppliedAt:  cl.now().UTC(),
	}

	err = cl.store.WithTx(ctx, func(tx Store) error {
		decision, err := cl.validate(ctx, tx, owner, cycleID, week)
		if err != nil {
			return err
		}
		if !decision.CanActivate {
			return &StateError{Message: decision.Reason}
		}

		if err := tx.InsertCredit(ctx, credit); err != nil {
			if errors.Is(err, ErrWeekAlreadyShielded) {
				// Lost the same-week race at the index.
				return &ConflictError{Message: ReasonAlreadyShielded}
			}
			return fmt.Errorf("inserting credit: %w", err)
		}

		// Recount inside the transaction: two activations that would
		// jointly exceed the quota must not both commit.
		count, err := tx.CountActiveCredits(ctx, owner, cycleID)
		if err != nil {
			return fmt.Errorf("recounting credits: %w", err)
		}
		if count > cl.quota {
			return &ConflictError{Message: ReasonNoCreditsRemaining}
		}

		// Refresh the derived credits cache on the profile. The ledger
		// count above stays authoritative; this is display-only.
		profile, err := tx.GetProfile(ctx, owner)
		if err != nil {
			return fmt.Errorf("loading profile: %w", err)
		}
		if profile == nil {
			profile = &Profile{OwnerID: owner}
		}
		profile.ShieldCredits = max(0, cl.quota-count)
		profile.UpdatedAt = credit.AppliedAt
		if err := tx.SaveProfile(ctx, *profile); err != nil {
			return fmt.Errorf("saving profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &credit, nil
}

// DetectChronicLowEffort flags shield abuse by comparing the most recent
// weekly scores against a longer baseline. With fewer than MinSamples
// scores it returns false: insufficient history is explicit non-judgment,
// not an endorsement.
func (cl *CreditLedger) DetectChronicLowEffort(ctx context.Context, owner OwnerID) (bool, error) {
	return cl.detectChronicLowEffort(ctx, cl.store, owner)
}

func (cl *CreditLedger) detectChronicLowEffort(ctx context.Context, s Store, owner OwnerID) (bool, error) {
	scores, err := s.RecentScores(ctx, owner, cl.abuse.Window)
	if err != nil {
		return false, fmt.Errorf("loading score history: %w", err)
	}
	if len(scores) < cl.abuse.MinSamples {
		return false, nil
	}

	baseline := meanOf(scores)
	recent := meanOf(scores[:cl.abuse.RecentWindow])

	return recent.LessThan(baseline.Mul(cl.abuse.RecentRatio)) &&
		baseline.LessThan(cl.abuse.BaselineCeiling), nil
}

func meanOf(scores []int) decimal.Decimal {
	sum := decimal.Zero
	for _, s := range scores {
		sum = sum.Add(decimal.NewFromInt(int64(s)))
	}
	return sum.Div(decimal.NewFromInt(int64(len(scores))))
}

// =============================================================================
// CREDIT ADMINISTRATOR - Elevated capability (revoke-only)
// =============================================================================

// CreditAdministrator is the elevated principal's capability over the
// ledger. It is deliberately a separate type from CreditLedger: owners
// hold an insert-only capability, administrators a revoke-only one.
type CreditAdministrator struct {
	store TxStore
	now   func() time.Time
}

func NewCreditAdministrator(store TxStore) *CreditAdministrator {
	return &CreditAdministrator{store: store, now: time.Now}
}

// SetClock overrides the wall clock. Test hook.
func (a *CreditAdministrator) SetClock(now func() time.Time) { a.now = now }

// Revoke marks a credit revoked. The credit's own owner can never revoke;
// the week it covered reverts to its computed score on the next
// aggregation, not eagerly.
func (a *CreditAdministrator) Revoke(ctx context.Context, creditID CreditID, revokerID string) (*MomentumCredit, error) {
	if revokerID == "" {
		return nil, ErrUnauthorized
	}

	credit, err := a.store.GetCredit(ctx, creditID)
	if err != nil {
		return nil, fmt.Errorf("loading credit: %w", err)
	}
	if credit == nil {
		return nil, &NotFoundError{Kind: "credit"}
	}
	if string(credit.OwnerID) == revokerID {
		return nil, ErrUnauthorized
	}
	if credit.Revoked {
		return nil, &StateError{Message: "credit is already revoked"}
	}

	revokedAt := a.now().UTC()
	swapped, err := a.store.RevokeCredit(ctx, creditID, revokerID, revokedAt)
	if err != nil {
		return nil, fmt.Errorf("revoking credit: %w", err)
	}
	if !swapped {
		return nil, &StateError{Message: "credit is already revoked"}
	}

	credit.Revoked = true
	credit.RevokedAt = &revokedAt
	credit.RevokedBy = revokerID
	return credit, nil
}
