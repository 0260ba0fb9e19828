/*
errors.go - Centralized error taxonomy for the momentum engine

PURPOSE:
  All error classes in one place for consistency and discoverability.
  Services return structured errors that wrap one of the sentinel classes,
  so callers can dispatch with errors.Is without string matching.

ERROR CLASSES:
  ErrValidation   - malformed/out-of-range input; recoverable, surfaced verbatim
  ErrUnauthorized - no owner, or owner mismatch; surfaced as a generic denial
  ErrNotFound     - entity missing or not owned by the caller
  ErrState        - operation invalid for current entity state
  ErrConflict     - uniqueness violation (second active cycle, shield race)
  ErrIntegrity    - broken invariant (wrong fan-out count, two active heads);
                    FATAL: aborts the enclosing transaction, never downgraded

USAGE:
  if errors.Is(err, momentum.ErrState) { ... }

  var verr *momentum.ValidationError
  if errors.As(err, &verr) { field := verr.Field ... }
*/
package momentum

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the class for malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized is the class for missing or mismatched owner identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is the class for a missing entity, or one not owned by
	// the caller (not-owned is deliberately indistinguishable from missing).
	ErrNotFound = errors.New("not found")

	// ErrState is the class for operations invalid in the entity's current
	// state: editing an inactive tactic, closing a closed cycle, shielding
	// an already-shielded week.
	ErrState = errors.New("invalid state")

	// ErrConflict is the class for uniqueness violations.
	ErrConflict = errors.New("conflict")

	// ErrIntegrity is the class for broken engine invariants. Fatal.
	ErrIntegrity = errors.New("integrity violation")

	// ErrWeekAlreadyShielded is returned by stores when the partial unique
	// index on (owner, cycle, week, revoked=false) rejects a credit insert.
	// This is the serializing mechanism for concurrent shield activations.
	ErrWeekAlreadyShielded = errors.New("week already shielded")

	// ErrStaleTacticHead is returned when a fork targets a head that a
	// concurrent fork already deactivated. The compare-and-swap on the
	// head's active flag failed; the caller must re-read the lineage.
	ErrStaleTacticHead = errors.New("tactic head already superseded")

	// ErrActiveCycleExists is returned when initialization finds another
	// active cycle for the same owner.
	ErrActiveCycleExists = errors.New("an active cycle already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a specific invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StateError explains which state precondition was violated.
type StateError struct {
	Message string
}

func (e *StateError) Error() string { return e.Message }

func (e *StateError) Unwrap() error { return ErrState }

// ConflictError reports a uniqueness violation.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError names the kind of entity that was not found. It carries no
// id on purpose: callers must not learn whether an unowned entity exists.
type NotFoundError struct {
	Kind string
}

func (e *NotFoundError) Error() string { return e.Kind + " not found" }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// IntegrityError describes a broken invariant. Fatal: the enclosing
// transaction must abort and the error must propagate unswallowed.
type IntegrityError struct {
	Invariant string
	Detail    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation (%s): %s", e.Invariant, e.Detail)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input or
// a recoverable business-rule rejection.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrState) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrWeekAlreadyShielded) ||
		errors.Is(err, ErrStaleTacticHead) ||
		errors.Is(err, ErrActiveCycleExists)
}

// IsNotFound returns true if the error indicates a missing (or unowned) entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsFatal returns true for integrity violations that must not be retried
// or downgraded.
func IsFatal(err error) bool { return errors.Is(err, ErrIntegrity) }
