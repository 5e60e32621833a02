/*
errors.go - Centralized error types for the workflow engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every failure the engine surfaces carries a kind (for the caller to branch
  on with errors.Is) and a human-readable reason. Nothing is swallowed.

ERROR CATEGORIES:
  1. Validation errors  - malformed/missing input, caller can correct
  2. Transition errors  - requested state change not in the allowed table
  3. Permission errors  - role lacks authority for a legal transition
  4. Precondition errors - transition is legal but a business rule blocks it
  5. Idempotency errors - duplicate payment confirmation
  6. Lookup errors      - sale/installment does not exist

USAGE:
  if errors.Is(err, sales.ErrPreconditionFailed) {
      // surface 422 to the caller
  }

SEE ALSO:
  - machine.go: Produces transition/permission/precondition errors
  - orchestrator.go: Propagation policy (fail atomically, never retry)
*/
package sales

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned on malformed or missing input.
	ErrValidation = errors.New("validation failed")

	// ErrIllegalTransition is returned when the requested state change is not
	// in the transition table. Never retried automatically.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrPermissionDenied is returned when the transition is in the table but
	// the actor's role lacks the authority to perform it.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrPreconditionFailed is returned when a transition is structurally
	// legal but a business rule blocks it now (missing return reason,
	// incomplete payments, ...).
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrAlreadyPaid is the idempotency rejection on a duplicate payment
	// confirmation. The first confirmation's state is left untouched.
	ErrAlreadyPaid = errors.New("installment already paid")

	// ErrNotFound is returned when a sale or installment id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateOrderNumber is returned when creating a sale with an
	// order number that already exists.
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError points at the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// IllegalTransitionError records the rejected pair.
type IllegalTransitionError struct {
	Track Track
	From  string
	To    string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition: %s -> %s", e.Track, e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error { return ErrIllegalTransition }

// PermissionError records which role was refused which transition.
type PermissionError struct {
	Role  Role
	Track Track
	From  string
	To    string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("role %q may not perform %s transition %s -> %s",
		e.Role, e.Track, e.From, e.To)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// PreconditionError carries a stable machine-readable code.
//
// Codes in use:
//   "return_reason_required"    returning a sale needs a non-empty reason
//   "service_type_required"     execution needs a service type selected
//   "provider_required"         service type demands a partner provider
//   "correction_note_required"  seller resubmission needs a note
//   "incomplete_payments"       financial completion with unpaid installments
//   "operational_incomplete"    settlement before operational completion
//   "sale_canceled"             canceled sales accept no mutation of any kind
//   "paid_installments"         re-amortization would discard payment history
//   "financially_settled"       re-amortization after financial completion
type PreconditionError struct {
	Code    string
	Message string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s: %s", e.Code, e.Message)
}

func (e *PreconditionError) Unwrap() error { return ErrPreconditionFailed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is the caller's to fix.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrIllegalTransition) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrPreconditionFailed) ||
		errors.Is(err, ErrAlreadyPaid) ||
		errors.Is(err, ErrDuplicateOrderNumber)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
