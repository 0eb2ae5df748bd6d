/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores wrap driver errors into these sentinels; the HTTP layer maps
  them to status codes through the helpers at the bottom of the file.

ERROR CATEGORIES:
  1. Lookup errors - Missing request, leave type, balance or employee
  2. Workflow errors - Illegal transitions, failed workflow steps
  3. Concurrency errors - Lost compare-and-swap, lock not acquired
  4. Ledger errors - Duplicate idempotency keys, insufficient balance

Validation failures are NOT errors: the validator returns a verdict that
carries both blocking errors and warnings.

USAGE:
  if errors.Is(err, generic.ErrInvalidTransition) {
      var te *generic.InvalidTransitionError
      errors.As(err, &te)
  }

SEE ALSO:
  - leave/workflow.go: Produces InvalidTransitionError and DependencyError
  - api/errors.go: HTTP status mapping
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when a journal entry with the
	// same idempotency key already exists. Expected on retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInsufficientBalance is returned when consumption exceeds the
	// remaining balance at approval time.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrConcurrentModification is returned when a conditional write finds
	// a different status or version than expected.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrLockNotAcquired is returned when a distributed lock stays held by
	// someone else until the context expires.
	ErrLockNotAcquired = errors.New("lock not acquired")

	ErrRequestNotFound   = errors.New("leave request not found")
	ErrLeaveTypeNotFound = errors.New("leave type not found")
	ErrBalanceNotFound   = errors.New("leave balance not found")
	ErrEmployeeNotFound  = errors.New("employee not found")

	// ErrInvalidTransition is returned when a workflow action is not legal
	// from the request's current status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrDependencyFailure marks a failed call to a store, calendar or
	// notification collaborator.
	ErrDependencyFailure = errors.New("dependency failure")

	// ErrBatchRejected is returned when a bulk operation fails batch-level
	// validation (empty or over the size cap).
	ErrBatchRejected = errors.New("batch rejected")

	// ErrInvalidPeriod is returned when an end date precedes its start.
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidTransitionError describes a workflow action attempted from a
// state that does not allow it.
type InvalidTransitionError struct {
	RequestID string
	Action    string
	From      string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s request %s in status %q", e.Action, e.RequestID, e.From)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// DependencyError records which workflow step failed and whether the
// failure aborted the transition.
type DependencyError struct {
	Step  string
	Fatal bool
	Err   error
}

func (e *DependencyError) Error() string {
	kind := "best-effort"
	if e.Fatal {
		kind = "fatal"
	}
	return fmt.Sprintf("%s step %s failed: %v", kind, e.Step, e.Err)
}

// Unwrap exposes both the dependency sentinel and the underlying cause.
func (e *DependencyError) Unwrap() []error {
	return []error{ErrDependencyFailure, e.Err}
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EntityID  EntityID
	PolicyID  PolicyID
	Available Amount
	Requested Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s/%s: available %v, requested %v",
		e.EntityID, e.PolicyID, e.Available.Value, e.Requested.Value)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrLockNotAcquired)
}

// IsClientError returns true if the error is due to the caller's input
// or the request's current state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrBatchRejected) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrLeaveTypeNotFound) ||
		errors.Is(err, ErrBalanceNotFound) ||
		errors.Is(err, ErrEmployeeNotFound)
}
