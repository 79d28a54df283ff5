/*
errors.go - Centralized error types for the reward engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps each class to an HTTP status and a message.

ERROR CATEGORIES:
  1. Client errors - business rule violations (limit, funds, amount, self transfer)
  2. Not found - account or recipient missing
  3. Store errors - permission denied, transient failures

RETRIES:
  Nothing is retried automatically. The user re-triggers the action.

SEE ALSO:
  - ledger.go, transfer.go: Return these errors
  - api/handlers.go: Maps them to HTTP responses
*/
package generic

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrDailyLimitExceeded     = errors.New("daily limit exceeded")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrRecipientNotFound      = errors.New("recipient not found")
	ErrSelfTransferNotAllowed = errors.New("cannot transfer coins to yourself")
	ErrInsufficientFunds      = errors.New("insufficient funds")

	// ErrPermissionDenied is a store-level authorization rejection.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrTransientStore covers network/availability failures (busy, locked, timeout).
	ErrTransientStore = errors.New("store temporarily unavailable")

	// ErrPlaysRemaining is returned when an extra play is requested
	// while the activity still has plays left in the window.
	ErrPlaysRemaining = errors.New("plays remaining in current window")

	// ErrUnknownActivity is returned for activity kinds the catalog doesn't define.
	ErrUnknownActivity = errors.New("unknown activity")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DailyLimitError provides details about a blocked claim.
type DailyLimitError struct {
	UserID      UserID
	Kind        ActivityKind
	Limit       int
	Count       int
	CooldownEnd time.Time
}

func (e *DailyLimitError) Error() string {
	if !e.CooldownEnd.IsZero() {
		return fmt.Sprintf("daily limit exceeded for %s: %d/%d, resets at %s",
			e.Kind, e.Count, e.Limit, e.CooldownEnd.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("daily limit exceeded for %s: %d/%d", e.Kind, e.Count, e.Limit)
}

func (e *DailyLimitError) Unwrap() error { return ErrDailyLimitExceeded }

// InsufficientFundsError provides details about a balance shortage.
type InsufficientFundsError struct {
	UserID    UserID
	Available Amount
	Requested Amount
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s, requested %s", e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// StoreOperation names the kind of access a security rule evaluated.
type StoreOperation string

const (
	OpGet    StoreOperation = "get"
	OpList   StoreOperation = "list"
	OpCreate StoreOperation = "create"
	OpUpdate StoreOperation = "update"
)

// PermissionDeniedError is the structured diagnostic for a rule rejection.
type PermissionDeniedError struct {
	Path      string
	Operation StoreOperation
	Payload   map[string]any
	Actor     UserID
}

func (e *PermissionDeniedError) Error() string {
	actor := string(e.Actor)
	if actor == "" {
		actor = "anonymous"
	}
	return fmt.Sprintf("permission denied: %s %s by %s", e.Operation, e.Path, actor)
}

func (e *PermissionDeniedError) Unwrap() error { return ErrPermissionDenied }

// TransientError wraps a low-level failure that may succeed if re-triggered.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *TransientError) Unwrap() []error { return []error{ErrTransientStore, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to a business rule or invalid input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDailyLimitExceeded) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrSelfTransferNotAllowed) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrPlaysRemaining) ||
		errors.Is(err, ErrUnknownActivity)
}

// IsNotFound returns true if the error indicates a missing account.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrRecipientNotFound)
}

// IsTransient returns true if the error might succeed when re-triggered.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientStore)
}
