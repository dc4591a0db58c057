package apperr

import (
	"errors"
	"fmt"
)

// Kind is the stable, caller-visible class of a failure
type Kind string

const (
	// Rate sourcing
	KindRateFetch     Kind = "RATE_FETCH_FAILED"    // Feed unreachable, unconfigured or malformed
	KindNoRate        Kind = "NO_RATE_AVAILABLE"    // Neither a live nor a stored rate exists
	KindRateInvariant Kind = "RATE_STORE_INVARIANT" // Active-rate count drifted from one

	// Settlement
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"  // TestWallet cannot cover the buy
	KindInsufficientGold  Kind = "INSUFFICIENT_GOLD"   // Wallet cannot cover the sell
	KindSettlementAborted Kind = "SETTLEMENT_ABORTED"  // Transaction rolled back, safe to retry

	// Input
	KindValidation Kind = "VALIDATION_FAILED"
	KindNotFound   Kind = "NOT_FOUND"

	KindInternal Kind = "INTERNAL_ERROR"
)

// Error carries a Kind, a human-readable message and the underlying cause
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without a cause
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error around an existing cause
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given Kind
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// Message returns the caller-facing message of err
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal error"
}
