package market

import (
	"errors"
	"fmt"
	"math/big"
)

// Error represents a failure from one of the marketplace pipelines.
//
// Every pipeline either succeeds and advances or fails and aborts its
// remaining steps; the Error carries enough structure (code + step +
// underlying cause) for a caller to branch on the outcome and display a
// user-facing message. Failures are never logged-and-swallowed.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Step names the pipeline step that failed (for multi-step workflows).
	Step string

	// Err is the underlying cause, if any.
	Err error
}

// Code categorizes pipeline errors.
type Code string

const (
	// CodeNoProvider indicates no signing provider is available.
	// Fatal until the user installs or enables one; all privileged
	// operations must be blocked while this persists.
	CodeNoProvider Code = "NO_PROVIDER"

	// CodeValidation indicates bad user input, caught before any network
	// call. Locally recoverable by re-prompting.
	CodeValidation Code = "VALIDATION"

	// CodePublish indicates a content-store call failed. Recoverable by
	// retrying the whole creation workflow.
	CodePublish Code = "PUBLISH"

	// CodeTx indicates a ledger submission was rejected or its
	// confirmation failed or timed out. Never retried automatically,
	// since resubmission risks duplicate side effects.
	CodeTx Code = "TX"

	// CodeInsufficientFunds indicates the account balance cannot cover a
	// purchase. Checked before submission; no network cost incurred.
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"

	// CodeSync indicates a catalog record failed to resolve. The whole
	// catalog load fails; a partial catalog is never returned.
	CodeSync Code = "SYNC"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s: %s (step=%s)", e.Code, e.Message, e.Step)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the error code from an error, or "" if the error is not
// a pipeline error. Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// IsNoProvider reports whether the error is a missing-provider error.
func IsNoProvider(err error) bool { return CodeOf(err) == CodeNoProvider }

// IsValidation reports whether the error is a validation error.
func IsValidation(err error) bool { return CodeOf(err) == CodeValidation }

// IsPublish reports whether the error is a content-store error.
func IsPublish(err error) bool { return CodeOf(err) == CodePublish }

// IsTx reports whether the error is a ledger transaction error.
func IsTx(err error) bool { return CodeOf(err) == CodeTx }

// IsInsufficientFunds reports whether the error is an insufficient-funds error.
func IsInsufficientFunds(err error) bool { return CodeOf(err) == CodeInsufficientFunds }

// IsSync reports whether the error is a catalog synchronization error.
func IsSync(err error) bool { return CodeOf(err) == CodeSync }

// NewNoProviderError creates the missing-provider error.
func NewNoProviderError() *Error {
	return &Error{
		Code:    CodeNoProvider,
		Message: "no signing provider available",
	}
}

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, reason string) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: fmt.Sprintf("invalid %s: %s", field, reason),
	}
}

// NewPublishError wraps a content-store failure. The upstream reason is
// preserved for display, never swallowed.
func NewPublishError(what string, err error) *Error {
	return &Error{
		Code:    CodePublish,
		Message: fmt.Sprintf("publishing %s failed", what),
		Step:    what,
		Err:     err,
	}
}

// NewTxError wraps a ledger submission or confirmation failure at the
// named step. The underlying reason is surfaced verbatim.
func NewTxError(step string, err error) *Error {
	return &Error{
		Code:    CodeTx,
		Message: "transaction failed",
		Step:    step,
		Err:     err,
	}
}

// NewInsufficientFundsError creates an insufficient-funds error carrying
// both sides of the failed comparison.
func NewInsufficientFundsError(have, need *big.Int) *Error {
	return &Error{
		Code:    CodeInsufficientFunds,
		Message: fmt.Sprintf("balance %s below total price %s", have, need),
	}
}

// NewSyncError wraps a catalog record resolution failure.
func NewSyncError(step string, err error) *Error {
	return &Error{
		Code:    CodeSync,
		Message: "catalog synchronization failed",
		Step:    step,
		Err:     err,
	}
}
