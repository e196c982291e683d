// Package errs implements the core error taxonomy: a small set of
// error kinds shared across every component instead of one Go error type per
// failure site. Callers classify failures with errors.As(err, &coreErr) and
// switch on Kind(), or use Is(err, kind).
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error within the core taxonomy.
type Kind string

const (
	// KindValidation covers malformed input: empty account id, invalid date.
	// Surfaced synchronously; never retried.
	KindValidation Kind = "validation"
	// KindNotFound covers an entity lookup that missed. Recalculation for that
	// entity becomes a no-op.
	KindNotFound Kind = "not_found"
	// KindInsufficientQuantity covers a sell/remove exceeding the available
	// position. The posting is skipped and the activity flagged needs_review.
	KindInsufficientQuantity Kind = "insufficient_quantity"
	// KindMissingFxRate covers no convertible path for a currency pair on a date.
	KindMissingFxRate Kind = "missing_fx_rate"
	// KindProvider covers market-data provider failures, classified further by
	// the provider registry's RetryClass.
	KindProvider Kind = "provider"
	// KindPersistence covers repository/storage failures that abort the
	// current batch.
	KindPersistence Kind = "persistence"
	// KindFatal covers storage corruption or schema mismatch; aborts startup.
	KindFatal Kind = "fatal"
)

// Error is the concrete error type carrying a Kind and an optional cause.
type Error struct {
	kind    Kind
	message string
	cause   error
}

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap builds an Error that wraps cause, preserving errors.Is/As chaining.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

// Unwrap exposes the wrapped cause to errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// Kind returns the taxonomy entry this error belongs to.
func (e *Error) Kind() Kind { return e.kind }

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == kind
	}
	return false
}
