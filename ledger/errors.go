/*
errors.go - Error taxonomy of the ledger engine

PURPOSE:
  Every ledger operation is all-or-nothing. When it fails, the caller gets
  one of the errors below (possibly wrapped) and nothing was written.

ERROR KINDS:
  1. NotFound           - wallet, transaction, transfer, pocket, subcategory
  2. InsufficientFunds  - a post-operation balance would be negative
  3. RateUnavailable    - no snapshot, or the currency is absent from it
  4. InvariantViolation - reserved subcategories missing (seed-data defect)
  5. InvalidInput       - sign, currency, category membership, same-wallet transfer
  6. Conflict           - refused because of linked state (transfer legs)
  7. Transient          - serialization failure, lock timeout, busy database

USAGE:

    if errors.Is(err, ledger.ErrInsufficientFunds) {
        var ife *ledger.InsufficientFundsError
        errors.As(err, &ife)
        ...
    }

    switch ledger.KindOf(err) { ... }

SEE ALSO:
  - api/handlers.go: maps kinds to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds is returned when an operation would leave a
	// wallet with a negative balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrRateUnavailable is returned when no exchange-rate snapshot exists
	// or the needed currency is missing from it.
	ErrRateUnavailable = errors.New("exchange rate unavailable")

	// ErrInvariantViolation is returned when system reference data the
	// ledger depends on is missing.
	ErrInvariantViolation = errors.New("ledger invariant violation")

	// ErrInvalidInput is returned for malformed operation inputs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when linked state forbids the operation.
	ErrConflict = errors.New("conflict")

	// ErrConcurrentModification is returned when the unit of work could not
	// be serialized against a concurrent one. Safe to retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing record.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InsufficientFundsError provides details about a rejected balance change.
type InsufficientFundsError struct {
	WalletID WalletID
	Balance  decimal.Decimal
	Delta    decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in wallet %s: balance %s, delta %s",
		e.WalletID, e.Balance.String(), e.Delta.String())
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// RateUnavailableError names the currency that could not be converted.
// An empty Currency means no snapshot exists at all.
type RateUnavailableError struct {
	Currency Currency
}

func (e *RateUnavailableError) Error() string {
	if e.Currency == "" {
		return "exchange rate unavailable: no snapshot"
	}
	return fmt.Sprintf("exchange rate unavailable for %s", e.Currency)
}

func (e *RateUnavailableError) Unwrap() error { return ErrRateUnavailable }

// MissingSentinelsError lists reserved subcategories that could not be resolved.
type MissingSentinelsError struct {
	Missing []Sentinel
}

func (e *MissingSentinelsError) Error() string {
	return fmt.Sprintf("reserved subcategories missing: %v", e.Missing)
}

func (e *MissingSentinelsError) Unwrap() error { return ErrInvariantViolation }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// =============================================================================
// KINDS
// =============================================================================

type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindInsufficientFunds  Kind = "insufficient_funds"
	KindRateUnavailable    Kind = "rate_unavailable"
	KindInvariantViolation Kind = "invariant_violation"
	KindInvalidInput       Kind = "invalid_input"
	KindConflict           Kind = "conflict"
	KindTransient          Kind = "transient"
	KindInternal           Kind = "internal"
)

// KindOf classifies err into the ledger taxonomy. nil has no kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrRateUnavailable):
		return KindRateUnavailable
	case errors.Is(err, ErrInvariantViolation):
		return KindInvariantViolation
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrConcurrentModification):
		return KindTransient
	}
	return KindInternal
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
