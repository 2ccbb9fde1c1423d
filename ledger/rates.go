/*
rates.go - Currency Conversion lookup

PURPOSE:
  Answers "what was the rate of currency X versus USD at instant T".
  Operations take one snapshot up front and use it for every currency they
  convert, so an operation never mixes two snapshots.

  There is no package-level "current rate". The engine is handed a
  RateSource; tests freeze it with FixedRates.

SEE ALSO:
  - rates/cache.go: Redis-backed RateSource
  - rates/refresher.go: writes new snapshots
*/
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RateSource returns the newest exchange-rate snapshot created at or before at.
// It fails with ErrRateUnavailable when there is none.
type RateSource interface {
	SnapshotAt(ctx context.Context, at time.Time) (ExchangeRate, error)
}

// =============================================================================
// STORE-BACKED SOURCE
// =============================================================================

type rateReader interface {
	LatestExchangeRate(ctx context.Context, at time.Time) (ExchangeRate, error)
}

// StoreRates reads snapshots straight from the store.
type StoreRates struct {
	Reader rateReader
}

func (s StoreRates) SnapshotAt(ctx context.Context, at time.Time) (ExchangeRate, error) {
	snap, err := s.Reader.LatestExchangeRate(ctx, at)
	if errors.Is(err, ErrNotFound) {
		return ExchangeRate{}, &RateUnavailableError{}
	}
	return snap, err
}

// =============================================================================
// FIXED SOURCE
// =============================================================================

// FixedRates always answers with the same snapshot, whatever the instant.
type FixedRates ExchangeRate

// NewFixedRates builds a frozen snapshot from plain string rates,
// e.g. {"USD": "1", "EUR": "0.9"}. It panics on malformed input.
func NewFixedRates(rates map[Currency]string) FixedRates {
	snap := FixedRates{ID: "fixed", Rates: make(map[Currency]decimal.Decimal, len(rates))}
	for c, r := range rates {
		snap.Rates[c] = decimal.RequireFromString(r)
	}
	return snap
}

func (f FixedRates) SnapshotAt(_ context.Context, _ time.Time) (ExchangeRate, error) {
	if len(f.Rates) == 0 {
		return ExchangeRate{}, &RateUnavailableError{}
	}
	return ExchangeRate(f), nil
}

// =============================================================================
// RATE
// =============================================================================

// Rate is one currency's rate versus USD taken from a snapshot.
type Rate struct {
	Currency Currency
	Value    decimal.Decimal
}

// ToUSD converts an amount in r.Currency to USD at ledger scale.
func (r Rate) ToUSD(amount decimal.Decimal) decimal.Decimal {
	return amount.Div(r.Value).Round(Scale)
}
