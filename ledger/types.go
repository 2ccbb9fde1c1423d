/*
Package ledger provides the wallet ledger engine.

PURPOSE:
  Keeps wallet balances, transaction records and multi-currency valuations
  mutually consistent across create/update/delete of transactions, transfers
  and manual wallet edits. Everything else (pages, sessions, households)
  calls into this package through the Engine operations.

KEY CONCEPTS IN THIS FILE (types.go):
  - Wallet: a currency-denominated balance container
  - Transaction: a signed ledger entry against one wallet
  - Transfer: the envelope linking a debit leg and a credit leg
  - ExchangeRate: an immutable snapshot of rates versus USD
  - Category/Subcategory: static reference data, some of it reserved

INVARIANTS:
  1. wallet.Balance >= 0 after every committed operation
  2. wallet.Balance == sum(transaction.Amount) for that wallet
  3. EXPENSE => Amount <= 0, INCOME => Amount >= 0
  4. AmountUSD = Amount / rate(wallet currency) at the time of the write

SEE ALSO:
  - engine.go: operation surface
  - balance.go: the Balance Mutator
  - store.go: persistence and unit-of-work interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places amounts and balances are kept at.
const Scale int32 = 8

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type HouseholdID string
type WalletID string
type TransactionID string
type TransferID string
type CategoryID string
type SubcategoryID string
type PocketID string
type ExchangeRateID string

// =============================================================================
// TRANSACTION TYPE
// =============================================================================

type TransactionType string

const (
	TxIncome     TransactionType = "INCOME"
	TxExpense    TransactionType = "EXPENSE"
	TxAdjustment TransactionType = "ADJUSTMENT"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxIncome, TxExpense, TxAdjustment:
		return true
	}
	return false
}

// SignedAmount applies the sign rule: EXPENSE magnitudes are negated,
// INCOME and ADJUSTMENT amounts are taken as given.
func (t TransactionType) SignedAmount(amount decimal.Decimal) decimal.Decimal {
	if t == TxExpense {
		return amount.Neg()
	}
	return amount
}

// =============================================================================
// WALLET
// =============================================================================

type Wallet struct {
	ID          WalletID
	OwnerID     UserID
	HouseholdID *HouseholdID
	Name        string
	Platform    string
	Currency    Currency
	Balance     decimal.Decimal
	CreatedAt   time.Time
}

// =============================================================================
// TRANSACTION
// =============================================================================

type Transaction struct {
	ID            TransactionID
	WalletID      WalletID
	Type          TransactionType
	Amount        decimal.Decimal // signed, wallet currency
	AmountUSD     decimal.Decimal // signed, derived at write time
	CategoryID    CategoryID
	SubcategoryID SubcategoryID
	Entity        string
	Description   string
	Date          time.Time
	TransferID    *TransferID

	// Set on synthetic ADJUSTMENT entries only.
	PreviousBalance *decimal.Decimal
	NewBalance      *decimal.Decimal

	CreatedAt time.Time
}

// IsTransferLeg reports whether the transaction belongs to a transfer.
func (t Transaction) IsTransferLeg() bool { return t.TransferID != nil }

// =============================================================================
// TRANSFER
// =============================================================================

type Transfer struct {
	ID     TransferID
	Fee    decimal.Decimal
	FeeUSD decimal.Decimal

	// FeeTransactionID is the EXPENSE entry charging the fee to the source
	// wallet. It is not one of the two legs. Nil when the fee is zero.
	FeeTransactionID *TransactionID

	CreatedAt time.Time
}

// TransferDetail is a transfer with its two legs.
type TransferDetail struct {
	Transfer
	Debit  Transaction
	Credit Transaction
}

// =============================================================================
// EXCHANGE RATE SNAPSHOT
// =============================================================================

type ExchangeRate struct {
	ID        ExchangeRateID
	CreatedAt time.Time
	Rates     map[Currency]decimal.Decimal // units of currency per 1 USD
}

// RateFor returns the positive rate of currency versus USD.
func (r ExchangeRate) RateFor(c Currency) (decimal.Decimal, error) {
	rate, ok := r.Rates[c]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, &RateUnavailableError{Currency: c}
	}
	return rate, nil
}

// ToUSD converts a wallet-currency amount into USD using this snapshot.
func (r ExchangeRate) ToUSD(amount decimal.Decimal, c Currency) (decimal.Decimal, error) {
	rate, err := r.RateFor(c)
	if err != nil {
		return decimal.Zero, err
	}
	return Rate{Currency: c, Value: rate}.ToUSD(amount), nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

type Category struct {
	ID            CategoryID
	Type          TransactionType
	Name          string
	Subcategories []Subcategory
}

type Subcategory struct {
	ID         SubcategoryID
	CategoryID CategoryID
	Name       string
}

// =============================================================================
// POCKET
// =============================================================================

// Pocket is a named subdivision of a wallet. Pockets never move the
// wallet balance.
type Pocket struct {
	ID        PocketID
	WalletID  WalletID
	Name      string
	Balance   decimal.Decimal
	CreatedAt time.Time
}
