/*
balance.go - The Balance Mutator

PURPOSE:
  The single point through which a wallet's balance moves by a delta.
  It only exists inside a unit of work: the wallet passed in must have been
  loaded with Tx.LockWallet in the same Tx, so the check below is made
  against a value no concurrent writer can change before commit.

  Manual wallet edits and wallet creation set the balance directly and do
  not go through here; they still refuse a negative result.
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// applyDelta commits balance+delta to the wallet and updates w in place.
// It writes nothing and returns *InsufficientFundsError when the result
// would be negative.
func applyDelta(ctx context.Context, tx Tx, w *Wallet, delta decimal.Decimal) error {
	next := w.Balance.Add(delta)
	if next.IsNegative() {
		return &InsufficientFundsError{WalletID: w.ID, Balance: w.Balance, Delta: delta}
	}
	if err := tx.SetWalletBalance(ctx, w.ID, next); err != nil {
		return err
	}
	w.Balance = next
	return nil
}

// checkNonNegative guards direct balance writes.
func checkNonNegative(w Wallet, previous decimal.Decimal) error {
	if w.Balance.IsNegative() {
		return &InsufficientFundsError{WalletID: w.ID, Balance: previous, Delta: w.Balance.Sub(previous)}
	}
	return nil
}

// normalize rounds a caller-supplied amount to the ledger scale.
func normalize(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}
