/*
transaction.go - Transaction Operations

PURPOSE:
  Create, update and delete a single ledger entry against one wallet while
  keeping wallet.Balance equal to the sum of the wallet's amounts.

SIGN RULE:
  Callers pass magnitudes for INCOME and EXPENSE (EXPENSE is negated here).
  ADJUSTMENT amounts are taken with their sign.

USD AMOUNTS:
  Create: amountUSD = amount / rate(wallet currency), latest snapshot.
  Update: the implied rate of the previous entry is kept,
            newUSD = newAmount * prevUSD / prevAmount
          unless the previous amount is zero or the entry moves to a wallet
          of another currency; then the latest snapshot is used.

TRANSFER LEGS:
  Entries linked to a transfer are immutable here; update and delete fail
  with ErrConflict.
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// INPUTS
// =============================================================================

type CreateTransactionInput struct {
	WalletID      WalletID
	Type          TransactionType
	Amount        decimal.Decimal
	CategoryID    CategoryID
	SubcategoryID SubcategoryID
	Date          time.Time

	// Optional.
	Entity      *string
	Description *string
}

// UpdateTransactionInput replaces every field of a transaction. A nil
// Entity or Description keeps the stored value.
type UpdateTransactionInput struct {
	ID TransactionID
	CreateTransactionInput

	// ExpectedWalletID, when set, is the wallet the caller authorized the
	// entry against. The update fails with ErrConflict if the entry has
	// moved to another wallet since.
	ExpectedWalletID WalletID
}

func (in CreateTransactionInput) validate() error {
	if in.WalletID == "" {
		return invalid("wallet id is required")
	}
	if !in.Type.Valid() {
		return invalid("unknown transaction type %q", in.Type)
	}
	if err := validateAmount(in.Type, in.Amount); err != nil {
		return err
	}
	if in.CategoryID == "" || in.SubcategoryID == "" {
		return invalid("category and subcategory are required")
	}
	if in.Date.IsZero() {
		return invalid("date is required")
	}
	return nil
}

// validateAmount checks the amount as it will be stored, after rounding to
// the ledger scale.
func validateAmount(typ TransactionType, amount decimal.Decimal) error {
	amount = normalize(amount)
	if typ == TxAdjustment {
		if amount.IsZero() {
			return invalid("adjustment amount must be non-zero")
		}
		return nil
	}
	if !amount.IsPositive() {
		return invalid("%s amount must be a positive magnitude at %d decimals, got %s", typ, Scale, amount)
	}
	return nil
}

func optional(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// =============================================================================
// CREATE
// =============================================================================

// CreateTransaction records an entry and moves the wallet balance by its
// signed amount.
func (e *Engine) CreateTransaction(ctx context.Context, in CreateTransactionInput) (Transaction, error) {
	const op = "create_transaction"
	if err := in.validate(); err != nil {
		return Transaction{}, e.reject(op, err)
	}
	rates, err := e.rateView(ctx)
	if err != nil {
		return Transaction{}, e.reject(op, err)
	}

	var (
		out     Transaction
		balance decimal.Decimal
	)
	err = e.run(ctx, op, func(ctx context.Context, tx Tx) error {
		if err := checkCategory(ctx, tx, in.Type, in.CategoryID, in.SubcategoryID); err != nil {
			return err
		}
		w, err := tx.LockWallet(ctx, in.WalletID)
		if err != nil {
			return err
		}
		rate, err := rates.rateFor(w.Currency)
		if err != nil {
			return err
		}

		signed := in.Type.SignedAmount(normalize(in.Amount))
		if err := applyDelta(ctx, tx, &w, signed); err != nil {
			return err
		}

		t := Transaction{
			ID:            TransactionID(e.ids.NewSortableID()),
			WalletID:      w.ID,
			Type:          in.Type,
			Amount:        signed,
			AmountUSD:     rate.ToUSD(signed),
			CategoryID:    in.CategoryID,
			SubcategoryID: in.SubcategoryID,
			Entity:        optional(in.Entity, ""),
			Description:   optional(in.Description, ""),
			Date:          in.Date,
			CreatedAt:     e.now(),
		}
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		out, balance = t, w.Balance
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}

	e.logger.Info("transaction created",
		zap.String("transaction_id", string(out.ID)),
		zap.String("wallet_id", string(out.WalletID)),
		zap.String("type", string(out.Type)),
		zap.String("amount", out.Amount.String()),
		zap.String("balance", balance.String()))
	e.publish(ctx, Event{
		Type:          EventTransactionCreated,
		WalletID:      out.WalletID,
		TransactionID: out.ID,
		Amount:        decPtr(out.Amount),
		Balance:       decPtr(balance),
	})
	return out, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// UpdateTransaction rewrites an entry, possibly moving it to another wallet.
// Both wallets are updated in the same unit of work.
func (e *Engine) UpdateTransaction(ctx context.Context, in UpdateTransactionInput) (Transaction, error) {
	const op = "update_transaction"
	if in.ID == "" {
		return Transaction{}, e.reject(op, invalid("transaction id is required"))
	}
	if err := in.validate(); err != nil {
		return Transaction{}, e.reject(op, err)
	}
	rates, err := e.rateView(ctx)
	if err != nil {
		return Transaction{}, e.reject(op, err)
	}

	var out, prev Transaction
	err = e.run(ctx, op, func(ctx context.Context, tx Tx) error {
		var err error
		prev, err = tx.GetTransaction(ctx, in.ID)
		if err != nil {
			return err
		}
		if prev.IsTransferLeg() {
			return conflict("transaction %s belongs to transfer %s", prev.ID, *prev.TransferID)
		}
		if in.ExpectedWalletID != "" && prev.WalletID != in.ExpectedWalletID {
			return conflict("transaction %s moved from wallet %s to %s", prev.ID, in.ExpectedWalletID, prev.WalletID)
		}
		if err := checkCategory(ctx, tx, in.Type, in.CategoryID, in.SubcategoryID); err != nil {
			return err
		}

		wallets, err := lockWallets(ctx, tx, prev.WalletID, in.WalletID)
		if err != nil {
			return err
		}
		// A writer that moved or changed the entry held the same lock.
		cur, err := tx.GetTransaction(ctx, in.ID)
		if err != nil {
			return err
		}
		if cur.WalletID != prev.WalletID || !cur.Amount.Equal(prev.Amount) {
			return conflict("transaction %s changed concurrently", prev.ID)
		}
		source, target := wallets[0], wallets[1]
		signed := in.Type.SignedAmount(normalize(in.Amount))

		if source.ID == target.ID {
			if err := applyDelta(ctx, tx, &target, signed.Sub(prev.Amount)); err != nil {
				return err
			}
		} else {
			if err := applyDelta(ctx, tx, &source, prev.Amount.Neg()); err != nil {
				return err
			}
			if err := applyDelta(ctx, tx, &target, signed); err != nil {
				return err
			}
		}

		var usd decimal.Decimal
		if !prev.Amount.IsZero() && source.Currency == target.Currency {
			usd = signed.Mul(prev.AmountUSD).Div(prev.Amount).Round(Scale)
		} else {
			rate, err := rates.rateFor(target.Currency)
			if err != nil {
				return err
			}
			usd = rate.ToUSD(signed)
		}

		out = prev
		out.WalletID = target.ID
		out.Type = in.Type
		out.Amount = signed
		out.AmountUSD = usd
		out.CategoryID = in.CategoryID
		out.SubcategoryID = in.SubcategoryID
		out.Date = in.Date
		out.Entity = optional(in.Entity, prev.Entity)
		out.Description = optional(in.Description, prev.Description)
		return tx.UpdateTransaction(ctx, out)
	})
	if err != nil {
		return Transaction{}, err
	}

	e.logger.Info("transaction updated",
		zap.String("transaction_id", string(out.ID)),
		zap.String("wallet_id", string(out.WalletID)),
		zap.String("previous_wallet_id", string(prev.WalletID)),
		zap.String("previous_amount", prev.Amount.String()),
		zap.String("amount", out.Amount.String()))
	ev := Event{
		Type:          EventTransactionUpdated,
		WalletID:      out.WalletID,
		TransactionID: out.ID,
		Amount:        decPtr(out.Amount),
	}
	if prev.WalletID != out.WalletID {
		ev.CounterWallet = prev.WalletID
	}
	e.publish(ctx, ev)
	return out, nil
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteTransaction removes an entry and reverses its amount on the wallet.
func (e *Engine) DeleteTransaction(ctx context.Context, id TransactionID) (Transaction, error) {
	const op = "delete_transaction"
	var (
		out     Transaction
		balance decimal.Decimal
	)
	err := e.run(ctx, op, func(ctx context.Context, tx Tx) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if t.IsTransferLeg() {
			return conflict("transaction %s belongs to transfer %s", t.ID, *t.TransferID)
		}
		w, err := tx.LockWallet(ctx, t.WalletID)
		if err != nil {
			return err
		}
		if err := applyDelta(ctx, tx, &w, t.Amount.Neg()); err != nil {
			return err
		}
		if err := tx.DeleteTransaction(ctx, t.ID); err != nil {
			return err
		}
		out, balance = t, w.Balance
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}

	e.logger.Info("transaction deleted",
		zap.String("transaction_id", string(out.ID)),
		zap.String("wallet_id", string(out.WalletID)),
		zap.String("amount", out.Amount.String()))
	e.publish(ctx, Event{
		Type:          EventTransactionDeleted,
		WalletID:      out.WalletID,
		TransactionID: out.ID,
		Amount:        decPtr(out.Amount.Neg()),
		Balance:       decPtr(balance),
	})
	return out, nil
}
