/*
wallet.go - Wallet Adjustment Operations

PURPOSE:
  Wallet balances only change through ledger entries. Creating a wallet
  writes a "Balance Inicial" ADJUSTMENT for the starting balance; a manual
  balance edit writes an "Ajuste de Billetera" ADJUSTMENT for the
  difference. Both set the balance directly (the caller supplies the
  authoritative figure) and both refuse a negative balance.

DELETION:
  A wallet that has transfer legs cannot be deleted (transfers are
  immutable and would lose a side). Otherwise the wallet goes together with
  its transactions and pockets.
*/
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// INPUTS
// =============================================================================

type CreateWalletInput struct {
	OwnerID     UserID
	HouseholdID *HouseholdID
	Name        string
	Platform    string
	Currency    Currency
	Balance     decimal.Decimal
	Date        time.Time // date of the initial entry, defaults to now
}

func (in CreateWalletInput) validate() error {
	if in.OwnerID == "" {
		return invalid("owner is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return invalid("wallet name is required")
	}
	if !in.Currency.Supported() {
		return invalid("unsupported currency %q", in.Currency)
	}
	return nil
}

// UpdateWalletInput carries the full new state of a wallet.
type UpdateWalletInput struct {
	ID       WalletID
	Name     string
	Platform string
	Currency Currency
	Balance  decimal.Decimal
}

func (in UpdateWalletInput) validate() error {
	if in.ID == "" {
		return invalid("wallet id is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return invalid("wallet name is required")
	}
	if !in.Currency.Supported() {
		return invalid("unsupported currency %q", in.Currency)
	}
	return nil
}

// =============================================================================
// CREATE
// =============================================================================

// CreateWallet opens a wallet and records its starting balance.
func (e *Engine) CreateWallet(ctx context.Context, in CreateWalletInput) (Wallet, Transaction, error) {
	const op = "create_wallet"
	if err := in.validate(); err != nil {
		return Wallet{}, Transaction{}, e.reject(op, err)
	}
	rates, err := e.rateView(ctx)
	if err != nil {
		return Wallet{}, Transaction{}, e.reject(op, err)
	}

	now := e.now()
	date := in.Date
	if date.IsZero() {
		date = now
	}
	sub := e.sentinels[SentinelInitialBalance]
	w := Wallet{
		ID:          WalletID(e.ids.NewID()),
		OwnerID:     in.OwnerID,
		HouseholdID: in.HouseholdID,
		Name:        strings.TrimSpace(in.Name),
		Platform:    strings.TrimSpace(in.Platform),
		Currency:    in.Currency,
		Balance:     normalize(in.Balance),
		CreatedAt:   now,
	}
	if err := checkNonNegative(w, decimal.Zero); err != nil {
		return Wallet{}, Transaction{}, e.reject(op, err)
	}

	var initial Transaction
	err = e.run(ctx, op, func(ctx context.Context, tx Tx) error {
		rate, err := rates.rateFor(w.Currency)
		if err != nil {
			return err
		}
		zero, balance := decimal.Zero, w.Balance
		initial = Transaction{
			ID:              TransactionID(e.ids.NewSortableID()),
			WalletID:        w.ID,
			Type:            TxAdjustment,
			Amount:          w.Balance,
			AmountUSD:       rate.ToUSD(w.Balance),
			CategoryID:      sub.CategoryID,
			SubcategoryID:   sub.ID,
			Date:            date,
			PreviousBalance: &zero,
			NewBalance:      &balance,
			CreatedAt:       now,
		}
		if err := tx.InsertWallet(ctx, w); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, initial)
	})
	if err != nil {
		return Wallet{}, Transaction{}, err
	}

	e.logger.Info("wallet created",
		zap.String("wallet_id", string(w.ID)),
		zap.String("owner_id", string(w.OwnerID)),
		zap.String("currency", string(w.Currency)),
		zap.String("balance", FormatAmount(w.Balance, w.Currency)))
	e.publish(ctx, Event{
		Type:          EventWalletCreated,
		WalletID:      w.ID,
		TransactionID: initial.ID,
		Amount:        decPtr(initial.Amount),
		Balance:       decPtr(w.Balance),
	})
	return w, initial, nil
}

// =============================================================================
// UPDATE (manual correction)
// =============================================================================

// UpdateWallet overwrites a wallet's fields. When the balance changes, an
// adjustment entry for the difference is returned alongside the wallet.
func (e *Engine) UpdateWallet(ctx context.Context, in UpdateWalletInput) (Wallet, *Transaction, error) {
	const op = "update_wallet"
	if err := in.validate(); err != nil {
		return Wallet{}, nil, e.reject(op, err)
	}
	rates, err := e.rateView(ctx)
	if err != nil {
		return Wallet{}, nil, e.reject(op, err)
	}
	sub := e.sentinels[SentinelWalletAdjustment]

	var (
		out        Wallet
		adjustment *Transaction
	)
	err = e.run(ctx, op, func(ctx context.Context, tx Tx) error {
		current, err := tx.LockWallet(ctx, in.ID)
		if err != nil {
			return err
		}
		next := current
		next.Name = strings.TrimSpace(in.Name)
		next.Platform = strings.TrimSpace(in.Platform)
		next.Currency = in.Currency
		next.Balance = normalize(in.Balance)
		if err := checkNonNegative(next, current.Balance); err != nil {
			return err
		}

		if !next.Balance.Equal(current.Balance) {
			rate, err := rates.rateFor(next.Currency)
			if err != nil {
				return err
			}
			now := e.now()
			amount := next.Balance.Sub(current.Balance)
			prevBal, newBal := current.Balance, next.Balance
			t := Transaction{
				ID:              TransactionID(e.ids.NewSortableID()),
				WalletID:        current.ID,
				Type:            TxAdjustment,
				Amount:          amount,
				AmountUSD:       rate.ToUSD(amount),
				CategoryID:      sub.CategoryID,
				SubcategoryID:   sub.ID,
				Date:            now,
				PreviousBalance: &prevBal,
				NewBalance:      &newBal,
				CreatedAt:       now,
			}
			if err := tx.InsertTransaction(ctx, t); err != nil {
				return err
			}
			adjustment = &t
		}
		if err := tx.UpdateWallet(ctx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return Wallet{}, nil, err
	}

	fields := []zap.Field{
		zap.String("wallet_id", string(out.ID)),
		zap.String("balance", out.Balance.String()),
	}
	ev := Event{Type: EventWalletUpdated, WalletID: out.ID, Balance: decPtr(out.Balance)}
	if adjustment != nil {
		fields = append(fields, zap.String("adjustment", adjustment.Amount.String()))
		ev.TransactionID = adjustment.ID
		ev.Amount = decPtr(adjustment.Amount)
	}
	e.logger.Info("wallet updated", fields...)
	e.publish(ctx, ev)
	return out, adjustment, nil
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteWallet removes a wallet with its transactions and pockets.
func (e *Engine) DeleteWallet(ctx context.Context, id WalletID) (Wallet, error) {
	const op = "delete_wallet"
	var out Wallet
	err := e.run(ctx, op, func(ctx context.Context, tx Tx) error {
		w, err := tx.LockWallet(ctx, id)
		if err != nil {
			return err
		}
		legs, err := tx.CountTransferLegs(ctx, id)
		if err != nil {
			return err
		}
		if legs > 0 {
			return conflict("wallet %s has %d transfer entries", id, legs)
		}
		if err := tx.DeleteWallet(ctx, id); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return Wallet{}, err
	}

	e.logger.Info("wallet deleted", zap.String("wallet_id", string(out.ID)))
	e.publish(ctx, Event{Type: EventWalletDeleted, WalletID: out.ID, Balance: decPtr(out.Balance)})
	return out, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (e *Engine) GetWallet(ctx context.Context, id WalletID) (Wallet, error) {
	return e.store.GetWallet(ctx, id)
}

// ListWallets returns wallets the user owns or shares through a household.
func (e *Engine) ListWallets(ctx context.Context, user UserID) ([]Wallet, error) {
	return e.store.ListWallets(ctx, user)
}

func (e *Engine) ListTransactions(ctx context.Context, id WalletID) ([]Transaction, error) {
	if _, err := e.store.GetWallet(ctx, id); err != nil {
		return nil, err
	}
	return e.store.ListTransactions(ctx, id)
}

func (e *Engine) GetTransaction(ctx context.Context, id TransactionID) (Transaction, error) {
	return e.store.GetTransaction(ctx, id)
}

func (e *Engine) ListCategories(ctx context.Context) ([]Category, error) {
	return e.store.ListCategories(ctx)
}

// LatestExchangeRate returns the snapshot operations would convert with now.
func (e *Engine) LatestExchangeRate(ctx context.Context) (ExchangeRate, error) {
	return e.rates.SnapshotAt(ctx, e.now())
}

// IsHouseholdMember is used by callers selecting which wallets a user may touch.
func (e *Engine) IsHouseholdMember(ctx context.Context, household HouseholdID, user UserID) (bool, error) {
	return e.store.IsHouseholdMember(ctx, household, user)
}
