/*
transfer.go - Transfer Operations

PURPOSE:
  Moves value between two wallets as one unit of work:

    Transfer row        fee, feeUSD = fee / rate(source)
    debit leg           EXPENSE on source, -fromAmount, "Transferencias Internas"
    credit leg          INCOME on destination, +toAmount, "Transferencias Internas"
    fee entry (fee > 0) EXPENSE on source, -fee, "Comisiones bancarias"

  Source and destination amounts are independent so a transfer can cross
  currencies at a rate the caller chose. The fee is charged to the source
  wallet as its own entry; it is not a leg, so every transfer keeps exactly
  two linked transactions while the balance still equals the sum of amounts.

  Transfers are immutable once created.
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CreateTransferInput struct {
	FromWalletID WalletID
	ToWalletID   WalletID
	FromAmount   decimal.Decimal // source currency
	ToAmount     decimal.Decimal // destination currency
	Date         time.Time

	// Optional.
	Fee         *decimal.Decimal // source currency, zero when nil
	Description *string
}

func (in CreateTransferInput) validate() error {
	if in.FromWalletID == "" || in.ToWalletID == "" {
		return invalid("source and destination wallets are required")
	}
	if in.FromWalletID == in.ToWalletID {
		return invalid("source and destination wallets must differ")
	}
	if !normalize(in.FromAmount).IsPositive() || !normalize(in.ToAmount).IsPositive() {
		return invalid("transfer amounts must be positive at %d decimals", Scale)
	}
	if in.Fee != nil && normalize(*in.Fee).IsNegative() {
		return invalid("fee must not be negative")
	}
	if in.Date.IsZero() {
		return invalid("date is required")
	}
	return nil
}

// CreateTransfer debits the source wallet, credits the destination wallet
// and links both entries to a new Transfer.
func (e *Engine) CreateTransfer(ctx context.Context, in CreateTransferInput) (TransferDetail, error) {
	const op = "create_transfer"
	if err := in.validate(); err != nil {
		return TransferDetail{}, e.reject(op, err)
	}
	rates, err := e.rateView(ctx)
	if err != nil {
		return TransferDetail{}, e.reject(op, err)
	}

	fromAmount := normalize(in.FromAmount)
	toAmount := normalize(in.ToAmount)
	fee := decimal.Zero
	if in.Fee != nil {
		fee = normalize(*in.Fee)
	}
	description := optional(in.Description, "")
	outSub := e.sentinels[SentinelTransferOut]
	inSub := e.sentinels[SentinelTransferIn]
	feeSub := e.sentinels[SentinelTransferFee]

	var (
		out     TransferDetail
		feeTx   *Transaction
		fromBal decimal.Decimal
	)
	err = e.run(ctx, op, func(ctx context.Context, tx Tx) error {
		wallets, err := lockWallets(ctx, tx, in.FromWalletID, in.ToWalletID)
		if err != nil {
			return err
		}
		from, to := wallets[0], wallets[1]

		if err := applyDelta(ctx, tx, &from, fromAmount.Add(fee).Neg()); err != nil {
			return err
		}
		if err := applyDelta(ctx, tx, &to, toAmount); err != nil {
			return err
		}

		fromRate, err := rates.rateFor(from.Currency)
		if err != nil {
			return err
		}
		toRate, err := rates.rateFor(to.Currency)
		if err != nil {
			return err
		}

		now := e.now()
		transfer := Transfer{
			ID:        TransferID(e.ids.NewID()),
			Fee:       fee,
			FeeUSD:    fromRate.ToUSD(fee),
			CreatedAt: now,
		}
		tid := transfer.ID

		if fee.IsPositive() {
			t := Transaction{
				ID:            TransactionID(e.ids.NewSortableID()),
				WalletID:      from.ID,
				Type:          TxExpense,
				Amount:        fee.Neg(),
				AmountUSD:     transfer.FeeUSD.Neg(),
				CategoryID:    feeSub.CategoryID,
				SubcategoryID: feeSub.ID,
				Description:   description,
				Date:          in.Date,
				CreatedAt:     now,
			}
			feeTx = &t
			transfer.FeeTransactionID = &t.ID
		}

		debit := Transaction{
			ID:            TransactionID(e.ids.NewSortableID()),
			WalletID:      from.ID,
			Type:          TxExpense,
			Amount:        fromAmount.Neg(),
			AmountUSD:     fromRate.ToUSD(fromAmount.Neg()),
			CategoryID:    outSub.CategoryID,
			SubcategoryID: outSub.ID,
			Description:   description,
			Date:          in.Date,
			TransferID:    &tid,
			CreatedAt:     now,
		}
		credit := Transaction{
			ID:            TransactionID(e.ids.NewSortableID()),
			WalletID:      to.ID,
			Type:          TxIncome,
			Amount:        toAmount,
			AmountUSD:     toRate.ToUSD(toAmount),
			CategoryID:    inSub.CategoryID,
			SubcategoryID: inSub.ID,
			Description:   description,
			Date:          in.Date,
			TransferID:    &tid,
			CreatedAt:     now,
		}

		if feeTx != nil {
			if err := tx.InsertTransaction(ctx, *feeTx); err != nil {
				return err
			}
		}
		if err := tx.InsertTransfer(ctx, transfer); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, debit); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, credit); err != nil {
			return err
		}

		out = TransferDetail{Transfer: transfer, Debit: debit, Credit: credit}
		fromBal = from.Balance
		return nil
	})
	if err != nil {
		return TransferDetail{}, err
	}

	e.logger.Info("transfer created",
		zap.String("transfer_id", string(out.ID)),
		zap.String("from_wallet_id", string(in.FromWalletID)),
		zap.String("to_wallet_id", string(in.ToWalletID)),
		zap.String("from_amount", fromAmount.String()),
		zap.String("to_amount", toAmount.String()),
		zap.String("fee", fee.String()))
	e.publish(ctx, Event{
		Type:          EventTransferCreated,
		WalletID:      in.FromWalletID,
		CounterWallet: in.ToWalletID,
		TransferID:    out.ID,
		Amount:        decPtr(fromAmount),
		Balance:       decPtr(fromBal),
	})
	return out, nil
}

// GetTransfer returns a transfer with its debit and credit legs.
func (e *Engine) GetTransfer(ctx context.Context, id TransferID) (TransferDetail, error) {
	t, err := e.store.GetTransfer(ctx, id)
	if err != nil {
		return TransferDetail{}, err
	}
	legs, err := e.store.TransferLegs(ctx, id)
	if err != nil {
		return TransferDetail{}, err
	}
	out := TransferDetail{Transfer: t}
	for _, leg := range legs {
		switch leg.Type {
		case TxExpense:
			out.Debit = leg
		case TxIncome:
			out.Credit = leg
		}
	}
	return out, nil
}
