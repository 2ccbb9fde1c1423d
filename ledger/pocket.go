package ledger

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreatePocket adds an empty named pocket to a wallet.
func (e *Engine) CreatePocket(ctx context.Context, wallet WalletID, name string) (Pocket, error) {
	const op = "create_pocket"
	name = strings.TrimSpace(name)
	if name == "" {
		return Pocket{}, e.reject(op, invalid("pocket name is required"))
	}

	var out Pocket
	err := e.run(ctx, op, func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockWallet(ctx, wallet); err != nil {
			return err
		}
		p := Pocket{
			ID:        PocketID(e.ids.NewID()),
			WalletID:  wallet,
			Name:      name,
			Balance:   decimal.Zero,
			CreatedAt: e.now(),
		}
		if err := tx.InsertPocket(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return Pocket{}, err
	}

	e.logger.Info("pocket created",
		zap.String("pocket_id", string(out.ID)),
		zap.String("wallet_id", string(out.WalletID)))
	e.publish(ctx, Event{Type: EventPocketCreated, WalletID: out.WalletID, PocketID: out.ID})
	return out, nil
}

func (e *Engine) ListPockets(ctx context.Context, wallet WalletID) ([]Pocket, error) {
	if _, err := e.store.GetWallet(ctx, wallet); err != nil {
		return nil, err
	}
	return e.store.ListPockets(ctx, wallet)
}
