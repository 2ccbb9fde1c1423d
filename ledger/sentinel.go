package ledger

import (
	"context"
	"errors"
	"sort"
)

// Reserved subcategory names consumed by internal bookkeeping.
const (
	SubcategoryInitialBalance   = "Balance Inicial"
	SubcategoryWalletAdjustment = "Ajuste de Billetera"
	SubcategoryInternalTransfer = "Transferencias Internas"
	SubcategoryBankFees         = "Comisiones bancarias"
)

// Sentinel is a stable tag for a reserved subcategory.
type Sentinel string

const (
	SentinelInitialBalance   Sentinel = "initial_balance"
	SentinelWalletAdjustment Sentinel = "wallet_adjustment"
	SentinelTransferOut      Sentinel = "transfer_out"
	SentinelTransferIn       Sentinel = "transfer_in"
	SentinelTransferFee      Sentinel = "transfer_fee"
)

type sentinelKey struct {
	Type TransactionType
	Name string
}

var sentinelKeys = map[Sentinel]sentinelKey{
	SentinelInitialBalance:   {TxAdjustment, SubcategoryInitialBalance},
	SentinelWalletAdjustment: {TxAdjustment, SubcategoryWalletAdjustment},
	SentinelTransferOut:      {TxExpense, SubcategoryInternalTransfer},
	SentinelTransferIn:       {TxIncome, SubcategoryInternalTransfer},
	SentinelTransferFee:      {TxExpense, SubcategoryBankFees},
}

// Sentinels maps each tag to its resolved subcategory.
type Sentinels map[Sentinel]Subcategory

// ResolveSentinels looks every reserved subcategory up once. It fails with a
// *MissingSentinelsError listing all of the ones that are absent.
func ResolveSentinels(ctx context.Context, r Reader) (Sentinels, error) {
	out := make(Sentinels, len(sentinelKeys))
	var missing []Sentinel
	for s, k := range sentinelKeys {
		sub, err := r.FindSubcategory(ctx, k.Type, k.Name)
		if errors.Is(err, ErrNotFound) {
			missing = append(missing, s)
			continue
		}
		if err != nil {
			return nil, err
		}
		out[s] = sub
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		return nil, &MissingSentinelsError{Missing: missing}
	}
	return out, nil
}
