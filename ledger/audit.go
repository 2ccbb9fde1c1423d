package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// AuditFinding is one broken invariant.
type AuditFinding struct {
	Check      string
	WalletID   WalletID
	TransferID TransferID
	Message    string
}

type AuditReport struct {
	WalletsChecked   int
	TransfersChecked int
	Findings         []AuditFinding
}

func (r AuditReport) OK() bool { return len(r.Findings) == 0 }

const (
	CheckBalanceSum      = "balance_sum"
	CheckNonNegative     = "non_negative"
	CheckTransferPairing = "transfer_pairing"
	CheckSignRule        = "sign_rule"
)

// Audit re-verifies the ledger invariants against stored data. It reads
// outside a unit of work, so run it on a quiet ledger for exact results.
func (e *Engine) Audit(ctx context.Context) (AuditReport, error) {
	const op = "audit"
	start := time.Now()
	report, err := e.audit(ctx)
	e.finish(op, start, err)
	if err != nil {
		return AuditReport{}, err
	}
	if !report.OK() {
		e.logger.Warn("ledger audit found problems", zap.Int("findings", len(report.Findings)))
	}
	return report, nil
}

func (e *Engine) audit(ctx context.Context) (AuditReport, error) {
	var report AuditReport
	add := func(f AuditFinding) { report.Findings = append(report.Findings, f) }

	wallets, err := e.store.ListAllWallets(ctx)
	if err != nil {
		return report, err
	}
	for _, w := range wallets {
		report.WalletsChecked++
		if w.Balance.IsNegative() {
			add(AuditFinding{Check: CheckNonNegative, WalletID: w.ID,
				Message: fmt.Sprintf("balance %s is negative", w.Balance)})
		}
		txs, err := e.store.ListTransactions(ctx, w.ID)
		if err != nil {
			return report, err
		}
		sum, err := e.store.SumTransactions(ctx, w.ID)
		if err != nil {
			return report, err
		}
		if !sum.Equal(w.Balance) {
			add(AuditFinding{Check: CheckBalanceSum, WalletID: w.ID,
				Message: fmt.Sprintf("balance %s, sum of %d entries %s", w.Balance, len(txs), sum)})
		}
		for _, t := range txs {
			if (t.Type == TxExpense && t.Amount.IsPositive()) || (t.Type == TxIncome && t.Amount.IsNegative()) {
				add(AuditFinding{Check: CheckSignRule, WalletID: w.ID,
					Message: fmt.Sprintf("%s entry %s has amount %s", t.Type, t.ID, t.Amount)})
			}
		}
	}

	transfers, err := e.store.ListTransfers(ctx)
	if err != nil {
		return report, err
	}
	for _, tr := range transfers {
		report.TransfersChecked++
		legs, err := e.store.TransferLegs(ctx, tr.ID)
		if err != nil {
			return report, err
		}
		var debits, credits int
		var debit, credit Transaction
		for _, l := range legs {
			switch l.Type {
			case TxExpense:
				debits++
				debit = l
			case TxIncome:
				credits++
				credit = l
			}
		}
		switch {
		case len(legs) != 2 || debits != 1 || credits != 1:
			add(AuditFinding{Check: CheckTransferPairing, TransferID: tr.ID,
				Message: fmt.Sprintf("%d entries (%d debit, %d credit), want one of each", len(legs), debits, credits)})
		case debit.WalletID == credit.WalletID:
			add(AuditFinding{Check: CheckTransferPairing, TransferID: tr.ID, WalletID: debit.WalletID,
				Message: fmt.Sprintf("debit %s and credit %s are on the same wallet", debit.ID, credit.ID)})
		}
	}
	return report, nil
}
