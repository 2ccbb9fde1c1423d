package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/wallet-ledger/catalog"
	"github.com/warp/wallet-ledger/ledger"
	"github.com/warp/wallet-ledger/ledger/store"
	"github.com/warp/wallet-ledger/store/sqlite"
)

// =============================================================================
// FIXTURE
// =============================================================================

var clock = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev ledger.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []ledger.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ledger.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type observation struct {
	op  string
	err error
}

type recordingObserver struct {
	mu  sync.Mutex
	obs []observation
}

func (o *recordingObserver) Observe(op string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.obs = append(o.obs, observation{op, err})
}

type fixture struct {
	ctx   context.Context
	store ledger.Store
	eng   *ledger.Engine
	pub   *recordingPublisher
	obs   *recordingObserver
}

type backend struct {
	name string
	open func(t *testing.T) ledger.Store
}

var backends = []backend{
	{"memory", func(t *testing.T) ledger.Store { return store.NewMemory() }},
	{"sqlite", func(t *testing.T) ledger.Store {
		s, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	}},
}

// eachBackend runs fn once per store implementation.
func eachBackend(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, newFixture(t, b.open(t)))
		})
	}
}

func newFixture(t *testing.T, s ledger.Store, opts ...ledger.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	_, err := catalog.Seed(ctx, s, catalog.Default, nil)
	require.NoError(t, err)

	f := &fixture{ctx: ctx, store: s, pub: &recordingPublisher{}, obs: &recordingObserver{}}
	base := []ledger.Option{
		ledger.WithLogger(zaptest.NewLogger(t)),
		ledger.WithPublisher(f.pub),
		ledger.WithObserver(f.obs),
		ledger.WithRateSource(ledger.NewFixedRates(map[ledger.Currency]string{
			ledger.USD: "1",
			ledger.EUR: "0.9",
		})),
		ledger.WithClock(func() time.Time { return clock }),
	}
	f.eng, err = ledger.New(ctx, s, append(base, opts...)...)
	require.NoError(t, err)
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) wallet(t *testing.T, currency ledger.Currency, balance string) ledger.Wallet {
	t.Helper()
	w, _, err := f.eng.CreateWallet(f.ctx, ledger.CreateWalletInput{
		OwnerID:  "user-1",
		Name:     "Wallet " + string(currency),
		Platform: "Bank",
		Currency: currency,
		Balance:  dec(balance),
		Date:     clock,
	})
	require.NoError(t, err)
	return w
}

func (f *fixture) sub(t *testing.T, typ ledger.TransactionType, name string) ledger.Subcategory {
	t.Helper()
	s, err := f.store.FindSubcategory(f.ctx, typ, name)
	require.NoError(t, err)
	return s
}

func (f *fixture) input(t *testing.T, w ledger.WalletID, typ ledger.TransactionType, amount string) ledger.CreateTransactionInput {
	t.Helper()
	name := map[ledger.TransactionType]string{
		ledger.TxIncome:     "Salario",
		ledger.TxExpense:    "Mercado de alimentos",
		ledger.TxAdjustment: ledger.SubcategoryWalletAdjustment,
	}[typ]
	s := f.sub(t, typ, name)
	return ledger.CreateTransactionInput{
		WalletID:      w,
		Type:          typ,
		Amount:        dec(amount),
		CategoryID:    s.CategoryID,
		SubcategoryID: s.ID,
		Date:          clock,
	}
}

func (f *fixture) balance(t *testing.T, id ledger.WalletID) string {
	t.Helper()
	w, err := f.eng.GetWallet(f.ctx, id)
	require.NoError(t, err)
	return w.Balance.StringFixed(2)
}

func (f *fixture) requireAudit(t *testing.T) {
	t.Helper()
	report, err := f.eng.Audit(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNew_FailsWhenReservedSubcategoriesMissing(t *testing.T) {
	_, err := ledger.New(context.Background(), store.NewMemory())
	require.ErrorIs(t, err, ledger.ErrInvariantViolation)

	var missing *ledger.MissingSentinelsError
	require.True(t, errors.As(err, &missing))
	assert.Len(t, missing.Missing, 5)
}

// =============================================================================
// WALLETS
// =============================================================================

func TestCreateWallet_RecordsInitialBalance(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		w, initial, err := f.eng.CreateWallet(f.ctx, ledger.CreateWalletInput{
			OwnerID: "user-1", Name: "Checking", Currency: ledger.USD,
			Balance: dec("1000.00"), Date: clock,
		})
		require.NoError(t, err)

		assert.Equal(t, "1000.00", w.Balance.StringFixed(2))
		assert.Equal(t, ledger.TxAdjustment, initial.Type)
		assert.Equal(t, "1000.00", initial.Amount.StringFixed(2))
		require.NotNil(t, initial.PreviousBalance)
		require.NotNil(t, initial.NewBalance)
		assert.True(t, initial.PreviousBalance.IsZero())
		assert.Equal(t, "1000.00", initial.NewBalance.StringFixed(2))

		sub := f.sub(t, ledger.TxAdjustment, ledger.SubcategoryInitialBalance)
		assert.Equal(t, sub.ID, initial.SubcategoryID)

		txs, err := f.eng.ListTransactions(f.ctx, w.ID)
		require.NoError(t, err)
		assert.Len(t, txs, 1)
		assert.Equal(t, []ledger.EventType{ledger.EventWalletCreated}, f.pub.types())
		f.requireAudit(t)
	})
}

func TestCreateWallet_ConvertsInitialBalanceToUSD(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		_, initial, err := f.eng.CreateWallet(f.ctx, ledger.CreateWalletInput{
			OwnerID: "user-1", Name: "Euro", Currency: ledger.EUR, Balance: dec("90"),
		})
		require.NoError(t, err)
		assert.Equal(t, "100", initial.AmountUSD.String())
		assert.True(t, initial.Date.Equal(clock))
	})
}

func TestCreateWallet_Rejections(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	tests := []struct {
		name string
		in   ledger.CreateWalletInput
		want error
	}{
		{"negative balance", ledger.CreateWalletInput{OwnerID: "u", Name: "x", Currency: ledger.USD, Balance: dec("-1")}, ledger.ErrInsufficientFunds},
		{"unknown currency", ledger.CreateWalletInput{OwnerID: "u", Name: "x", Currency: "XXX"}, ledger.ErrInvalidInput},
		{"missing name", ledger.CreateWalletInput{OwnerID: "u", Currency: ledger.USD}, ledger.ErrInvalidInput},
		{"currency missing from snapshot", ledger.CreateWalletInput{OwnerID: "u", Name: "x", Currency: ledger.COP, Balance: dec("1")}, ledger.ErrRateUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.eng.CreateWallet(f.ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	all, err := f.store.ListAllWallets(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUpdateWallet_BalanceEditWritesAdjustment(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		w := f.wallet(t, ledger.USD, "100")

		updated, adj, err := f.eng.UpdateWallet(f.ctx, ledger.UpdateWalletInput{
			ID: w.ID, Name: "Renamed", Platform: "Bank", Currency: ledger.USD, Balance: dec("60"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Name)
		require.NotNil(t, adj)
		assert.Equal(t, "-40", adj.Amount.String())
		assert.Equal(t, "100", adj.PreviousBalance.String())
		assert.Equal(t, "60", adj.NewBalance.String())
		assert.Equal(t, f.sub(t, ledger.TxAdjustment, ledger.SubcategoryWalletAdjustment).ID, adj.SubcategoryID)

		// same balance, no entry
		_, adj, err = f.eng.UpdateWallet(f.ctx, ledger.UpdateWalletInput{
			ID: w.ID, Name: "Again", Currency: ledger.USD, Balance: dec("60"),
		})
		require.NoError(t, err)
		assert.Nil(t, adj)

		_, _, err = f.eng.UpdateWallet(f.ctx, ledger.UpdateWalletInput{
			ID: w.ID, Name: "Again", Currency: ledger.USD, Balance: dec("-5"),
		})
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		assert.Equal(t, "60.00", f.balance(t, w.ID))
		f.requireAudit(t)
	})
}

func TestDeleteWallet(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		plain := f.wallet(t, ledger.USD, "10")
		_, err := f.eng.CreatePocket(f.ctx, plain.ID, "Vacaciones")
		require.NoError(t, err)

		_, err = f.eng.DeleteWallet(f.ctx, plain.ID)
		require.NoError(t, err)
		_, err = f.eng.GetWallet(f.ctx, plain.ID)
		assert.True(t, ledger.IsNotFound(err))

		a := f.wallet(t, ledger.USD, "10")
		b := f.wallet(t, ledger.USD, "10")
		_, err = f.eng.CreateTransfer(f.ctx, ledger.CreateTransferInput{
			FromWalletID: a.ID, ToWalletID: b.ID, FromAmount: dec("1"), ToAmount: dec("1"), Date: clock,
		})
		require.NoError(t, err)

		_, err = f.eng.DeleteWallet(f.ctx, a.ID)
		assert.ErrorIs(t, err, ledger.ErrConflict)
		_, err = f.eng.GetWallet(f.ctx, a.ID)
		assert.NoError(t, err)
		f.requireAudit(t)
	})
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestCreateTransaction_ExpenseThenOverdraw(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		w := f.wallet(t, ledger.USD, "1000.00")

		tx, err := f.eng.CreateTransaction(f.ctx, f.input(t, w.ID, ledger.TxExpense, "200.00"))
		require.NoError(t, err)
		assert.Equal(t, "-200.00", tx.Amount.StringFixed(2))
		assert.Equal(t, "800.00", f.balance(t, w.ID))

		_, err = f.eng.CreateTransaction(f.ctx, f.input(t, w.ID, ledger.TxExpense, "900.00"))
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

		var ife *ledger.InsufficientFundsError
		require.True(t, errors.As(err, &ife))
		assert.Equal(t, w.ID, ife.WalletID)
		assert.Equal(t, "800.00", f.balance(t, w.ID))

		txs, err := f.eng.ListTransactions(f.ctx, w.ID)
		require.NoError(t, err)
		assert.Len(t, txs, 2)
		f.requireAudit(t)
	})
}

func TestCreateTransaction_SignRule(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		w := f.wallet(t, ledger.EUR, "0")

		income, err := f.eng.CreateTransaction(f.ctx, f.input(t, w.ID, ledger.TxIncome, "90"))
		require.NoError(t, err)
		assert.Equal(t, "90", income.Amount.String())
		assert.Equal(t, "100", income.AmountUSD.String())

		adj, err := f.eng.CreateTransaction(f.ctx, f.input(t, w.ID, ledger.TxAdjustment, "-9"))
		require.NoError(t, err)
		assert.Equal(t, "-9", adj.Amount.String())
		assert.Equal(t, "-10", adj.AmountUSD.String())
		assert.Equal(t, "81.00", f.balance(t, w.ID))

		for _, in := range []ledger.CreateTransactionInput{
			f.input(t, w.ID, ledger.TxExpense, "-5"),
			f.input(t, w.ID, ledger.TxIncome, "0"),
			f.input(t, w.ID, ledger.TxAdjustment, "0"),
			// below the ledger scale, rounds to zero
			f.input(t, w.ID, ledger.TxExpense, "0.000000001"),
			f.input(t, w.ID, ledger.TxIncome, "0.000000004"),
			f.input(t, w.ID, ledger.TxAdjustment, "-0.000000001"),
		} {
			_, err := f.eng.CreateTransaction(f.ctx, in)
			assert.ErrorIs(t, err, ledger.ErrInvalidInput)
		}
		assert.Equal(t, "81.00", f.balance(t, w.ID))

		txs, err := f.eng.ListTransactions(f.ctx, w.ID)
		require.NoError(t, err)
		assert.Len(t, txs, 3) // initial balance, income, adjustment
	})
}

func TestUpdateTransaction_RejectsAmountBelowScale(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		w := f.wallet(t, ledger.USD, "100")
		created, err := f.eng.CreateTransaction(f.ctx, f.input(t, w.ID, ledger.TxExpense, "10"))
		require.NoError(t, err)

		_, err = f.eng.UpdateTransaction(f.ctx, ledger.UpdateTransactionInput{
			ID:                     created.ID,
			CreateTransactionInput: f.input(t, w.ID, ledger.TxExpense, "0.000000001"),
		})
		assert.ErrorIs(t, err, ledger.ErrInvalidInput)

		got, err := f.eng.GetTransaction(f.ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "-10", got.Amount.String())
		assert.Equal(t, "90.00", f.balance(t, w.ID))
	})
}

func TestCreateTransaction_CategoryMustMatchType(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		w := f.wallet(t, ledger.USD, "10")
		expense := f.sub(t, ledger.TxExpense, "Mercado de alimentos")
		salary := f.sub(t, ledger.TxIncome, "Salario")

		in := f.input(t, w.ID, ledger.TxIncome, "1")
		in.CategoryID, in.SubcategoryID = expense.CategoryID, expense.ID
		_, err := f.eng.CreateTransaction(f.ctx, in)
		assert.ErrorIs(t, err, ledger.ErrInvalidInput)

		in.CategoryID, in.SubcategoryID = expense.CategoryID, salary.ID
		_, err = f.eng.CreateTransaction(f.ctx, in)
		assert.ErrorIs(t, err, ledger.ErrInvalidInput)

		in.SubcategoryID = "missing"
		_, err = f.eng.CreateTransaction(f.ctx, in)
		assert.ErrorIs(t, err, ledger.ErrNotFound)

		assert.Equal(t, "10.00", f.balance(t, w.ID))
	})
}

func TestCreateTransaction_UnknownWallet(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	_, err := f.eng.CreateTransaction(f.ctx, f.input(t, "missing", ledger.TxIncome, "1"))
	assert.True(t, ledger.IsNotFound(err))

	require.NotEmpty(t, f.obs.obs)
	last := f.obs.obs[len(f.obs.obs)-1]
	assert.Equal(t, "create_transaction", last.op)
	assert.Error(t, last.err)
}

func TestUpdateTransaction_KeepsImpliedRate(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		w := f.wallet(t, ledger.USD, "1000")
		s := f.sub(t, ledger.TxExpense, "Mercado de alimentos")

		// An entry recorded at a historical rate: -200 worth -210 USD.
		require.NoError(t, f.store.WithTx(f.ctx, func(tx ledger.Tx) error {
			if err := tx.InsertTransaction(f.ctx, ledger.Transaction{
				ID: "hist", WalletID: w.ID, Type: ledger.TxExpense,
				Amount: dec("-200.00"), AmountUSD: dec("-210.00"),
				CategoryID: s.CategoryID, SubcategoryID: s.ID,
				Entity: "Market", Date: clock, CreatedAt: clock,
			}); err != nil {
				return err
			}
			return tx.SetWalletBalance(f.ctx, w.ID, dec("800"))
		}))

		in := f.input(t, w.ID, ledger.TxExpense, "300.00")
		out, err := f.eng.UpdateTransaction(f.ctx, ledger.UpdateTransactionInput{ID: "hist", CreateTransactionInput: in})
		require.NoError(t, err)

		assert.Equal(t, "-300.00", out.Amount.StringFixed(2))
		assert.Equal(t, "-315.00", out.AmountUSD.StringFixed(2))
		assert.Equal(t, "Market", out.Entity)
		assert.Equal(t, "700.00", f.balance(t, w.ID))
		f.requireAudit(t)
	})
}

func TestUpdateTransaction_MovesBetweenWallets(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		usd := f.wallet(t, ledger.USD, "0")
		eur := f.wallet(t, ledger.EUR, "0")

		created, err := f.eng.CreateTransaction(f.ctx, f.input(t, usd.ID, ledger.TxIncome, "50"))
		require.NoError(t, err)

		in := f.input(t, eur.ID, ledger.TxIncome, "45")
		entity := "Employer"
		in.Entity = &entity
		out, err := f.eng.UpdateTransaction(f.ctx, ledger.UpdateTransactionInput{ID: created.ID, CreateTransactionInput: in})
		require.NoError(t, err)

		assert.Equal(t, eur.ID, out.WalletID)
		assert.Equal(t, "50", out.AmountUSD.String())
		assert.Equal(t, "Employer", out.Entity)
		assert.Equal(t, "0.00", f.balance(t, usd.ID))
		assert.Equal(t, "45.00", f.balance(t, eur.ID))
		f.requireAudit(t)
	})
}

func TestUpdateTransaction_StaleWalletIsConflict(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		a := f.wallet(t, ledger.USD, "0")
		b := f.wallet(t, ledger.USD, "0")

		created, err := f.eng.CreateTransaction(f.ctx, f.input(t, a.ID, ledger.TxIncome, "50"))
		require.NoError(t, err)

		// another caller moves the entry to b first
		_, err = f.eng.UpdateTransaction(f.ctx, ledger.UpdateTransactionInput{
			ID: created.ID, CreateTransactionInput: f.input(t, b.ID, ledger.TxIncome, "50"), ExpectedWalletID: a.ID,
		})
		require.NoError(t, err)

		// a caller still holding the old wallet is refused
		_, err = f.eng.UpdateTransaction(f.ctx, ledger.UpdateTransactionInput{
			ID: created.ID, CreateTransactionInput: f.input(t, a.ID, ledger.TxIncome, "70"), ExpectedWalletID: a.ID,
		})
		require.ErrorIs(t, err, ledger.ErrConflict)

		assert.Equal(t, "0.00", f.balance(t, a.ID))
		assert.Equal(t, "50.00", f.balance(t, b.ID))
		f.requireAudit(t)
	})
}

func TestUpdateTransaction_RejectsOverdrawAtomically(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		a := f.wallet(t, ledger.USD, "0")
		b := f.wallet(t, ledger.USD, "10")

		income, err := f.eng.CreateTransaction(f.ctx, f.input(t, a.ID, ledger.TxIncome, "100"))
		require.NoError(t, err)
		_, err = f.eng.CreateTransaction(f.ctx, f.input(t, a.ID, ledger.TxExpense, "80"))
		require.NoError(t, err)

		// moving the income away would leave a at -80
		in := f.input(t, b.ID, ledger.TxIncome, "100")
		_, err = f.eng.UpdateTransaction(f.ctx, ledger.UpdateTransactionInput{ID: income.ID, CreateTransactionInput: in})
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

		assert.Equal(t, "20.00", f.balance(t, a.ID))
		assert.Equal(t, "10.00", f.balance(t, b.ID))
		stored, err := f.eng.GetTransaction(f.ctx, income.ID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, stored.WalletID)
	})
}

func TestDeleteTransaction_ReversesAmount(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		w := f.wallet(t, ledger.USD, "100")
		income, err := f.eng.CreateTransaction(f.ctx, f.input(t, w.ID, ledger.TxIncome, "50.00"))
		require.NoError(t, err)
		assert.Equal(t, "150.00", f.balance(t, w.ID))

		_, err = f.eng.DeleteTransaction(f.ctx, income.ID)
		require.NoError(t, err)
		assert.Equal(t, "100.00", f.balance(t, w.ID))

		_, err = f.eng.GetTransaction(f.ctx, income.ID)
		assert.True(t, ledger.IsNotFound(err))

		_, err = f.eng.DeleteTransaction(f.ctx, income.ID)
		assert.True(t, ledger.IsNotFound(err))
		f.requireAudit(t)
	})
}

func TestDeleteTransaction_RefusesNegativeResult(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		w := f.wallet(t, ledger.USD, "0")
		income, err := f.eng.CreateTransaction(f.ctx, f.input(t, w.ID, ledger.TxIncome, "50"))
		require.NoError(t, err)
		_, err = f.eng.CreateTransaction(f.ctx, f.input(t, w.ID, ledger.TxExpense, "40"))
		require.NoError(t, err)

		_, err = f.eng.DeleteTransaction(f.ctx, income.ID)
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		assert.Equal(t, "10.00", f.balance(t, w.ID))
	})
}

// =============================================================================
// TRANSFERS
// =============================================================================

func TestCreateTransfer_CrossCurrencyWithFee(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		a := f.wallet(t, ledger.USD, "500")
		b := f.wallet(t, ledger.EUR, "100")
		fee := dec("5")

		detail, err := f.eng.CreateTransfer(f.ctx, ledger.CreateTransferInput{
			FromWalletID: a.ID, ToWalletID: b.ID,
			FromAmount: dec("100"), ToAmount: dec("90"), Fee: &fee, Date: clock,
		})
		require.NoError(t, err)

		assert.Equal(t, "395.00", f.balance(t, a.ID))
		assert.Equal(t, "190.00", f.balance(t, b.ID))
		assert.Equal(t, "5.00", detail.Fee.StringFixed(2))
		assert.Equal(t, "5.00", detail.FeeUSD.StringFixed(2))

		assert.Equal(t, ledger.TxExpense, detail.Debit.Type)
		assert.Equal(t, "-100.00", detail.Debit.Amount.StringFixed(2))
		assert.Equal(t, a.ID, detail.Debit.WalletID)
		assert.Equal(t, ledger.TxIncome, detail.Credit.Type)
		assert.Equal(t, "90.00", detail.Credit.Amount.StringFixed(2))
		assert.Equal(t, "100", detail.Credit.AmountUSD.String())
		assert.Equal(t, b.ID, detail.Credit.WalletID)

		got, err := f.eng.GetTransfer(f.ctx, detail.ID)
		require.NoError(t, err)
		assert.Equal(t, detail.Debit.ID, got.Debit.ID)
		assert.Equal(t, detail.Credit.ID, got.Credit.ID)

		require.NotNil(t, detail.FeeTransactionID)
		feeTx, err := f.eng.GetTransaction(f.ctx, *detail.FeeTransactionID)
		require.NoError(t, err)
		assert.Equal(t, "-5", feeTx.Amount.String())
		assert.False(t, feeTx.IsTransferLeg())
		assert.Equal(t, f.sub(t, ledger.TxExpense, ledger.SubcategoryBankFees).ID, feeTx.SubcategoryID)

		f.requireAudit(t)
	})
}

func TestCreateTransfer_NoFeeHasNoFeeEntry(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		a := f.wallet(t, ledger.USD, "10")
		b := f.wallet(t, ledger.USD, "0")

		detail, err := f.eng.CreateTransfer(f.ctx, ledger.CreateTransferInput{
			FromWalletID: a.ID, ToWalletID: b.ID, FromAmount: dec("10"), ToAmount: dec("10"), Date: clock,
		})
		require.NoError(t, err)
		assert.Nil(t, detail.FeeTransactionID)
		assert.True(t, detail.Fee.IsZero())
		assert.Equal(t, "0.00", f.balance(t, a.ID))

		txs, err := f.eng.ListTransactions(f.ctx, a.ID)
		require.NoError(t, err)
		assert.Len(t, txs, 2) // initial balance and debit leg
	})
}

func TestCreateTransfer_Rejections(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		a := f.wallet(t, ledger.USD, "100")
		b := f.wallet(t, ledger.USD, "0")
		fee := dec("1")
		negative := dec("-1")

		tests := []struct {
			name string
			in   ledger.CreateTransferInput
			want error
		}{
			{"same wallet", ledger.CreateTransferInput{FromWalletID: a.ID, ToWalletID: a.ID, FromAmount: dec("1"), ToAmount: dec("1"), Date: clock}, ledger.ErrInvalidInput},
			{"zero amount", ledger.CreateTransferInput{FromWalletID: a.ID, ToWalletID: b.ID, FromAmount: dec("0"), ToAmount: dec("1"), Date: clock}, ledger.ErrInvalidInput},
			{"amounts below scale", ledger.CreateTransferInput{FromWalletID: a.ID, ToWalletID: b.ID, FromAmount: dec("0.000000001"), ToAmount: dec("0.000000001"), Date: clock}, ledger.ErrInvalidInput},
			{"destination below scale", ledger.CreateTransferInput{FromWalletID: a.ID, ToWalletID: b.ID, FromAmount: dec("1"), ToAmount: dec("0.000000004"), Date: clock}, ledger.ErrInvalidInput},
			{"negative fee", ledger.CreateTransferInput{FromWalletID: a.ID, ToWalletID: b.ID, FromAmount: dec("1"), ToAmount: dec("1"), Fee: &negative, Date: clock}, ledger.ErrInvalidInput},
			{"fee overdraws", ledger.CreateTransferInput{FromWalletID: a.ID, ToWalletID: b.ID, FromAmount: dec("100"), ToAmount: dec("100"), Fee: &fee, Date: clock}, ledger.ErrInsufficientFunds},
			{"unknown destination", ledger.CreateTransferInput{FromWalletID: a.ID, ToWalletID: "missing", FromAmount: dec("1"), ToAmount: dec("1"), Date: clock}, ledger.ErrNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.eng.CreateTransfer(f.ctx, tt.in)
				assert.ErrorIs(t, err, tt.want)
			})
		}
		assert.Equal(t, "100.00", f.balance(t, a.ID))
		assert.Equal(t, "0.00", f.balance(t, b.ID))
		transfers, err := f.store.ListTransfers(f.ctx)
		require.NoError(t, err)
		assert.Empty(t, transfers)
	})
}

func TestCreateTransfer_MissingRateRollsBack(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		a := f.wallet(t, ledger.USD, "100")

		// a COP wallet created while COP had a rate
		copRates := ledger.NewFixedRates(map[ledger.Currency]string{ledger.USD: "1", ledger.COP: "4000"})
		withCOP, err := ledger.New(f.ctx, f.store, ledger.WithRateSource(copRates), ledger.WithClock(func() time.Time { return clock }))
		require.NoError(t, err)
		b, _, err := withCOP.CreateWallet(f.ctx, ledger.CreateWalletInput{OwnerID: "user-1", Name: "Pesos", Currency: ledger.COP})
		require.NoError(t, err)

		_, err = f.eng.CreateTransfer(f.ctx, ledger.CreateTransferInput{
			FromWalletID: a.ID, ToWalletID: b.ID, FromAmount: dec("10"), ToAmount: dec("40000"), Date: clock,
		})
		require.ErrorIs(t, err, ledger.ErrRateUnavailable)

		var rue *ledger.RateUnavailableError
		require.True(t, errors.As(err, &rue))
		assert.Equal(t, ledger.COP, rue.Currency)
		assert.Equal(t, "100.00", f.balance(t, a.ID))
		assert.Equal(t, "0.00", f.balance(t, b.ID))
		f.requireAudit(t)
	})
}

func TestTransferLegs_AreImmutable(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		a := f.wallet(t, ledger.USD, "10")
		b := f.wallet(t, ledger.USD, "0")
		detail, err := f.eng.CreateTransfer(f.ctx, ledger.CreateTransferInput{
			FromWalletID: a.ID, ToWalletID: b.ID, FromAmount: dec("5"), ToAmount: dec("5"), Date: clock,
		})
		require.NoError(t, err)

		_, err = f.eng.DeleteTransaction(f.ctx, detail.Credit.ID)
		assert.ErrorIs(t, err, ledger.ErrConflict)

		in := f.input(t, a.ID, ledger.TxExpense, "1")
		_, err = f.eng.UpdateTransaction(f.ctx, ledger.UpdateTransactionInput{ID: detail.Debit.ID, CreateTransactionInput: in})
		assert.ErrorIs(t, err, ledger.ErrConflict)
		f.requireAudit(t)
	})
}

// =============================================================================
// CONCURRENCY AND TIMEOUTS
// =============================================================================

func TestConcurrentExpenses_NeverOverdraw(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		w := f.wallet(t, ledger.USD, "500")
		in := f.input(t, w.ID, ledger.TxExpense, "100")

		const workers = 12
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.eng.CreateTransaction(f.ctx, in)
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
			}()
		}
		wg.Wait()

		assert.Equal(t, 5, succeeded)
		assert.Equal(t, "0.00", f.balance(t, w.ID))
		f.requireAudit(t)
	})
}

func TestConcurrentOpposingTransfers_Complete(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		a := f.wallet(t, ledger.USD, "100")
		b := f.wallet(t, ledger.USD, "100")

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			from, to := a.ID, b.ID
			if i%2 == 1 {
				from, to = to, from
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.eng.CreateTransfer(f.ctx, ledger.CreateTransferInput{
					FromWalletID: from, ToWalletID: to, FromAmount: dec("1"), ToAmount: dec("1"), Date: clock,
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, "100.00", f.balance(t, a.ID))
		assert.Equal(t, "100.00", f.balance(t, b.ID))
		f.requireAudit(t)
	})
}

// stallingStore never finishes a unit of work before its deadline.
type stallingStore struct {
	*store.Memory
}

func (s stallingStore) WithTx(ctx context.Context, _ func(ledger.Tx) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestUnitOfWork_TimeoutIsRetryable(t *testing.T) {
	mem := store.NewMemory()
	_, err := catalog.Seed(context.Background(), mem, catalog.Default, nil)
	require.NoError(t, err)

	eng, err := ledger.New(context.Background(), stallingStore{mem},
		ledger.WithRateSource(ledger.NewFixedRates(map[ledger.Currency]string{ledger.USD: "1"})),
		ledger.WithTxTimeout(10*time.Millisecond))
	require.NoError(t, err)

	_, _, err = eng.CreateWallet(context.Background(), ledger.CreateWalletInput{
		OwnerID: "u", Name: "x", Currency: ledger.USD,
	})
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)
	assert.True(t, ledger.IsRetryable(err))
}

// =============================================================================
// POCKETS AND AUDIT
// =============================================================================

func TestPockets(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		w := f.wallet(t, ledger.USD, "10")

		p, err := f.eng.CreatePocket(f.ctx, w.ID, "  Vacaciones ")
		require.NoError(t, err)
		assert.Equal(t, "Vacaciones", p.Name)
		assert.True(t, p.Balance.IsZero())

		_, err = f.eng.CreatePocket(f.ctx, w.ID, " ")
		assert.ErrorIs(t, err, ledger.ErrInvalidInput)
		_, err = f.eng.CreatePocket(f.ctx, "missing", "x")
		assert.True(t, ledger.IsNotFound(err))

		pockets, err := f.eng.ListPockets(f.ctx, w.ID)
		require.NoError(t, err)
		require.Len(t, pockets, 1)
		assert.Equal(t, p.ID, pockets[0].ID)
	})
}

func TestAudit_ReportsDrift(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		w := f.wallet(t, ledger.USD, "10")
		f.requireAudit(t)

		require.NoError(t, f.store.WithTx(f.ctx, func(tx ledger.Tx) error {
			return tx.SetWalletBalance(f.ctx, w.ID, dec("11"))
		}))

		report, err := f.eng.Audit(f.ctx)
		require.NoError(t, err)
		require.Len(t, report.Findings, 1)
		assert.Equal(t, ledger.CheckBalanceSum, report.Findings[0].Check)
		assert.Equal(t, w.ID, report.Findings[0].WalletID)
		assert.Equal(t, 1, report.WalletsChecked)
	})
}

func TestAudit_FlagsTransferLegsOnOneWallet(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		a := f.wallet(t, ledger.USD, "10")
		b := f.wallet(t, ledger.USD, "0")
		detail, err := f.eng.CreateTransfer(f.ctx, ledger.CreateTransferInput{
			FromWalletID: a.ID, ToWalletID: b.ID, FromAmount: dec("10"), ToAmount: dec("10"), Date: clock,
		})
		require.NoError(t, err)
		f.requireAudit(t)

		// Move the credit onto the debit's wallet and keep both balances in
		// line with their entries, so only the pairing is wrong.
		require.NoError(t, f.store.WithTx(f.ctx, func(tx ledger.Tx) error {
			credit := detail.Credit
			credit.WalletID = a.ID
			if err := tx.UpdateTransaction(f.ctx, credit); err != nil {
				return err
			}
			if err := tx.SetWalletBalance(f.ctx, a.ID, dec("10")); err != nil {
				return err
			}
			return tx.SetWalletBalance(f.ctx, b.ID, dec("0"))
		}))

		report, err := f.eng.Audit(f.ctx)
		require.NoError(t, err)
		require.Len(t, report.Findings, 1)
		assert.Equal(t, ledger.CheckTransferPairing, report.Findings[0].Check)
		assert.Equal(t, detail.ID, report.Findings[0].TransferID)
		assert.Equal(t, a.ID, report.Findings[0].WalletID)
	})
}
