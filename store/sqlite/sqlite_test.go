package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wallet-ledger/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedCategory(t *testing.T, s *Store, typ ledger.TransactionType, name string, subs ...string) ledger.Category {
	t.Helper()
	c := ledger.Category{Type: typ, Name: name}
	for _, n := range subs {
		c.Subcategories = append(c.Subcategories, ledger.Subcategory{Name: n})
	}
	stored, err := s.SaveCategory(context.Background(), c)
	require.NoError(t, err)
	return stored
}

func testWallet(id string, balance string) ledger.Wallet {
	return ledger.Wallet{
		ID:        ledger.WalletID(id),
		OwnerID:   "user-1",
		Name:      "Checking",
		Platform:  "Bank",
		Currency:  ledger.USD,
		Balance:   decimal.RequireFromString(balance),
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	// GIVEN: a unit of work that writes a wallet then fails
	err := s.WithTx(ctx, func(tx ledger.Tx) error {
		require.NoError(t, tx.InsertWallet(ctx, testWallet("w1", "100")))

		// reads inside the unit of work see its own writes
		w, err := tx.GetWallet(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, "100", w.Balance.String())
		return boom
	})

	// THEN: the error surfaces and nothing was committed
	require.ErrorIs(t, err, boom)
	_, err = s.GetWallet(ctx, "w1")
	assert.True(t, ledger.IsNotFound(err))
}

func TestWithTx_CommitRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	cat := seedCategory(t, s, ledger.TxExpense, "Alimentos", "Mercado de alimentos")
	sub := cat.Subcategories[0]

	prev := decimal.RequireFromString("0")
	date := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	err := s.WithTx(ctx, func(tx ledger.Tx) error {
		if err := tx.InsertWallet(ctx, testWallet("w1", "100")); err != nil {
			return err
		}
		if err := tx.SetWalletBalance(ctx, "w1", decimal.RequireFromString("80.5")); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, ledger.Transaction{
			ID:              "t1",
			WalletID:        "w1",
			Type:            ledger.TxExpense,
			Amount:          decimal.RequireFromString("-19.5"),
			AmountUSD:       decimal.RequireFromString("-19.5"),
			CategoryID:      cat.ID,
			SubcategoryID:   sub.ID,
			Entity:          "Market",
			Date:            date,
			PreviousBalance: &prev,
			CreatedAt:       date,
		})
	})
	require.NoError(t, err)

	w, err := s.GetWallet(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "80.5", w.Balance.String())

	got, err := s.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "-19.5", got.Amount.String())
	assert.Equal(t, "Market", got.Entity)
	assert.Empty(t, got.Description)
	assert.True(t, got.Date.Equal(date))
	require.NotNil(t, got.PreviousBalance)
	assert.True(t, got.PreviousBalance.IsZero())
	assert.Nil(t, got.NewBalance)
	assert.Nil(t, got.TransferID)

	sum, err := s.SumTransactions(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "-19.5", sum.String())
}

func TestInsertTransaction_UnknownWalletRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	cat := seedCategory(t, s, ledger.TxIncome, "Empleo Primario", "Salario")

	err := s.WithTx(ctx, func(tx ledger.Tx) error {
		return tx.InsertTransaction(ctx, ledger.Transaction{
			ID: "t1", WalletID: "missing", Type: ledger.TxIncome,
			Amount: decimal.NewFromInt(1), AmountUSD: decimal.NewFromInt(1),
			CategoryID: cat.ID, SubcategoryID: cat.Subcategories[0].ID,
			Date: time.Now(), CreatedAt: time.Now(),
		})
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestDeleteWallet_CascadesTransactionsAndPockets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	cat := seedCategory(t, s, ledger.TxIncome, "Empleo Primario", "Salario")

	require.NoError(t, s.WithTx(ctx, func(tx ledger.Tx) error {
		require.NoError(t, tx.InsertWallet(ctx, testWallet("w1", "10")))
		require.NoError(t, tx.InsertPocket(ctx, ledger.Pocket{ID: "p1", WalletID: "w1", Name: "Vacaciones", CreatedAt: time.Now()}))
		return tx.InsertTransaction(ctx, ledger.Transaction{
			ID: "t1", WalletID: "w1", Type: ledger.TxIncome,
			Amount: decimal.NewFromInt(10), AmountUSD: decimal.NewFromInt(10),
			CategoryID: cat.ID, SubcategoryID: cat.Subcategories[0].ID,
			Date: time.Now(), CreatedAt: time.Now(),
		})
	}))

	require.NoError(t, s.WithTx(ctx, func(tx ledger.Tx) error {
		return tx.DeleteWallet(ctx, "w1")
	}))

	_, err := s.GetTransaction(ctx, "t1")
	assert.True(t, ledger.IsNotFound(err))
	pockets, err := s.ListPockets(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, pockets)
}

func TestLatestExchangeRate_PointInTime(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.LatestExchangeRate(ctx, t0)
	require.True(t, ledger.IsNotFound(err))

	for i, eur := range []string{"0.90", "0.95"} {
		require.NoError(t, s.InsertExchangeRate(ctx, ledger.ExchangeRate{
			ID:        ledger.ExchangeRateID([]string{"r1", "r2"}[i]),
			CreatedAt: t0.Add(time.Duration(i) * time.Hour),
			Rates: map[ledger.Currency]decimal.Decimal{
				ledger.USD: decimal.NewFromInt(1),
				ledger.EUR: decimal.RequireFromString(eur),
			},
		}))
	}

	early, err := s.LatestExchangeRate(ctx, t0.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, ledger.ExchangeRateID("r1"), early.ID)

	latest, err := s.LatestExchangeRate(ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ledger.ExchangeRateID("r2"), latest.ID)
	assert.Equal(t, "0.95", latest.Rates[ledger.EUR].String())
}

func TestSaveCategory_UpsertsByTypeAndName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := seedCategory(t, s, ledger.TxExpense, "Gastos Financieros", "Transferencias Internas")
	second := seedCategory(t, s, ledger.TxExpense, "Gastos Financieros", "Transferencias Internas", "Comisiones bancarias")
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.Subcategories, 2)

	income := seedCategory(t, s, ledger.TxIncome, "Ingresos Diversos", "Transferencias Internas")
	assert.NotEqual(t, first.ID, income.ID)

	sub, err := s.FindSubcategory(ctx, ledger.TxIncome, "Transferencias Internas")
	require.NoError(t, err)
	assert.Equal(t, income.ID, sub.CategoryID)

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 2)
}

func TestListWallets_IncludesHouseholdWallets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	home := ledger.HouseholdID("home")

	shared := testWallet("w-shared", "0")
	shared.OwnerID = "user-2"
	shared.HouseholdID = &home
	other := testWallet("w-other", "0")
	other.OwnerID = "user-3"

	require.NoError(t, s.WithTx(ctx, func(tx ledger.Tx) error {
		for _, w := range []ledger.Wallet{testWallet("w-own", "0"), shared, other} {
			if err := tx.InsertWallet(ctx, w); err != nil {
				return err
			}
		}
		return nil
	}))
	require.NoError(t, s.AddHouseholdMember(ctx, home, "user-1"))

	ws, err := s.ListWallets(ctx, "user-1")
	require.NoError(t, err)
	var ids []ledger.WalletID
	for _, w := range ws {
		ids = append(ids, w.ID)
	}
	assert.ElementsMatch(t, []ledger.WalletID{"w-own", "w-shared"}, ids)

	ok, err := s.IsHouseholdMember(ctx, home, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
