package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/warp/wallet-ledger/ledger"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type conn struct {
	q querier
}

const walletColumns = `id, owner_id, household_id, name, platform, currency, balance::text, created_at`

const transactionColumns = `id, wallet_id, type, amount::text, amount_usd::text, category_id, subcategory_id,
	entity, description, date, transfer_id, previous_balance::text, new_balance::text, created_at`

const transferColumns = `id, fee::text, fee_usd::text, fee_transaction_id, created_at`

// =============================================================================
// WALLETS
// =============================================================================

func (c conn) GetWallet(ctx context.Context, id ledger.WalletID) (ledger.Wallet, error) {
	w, err := scanWallet(c.q.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Wallet{}, &ledger.NotFoundError{Resource: "wallet", ID: string(id)}
	}
	return w, err
}

func (c conn) ListWallets(ctx context.Context, user ledger.UserID) ([]ledger.Wallet, error) {
	return c.queryWallets(ctx, `
		SELECT `+walletColumns+` FROM wallets
		WHERE owner_id = $1
		   OR household_id IN (SELECT household_id FROM household_members WHERE user_id = $1)
		ORDER BY created_at, id`, string(user))
}

func (c conn) ListAllWallets(ctx context.Context) ([]ledger.Wallet, error) {
	return c.queryWallets(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY created_at, id`)
}

func (c conn) queryWallets(ctx context.Context, sql string, args ...any) ([]ledger.Wallet, error) {
	rows, err := c.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query wallets: %w", err)
	}
	defer rows.Close()

	var out []ledger.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWallet(row pgx.Row) (ledger.Wallet, error) {
	var (
		w                               ledger.Wallet
		id, owner, name, platform, curr string
		household                       *string
		balance                         string
	)
	if err := row.Scan(&id, &owner, &household, &name, &platform, &curr, &balance, &w.CreatedAt); err != nil {
		return w, err
	}
	w.ID, w.OwnerID, w.Name, w.Platform, w.Currency = ledger.WalletID(id), ledger.UserID(owner), name, platform, ledger.Currency(curr)
	w.CreatedAt = w.CreatedAt.UTC()
	if household != nil {
		h := ledger.HouseholdID(*household)
		w.HouseholdID = &h
	}
	var err error
	if w.Balance, err = decimal.NewFromString(balance); err != nil {
		return w, fmt.Errorf("wallet %s balance: %w", id, err)
	}
	return w, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (c conn) GetTransaction(ctx context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	t, err := scanTransaction(c.q.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Transaction{}, &ledger.NotFoundError{Resource: "transaction", ID: string(id)}
	}
	return t, err
}

func (c conn) ListTransactions(ctx context.Context, wallet ledger.WalletID) ([]ledger.Transaction, error) {
	return c.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE wallet_id = $1 ORDER BY date DESC, id DESC`, string(wallet))
}

func (c conn) TransferLegs(ctx context.Context, id ledger.TransferID) ([]ledger.Transaction, error) {
	return c.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE transfer_id = $1 ORDER BY id`, string(id))
}

// SumTransactions sums in NUMERIC, which is exact.
func (c conn) SumTransactions(ctx context.Context, wallet ledger.WalletID) (decimal.Decimal, error) {
	var s string
	err := c.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM transactions WHERE wallet_id = $1`, string(wallet)).Scan(&s)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(s)
}

func (c conn) queryTransactions(ctx context.Context, sql string, args ...any) ([]ledger.Transaction, error) {
	rows, err := c.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (ledger.Transaction, error) {
	var (
		t                               ledger.Transaction
		id, wallet, typ, cat, sub       string
		amount, amountUSD               string
		entity, description, transferID *string
		previousBalance, newBalance     *string
	)
	err := row.Scan(&id, &wallet, &typ, &amount, &amountUSD, &cat, &sub,
		&entity, &description, &t.Date, &transferID, &previousBalance, &newBalance, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	t.ID, t.WalletID, t.Type = ledger.TransactionID(id), ledger.WalletID(wallet), ledger.TransactionType(typ)
	t.CategoryID, t.SubcategoryID = ledger.CategoryID(cat), ledger.SubcategoryID(sub)
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return t, err
	}
	if t.AmountUSD, err = decimal.NewFromString(amountUSD); err != nil {
		return t, err
	}
	if entity != nil {
		t.Entity = *entity
	}
	if description != nil {
		t.Description = *description
	}
	if transferID != nil {
		tid := ledger.TransferID(*transferID)
		t.TransferID = &tid
	}
	if t.PreviousBalance, err = parseDecimalPtr(previousBalance); err != nil {
		return t, err
	}
	if t.NewBalance, err = parseDecimalPtr(newBalance); err != nil {
		return t, err
	}
	t.Date, t.CreatedAt = t.Date.UTC(), t.CreatedAt.UTC()
	return t, nil
}

// =============================================================================
// TRANSFERS
// =============================================================================

func (c conn) GetTransfer(ctx context.Context, id ledger.TransferID) (ledger.Transfer, error) {
	t, err := scanTransfer(c.q.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Transfer{}, &ledger.NotFoundError{Resource: "transfer", ID: string(id)}
	}
	return t, err
}

func (c conn) ListTransfers(ctx context.Context) ([]ledger.Transfer, error) {
	rows, err := c.q.Query(ctx, `SELECT `+transferColumns+` FROM transfers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var out []ledger.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransfer(row pgx.Row) (ledger.Transfer, error) {
	var (
		t           ledger.Transfer
		id          string
		fee, feeUSD string
		feeTx       *string
	)
	if err := row.Scan(&id, &fee, &feeUSD, &feeTx, &t.CreatedAt); err != nil {
		return t, err
	}
	t.ID = ledger.TransferID(id)
	var err error
	if t.Fee, err = decimal.NewFromString(fee); err != nil {
		return t, err
	}
	if t.FeeUSD, err = decimal.NewFromString(feeUSD); err != nil {
		return t, err
	}
	if feeTx != nil {
		tid := ledger.TransactionID(*feeTx)
		t.FeeTransactionID = &tid
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (c conn) GetSubcategory(ctx context.Context, id ledger.SubcategoryID) (ledger.Subcategory, error) {
	var sid, cid, name string
	err := c.q.QueryRow(ctx, `SELECT id, category_id, name FROM subcategories WHERE id = $1`, string(id)).
		Scan(&sid, &cid, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Subcategory{}, &ledger.NotFoundError{Resource: "subcategory", ID: string(id)}
	}
	return ledger.Subcategory{ID: ledger.SubcategoryID(sid), CategoryID: ledger.CategoryID(cid), Name: name}, err
}

func (c conn) FindSubcategory(ctx context.Context, typ ledger.TransactionType, name string) (ledger.Subcategory, error) {
	var sid, cid, n string
	err := c.q.QueryRow(ctx, `
		SELECT s.id, s.category_id, s.name
		FROM subcategories s JOIN categories c ON c.id = s.category_id
		WHERE c.type = $1 AND s.name = $2
		ORDER BY s.id LIMIT 1`, string(typ), name).Scan(&sid, &cid, &n)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Subcategory{}, &ledger.NotFoundError{Resource: "subcategory", ID: string(typ) + "/" + name}
	}
	return ledger.Subcategory{ID: ledger.SubcategoryID(sid), CategoryID: ledger.CategoryID(cid), Name: n}, err
}

func (c conn) GetCategory(ctx context.Context, id ledger.CategoryID) (ledger.Category, error) {
	var cid, typ, name string
	err := c.q.QueryRow(ctx, `SELECT id, type, name FROM categories WHERE id = $1`, string(id)).Scan(&cid, &typ, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Category{}, &ledger.NotFoundError{Resource: "category", ID: string(id)}
	}
	if err != nil {
		return ledger.Category{}, err
	}
	cat := ledger.Category{ID: ledger.CategoryID(cid), Type: ledger.TransactionType(typ), Name: name}
	cat.Subcategories, err = c.querySubcategories(ctx, `WHERE category_id = $1`, cid)
	return cat, err
}

func (c conn) ListCategories(ctx context.Context) ([]ledger.Category, error) {
	rows, err := c.q.Query(ctx, `SELECT id, type, name FROM categories ORDER BY type, name`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	var cats []ledger.Category
	index := map[ledger.CategoryID]int{}
	for rows.Next() {
		var id, typ, name string
		if err := rows.Scan(&id, &typ, &name); err != nil {
			rows.Close()
			return nil, err
		}
		index[ledger.CategoryID(id)] = len(cats)
		cats = append(cats, ledger.Category{ID: ledger.CategoryID(id), Type: ledger.TransactionType(typ), Name: name})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	subs, err := c.querySubcategories(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, s := range subs {
		if i, ok := index[s.CategoryID]; ok {
			cats[i].Subcategories = append(cats[i].Subcategories, s)
		}
	}
	return cats, nil
}

func (c conn) querySubcategories(ctx context.Context, where string, args ...any) ([]ledger.Subcategory, error) {
	rows, err := c.q.Query(ctx, `SELECT id, category_id, name FROM subcategories `+where+` ORDER BY name`, args...)
	if err != nil {
		return nil, fmt.Errorf("query subcategories: %w", err)
	}
	defer rows.Close()

	var out []ledger.Subcategory
	for rows.Next() {
		var id, cid, name string
		if err := rows.Scan(&id, &cid, &name); err != nil {
			return nil, err
		}
		out = append(out, ledger.Subcategory{ID: ledger.SubcategoryID(id), CategoryID: ledger.CategoryID(cid), Name: name})
	}
	return out, rows.Err()
}

// =============================================================================
// EXCHANGE RATES
// =============================================================================

func (c conn) LatestExchangeRate(ctx context.Context, at time.Time) (ledger.ExchangeRate, error) {
	var (
		id    string
		rates map[ledger.Currency]decimal.Decimal
		r     ledger.ExchangeRate
	)
	err := c.q.QueryRow(ctx, `
		SELECT id, rates, created_at FROM exchange_rates
		WHERE created_at <= $1 ORDER BY created_at DESC, id DESC LIMIT 1`, at).
		Scan(&id, &rates, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, &ledger.NotFoundError{Resource: "exchange rate", ID: at.UTC().Format(time.RFC3339)}
	}
	if err != nil {
		return r, fmt.Errorf("load exchange rate: %w", err)
	}
	r.ID, r.Rates, r.CreatedAt = ledger.ExchangeRateID(id), rates, r.CreatedAt.UTC()
	return r, nil
}

// =============================================================================
// POCKETS AND HOUSEHOLDS
// =============================================================================

func (c conn) ListPockets(ctx context.Context, wallet ledger.WalletID) ([]ledger.Pocket, error) {
	rows, err := c.q.Query(ctx, `
		SELECT id, wallet_id, name, balance::text, created_at FROM pockets
		WHERE wallet_id = $1 ORDER BY created_at, id`, string(wallet))
	if err != nil {
		return nil, fmt.Errorf("query pockets: %w", err)
	}
	defer rows.Close()

	var out []ledger.Pocket
	for rows.Next() {
		var (
			p                ledger.Pocket
			id, wid, balance string
		)
		if err := rows.Scan(&id, &wid, &p.Name, &balance, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.ID, p.WalletID = ledger.PocketID(id), ledger.WalletID(wid)
		if p.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c conn) IsHouseholdMember(ctx context.Context, h ledger.HouseholdID, u ledger.UserID) (bool, error) {
	var ok bool
	err := c.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM household_members WHERE household_id = $1 AND user_id = $2)`,
		string(h), string(u)).Scan(&ok)
	return ok, err
}

// =============================================================================
// ARGUMENT HELPERS
// =============================================================================

func textArg(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func decimalArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func transferArg(id *ledger.TransferID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

func householdArg(id *ledger.HouseholdID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

func parseDecimalPtr(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
