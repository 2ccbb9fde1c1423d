package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/wallet-ledger/ledger"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn implements ledger.Reader over a querier. Store wraps the pool,
// txStore wraps the open transaction.
type conn struct {
	q querier
}

type scanner interface {
	Scan(dest ...any) error
}

const walletColumns = `id, owner_id, household_id, name, platform, currency, balance, created_at`

const transactionColumns = `id, wallet_id, type, amount, amount_usd, category_id, subcategory_id,
	entity, description, date, transfer_id, previous_balance, new_balance, created_at`

// =============================================================================
// WALLETS
// =============================================================================

func (c conn) GetWallet(ctx context.Context, id ledger.WalletID) (ledger.Wallet, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = ?`, id)
	w, err := scanWallet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Wallet{}, &ledger.NotFoundError{Resource: "wallet", ID: string(id)}
	}
	return w, err
}

func (c conn) ListWallets(ctx context.Context, user ledger.UserID) ([]ledger.Wallet, error) {
	return c.queryWallets(ctx, `
		SELECT `+walletColumns+` FROM wallets
		WHERE owner_id = ?
		   OR household_id IN (SELECT household_id FROM household_members WHERE user_id = ?)
		ORDER BY created_at, id`, user, user)
}

func (c conn) ListAllWallets(ctx context.Context) ([]ledger.Wallet, error) {
	return c.queryWallets(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY created_at, id`)
}

func (c conn) queryWallets(ctx context.Context, query string, args ...any) ([]ledger.Wallet, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallets: %w", err)
	}
	defer rows.Close()

	var wallets []ledger.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

func scanWallet(row scanner) (ledger.Wallet, error) {
	var (
		w         ledger.Wallet
		household sql.NullString
		balance   string
		createdAt string
	)
	if err := row.Scan(&w.ID, &w.OwnerID, &household, &w.Name, &w.Platform, &w.Currency, &balance, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return w, err
		}
		return w, fmt.Errorf("failed to scan wallet: %w", err)
	}
	if household.Valid {
		h := ledger.HouseholdID(household.String)
		w.HouseholdID = &h
	}
	var err error
	if w.Balance, err = decimal.NewFromString(balance); err != nil {
		return w, fmt.Errorf("wallet %s balance: %w", w.ID, err)
	}
	w.CreatedAt = parseTime(createdAt)
	return w, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (c conn) GetTransaction(ctx context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, &ledger.NotFoundError{Resource: "transaction", ID: string(id)}
	}
	return t, err
}

func (c conn) ListTransactions(ctx context.Context, wallet ledger.WalletID) ([]ledger.Transaction, error) {
	return c.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE wallet_id = ? ORDER BY date DESC, id DESC`, wallet)
}

func (c conn) SumTransactions(ctx context.Context, wallet ledger.WalletID) (decimal.Decimal, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT amount FROM transactions WHERE wallet_id = ?`, wallet)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum transactions: %w", err)
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return decimal.Zero, err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(d)
	}
	return sum, rows.Err()
}

func (c conn) TransferLegs(ctx context.Context, id ledger.TransferID) ([]ledger.Transaction, error) {
	return c.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE transfer_id = ? ORDER BY id`, id)
}

func (c conn) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func scanTransaction(row scanner) (ledger.Transaction, error) {
	var (
		t               ledger.Transaction
		amount          string
		amountUSD       string
		entity          sql.NullString
		description     sql.NullString
		date            string
		transferID      sql.NullString
		previousBalance sql.NullString
		newBalance      sql.NullString
		createdAt       string
	)
	err := row.Scan(
		&t.ID, &t.WalletID, &t.Type, &amount, &amountUSD, &t.CategoryID, &t.SubcategoryID,
		&entity, &description, &date, &transferID, &previousBalance, &newBalance, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return t, fmt.Errorf("transaction %s amount: %w", t.ID, err)
	}
	if t.AmountUSD, err = decimal.NewFromString(amountUSD); err != nil {
		return t, fmt.Errorf("transaction %s amount_usd: %w", t.ID, err)
	}
	t.Entity = entity.String
	t.Description = description.String
	t.Date = parseTime(date)
	t.CreatedAt = parseTime(createdAt)
	if transferID.Valid {
		id := ledger.TransferID(transferID.String)
		t.TransferID = &id
	}
	if t.PreviousBalance, err = parseNullDecimal(previousBalance); err != nil {
		return t, err
	}
	if t.NewBalance, err = parseNullDecimal(newBalance); err != nil {
		return t, err
	}
	return t, nil
}

// =============================================================================
// TRANSFERS
// =============================================================================

func (c conn) GetTransfer(ctx context.Context, id ledger.TransferID) (ledger.Transfer, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT id, fee, fee_usd, fee_transaction_id, created_at FROM transfers WHERE id = ?`, id)
	t, err := scanTransfer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transfer{}, &ledger.NotFoundError{Resource: "transfer", ID: string(id)}
	}
	return t, err
}

func (c conn) ListTransfers(ctx context.Context) ([]ledger.Transfer, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT id, fee, fee_usd, fee_transaction_id, created_at FROM transfers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
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

func scanTransfer(row scanner) (ledger.Transfer, error) {
	var (
		t         ledger.Transfer
		fee       string
		feeUSD    string
		feeTx     sql.NullString
		createdAt string
	)
	if err := row.Scan(&t.ID, &fee, &feeUSD, &feeTx, &createdAt); err != nil {
		return t, err
	}
	var err error
	if t.Fee, err = decimal.NewFromString(fee); err != nil {
		return t, err
	}
	if t.FeeUSD, err = decimal.NewFromString(feeUSD); err != nil {
		return t, err
	}
	if feeTx.Valid {
		id := ledger.TransactionID(feeTx.String)
		t.FeeTransactionID = &id
	}
	t.CreatedAt = parseTime(createdAt)
	return t, nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (c conn) GetSubcategory(ctx context.Context, id ledger.SubcategoryID) (ledger.Subcategory, error) {
	var s ledger.Subcategory
	err := c.q.QueryRowContext(ctx,
		`SELECT id, category_id, name FROM subcategories WHERE id = ?`, id).Scan(&s.ID, &s.CategoryID, &s.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return s, &ledger.NotFoundError{Resource: "subcategory", ID: string(id)}
	}
	return s, err
}

func (c conn) FindSubcategory(ctx context.Context, typ ledger.TransactionType, name string) (ledger.Subcategory, error) {
	var s ledger.Subcategory
	err := c.q.QueryRowContext(ctx, `
		SELECT s.id, s.category_id, s.name
		FROM subcategories s JOIN categories c ON c.id = s.category_id
		WHERE c.type = ? AND s.name = ?
		ORDER BY s.id LIMIT 1`, typ, name).Scan(&s.ID, &s.CategoryID, &s.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return s, &ledger.NotFoundError{Resource: "subcategory", ID: string(typ) + "/" + name}
	}
	return s, err
}

func (c conn) GetCategory(ctx context.Context, id ledger.CategoryID) (ledger.Category, error) {
	var cat ledger.Category
	err := c.q.QueryRowContext(ctx,
		`SELECT id, type, name FROM categories WHERE id = ?`, id).Scan(&cat.ID, &cat.Type, &cat.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return cat, &ledger.NotFoundError{Resource: "category", ID: string(id)}
	}
	if err != nil {
		return cat, err
	}
	subs, err := c.querySubcategories(ctx, `WHERE category_id = ?`, id)
	if err != nil {
		return cat, err
	}
	cat.Subcategories = subs
	return cat, nil
}

func (c conn) ListCategories(ctx context.Context) ([]ledger.Category, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT id, type, name FROM categories ORDER BY type, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	var cats []ledger.Category
	index := map[ledger.CategoryID]int{}
	for rows.Next() {
		var cat ledger.Category
		if err := rows.Scan(&cat.ID, &cat.Type, &cat.Name); err != nil {
			rows.Close()
			return nil, err
		}
		index[cat.ID] = len(cats)
		cats = append(cats, cat)
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
	rows, err := c.q.QueryContext(ctx, `SELECT id, category_id, name FROM subcategories `+where+` ORDER BY name`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subcategories: %w", err)
	}
	defer rows.Close()

	var subs []ledger.Subcategory
	for rows.Next() {
		var s ledger.Subcategory
		if err := rows.Scan(&s.ID, &s.CategoryID, &s.Name); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// =============================================================================
// EXCHANGE RATES
// =============================================================================

func (c conn) LatestExchangeRate(ctx context.Context, at time.Time) (ledger.ExchangeRate, error) {
	var (
		r         ledger.ExchangeRate
		ratesJSON string
		createdAt string
	)
	err := c.q.QueryRowContext(ctx, `
		SELECT id, rates_json, created_at FROM exchange_rates
		WHERE created_at <= ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		formatTime(at)).Scan(&r.ID, &ratesJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r, &ledger.NotFoundError{Resource: "exchange rate", ID: at.UTC().Format(time.RFC3339)}
	}
	if err != nil {
		return r, fmt.Errorf("failed to load exchange rate: %w", err)
	}
	if err := json.Unmarshal([]byte(ratesJSON), &r.Rates); err != nil {
		return r, fmt.Errorf("exchange rate %s: %w", r.ID, err)
	}
	r.CreatedAt = parseTime(createdAt)
	return r, nil
}

// =============================================================================
// POCKETS AND HOUSEHOLDS
// =============================================================================

func (c conn) ListPockets(ctx context.Context, wallet ledger.WalletID) ([]ledger.Pocket, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT id, wallet_id, name, balance, created_at FROM pockets WHERE wallet_id = ? ORDER BY created_at, id`, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to query pockets: %w", err)
	}
	defer rows.Close()

	var out []ledger.Pocket
	for rows.Next() {
		var (
			p         ledger.Pocket
			balance   string
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.WalletID, &p.Name, &balance, &createdAt); err != nil {
			return nil, err
		}
		if p.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c conn) IsHouseholdMember(ctx context.Context, h ledger.HouseholdID, u ledger.UserID) (bool, error) {
	var n int
	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM household_members WHERE household_id = ? AND user_id = ?`, h, u).Scan(&n)
	return n > 0, err
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTransfer(id *ledger.TransferID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return nullString(string(*id))
}

func nullHousehold(id *ledger.HouseholdID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return nullString(string(*id))
}

func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
