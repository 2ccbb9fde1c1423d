/*
Package sqlite provides a SQLite-backed ledger.Store.

PURPOSE:
  The default store for local and single-node deployments. The same schema
  is used by store/postgres with dialect changes only.

KEY TABLES:
  wallets:           balance containers (balance kept as decimal TEXT)
  transactions:      signed ledger entries, optional transfer link
  transfers:         transfer envelopes (fee, fee_usd)
  categories:        taxonomy, unique by (type, name)
  subcategories:     unique by (category_id, name)
  exchange_rates:    immutable snapshots, rates as JSON
  pockets:           wallet subdivisions
  household_members: who may see household wallets

UNIT OF WORK:
  Units of work are serialized twice: a process-wide mutex orders writers,
  and every transaction is opened with BEGIN IMMEDIATE (_txlock=immediate)
  so SQLite takes the write lock before the first read. Balance checks are
  therefore always made against the latest committed balance. A writer that
  cannot get the lock within the busy timeout fails with
  ErrConcurrentModification.

  Every read inside WithTx goes through the *sql.Tx; nothing inside a unit
  of work touches the pool.

DECIMALS AND TIMES:
  Amounts are stored as decimal strings and summed in Go, never by SQLite
  (SUM over TEXT would go through floating point). Times are stored in UTC
  with a fixed-width layout so they order lexicographically.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/wallet-ledger/ledger"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements ledger.Store using SQLite.
type Store struct {
	conn
	db *sql.DB
	mu sync.Mutex
}

var _ ledger.Store = (*Store)(nil)

type options struct {
	lockTimeout time.Duration
}

type Option func(*options)

// WithLockTimeout bounds how long a unit of work waits for the write lock.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) { o.lockTimeout = d }
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	o := options{lockTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=%d",
		dbPath, o.lockTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, conn: conn{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		household_id TEXT,
		name TEXT NOT NULL,
		platform TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL,
		balance TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_wallets_owner ON wallets(owner_id);
	CREATE INDEX IF NOT EXISTS idx_wallets_household
		ON wallets(household_id) WHERE household_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		UNIQUE(type, name)
	);

	CREATE TABLE IF NOT EXISTS subcategories (
		id TEXT PRIMARY KEY,
		category_id TEXT NOT NULL REFERENCES categories(id),
		name TEXT NOT NULL,
		UNIQUE(category_id, name)
	);

	CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		fee TEXT NOT NULL,
		fee_usd TEXT NOT NULL,
		fee_transaction_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		amount_usd TEXT NOT NULL,
		category_id TEXT NOT NULL REFERENCES categories(id),
		subcategory_id TEXT NOT NULL REFERENCES subcategories(id),
		entity TEXT,
		description TEXT,
		date TEXT NOT NULL,
		transfer_id TEXT REFERENCES transfers(id),
		previous_balance TEXT,
		new_balance TEXT,
		created_at TEXT NOT NULL
	);

	-- Wallet history, newest first (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_wallet_date
		ON transactions(wallet_id, date DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_transfer
		ON transactions(transfer_id) WHERE transfer_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS exchange_rates (
		id TEXT PRIMARY KEY,
		rates_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exchange_rates_created
		ON exchange_rates(created_at DESC);

	CREATE TABLE IF NOT EXISTS pockets (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		balance TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pockets_wallet ON pockets(wallet_id);

	CREATE TABLE IF NOT EXISTS household_members (
		household_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		PRIMARY KEY (household_id, user_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.Store interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// BEGIN IMMEDIATE via _txlock; the driver has no isolation levels
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{conn: conn{q: sqlTx}}); err != nil {
		return mapError(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return mapError(fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

type txStore struct {
	conn
}

var _ ledger.Tx = (*txStore)(nil)

// =============================================================================
// STANDALONE WRITES
// =============================================================================

func (s *Store) InsertExchangeRate(ctx context.Context, r ledger.ExchangeRate) error {
	ratesJSON, err := json.Marshal(r.Rates)
	if err != nil {
		return fmt.Errorf("failed to encode rates: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO exchange_rates (id, rates_json, created_at) VALUES (?, ?, ?)`,
		r.ID, string(ratesJSON), formatTime(r.CreatedAt))
	if err != nil {
		return mapError(fmt.Errorf("failed to insert exchange rate: %w", err))
	}
	return nil
}

// SaveCategory upserts a category and its subcategories in one transaction.
func (s *Store) SaveCategory(ctx context.Context, c ledger.Category) (ledger.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Category{}, mapError(err)
	}
	defer sqlTx.Rollback()

	id := c.ID
	if id == "" {
		id = ledger.CategoryID(uuid.NewString())
	}
	if _, err := sqlTx.ExecContext(ctx,
		`INSERT INTO categories (id, type, name) VALUES (?, ?, ?) ON CONFLICT(type, name) DO NOTHING`,
		id, c.Type, c.Name); err != nil {
		return ledger.Category{}, fmt.Errorf("failed to upsert category: %w", err)
	}
	if err := sqlTx.QueryRowContext(ctx,
		`SELECT id FROM categories WHERE type = ? AND name = ?`, c.Type, c.Name).Scan(&id); err != nil {
		return ledger.Category{}, fmt.Errorf("failed to load category: %w", err)
	}

	for _, sub := range c.Subcategories {
		subID := sub.ID
		if subID == "" {
			subID = ledger.SubcategoryID(uuid.NewString())
		}
		if _, err := sqlTx.ExecContext(ctx,
			`INSERT INTO subcategories (id, category_id, name) VALUES (?, ?, ?)
			 ON CONFLICT(category_id, name) DO NOTHING`,
			subID, id, sub.Name); err != nil {
			return ledger.Category{}, fmt.Errorf("failed to upsert subcategory: %w", err)
		}
	}

	stored, err := (conn{q: sqlTx}).GetCategory(ctx, id)
	if err != nil {
		return ledger.Category{}, err
	}
	if err := sqlTx.Commit(); err != nil {
		return ledger.Category{}, mapError(err)
	}
	return stored, nil
}

// AddHouseholdMember grants user visibility of the household's wallets.
func (s *Store) AddHouseholdMember(ctx context.Context, h ledger.HouseholdID, u ledger.UserID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO household_members (household_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, h, u)
	return mapError(err)
}

// =============================================================================
// WRITES (ledger.Tx)
// =============================================================================

// LockWallet reads the wallet. The IMMEDIATE transaction already holds the
// database write lock, so no row-level lock is needed.
func (ts *txStore) LockWallet(ctx context.Context, id ledger.WalletID) (ledger.Wallet, error) {
	return ts.GetWallet(ctx, id)
}

func (ts *txStore) InsertWallet(ctx context.Context, w ledger.Wallet) error {
	_, err := ts.q.ExecContext(ctx, `
		INSERT INTO wallets (id, owner_id, household_id, name, platform, currency, balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.OwnerID, nullHousehold(w.HouseholdID), w.Name, w.Platform, w.Currency,
		w.Balance.String(), formatTime(w.CreatedAt))
	if err != nil {
		return writeError("insert wallet", err)
	}
	return nil
}

func (ts *txStore) UpdateWallet(ctx context.Context, w ledger.Wallet) error {
	res, err := ts.q.ExecContext(ctx,
		`UPDATE wallets SET name = ?, platform = ?, currency = ?, balance = ? WHERE id = ?`,
		w.Name, w.Platform, w.Currency, w.Balance.String(), w.ID)
	if err != nil {
		return writeError("update wallet", err)
	}
	return expectRow(res, "wallet", string(w.ID))
}

func (ts *txStore) SetWalletBalance(ctx context.Context, id ledger.WalletID, balance decimal.Decimal) error {
	res, err := ts.q.ExecContext(ctx, `UPDATE wallets SET balance = ? WHERE id = ?`, balance.String(), id)
	if err != nil {
		return writeError("set wallet balance", err)
	}
	return expectRow(res, "wallet", string(id))
}

func (ts *txStore) DeleteWallet(ctx context.Context, id ledger.WalletID) error {
	for _, q := range []string{
		`DELETE FROM transactions WHERE wallet_id = ?`,
		`DELETE FROM pockets WHERE wallet_id = ?`,
	} {
		if _, err := ts.q.ExecContext(ctx, q, id); err != nil {
			return writeError("delete wallet", err)
		}
	}
	res, err := ts.q.ExecContext(ctx, `DELETE FROM wallets WHERE id = ?`, id)
	if err != nil {
		return writeError("delete wallet", err)
	}
	return expectRow(res, "wallet", string(id))
}

func (ts *txStore) CountTransferLegs(ctx context.Context, id ledger.WalletID) (int, error) {
	var n int
	err := ts.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE wallet_id = ? AND transfer_id IS NOT NULL`, id).Scan(&n)
	return n, err
}

func (ts *txStore) InsertTransaction(ctx context.Context, t ledger.Transaction) error {
	_, err := ts.q.ExecContext(ctx, `
		INSERT INTO transactions
		(id, wallet_id, type, amount, amount_usd, category_id, subcategory_id, entity, description,
		 date, transfer_id, previous_balance, new_balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.WalletID, t.Type, t.Amount.String(), t.AmountUSD.String(),
		t.CategoryID, t.SubcategoryID, nullString(t.Entity), nullString(t.Description),
		formatTime(t.Date), nullTransfer(t.TransferID),
		nullDecimal(t.PreviousBalance), nullDecimal(t.NewBalance), formatTime(t.CreatedAt))
	if err != nil {
		return writeError("insert transaction", err)
	}
	return nil
}

func (ts *txStore) UpdateTransaction(ctx context.Context, t ledger.Transaction) error {
	res, err := ts.q.ExecContext(ctx, `
		UPDATE transactions SET wallet_id = ?, type = ?, amount = ?, amount_usd = ?, category_id = ?,
			subcategory_id = ?, entity = ?, description = ?, date = ?
		WHERE id = ?`,
		t.WalletID, t.Type, t.Amount.String(), t.AmountUSD.String(), t.CategoryID,
		t.SubcategoryID, nullString(t.Entity), nullString(t.Description), formatTime(t.Date), t.ID)
	if err != nil {
		return writeError("update transaction", err)
	}
	return expectRow(res, "transaction", string(t.ID))
}

func (ts *txStore) DeleteTransaction(ctx context.Context, id ledger.TransactionID) error {
	res, err := ts.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return writeError("delete transaction", err)
	}
	return expectRow(res, "transaction", string(id))
}

func (ts *txStore) InsertTransfer(ctx context.Context, t ledger.Transfer) error {
	var feeTx sql.NullString
	if t.FeeTransactionID != nil {
		feeTx = nullString(string(*t.FeeTransactionID))
	}
	_, err := ts.q.ExecContext(ctx,
		`INSERT INTO transfers (id, fee, fee_usd, fee_transaction_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Fee.String(), t.FeeUSD.String(), feeTx, formatTime(t.CreatedAt))
	if err != nil {
		return writeError("insert transfer", err)
	}
	return nil
}

func (ts *txStore) InsertPocket(ctx context.Context, p ledger.Pocket) error {
	_, err := ts.q.ExecContext(ctx,
		`INSERT INTO pockets (id, wallet_id, name, balance, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.WalletID, p.Name, p.Balance.String(), formatTime(p.CreatedAt))
	if err != nil {
		return writeError("insert pocket", err)
	}
	return nil
}

// =============================================================================
// ERRORS
// =============================================================================

// mapError turns SQLite lock contention into ErrConcurrentModification.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", ledger.ErrConcurrentModification, err)
	}
	return err
}

func writeError(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return fmt.Errorf("%w: %s: duplicate id", ledger.ErrConflict, op)
	}
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey {
		return fmt.Errorf("%w: %s: referenced record missing", ledger.ErrInvalidInput, op)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func expectRow(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ledger.NotFoundError{Resource: resource, ID: id}
	}
	return nil
}
