/*
Package postgres provides a PostgreSQL-backed ledger.Store on pgx/v5.

UNIT OF WORK:
  WithTx opens a SERIALIZABLE transaction, sets a local lock_timeout and
  runs fn on it. LockWallet is SELECT ... FOR UPDATE, so two units of work
  touching the same wallet queue on the row lock; the second one re-reads
  the committed balance before checking it.

  These Postgres failures become ErrConcurrentModification (retryable):
    40001 serialization_failure
    40P01 deadlock_detected
    55P03 lock_not_available (lock_timeout expired)

NUMERICS:
  Amounts are NUMERIC(28,8). They are read back as ::text and parsed into
  decimal.Decimal so no value ever passes through float64.

CONNECTING:
  Connect retries with exponential backoff, which lets the service start
  before its database is reachable (compose, k8s).
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/wallet-ledger/ledger"
)

// Store implements ledger.Store using a pgx connection pool.
type Store struct {
	conn
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

var _ ledger.Store = (*Store)(nil)

// Connect opens a pool to url, retrying up to five times.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 5 * time.Minute

	const maxRetries = 5
	delay := 2 * time.Second
	for i := 1; i <= maxRetries; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pool, err := pgxpool.NewWithConfig(attemptCtx, config)
		if err == nil {
			if err = pool.Ping(attemptCtx); err == nil {
				cancel()
				logger.Info("connected to postgres", zap.Int("attempt", i))
				return pool, nil
			}
			pool.Close()
		}
		cancel()

		logger.Warn("postgres connection failed", zap.Int("attempt", i), zap.Error(err))
		if i == maxRetries {
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, errors.New("unreachable")
}

// New wraps a pool and migrates the schema.
func New(ctx context.Context, pool *pgxpool.Pool, lockTimeout time.Duration) (*Store, error) {
	s := &Store{conn: conn{q: pool}, pool: pool, lockTimeout: lockTimeout}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	household_id TEXT,
	name TEXT NOT NULL,
	platform TEXT NOT NULL DEFAULT '',
	currency TEXT NOT NULL,
	balance NUMERIC(28,8) NOT NULL CHECK (balance >= 0),
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_wallets_owner ON wallets(owner_id);
CREATE INDEX IF NOT EXISTS idx_wallets_household ON wallets(household_id) WHERE household_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	UNIQUE (type, name)
);

CREATE TABLE IF NOT EXISTS subcategories (
	id TEXT PRIMARY KEY,
	category_id TEXT NOT NULL REFERENCES categories(id),
	name TEXT NOT NULL,
	UNIQUE (category_id, name)
);

CREATE TABLE IF NOT EXISTS transfers (
	id TEXT PRIMARY KEY,
	fee NUMERIC(28,8) NOT NULL,
	fee_usd NUMERIC(28,8) NOT NULL,
	fee_transaction_id TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	wallet_id TEXT NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	amount NUMERIC(28,8) NOT NULL,
	amount_usd NUMERIC(28,8) NOT NULL,
	category_id TEXT NOT NULL REFERENCES categories(id),
	subcategory_id TEXT NOT NULL REFERENCES subcategories(id),
	entity TEXT,
	description TEXT,
	date TIMESTAMPTZ NOT NULL,
	transfer_id TEXT REFERENCES transfers(id),
	previous_balance NUMERIC(28,8),
	new_balance NUMERIC(28,8),
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_wallet_date ON transactions(wallet_id, date DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_transfer ON transactions(transfer_id) WHERE transfer_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS exchange_rates (
	id TEXT PRIMARY KEY,
	rates JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exchange_rates_created ON exchange_rates(created_at DESC);

CREATE TABLE IF NOT EXISTS pockets (
	id TEXT PRIMARY KEY,
	wallet_id TEXT NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	balance NUMERIC(28,8) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS household_members (
	household_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	PRIMARY KEY (household_id, user_id)
);
`

// =============================================================================
// UNIT OF WORK
// =============================================================================

func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return mapError(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	if s.lockTimeout > 0 {
		// SET does not take bind parameters
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return mapError(fmt.Errorf("set lock timeout: %w", err))
		}
	}

	if err := fn(&txStore{conn: conn{q: tx}}); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("commit: %w", err))
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
	rates, err := json.Marshal(r.Rates)
	if err != nil {
		return fmt.Errorf("encode rates: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO exchange_rates (id, rates, created_at) VALUES ($1, $2::jsonb, $3)`,
		string(r.ID), string(rates), r.CreatedAt)
	return mapError(err)
}

func (s *Store) SaveCategory(ctx context.Context, c ledger.Category) (ledger.Category, error) {
	var out ledger.Category
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		id := string(c.ID)
		if id == "" {
			id = uuid.NewString()
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO categories (id, type, name) VALUES ($1, $2, $3)
			ON CONFLICT (type, name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, id, string(c.Type), c.Name).Scan(&id)
		if err != nil {
			return fmt.Errorf("upsert category: %w", err)
		}
		for _, sub := range c.Subcategories {
			subID := string(sub.ID)
			if subID == "" {
				subID = uuid.NewString()
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO subcategories (id, category_id, name) VALUES ($1, $2, $3)
				ON CONFLICT (category_id, name) DO NOTHING`, subID, id, sub.Name); err != nil {
				return fmt.Errorf("upsert subcategory: %w", err)
			}
		}
		out, err = conn{q: tx}.GetCategory(ctx, ledger.CategoryID(id))
		return err
	})
	return out, mapError(err)
}

func (s *Store) AddHouseholdMember(ctx context.Context, h ledger.HouseholdID, u ledger.UserID) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO household_members (household_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		string(h), string(u))
	return mapError(err)
}

// =============================================================================
// WRITES (ledger.Tx)
// =============================================================================

func (ts *txStore) LockWallet(ctx context.Context, id ledger.WalletID) (ledger.Wallet, error) {
	row := ts.q.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, string(id))
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Wallet{}, &ledger.NotFoundError{Resource: "wallet", ID: string(id)}
	}
	return w, err
}

func (ts *txStore) InsertWallet(ctx context.Context, w ledger.Wallet) error {
	_, err := ts.q.Exec(ctx, `
		INSERT INTO wallets (id, owner_id, household_id, name, platform, currency, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8)`,
		string(w.ID), string(w.OwnerID), householdArg(w.HouseholdID), w.Name, w.Platform,
		string(w.Currency), w.Balance.String(), w.CreatedAt)
	return writeError("insert wallet", err)
}

func (ts *txStore) UpdateWallet(ctx context.Context, w ledger.Wallet) error {
	tag, err := ts.q.Exec(ctx,
		`UPDATE wallets SET name = $1, platform = $2, currency = $3, balance = $4::numeric WHERE id = $5`,
		w.Name, w.Platform, string(w.Currency), w.Balance.String(), string(w.ID))
	if err != nil {
		return writeError("update wallet", err)
	}
	return expectRow(tag, "wallet", string(w.ID))
}

func (ts *txStore) SetWalletBalance(ctx context.Context, id ledger.WalletID, balance decimal.Decimal) error {
	tag, err := ts.q.Exec(ctx, `UPDATE wallets SET balance = $1::numeric WHERE id = $2`, balance.String(), string(id))
	if err != nil {
		return writeError("set wallet balance", err)
	}
	return expectRow(tag, "wallet", string(id))
}

func (ts *txStore) DeleteWallet(ctx context.Context, id ledger.WalletID) error {
	if _, err := ts.q.Exec(ctx, `DELETE FROM transactions WHERE wallet_id = $1`, string(id)); err != nil {
		return writeError("delete wallet transactions", err)
	}
	if _, err := ts.q.Exec(ctx, `DELETE FROM pockets WHERE wallet_id = $1`, string(id)); err != nil {
		return writeError("delete wallet pockets", err)
	}
	tag, err := ts.q.Exec(ctx, `DELETE FROM wallets WHERE id = $1`, string(id))
	if err != nil {
		return writeError("delete wallet", err)
	}
	return expectRow(tag, "wallet", string(id))
}

func (ts *txStore) CountTransferLegs(ctx context.Context, id ledger.WalletID) (int, error) {
	var n int
	err := ts.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE wallet_id = $1 AND transfer_id IS NOT NULL`, string(id)).Scan(&n)
	return n, err
}

func (ts *txStore) InsertTransaction(ctx context.Context, t ledger.Transaction) error {
	_, err := ts.q.Exec(ctx, `
		INSERT INTO transactions
		(id, wallet_id, type, amount, amount_usd, category_id, subcategory_id, entity, description,
		 date, transfer_id, previous_balance, new_balance, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8, $9, $10, $11, $12::numeric, $13::numeric, $14)`,
		string(t.ID), string(t.WalletID), string(t.Type), t.Amount.String(), t.AmountUSD.String(),
		string(t.CategoryID), string(t.SubcategoryID), textArg(t.Entity), textArg(t.Description),
		t.Date, transferArg(t.TransferID), decimalArg(t.PreviousBalance), decimalArg(t.NewBalance), t.CreatedAt)
	return writeError("insert transaction", err)
}

func (ts *txStore) UpdateTransaction(ctx context.Context, t ledger.Transaction) error {
	tag, err := ts.q.Exec(ctx, `
		UPDATE transactions SET wallet_id = $1, type = $2, amount = $3::numeric, amount_usd = $4::numeric,
			category_id = $5, subcategory_id = $6, entity = $7, description = $8, date = $9
		WHERE id = $10`,
		string(t.WalletID), string(t.Type), t.Amount.String(), t.AmountUSD.String(),
		string(t.CategoryID), string(t.SubcategoryID), textArg(t.Entity), textArg(t.Description), t.Date, string(t.ID))
	if err != nil {
		return writeError("update transaction", err)
	}
	return expectRow(tag, "transaction", string(t.ID))
}

func (ts *txStore) DeleteTransaction(ctx context.Context, id ledger.TransactionID) error {
	tag, err := ts.q.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, string(id))
	if err != nil {
		return writeError("delete transaction", err)
	}
	return expectRow(tag, "transaction", string(id))
}

func (ts *txStore) InsertTransfer(ctx context.Context, t ledger.Transfer) error {
	var feeTx *string
	if t.FeeTransactionID != nil {
		s := string(*t.FeeTransactionID)
		feeTx = &s
	}
	_, err := ts.q.Exec(ctx, `
		INSERT INTO transfers (id, fee, fee_usd, fee_transaction_id, created_at)
		VALUES ($1, $2::numeric, $3::numeric, $4, $5)`,
		string(t.ID), t.Fee.String(), t.FeeUSD.String(), feeTx, t.CreatedAt)
	return writeError("insert transfer", err)
}

func (ts *txStore) InsertPocket(ctx context.Context, p ledger.Pocket) error {
	_, err := ts.q.Exec(ctx, `
		INSERT INTO pockets (id, wallet_id, name, balance, created_at) VALUES ($1, $2, $3, $4::numeric, $5)`,
		string(p.ID), string(p.WalletID), p.Name, p.Balance.String(), p.CreatedAt)
	return writeError("insert pocket", err)
}

// =============================================================================
// ERRORS
// =============================================================================

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", ledger.ErrConcurrentModification, pgErr.Message)
		}
	}
	return err
}

func writeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s: duplicate id", ledger.ErrConflict, op)
		case "23503":
			return fmt.Errorf("%w: %s: referenced record missing", ledger.ErrInvalidInput, op)
		case "23514":
			return fmt.Errorf("%w: %s: %s", ledger.ErrInsufficientFunds, op, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func expectRow(tag pgconn.CommandTag, resource, id string) error {
	if tag.RowsAffected() == 0 {
		return &ledger.NotFoundError{Resource: resource, ID: id}
	}
	return nil
}
