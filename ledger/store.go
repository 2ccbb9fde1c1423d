/*
store.go - Persistence and unit-of-work interfaces

PURPOSE:
  Defines the boundary between the ledger rules and the database. The
  engine never touches SQL; it composes every multi-write operation out of
  the Tx methods below inside a single Store.WithTx call.

KEY INTERFACES:
  Reader: read-only queries, usable inside and outside a unit of work
  Tx:     the unit of work handed to WithTx callbacks (reads + writes)
  Store:  Reader + WithTx + writes that stand alone (rate snapshots, catalog)

UNIT-OF-WORK CONTRACT:
  WithTx(ctx, fn) runs fn with serializable (or equivalent) isolation.
  - fn returns nil  => every write made through the Tx is committed
  - fn returns err  => nothing is observable afterwards, err is returned
  - LockWallet reads the wallet row such that no concurrent unit of work
    can commit a change to it until this one finishes
  - lock waits and serialization failures surface as
    ErrConcurrentModification so callers can retry
  Reads made through the Tx see the Tx's own writes.

IMPLEMENTATIONS:
  - ledger/store/memory.go: in-memory, snapshot rollback
  - store/sqlite/sqlite.go: SQLite, IMMEDIATE transactions
  - store/postgres/postgres.go: PostgreSQL, SERIALIZABLE + FOR UPDATE

SEE ALSO:
  - balance.go: the only caller of SetWalletBalance
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// READER - Queries
// =============================================================================

type Reader interface {
	GetWallet(ctx context.Context, id WalletID) (Wallet, error)

	// ListWallets returns wallets owned by user plus wallets of households
	// the user belongs to, ordered by creation time.
	ListWallets(ctx context.Context, user UserID) ([]Wallet, error)

	// ListAllWallets is used by the auditor.
	ListAllWallets(ctx context.Context) ([]Wallet, error)

	GetTransaction(ctx context.Context, id TransactionID) (Transaction, error)

	// ListTransactions returns a wallet's transactions, newest date first.
	ListTransactions(ctx context.Context, wallet WalletID) ([]Transaction, error)

	// SumTransactions returns the sum of signed amounts for a wallet.
	SumTransactions(ctx context.Context, wallet WalletID) (decimal.Decimal, error)

	GetTransfer(ctx context.Context, id TransferID) (Transfer, error)
	ListTransfers(ctx context.Context) ([]Transfer, error)

	// TransferLegs returns the transactions linked to a transfer.
	TransferLegs(ctx context.Context, id TransferID) ([]Transaction, error)

	GetSubcategory(ctx context.Context, id SubcategoryID) (Subcategory, error)

	// FindSubcategory looks up a subcategory by its category type and name.
	FindSubcategory(ctx context.Context, typ TransactionType, name string) (Subcategory, error)

	GetCategory(ctx context.Context, id CategoryID) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)

	// LatestExchangeRate returns the newest snapshot created at or before at.
	LatestExchangeRate(ctx context.Context, at time.Time) (ExchangeRate, error)

	ListPockets(ctx context.Context, wallet WalletID) ([]Pocket, error)

	IsHouseholdMember(ctx context.Context, household HouseholdID, user UserID) (bool, error)
}

// =============================================================================
// TX - Unit of work
// =============================================================================

type Tx interface {
	Reader

	// LockWallet loads a wallet and holds it against concurrent writers
	// until the unit of work ends.
	LockWallet(ctx context.Context, id WalletID) (Wallet, error)

	InsertWallet(ctx context.Context, w Wallet) error

	// UpdateWallet overwrites name, platform, currency and balance.
	UpdateWallet(ctx context.Context, w Wallet) error

	// SetWalletBalance writes only the balance column.
	SetWalletBalance(ctx context.Context, id WalletID, balance decimal.Decimal) error

	// DeleteWallet removes the wallet, its transactions and its pockets.
	DeleteWallet(ctx context.Context, id WalletID) error

	// CountTransferLegs counts transactions of the wallet linked to a transfer.
	CountTransferLegs(ctx context.Context, wallet WalletID) (int, error)

	InsertTransaction(ctx context.Context, t Transaction) error
	UpdateTransaction(ctx context.Context, t Transaction) error
	DeleteTransaction(ctx context.Context, id TransactionID) error

	InsertTransfer(ctx context.Context, t Transfer) error

	InsertPocket(ctx context.Context, p Pocket) error
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	Reader

	// WithTx executes fn within a unit of work.
	// If fn returns error, everything is rolled back.
	// If fn returns nil, everything is committed.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// InsertExchangeRate appends a rate snapshot. Snapshots are never updated.
	InsertExchangeRate(ctx context.Context, r ExchangeRate) error

	// SaveCategory upserts a category and its subcategories by (type, name)
	// and returns it with the stored ids.
	SaveCategory(ctx context.Context, c Category) (Category, error)
}
