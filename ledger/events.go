package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventWalletCreated      EventType = "wallet.created"
	EventWalletUpdated      EventType = "wallet.updated"
	EventWalletDeleted      EventType = "wallet.deleted"
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionUpdated EventType = "transaction.updated"
	EventTransactionDeleted EventType = "transaction.deleted"
	EventTransferCreated    EventType = "transfer.created"
	EventPocketCreated      EventType = "pocket.created"
)

// Event is published after a mutation has committed.
type Event struct {
	ID            string           `json:"id"`
	Type          EventType        `json:"type"`
	OccurredAt    time.Time        `json:"occurred_at"`
	WalletID      WalletID         `json:"wallet_id,omitempty"`
	CounterWallet WalletID         `json:"counter_wallet_id,omitempty"`
	TransactionID TransactionID    `json:"transaction_id,omitempty"`
	TransferID    TransferID       `json:"transfer_id,omitempty"`
	PocketID      PocketID         `json:"pocket_id,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Balance       *decimal.Decimal `json:"balance,omitempty"`
}

// Publisher delivers events. A failed publish never undoes the commit.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

// Observer is told about every finished operation.
type Observer interface {
	Observe(operation string, err error, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) Observe(string, error, time.Duration) {}

func decPtr(d decimal.Decimal) *decimal.Decimal { return &d }
