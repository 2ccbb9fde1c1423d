package ledger

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// IDGenerator mints identifiers for new ledger records.
type IDGenerator interface {
	// NewID returns an opaque unique id (wallets, transfers, pockets).
	NewID() string
	// NewSortableID returns an id that sorts by creation time (transactions).
	NewSortableID() string
}

// DefaultIDs uses UUIDv4 for opaque ids and monotonic ULIDs for sortable ones.
type DefaultIDs struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewDefaultIDs() *DefaultIDs {
	return &DefaultIDs{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *DefaultIDs) NewID() string {
	return uuid.NewString()
}

func (g *DefaultIDs) NewSortableID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}
