/*
engine.go - Ledger Engine construction and the shared operation runner

PURPOSE:
  Engine is the operation surface callers use: wallets, transactions,
  transfers, pockets and read queries. Every mutating operation follows the
  same shape:

    1. validate input (no I/O)
    2. take one exchange-rate snapshot (outside the unit of work)
    3. run the unit of work: lock wallets, check, write
    4. after commit: record metrics, log, publish events

  Failure at any step leaves nothing written.

CONSTRUCTION:
  New resolves the reserved subcategories once and refuses to build an
  engine if any is missing, so no user-facing operation fails lazily on
  seed-data defects.

    eng, err := ledger.New(ctx, store,
        ledger.WithLogger(logger),
        ledger.WithPublisher(pub),
        ledger.WithTxTimeout(2*time.Minute),
    )

SEE ALSO:
  - transaction.go, transfer.go, wallet.go, pocket.go: operations
  - audit.go: invariant checker
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultTxTimeout bounds the total run time of one unit of work.
const DefaultTxTimeout = 2 * time.Minute

type Engine struct {
	store     Store
	rates     RateSource
	sentinels Sentinels
	ids       IDGenerator
	now       func() time.Time
	txTimeout time.Duration
	logger    *zap.Logger
	publisher Publisher
	observer  Observer
}

// =============================================================================
// OPTIONS
// =============================================================================

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }

func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

// WithRateSource replaces the store-backed rate lookup.
func WithRateSource(r RateSource) Option { return func(e *Engine) { e.rates = r } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithIDs(g IDGenerator) Option { return func(e *Engine) { e.ids = g } }

func WithTxTimeout(d time.Duration) Option { return func(e *Engine) { e.txTimeout = d } }

// New builds an engine over store. It fails with ErrInvariantViolation when
// reserved subcategories are missing.
func New(ctx context.Context, store Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:     store,
		rates:     StoreRates{Reader: store},
		ids:       NewDefaultIDs(),
		now:       func() time.Time { return time.Now().UTC() },
		txTimeout: DefaultTxTimeout,
		logger:    zap.NewNop(),
		publisher: nopPublisher{},
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}

	sentinels, err := ResolveSentinels(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("resolve reserved subcategories: %w", err)
	}
	e.sentinels = sentinels
	return e, nil
}

// =============================================================================
// OPERATION RUNNER
// =============================================================================

// run executes fn as one unit of work bounded by the engine's tx timeout.
func (e *Engine) run(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()

	err := e.store.WithTx(ctx, func(tx Tx) error { return fn(ctx, tx) })
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrConcurrentModification) {
		err = fmt.Errorf("%w: %v", ErrConcurrentModification, err)
	}
	e.finish(op, start, err)
	return err
}

// finish records an operation that ended before or after a unit of work.
func (e *Engine) finish(op string, start time.Time, err error) {
	e.observer.Observe(op, err, time.Since(start))
	if err == nil {
		return
	}
	kind := KindOf(err)
	if kind == KindInternal {
		e.logger.Error("ledger operation failed", zap.String("operation", op), zap.Error(err))
		return
	}
	e.logger.Warn("ledger operation rejected",
		zap.String("operation", op),
		zap.String("kind", string(kind)),
		zap.Error(err))
}

// reject records an operation refused before any I/O.
func (e *Engine) reject(op string, err error) error {
	e.finish(op, time.Now(), err)
	return err
}

func (e *Engine) publish(ctx context.Context, events ...Event) {
	for _, ev := range events {
		ev.ID = e.ids.NewSortableID()
		ev.OccurredAt = e.now()
		if err := e.publisher.Publish(ctx, ev); err != nil {
			e.logger.Error("publish ledger event",
				zap.String("type", string(ev.Type)),
				zap.String("event_id", ev.ID),
				zap.Error(err))
		}
	}
}

// =============================================================================
// RATES
// =============================================================================

// rateView is the snapshot one operation converts with. A missing snapshot
// is only an error once a conversion is actually needed.
type rateView struct {
	snap ExchangeRate
	err  error
}

func (e *Engine) rateView(ctx context.Context) (rateView, error) {
	snap, err := e.rates.SnapshotAt(ctx, e.now())
	if err != nil {
		if errors.Is(err, ErrRateUnavailable) {
			return rateView{err: err}, nil
		}
		return rateView{}, err
	}
	return rateView{snap: snap}, nil
}

func (v rateView) rateFor(c Currency) (Rate, error) {
	if c == USD {
		return Rate{Currency: USD, Value: decimal.NewFromInt(1)}, nil
	}
	if v.err != nil {
		return Rate{}, v.err
	}
	r, err := v.snap.RateFor(c)
	if err != nil {
		return Rate{}, err
	}
	return Rate{Currency: c, Value: r}, nil
}

// =============================================================================
// LOCKING
// =============================================================================

// lockWallets locks the given wallets in id order and returns them in the
// order requested. Duplicates share one lock.
func lockWallets(ctx context.Context, tx Tx, ids ...WalletID) ([]Wallet, error) {
	ordered := make([]WalletID, 0, len(ids))
	seen := make(map[WalletID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			ordered = append(ordered, id)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	locked := make(map[WalletID]Wallet, len(ordered))
	for _, id := range ordered {
		w, err := tx.LockWallet(ctx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = w
	}

	out := make([]Wallet, len(ids))
	for i, id := range ids {
		out[i] = locked[id]
	}
	return out, nil
}

// =============================================================================
// CATEGORY CHECKS
// =============================================================================

func checkCategory(ctx context.Context, r Reader, typ TransactionType, cat CategoryID, sub SubcategoryID) error {
	s, err := r.GetSubcategory(ctx, sub)
	if err != nil {
		return err
	}
	if s.CategoryID != cat {
		return invalid("subcategory %s does not belong to category %s", sub, cat)
	}
	c, err := r.GetCategory(ctx, cat)
	if err != nil {
		return err
	}
	if c.Type != typ {
		return invalid("category %s is %s, transaction is %s", cat, c.Type, typ)
	}
	return nil
}
