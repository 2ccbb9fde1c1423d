package rates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/wallet-ledger/ledger"
)

// Fetcher supplies fresh rates. *Client implements it.
type Fetcher interface {
	Latest(ctx context.Context) (map[ledger.Currency]decimal.Decimal, error)
}

// SnapshotWriter persists snapshots. Every ledger.Store implements it.
type SnapshotWriter interface {
	InsertExchangeRate(ctx context.Context, r ledger.ExchangeRate) error
}

// SnapshotCache receives each new snapshot after it is stored.
type SnapshotCache interface {
	Put(ctx context.Context, snap ledger.ExchangeRate) (bool, error)
}

// Refresher writes a new snapshot every Interval while started, and on
// demand through Refresh.
type Refresher struct {
	Fetcher  Fetcher
	Store    SnapshotWriter
	Cache    SnapshotCache // optional
	Interval time.Duration
	Logger   *zap.Logger
	Now      func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewRefresher(f Fetcher, s SnapshotWriter, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		Fetcher:  f,
		Store:    s,
		Interval: 12 * time.Hour,
		Logger:   logger,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Refresh fetches rates and stores them as a new snapshot.
func (r *Refresher) Refresh(ctx context.Context) (ledger.ExchangeRate, error) {
	rates, err := r.Fetcher.Latest(ctx)
	if err != nil {
		return ledger.ExchangeRate{}, err
	}
	snap := ledger.ExchangeRate{
		ID:        ledger.ExchangeRateID(uuid.NewString()),
		CreatedAt: r.Now(),
		Rates:     rates,
	}
	if err := r.Store.InsertExchangeRate(ctx, snap); err != nil {
		return ledger.ExchangeRate{}, fmt.Errorf("store exchange rate: %w", err)
	}
	if r.Cache != nil {
		if _, err := r.Cache.Put(ctx, snap); err != nil {
			// readers refill the cache from the store once the entry expires
			r.Logger.Warn("update rate cache", zap.Error(err))
		}
	}
	r.Logger.Info("exchange rates refreshed",
		zap.String("snapshot_id", string(snap.ID)),
		zap.Int("currencies", len(snap.Rates)))
	return snap, nil
}

// Start runs Refresh immediately and then on every tick.
func (r *Refresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ticker != nil {
		return
	}

	r.ticker = time.NewTicker(r.Interval)
	r.stop = make(chan struct{})
	r.wg.Add(1)
	go r.run()

	r.Logger.Info("rate refresher started", zap.Duration("interval", r.Interval))
}

// Stop halts the ticker and waits for an in-flight refresh.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ticker == nil {
		return
	}
	r.ticker.Stop()
	close(r.stop)
	r.wg.Wait()
	r.ticker = nil
	r.Logger.Info("rate refresher stopped")
}

func (r *Refresher) run() {
	defer r.wg.Done()

	r.tick()
	for {
		select {
		case <-r.ticker.C:
			r.tick()
		case <-r.stop:
			return
		}
	}
}

func (r *Refresher) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := r.Refresh(ctx); err != nil {
		r.Logger.Error("scheduled rate refresh failed", zap.Error(err))
	}
}
