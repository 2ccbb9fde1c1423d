// Package app assembles the ledger from configuration. The server and the
// admin CLI share it so both talk to the same backends.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/wallet-ledger/catalog"
	"github.com/warp/wallet-ledger/config"
	"github.com/warp/wallet-ledger/events"
	"github.com/warp/wallet-ledger/ledger"
	"github.com/warp/wallet-ledger/ledger/store"
	"github.com/warp/wallet-ledger/metrics"
	"github.com/warp/wallet-ledger/rates"
	"github.com/warp/wallet-ledger/store/postgres"
	"github.com/warp/wallet-ledger/store/sqlite"
)

// Store is a ledger store that also manages household membership.
type Store interface {
	ledger.Store
	AddHouseholdMember(ctx context.Context, h ledger.HouseholdID, u ledger.UserID) error
}

// App holds the assembled components. Close releases them in reverse order.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Store     Store
	Redis     *redis.Client // nil without REDIS_ADDR
	Cache     *rates.Cache  // nil without REDIS_ADDR
	Engine    *ledger.Engine
	Refresher *rates.Refresher // nil without EXCHANGE_RATE_API_KEY

	closers []func()
}

// New opens the configured store, seeds the catalog when asked and builds
// the engine.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	s, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = s

	if cfg.SeedCatalog {
		res, err := catalog.Seed(ctx, s, catalog.Default, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
		logger.Info("catalog ready",
			zap.Int("categories", res.Categories),
			zap.Int("subcategories", res.Subcategories))
	}

	var source ledger.RateSource = ledger.StoreRates{Reader: s}
	if cfg.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
		a.closers = append(a.closers, func() { a.Redis.Close() })
		a.Cache = rates.NewCache(a.Redis, source, cfg.RatesCacheTTL, logger)
		source = a.Cache
	}

	publisher, err := a.publisher()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Engine, err = ledger.New(ctx, s,
		ledger.WithLogger(logger),
		ledger.WithPublisher(publisher),
		ledger.WithObserver(metrics.Recorder{}),
		ledger.WithRateSource(source),
		ledger.WithTxTimeout(cfg.TxTimeout),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.ExchangeRateAPIKey != "" {
		a.Refresher = rates.NewRefresher(rates.NewClient(cfg.ExchangeRateAPIURL, cfg.ExchangeRateAPIKey), s, logger)
		if a.Cache != nil {
			a.Refresher.Cache = a.Cache
		}
		if cfg.RatesRefreshInterval > 0 {
			a.Refresher.Interval = cfg.RatesRefreshInterval
		}
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) (Store, error) {
	cfg := a.Config
	switch cfg.StoreDriver {
	case "sqlite":
		s, err := sqlite.New(cfg.SQLitePath, sqlite.WithLockTimeout(cfg.TxLockTimeout))
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		a.closers = append(a.closers, func() { s.Close() })
		return s, nil

	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres store")
		}
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, a.Logger)
		if err != nil {
			return nil, err
		}
		s, err := postgres.New(ctx, pool, cfg.TxLockTimeout)
		if err != nil {
			pool.Close()
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil

	case "memory":
		return store.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func (a *App) publisher() (ledger.Publisher, error) {
	cfg := a.Config
	switch cfg.EventsBackend {
	case "", "none":
		return events.LogPublisher{Logger: a.Logger}, nil
	case "redis":
		if a.Redis == nil {
			return nil, errors.New("EVENTS_BACKEND=redis needs REDIS_ADDR")
		}
		return events.NewRedisPublisher(a.Redis, events.DefaultChannel), nil
	case "kafka":
		p := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, a.Logger)
		a.closers = append(a.closers, func() { p.Close() })
		return p, nil
	}
	return nil, fmt.Errorf("unknown events backend %q", cfg.EventsBackend)
}

// RateRefresher returns the refresher as an interface value that is nil when
// no upstream is configured.
func (a *App) RateRefresher() interface {
	Refresh(ctx context.Context) (ledger.ExchangeRate, error)
} {
	if a.Refresher == nil {
		return nil
	}
	return a.Refresher
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
