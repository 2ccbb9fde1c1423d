package app

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/wallet-ledger/config"
	"github.com/warp/wallet-ledger/ledger"
)

func testConfig() config.Config {
	return config.Config{
		StoreDriver:   "memory",
		EventsBackend: "none",
		SeedCatalog:   true,
	}
}

func TestNew_MemoryStore(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Refresher)
	assert.Nil(t, a.RateRefresher())
	assert.Nil(t, a.Redis)

	// No snapshot yet, so only USD wallets can be opened.
	_, _, err = a.Engine.CreateWallet(ctx, ledger.CreateWalletInput{
		OwnerID: "u", Name: "Cash", Currency: ledger.USD, Balance: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	_, _, err = a.Engine.CreateWallet(ctx, ledger.CreateWalletInput{
		OwnerID: "u", Name: "Pesos", Currency: ledger.COP, Balance: decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, ledger.ErrRateUnavailable)
}

func TestNew_SQLiteStore(t *testing.T) {
	cfg := testConfig()
	cfg.StoreDriver = "sqlite"
	cfg.SQLitePath = ":memory:"
	cfg.ExchangeRateAPIKey = "key"
	cfg.ExchangeRateAPIURL = "http://127.0.0.1:1"

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()
	assert.NotNil(t, a.RateRefresher())
}

func TestNew_WithoutCatalogFails(t *testing.T) {
	cfg := testConfig()
	cfg.SeedCatalog = false
	_, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ledger.ErrInvariantViolation)
}

func TestNew_BadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown driver", func(c *config.Config) { c.StoreDriver = "mongo" }},
		{"postgres without url", func(c *config.Config) { c.StoreDriver = "postgres" }},
		{"unknown events backend", func(c *config.Config) { c.EventsBackend = "carrier-pigeon" }},
		{"redis events without redis", func(c *config.Config) { c.EventsBackend = "redis" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := New(context.Background(), cfg, zaptest.NewLogger(t))
			assert.Error(t, err)
		})
	}
}
