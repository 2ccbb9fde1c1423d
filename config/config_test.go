package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"STORE_DRIVER", "TX_LOCK_TIMEOUT", "SEED_CATALOG", "KAFKA_BROKERS"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, 5*time.Second, cfg.TxLockTimeout)
	assert.Equal(t, 2*time.Minute, cfg.TxTimeout)
	assert.True(t, cfg.SeedCatalog)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("TX_LOCK_TIMEOUT", "750ms")
	t.Setenv("SEED_CATALOG", "false")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("RATES_REFRESH_INTERVAL", "not-a-duration")

	cfg := Load()
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, 750*time.Millisecond, cfg.TxLockTimeout)
	assert.False(t, cfg.SeedCatalog)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Zero(t, cfg.RatesRefreshInterval)
}
