// Package config reads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	StoreDriver string // sqlite, postgres or memory
	SQLitePath  string
	DatabaseURL string

	RedisAddr string
	RedisPass string

	EventsBackend string // none, redis or kafka
	KafkaBrokers  []string
	KafkaTopic    string

	ExchangeRateAPIURL   string
	ExchangeRateAPIKey   string
	RatesRefreshInterval time.Duration // zero disables the background refresher
	RatesCacheTTL        time.Duration

	JWTSecret string

	LogLevel  string
	LogFormat string

	TxLockTimeout time.Duration
	TxTimeout     time.Duration

	SeedCatalog bool
}

// Load reads an optional .env file, then the environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		StoreDriver:          getEnv("STORE_DRIVER", "sqlite"),
		SQLitePath:           getEnv("SQLITE_PATH", "ledger.db"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPass:            getEnv("REDIS_PASS", ""),
		EventsBackend:        getEnv("EVENTS_BACKEND", "none"),
		KafkaBrokers:         getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "ledger_events"),
		ExchangeRateAPIURL:   getEnv("EXCHANGE_RATE_API_URL", "https://v6.exchangerate-api.com/v6"),
		ExchangeRateAPIKey:   getEnv("EXCHANGE_RATE_API_KEY", ""),
		RatesRefreshInterval: getEnvDuration("RATES_REFRESH_INTERVAL", 0),
		RatesCacheTTL:        getEnvDuration("RATES_CACHE_TTL", 10*time.Minute),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
		TxLockTimeout:        getEnvDuration("TX_LOCK_TIMEOUT", 5*time.Second),
		TxTimeout:            getEnvDuration("TX_TIMEOUT", 2*time.Minute),
		SeedCatalog:          getEnvBool("SEED_CATALOG", true),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
