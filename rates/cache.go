package rates

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/wallet-ledger/ledger"
)

const latestKey = "ledger:exchange_rate:latest"

// storeIfNewer replaces the cached snapshot only when ARGV[1] (created_at in
// unix milliseconds) is later than the one cached. ARGV[3] is the TTL in
// milliseconds, 0 for none.
const storeIfNewer = `
local cur = redis.call("HGET", KEYS[1], "created_at")
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call("HSET", KEYS[1], "created_at", ARGV[1], "snapshot", ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[3])
else
	redis.call("PERSIST", KEYS[1])
end
return 1
`

// Cache serves the latest snapshot from Redis and falls back to Source.
//
// Only the newest snapshot is cached. A lookup for an instant older than the
// newest snapshot goes to Source. Writes never replace a snapshot with an
// older one, so a slow reader filling the cache cannot undo a refresh.
type Cache struct {
	Client *redis.Client
	Source ledger.RateSource
	TTL    time.Duration
	Logger *zap.Logger
}

var _ ledger.RateSource = (*Cache)(nil)

func NewCache(client *redis.Client, source ledger.RateSource, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{Client: client, Source: source, TTL: ttl, Logger: logger}
}

func (c *Cache) SnapshotAt(ctx context.Context, at time.Time) (ledger.ExchangeRate, error) {
	raw, err := c.Client.HGet(ctx, latestKey, "snapshot").Bytes()
	miss := errors.Is(err, redis.Nil)
	switch {
	case err == nil:
		var snap ledger.ExchangeRate
		if jerr := json.Unmarshal(raw, &snap); jerr != nil {
			miss = true
		} else if !snap.CreatedAt.After(at) {
			return snap, nil
		}
	case !miss:
		c.Logger.Warn("rate cache read failed", zap.Error(err))
	}

	if !miss {
		return c.Source.SnapshotAt(ctx, at)
	}

	latest, err := c.Source.SnapshotAt(ctx, time.Now().UTC())
	if err != nil {
		return latest, err
	}
	if _, err := c.Put(ctx, latest); err != nil {
		c.Logger.Warn("rate cache write failed", zap.Error(err))
	}
	if latest.CreatedAt.After(at) {
		return c.Source.SnapshotAt(ctx, at)
	}
	return latest, nil
}

// Put caches snap unless a snapshot created at the same time or later is
// already cached. It reports whether snap was stored.
func (c *Cache) Put(ctx context.Context, snap ledger.ExchangeRate) (bool, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return false, err
	}
	n, err := c.Client.Eval(ctx, storeIfNewer, []string{latestKey},
		snap.CreatedAt.UnixMilli(), payload, c.TTL.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
