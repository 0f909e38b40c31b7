package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper guards ingestion against re-polled mailbox messages.
type Deduper interface {
	// AcquireOnce reports whether this is the first time the key is
	// seen. Implementations fail open: an unavailable backend must not
	// block ingestion (the database unique constraint is the backstop).
	AcquireOnce(ctx context.Context, key string) bool

	// Release gives an acquired key back so the message can be
	// re-ingested before the TTL lapses. Called when ingestion fails
	// after the key was acquired; best-effort, like AcquireOnce.
	Release(ctx context.Context, key string)
}

// RedisDeduper implements Deduper with a SetNX-and-TTL guard.
type RedisDeduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisDeduper creates a RedisDeduper with the given key TTL.
func NewRedisDeduper(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisDeduper {
	return &RedisDeduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With("component", "deduper"),
	}
}

// AcquireOnce tries to acquire the dedupe key, returning true on first
// sight and false for a duplicate.
func (d *RedisDeduper) AcquireOnce(ctx context.Context, key string) bool {
	ok, err := d.rdb.SetNX(ctx, "dedupe:ingest:"+key, 1, d.ttl).Result()
	if err != nil {
		// Fail open when redis is unreachable.
		d.logger.Warn("dedupe check failed, processing anyway", "key", key, "error", err)
		return true
	}
	return ok
}

// Release implements Deduper.
func (d *RedisDeduper) Release(ctx context.Context, key string) {
	if err := d.rdb.Del(ctx, "dedupe:ingest:"+key).Err(); err != nil {
		d.logger.Warn("failed to release dedupe key", "key", key, "error", err)
	}
}

// NoopDeduper always reports first sight. Used when no redis address is
// configured.
type NoopDeduper struct{}

// AcquireOnce implements Deduper.
func (NoopDeduper) AcquireOnce(context.Context, string) bool { return true }

// Release implements Deduper.
func (NoopDeduper) Release(context.Context, string) {}
