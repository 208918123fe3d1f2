package chain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"geoscore/internal/chain/metrics"
)

const defaultCacheTTL = 24 * time.Hour

// AmountCache is the subset of go-redis used by CachedVerifier.
type AmountCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// CachedVerifier remembers verified amounts per digest. Transactions are
// immutable once finalized, so a verified amount never goes stale; failures
// are never cached. Cache errors fall through to the wrapped verifier.
type CachedVerifier struct {
	next     Verifier
	cache    AmountCache
	coinType string
	ttl      time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type CacheOption func(*CachedVerifier)

func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *CachedVerifier) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithCacheCoinType(coinType string) CacheOption {
	return func(c *CachedVerifier) {
		if coinType != "" {
			c.coinType = coinType
		}
	}
}

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *CachedVerifier) {
		c.logger = logger
	}
}

func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *CachedVerifier) {
		c.metrics = m
	}
}

func NewCachedVerifier(next Verifier, cache AmountCache, opts ...CacheOption) *CachedVerifier {
	c := &CachedVerifier{
		next:     next,
		cache:    cache,
		coinType: NativeCoinType,
		ttl:      defaultCacheTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedVerifier) key(txReference string) string {
	return "chain:amount:" + normalizeCoinType(c.coinType) + ":" + txReference
}

// FetchVerifiedAmount implements Verifier.
func (c *CachedVerifier) FetchVerifiedAmount(ctx context.Context, txReference string) (decimal.Decimal, error) {
	key := c.key(txReference)

	cached, err := c.cache.Get(ctx, key).Result()
	switch {
	case err == nil:
		amount, parseErr := decimal.NewFromString(cached)
		if parseErr == nil {
			c.metrics.IncrementCache("hit")
			return amount, nil
		}
		c.metrics.IncrementCache("error")
		c.logger.WarnContext(ctx, "discarding corrupt cached amount", "key", key, "error", parseErr)
	case errors.Is(err, redis.Nil):
		c.metrics.IncrementCache("miss")
	default:
		c.metrics.IncrementCache("error")
		c.logger.WarnContext(ctx, "amount cache read failed", "key", key, "error", err)
	}

	amount, err := c.next.FetchVerifiedAmount(ctx, txReference)
	if err != nil {
		return decimal.Zero, err
	}

	if err := c.cache.Set(ctx, key, amount.String(), c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "amount cache write failed", "key", key, "error", err)
	}
	return amount, nil
}
