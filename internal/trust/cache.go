package trust

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"rxcred/internal/platform/metrics"
	id "rxcred/pkg/domain"
)

const trustKeyPrefix = "trust:issuer:"

// Registry is the lookup the cache delegates to on a miss.
type Registry interface {
	IsTrusted(ctx context.Context, issuer id.DID) (bool, error)
}

// CachedRegistry caches definitive trust decisions in Redis with TTL
// eviction. Only yes/no answers are cached; registry errors are never
// cached, so an outage does not poison the cache. A Redis failure degrades
// to a direct registry lookup.
type CachedRegistry struct {
	inner    Registry
	client   *redis.Client
	cacheTTL time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// CacheOption configures the CachedRegistry.
type CacheOption func(*CachedRegistry)

// WithCacheLogger sets the logger instance.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *CachedRegistry) {
		c.logger = logger
	}
}

// WithCacheMetrics sets the metrics instance.
func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *CachedRegistry) {
		c.metrics = m
	}
}

// NewCached wraps a trust registry with a Redis decision cache.
func NewCached(inner Registry, client *redis.Client, cacheTTL time.Duration, opts ...CacheOption) *CachedRegistry {
	c := &CachedRegistry{
		inner:    inner,
		client:   client,
		cacheTTL: cacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsTrusted answers from the cache when possible, otherwise consults the
// inner registry and caches its definitive answer.
func (c *CachedRegistry) IsTrusted(ctx context.Context, issuer id.DID) (bool, error) {
	key := trustKeyPrefix + issuer.String()

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if c.metrics != nil {
			c.metrics.IncrementTrustCacheHits()
		}
		return cached == "1", nil
	case errors.Is(err, redis.Nil):
		if c.metrics != nil {
			c.metrics.IncrementTrustCacheMisses()
		}
	default:
		// Redis down is not a trust verdict. Fall through to the registry.
		if c.logger != nil {
			c.logger.WarnContext(ctx, "trust cache read failed", "error", err)
		}
	}

	trusted, err := c.inner.IsTrusted(ctx, issuer)
	if err != nil {
		return false, err
	}

	value := "0"
	if trusted {
		value = "1"
	}
	if err := c.client.Set(ctx, key, value, c.cacheTTL).Err(); err != nil {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "trust cache write failed", "error", err)
		}
	}
	return trusted, nil
}
