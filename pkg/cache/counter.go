package cache

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/star-sweep/pkg/plan"
	"github.com/Sternrassler/star-sweep/pkg/search"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

const (
	// DefaultMemorySize is the default number of counts kept in process.
	DefaultMemorySize = 4096

	// DefaultTTL is how long a count stays valid. Star counts drift, so reruns
	// much later should probe again.
	DefaultTTL = time.Hour
)

// Config configures a CachedClient.
type Config struct {
	MemorySize int
	TTL        time.Duration

	// Query is folded into every key; set it when the wrapped client adds
	// qualifiers beyond the star range.
	Query string
}

// CachedClient wraps a search.Client with a two-level count cache: an
// in-memory expirable LRU in front of an optional Redis Manager. Listings are
// never cached.
type CachedClient struct {
	inner  search.Client
	memory *expirable.LRU[string, int]
	redis  *Manager
	config Config
	logger zerolog.Logger
}

var _ search.Client = (*CachedClient)(nil)

// NewCachedClient creates a cached client. redis may be nil for memory only.
func NewCachedClient(inner search.Client, redis *Manager, cfg Config, logger zerolog.Logger) *CachedClient {
	if cfg.MemorySize <= 0 {
		cfg.MemorySize = DefaultMemorySize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &CachedClient{
		inner:  inner,
		memory: expirable.NewLRU[string, int](cfg.MemorySize, nil, cfg.TTL),
		redis:  redis,
		config: cfg,
		logger: logger.With().Str("component", "count-cache").Logger(),
	}
}

// Count returns a cached count if available, otherwise asks the wrapped
// client and caches the answer. Failures are never cached.
func (c *CachedClient) Count(ctx context.Context, iv plan.Interval) (int, error) {
	key := CountKey{Interval: iv, Query: c.config.Query}
	k := key.String()

	if n, ok := c.memory.Get(k); ok {
		CacheHits.WithLabelValues("memory").Inc()
		return n, nil
	}

	if c.redis != nil {
		entry, err := c.redis.Get(ctx, key)
		switch {
		case err == nil:
			CacheHits.WithLabelValues("redis").Inc()
			c.memory.Add(k, entry.Count)
			return entry.Count, nil
		case !errors.Is(err, ErrCacheMiss):
			c.logger.Warn().Err(err).Str("key", k).Msg("Cache get error")
		}
	}

	CacheMisses.Inc()
	n, err := c.inner.Count(ctx, iv)
	if err != nil {
		return 0, err
	}

	c.memory.Add(k, n)
	CacheStores.WithLabelValues("memory").Inc()

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, NewEntry(n, c.config.TTL)); err != nil {
			c.logger.Warn().Err(err).Str("key", k).Msg("Failed to cache count")
		} else {
			CacheStores.WithLabelValues("redis").Inc()
			c.logger.Debug().
				Str("key", k).
				Dur("ttl", c.config.TTL).
				Msg("Cached count")
		}
	}

	return n, nil
}

// List passes through to the wrapped client.
func (c *CachedClient) List(ctx context.Context, iv plan.Interval, order search.Order) (*search.Listing, error) {
	return c.inner.List(ctx, iv, order)
}

// Len returns the number of counts held in memory.
func (c *CachedClient) Len() int {
	return c.memory.Len()
}

// Forget drops iv from both layers.
func (c *CachedClient) Forget(ctx context.Context, iv plan.Interval) error {
	key := CountKey{Interval: iv, Query: c.config.Query}
	c.memory.Remove(key.String())
	if c.redis != nil {
		return c.redis.Delete(ctx, key)
	}
	return nil
}
