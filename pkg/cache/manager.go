package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager stores interval counts in Redis so separate runs share probes.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis: redisClient,
	}
}

// Get returns the stored count for key, or ErrCacheMiss when there is none
// or it ran out.
func (m *Manager) Get(ctx context.Context, key CountKey) (*Entry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrCacheMiss
	case err != nil:
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	entry := &Entry{}
	if err := json.Unmarshal(data, entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, key, err)
	}
	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		return nil, ErrCacheMiss
	}
	return entry, nil
}

// Set stores entry until it expires. Entries already past Expires are dropped.
func (m *Manager) Set(ctx context.Context, key CountKey, entry *Entry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}
	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal count entry: %w", err)
	}
	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes the count stored for key.
func (m *Manager) Delete(ctx context.Context, key CountKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

const purgeBatch = 100

// Purge removes every count entry and reports how many were deleted. Keys
// outside the count prefix are left alone.
func (m *Manager) Purge(ctx context.Context) (int, error) {
	deleted := 0
	batch := make([]string, 0, purgeBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := m.redis.Del(ctx, batch...).Result()
		if err != nil {
			CacheErrors.WithLabelValues("purge").Inc()
			return fmt.Errorf("redis del: %w", err)
		}
		deleted += int(n)
		batch = batch[:0]
		return nil
	}

	keys := m.redis.Scan(ctx, 0, KeyPrefix+":*", purgeBatch).Iterator()
	for keys.Next(ctx) {
		batch = append(batch, keys.Val())
		if len(batch) == purgeBatch {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := keys.Err(); err != nil {
		CacheErrors.WithLabelValues("purge").Inc()
		return deleted, fmt.Errorf("redis scan: %w", err)
	}
	return deleted, flush()
}
