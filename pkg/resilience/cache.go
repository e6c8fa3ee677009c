package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedResult is a last-known-good response retained for fallback use.
type CachedResult struct {
	Payload  []byte    `json:"payload"`
	StoredAt time.Time `json:"stored_at"`
}

// Age reports how stale the result is at the given instant.
func (r CachedResult) Age(now time.Time) time.Duration {
	return now.Sub(r.StoredAt)
}

// ResultCache stores successful organ responses keyed by capability call
// identity. Implementations must tolerate concurrent use.
type ResultCache interface {
	Get(ctx context.Context, key string) (CachedResult, bool, error)
	Put(ctx context.Context, key string, payload []byte) error
}

// MemoryCache is an in-process ResultCache for single-node deployments
// and tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]CachedResult
	clock   func() time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]CachedResult),
		clock:   time.Now,
	}
}

// WithClock overrides the cache's time source for tests.
func (c *MemoryCache) WithClock(clock func() time.Time) *MemoryCache {
	c.clock = clock
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) (CachedResult, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.entries[key]
	return res, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(payload))
	copy(buf, payload)
	c.entries[key] = CachedResult{Payload: buf, StoredAt: c.clock()}
	return nil
}

// RedisCache is a shared ResultCache backed by Redis, for deployments
// where multiple borg processes fall back against the same organ fleet.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a cache over an existing Redis client. Entries
// expire after ttl so the store cannot serve unboundedly stale results.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + ":" + k
}

func (c *RedisCache) Get(ctx context.Context, key string) (CachedResult, bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedResult{}, false, nil
	}
	if err != nil {
		return CachedResult{}, false, fmt.Errorf("result cache get: %w", err)
	}
	var res CachedResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return CachedResult{}, false, fmt.Errorf("result cache decode: %w", err)
	}
	return res, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, payload []byte) error {
	raw, err := json.Marshal(CachedResult{Payload: payload, StoredAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("result cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("result cache put: %w", err)
	}
	return nil
}
