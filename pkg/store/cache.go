package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache is a read-through accelerator in front of Postgres, never a
// source of truth — every Get miss or error falls back to the caller
// re-querying the database. Dual-backing (Redis-primary, in-memory
// fallback) is adapted from the teacher's FSAPCache DB-then-file
// pattern (pkg/core/store/fsap_cache.go), with Redis standing in for
// the DB tier and the in-memory map standing in for the file tier, so
// correctness never depends on a Redis instance being reachable.
type Cache struct {
	redis *redis.Client
	mem   *memCache
	ttl   time.Duration
}

// NewCache builds a Cache. addr == "" runs in-memory only, matching the
// teacher's fileDir-only mode when pool is nil.
func NewCache(addr string, ttl time.Duration) *Cache {
	c := &Cache{mem: newMemCache(), ttl: ttl}
	if addr != "" {
		c.redis = redis.NewClient(&redis.Options{Addr: addr})
	}
	return c
}

// Get returns the cached value for key, unmarshalled into dest, and
// whether it was found. Any Redis error is treated as a miss — the
// in-memory tier (and, beyond that, the database) is always the
// fallback of record.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) bool {
	if c.redis != nil {
		val, err := c.redis.Get(ctx, key).Result()
		if err == nil {
			if jsonErr := json.Unmarshal([]byte(val), dest); jsonErr == nil {
				return true
			}
		} else if err != redis.Nil {
			log.Warn().Str("component", "store.cache").Err(err).Msg("redis get failed, falling back")
		}
	}
	return c.mem.get(key, dest)
}

// Set writes to whichever tiers are configured. Failures are logged,
// never returned — a cache write failing must never fail the caller's
// request.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if c.redis != nil {
		if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			log.Warn().Str("component", "store.cache").Err(err).Msg("redis set failed")
		}
	}
	c.mem.set(key, raw, c.ttl)
}

// Invalidate removes key from every tier, used on workspace deletion.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if c.redis != nil {
		_ = c.redis.Del(ctx, key).Err()
	}
	c.mem.del(key)
}

// memCache is the final fallback tier: a TTL map guarded by a mutex,
// used whenever REDIS_ADDR is unset or Redis is unreachable.
type memCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	raw      []byte
	expireAt time.Time
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]memEntry)}
}

func (m *memCache) get(key string, dest interface{}) bool {
	m.mu.Lock()
	e, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return false
	}
	if time.Now().After(e.expireAt) {
		m.del(key)
		return false
	}
	return json.Unmarshal(e.raw, dest) == nil
}

func (m *memCache) set(key string, raw []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memEntry{raw: raw, expireAt: time.Now().Add(ttl)}
}

func (m *memCache) del(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}
