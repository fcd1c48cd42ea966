package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weatherapp/backend/internal/domain"
)

// Cache stores successful weather snapshots. Misses and backend failures look the same.
type Cache interface {
	Get(ctx context.Context, key string) (domain.Weather, bool)
	Set(ctx context.Context, key string, w domain.Weather)
}

// CacheKey normalizes a lookup so "London " and "london" share an entry
func CacheKey(location string, unit domain.UnitSystem) string {
	return string(unit) + ":" + strings.ToLower(strings.TrimSpace(location))
}

type entry struct {
	data      domain.Weather
	expiresAt time.Time
}

// MemoryCache is a process-local TTL cache
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]entry
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{items: make(map[string]entry), ttl: ttl, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (domain.Weather, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok || c.now().After(e.expiresAt) {
		return domain.Weather{}, false
	}
	return e.data, true
}

func (c *MemoryCache) Set(_ context.Context, key string, data domain.Weather) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	// Drop expired entries on write so the map stays bounded by live keys.
	for k, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, k)
		}
	}
	c.items[key] = entry{data: data, expiresAt: now.Add(c.ttl)}
}

// RedisCache shares snapshots between replicas
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, prefix: "weather:", ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) (domain.Weather, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis cache get failed", "key", key, "error", err)
		}
		return domain.Weather{}, false
	}
	var w domain.Weather
	if err := json.Unmarshal(raw, &w); err != nil {
		c.logger.Warn("redis cache entry corrupt", "key", key, "error", err)
		return domain.Weather{}, false
	}
	return w, true
}

func (c *RedisCache) Set(ctx context.Context, key string, w domain.Weather) {
	raw, err := json.Marshal(w)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("redis cache set failed", "key", key, "error", err)
	}
}
