/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a small two-tier cache for source listings and
// channel labels: always-on in-process memory with TTL, plus an optional
// Redis tier that survives restarts. Redis failures degrade to memory-only.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "yurets:cache:"

// Config contains cache configuration. An empty RedisAddr disables the
// Redis tier entirely.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type memEntry struct {
	data    []byte
	expires time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger

	mu       sync.RWMutex
	mem      map[string]memEntry
	disabled bool // Redis circuit breaker
}

// New creates a cache. Redis connectivity is probed once; an unreachable
// server logs a warning and the cache runs memory-only.
func New(cfg Config, logger zerolog.Logger) *Cache {
	c := &Cache{
		logger: logger.With().Str("component", "cache").Logger(),
		mem:    make(map[string]memEntry),
	}

	if cfg.RedisAddr == "" {
		return c
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("Redis unavailable, cache runs memory-only")
		return c
	}

	c.logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache tier initialized")
	c.client = client
	return c
}

// Close closes the Redis connection if one exists.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Get retrieves a value into dest. Returns false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	c.mu.RLock()
	entry, ok := c.mem[key]
	c.mu.RUnlock()

	if ok && time.Now().Before(entry.expires) {
		if err := json.Unmarshal(entry.data, dest); err == nil {
			return true
		}
	}

	if !c.redisAvailable() {
		return false
	}

	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.handleError(err, "get")
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false
	}
	return true
}

// Set stores a value in both tiers with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("unmarshalable cache value dropped")
		return
	}

	c.mu.Lock()
	c.mem[key] = memEntry{data: data, expires: time.Now().Add(ttl)}
	c.mu.Unlock()

	if !c.redisAvailable() {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
	}
}

// Invalidate removes a key from both tiers.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.mem, key)
	c.mu.Unlock()

	if c.redisAvailable() {
		if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
			c.handleError(err, "del")
		}
	}
}

func (c *Cache) redisAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && !c.disabled
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}
	c.logger.Warn().Err(err).Str("operation", operation).Msg("disabling Redis cache tier")
	c.mu.Lock()
	c.disabled = true
	c.mu.Unlock()
}

// String implements fmt.Stringer for debug output.
func (c *Cache) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tier := "memory"
	if c.client != nil && !c.disabled {
		tier = "memory+redis"
	}
	return fmt.Sprintf("cache(%s, %d entries)", tier, len(c.mem))
}
