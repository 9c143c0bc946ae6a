package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStageCache is a SnapshotCache backed by Redis for deployments
// running multiple scanner processes against the same universe. Values
// are JSON; readers must know the concrete shape behind each stage key.
// Redis errors degrade to cache misses rather than failing the stage.
type RedisStageCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger zerolog.Logger
}

// NewRedisStageCache creates a Redis-backed stage cache.
func NewRedisStageCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisStageCache {
	return &RedisStageCache{
		client: client,
		ttl:    ttl,
		prefix: "stage_cache:",
		logger: logger.With().Str("component", "redis_cache").Logger(),
	}
}

// Get fetches and decodes a raw JSON snapshot. The caller unmarshals
// into the stage's concrete type via RawSnapshot.
func (c *RedisStageCache) Get(key Key) (any, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := c.client.Get(ctx, c.prefix+key.String()).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("redis read failed, treating as miss")
		}
		return nil, false
	}
	return RawSnapshot(data), true
}

// Set stores the JSON encoding of the value with the configured TTL.
func (c *RedisStageCache) Set(key Key, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("snapshot not serializable, skipping cache write")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, c.prefix+key.String(), data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("redis write failed")
	}
}

// Delete removes a key; failures are logged and ignored.
func (c *RedisStageCache) Delete(key Key) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, c.prefix+key.String()).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("redis delete failed")
	}
}

// Len is not cheaply available from Redis; it reports -1 to signal
// "unknown" and callers treat it as informational only.
func (c *RedisStageCache) Len() int { return -1 }

// RawSnapshot is an undecoded cached value from the Redis tier.
type RawSnapshot []byte

// Decode unmarshals the snapshot into out.
func (r RawSnapshot) Decode(out any) error {
	return json.Unmarshal(r, out)
}
