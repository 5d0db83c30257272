package consumer

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "notification:dispatched:"

// Deduper remembers which message ids were already handed off
type Deduper interface {
	// Claim returns false when id was claimed before
	Claim(ctx context.Context, id string) (bool, error)
	// Release forgets id so a redelivery is dispatched again
	Release(ctx context.Context, id string) error
}

// RedisCommands is the subset of redis commands the deduper needs
type RedisCommands interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisDeduper claims message ids with SET NX and a TTL
type RedisDeduper struct {
	rdb RedisCommands
	ttl time.Duration
}

// NewRedisDeduper creates a Redis backed deduper. ttl defaults to 24h.
func NewRedisDeduper(rdb RedisCommands, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

// Claim marks id as dispatched
func (d *RedisDeduper) Claim(ctx context.Context, id string) (bool, error) {
	return d.rdb.SetNX(ctx, dedupeKeyPrefix+id, 1, d.ttl).Result()
}

// Release removes the claim on id
func (d *RedisDeduper) Release(ctx context.Context, id string) error {
	return d.rdb.Del(ctx, dedupeKeyPrefix+id).Err()
}
