package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores the rule set as one JSON value under a single key.
type RedisBackend struct {
	redis *redis.Client
	key   string
}

// NewRedisBackend creates a backend on key.
func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	if client == nil {
		panic("rules: redis client cannot be nil")
	}
	if key == "" {
		key = "triage:rules"
	}
	return &RedisBackend{redis: client, key: key}
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) Read(ctx context.Context) (RuleSet, error) {
	data, err := b.redis.Get(ctx, b.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("rules: redis get: %w", err)
	}
	return Decode(data)
}

func (b *RedisBackend) Write(ctx context.Context, rs RuleSet) error {
	data, err := Encode(rs)
	if err != nil {
		return err
	}
	if err := b.redis.Set(ctx, b.key, data, 0).Err(); err != nil {
		return fmt.Errorf("rules: redis set: %w", err)
	}
	return nil
}
