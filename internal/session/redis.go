package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// RedisKV stores values in Redis. A non-zero ttl is refreshed on every Set.
type RedisKV struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisKV(client *redis.Client, ttl time.Duration) *RedisKV {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	return &RedisKV{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("legaltriage.internal.session"),
	}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, span := r.tracer.Start(ctx, "session.kv.get")
	defer span.End()

	data, err := r.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		span.RecordError(err)
		return nil, false, fmt.Errorf("session: redis get: %w", err)
	}
	return data, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	ctx, span := r.tracer.Start(ctx, "session.kv.set")
	defer span.End()

	if err := r.redis.Set(ctx, key, value, r.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

func (r *RedisKV) Remove(ctx context.Context, key string) error {
	ctx, span := r.tracer.Start(ctx, "session.kv.remove")
	defer span.End()

	if err := r.redis.Del(ctx, key).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}
