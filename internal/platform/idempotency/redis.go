package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "idem:"

// RedisStore keeps ledger entries in Redis with a TTL.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisStore creates a RedisStore whose entries expire after ttl.
func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read idempotency key %s: %w", key, err)
	}
	return v, true, nil
}

// Record keeps the first outcome written for a key.
func (s *RedisStore) Record(ctx context.Context, key, routingKey string) error {
	if err := s.rdb.SetNX(ctx, keyPrefix+key, routingKey, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write idempotency key %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Forget(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete idempotency key %s: %w", key, err)
	}
	return nil
}
