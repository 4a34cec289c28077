package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the shared production store. All proxy instances point at
// the same Redis, which is the only cross-process shared mutable state in
// the system.
type RedisStore struct {
	rdb *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	if rdb == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{rdb: rdb}
}

// Name implements Store.
func (s *RedisStore) Name() string { return "redis" }

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Set implements Store. Redis evicts the key itself once the TTL elapses.
func (s *RedisStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Del implements Store.
func (s *RedisStore) Del(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Exists implements Store.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Clear implements Store. SCAN is used instead of KEYS so a large flush
// does not block the server.
func (s *RedisStore) Clear(ctx context.Context, prefix string) (int, error) {
	deleted := 0
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("redis del %s: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("redis scan: %w", err)
	}
	return deleted, nil
}
