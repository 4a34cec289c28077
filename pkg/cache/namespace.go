package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Versions tracks a generation counter per logical namespace. The current
// version is embedded in every cache key, so bumping it makes all
// previously stored keys unreachable without enumerating them.
type Versions interface {
	// Current returns the namespace's version, seeding 1 if missing.
	Current(ctx context.Context, namespace string) (int64, error)
	// Bump increments and returns the new version.
	Bump(ctx context.Context, namespace string) (int64, error)
}

// versionKeyTTL keeps version keys from living forever in Redis. If a
// version key expires, readers observe version 1 again and entries written
// under the old version simply age out.
const versionKeyTTL = 30 * 24 * time.Hour

func versionKey(namespace string) string {
	return KeyPrefix + namespace + ":version"
}

// RedisVersions stores namespace versions in Redis, shared across all proxy
// instances. Bump is an atomic INCR pipelined with a TTL refresh.
type RedisVersions struct {
	rdb *redis.Client
}

var _ Versions = (*RedisVersions)(nil)

// NewRedisVersions creates a Redis-backed version counter.
func NewRedisVersions(rdb *redis.Client) *RedisVersions {
	if rdb == nil {
		panic("redis client cannot be nil")
	}
	return &RedisVersions{rdb: rdb}
}

// Current implements Versions. A missing or unparseable key reads as
// version 1 and is re-seeded.
func (v *RedisVersions) Current(ctx context.Context, namespace string) (int64, error) {
	res, err := v.rdb.Get(ctx, versionKey(namespace)).Result()
	if err == redis.Nil {
		if err := v.rdb.Set(ctx, versionKey(namespace), 1, versionKeyTTL).Err(); err != nil {
			return 1, fmt.Errorf("seed namespace version: %w", err)
		}
		return 1, nil
	}
	if err != nil {
		return 1, fmt.Errorf("redis get version: %w", err)
	}
	cur, err := strconv.ParseInt(res, 10, 64)
	if err != nil || cur < 1 {
		return 1, fmt.Errorf("parse namespace version %q", res)
	}
	return cur, nil
}

// Bump implements Versions.
func (v *RedisVersions) Bump(ctx context.Context, namespace string) (int64, error) {
	var incr *redis.IntCmd
	_, err := v.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, versionKey(namespace))
		p.Expire(ctx, versionKey(namespace), versionKeyTTL)
		return nil
	})
	if err != nil {
		return 1, fmt.Errorf("redis incr version: %w", err)
	}
	NamespaceBumps.WithLabelValues(namespace).Inc()
	return incr.Val(), nil
}

// MemoryVersions keeps namespace versions in-process; it pairs with
// MemoryStore when Redis is unavailable.
type MemoryVersions struct {
	mu       sync.Mutex
	versions map[string]int64
}

var _ Versions = (*MemoryVersions)(nil)

// NewMemoryVersions creates an in-process version counter.
func NewMemoryVersions() *MemoryVersions {
	return &MemoryVersions{versions: make(map[string]int64)}
}

// Current implements Versions.
func (v *MemoryVersions) Current(_ context.Context, namespace string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if cur, ok := v.versions[namespace]; ok {
		return cur, nil
	}
	v.versions[namespace] = 1
	return 1, nil
}

// Bump implements Versions.
func (v *MemoryVersions) Bump(_ context.Context, namespace string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cur, ok := v.versions[namespace]
	if !ok {
		cur = 1
	}
	cur++
	v.versions[namespace] = cur
	NamespaceBumps.WithLabelValues(namespace).Inc()
	return cur, nil
}

// StoreVersions persists namespace versions in any Store. It is the
// fallback used with stores that lack an atomic increment; the read-modify-
// write bump is acceptable because a lost increment only means one extra
// stale-cache window, never wrong data.
type StoreVersions struct {
	store Store
}

var _ Versions = (*StoreVersions)(nil)

// NewStoreVersions creates a store-backed version counter.
func NewStoreVersions(store Store) *StoreVersions {
	return &StoreVersions{store: store}
}

// Current implements Versions. Store errors surface to the caller, which
// should fall back to version 1.
func (v *StoreVersions) Current(ctx context.Context, namespace string) (int64, error) {
	data, err := v.store.Get(ctx, versionKey(namespace))
	if err == ErrMiss {
		if err := v.store.Set(ctx, versionKey(namespace), []byte("1"), versionKeyTTL); err != nil {
			return 1, fmt.Errorf("seed namespace version: %w", err)
		}
		return 1, nil
	}
	if err != nil {
		return 1, err
	}
	cur, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil || cur < 1 {
		return 1, fmt.Errorf("parse namespace version %q", data)
	}
	return cur, nil
}

// Bump implements Versions.
func (v *StoreVersions) Bump(ctx context.Context, namespace string) (int64, error) {
	cur, err := v.Current(ctx, namespace)
	if err != nil {
		return cur, err
	}
	next := cur + 1
	if err := v.store.Set(ctx, versionKey(namespace), []byte(strconv.FormatInt(next, 10)), versionKeyTTL); err != nil {
		return cur, err
	}
	NamespaceBumps.WithLabelValues(namespace).Inc()
	return next, nil
}
