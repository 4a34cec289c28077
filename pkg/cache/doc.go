// Package cache provides the catalog cache layer: a best-effort key/value
// store with TTL, deterministic cache keys, and namespace-version tagging
// for bulk invalidation.
//
// The cache is best-effort. Every error path degrades to "act as if the
// cache were empty" so that a cache outage never breaks a catalog request;
// the upstream commerce API remains the source of truth.
//
// # Stores
//
// Two Store implementations are provided:
//
//   - RedisStore: the shared store used in production. Safe for concurrent
//     access from many proxy instances.
//   - MemoryStore: an in-process fallback used when Redis is not configured
//     or unreachable, and in tests.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := cache.NewRedisStore(redisClient)
//	c := cache.New(store, cache.JSONCodec{})
//
//	key := cache.Key{
//		Namespace: "products",
//		Version:   3,
//		Fields:    map[string]string{"per_page": "100", "search": "hat"},
//	}
//
//	entry, err := c.GetEntry(ctx, key.String())
//	if err == cache.ErrMiss {
//		// fetch from upstream
//	}
//
// # Namespace Versions
//
// Every key embeds the current namespace version. Bumping the version makes
// all previously stored keys unreachable without enumerating them; the old
// entries simply age out via TTL. Clear is the secondary, enumerating
// invalidation path for administrative flushes.
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - catalog_cache_hits_total{store}
//   - catalog_cache_misses_total
//   - catalog_cache_errors_total{operation}
//   - catalog_cache_size_bytes{store}
package cache
