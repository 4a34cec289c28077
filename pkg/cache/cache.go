package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrMiss indicates the requested key was not found in the store.
	ErrMiss = errors.New("cache miss")
)

// Store is a key/value store with TTL and enumeration-by-prefix. Both
// implementations (Redis, memory) surface through the same interface so the
// aggregator and the admin API never care which one is live; the active
// store's name is reported in the x-cache-store response header.
type Store interface {
	// Name identifies the store in headers and logs ("redis", "memory").
	Name() string

	// Get returns the raw bytes for key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores raw bytes under key with the given TTL.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Del removes a key. Deleting an absent key is not an error.
	Del(ctx context.Context, key string) error

	// Exists reports whether a key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Clear enumerates all keys with the given prefix and deletes them,
	// returning the number removed.
	Clear(ctx context.Context, prefix string) (int, error)
}

// Cache wraps a Store with entry serialization and the best-effort error
// policy: reads that fail for any reason behave as misses, corrupt entries
// are deleted and treated as misses, and write failures are logged and
// swallowed.
type Cache struct {
	store  Store
	codec  Codec
	logger zerolog.Logger
}

// New creates a Cache over the given store and codec.
func New(store Store, codec Codec) *Cache {
	if store == nil {
		panic("cache store cannot be nil")
	}
	if codec == nil {
		codec = JSONCodec{}
	}
	return &Cache{
		store:  store,
		codec:  codec,
		logger: log.With().Str("component", "cache").Str("store", store.Name()).Logger(),
	}
}

// StoreName returns the name of the underlying store.
func (c *Cache) StoreName() string {
	return c.store.Name()
}

// GetEntry retrieves and decodes a cache entry.
// Returns ErrMiss when the key is absent, when the store fails, or when the
// stored payload cannot be decoded. A corrupt payload is deleted in place
// so the next write starts clean.
func (c *Cache) GetEntry(ctx context.Context, key string) (*Entry, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			CacheMisses.Inc()
			return nil, ErrMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, treating as miss")
		return nil, ErrMiss
	}

	var entry Entry
	if err := c.codec.Unmarshal(data, &entry); err != nil {
		CorruptEntries.Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Corrupt cache entry, deleting")
		if delErr := c.store.Del(ctx, key); delErr != nil {
			CacheErrors.WithLabelValues("delete").Inc()
		}
		return nil, ErrMiss
	}

	CacheHits.WithLabelValues(c.store.Name()).Inc()
	CacheSize.WithLabelValues(c.store.Name()).Add(float64(len(data)))
	return &entry, nil
}

// SetEntry encodes and stores a cache entry. Failures are logged and
// swallowed; a cache write must never abort the caller's primary flow.
func (c *Cache) SetEntry(ctx context.Context, key string, entry *Entry, ttl time.Duration) {
	if entry == nil || ttl <= 0 {
		return
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}

	data, err := c.codec.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache entry marshal failed")
		return
	}

	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		return
	}

	CacheSize.WithLabelValues(c.store.Name()).Add(float64(len(data)))
	c.logger.Debug().Str("key", key).Dur("ttl", ttl).Int("items", len(entry.Items)).Msg("Cached entry")
}

// Delete removes a cache entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.store.Del(ctx, key); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return err
	}
	return nil
}

// Exists reports whether a key is cached. Store errors read as absent.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	ok, err := c.store.Exists(ctx, key)
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return false
	}
	return ok
}

// Clear removes every key under the given prefix and returns the number
// deleted. This is the administrative flush path; routine invalidation
// goes through namespace version bumps instead.
func (c *Cache) Clear(ctx context.Context, prefix string) (int, error) {
	n, err := c.store.Clear(ctx, prefix)
	if err != nil {
		CacheErrors.WithLabelValues("clear").Inc()
		return n, err
	}
	c.logger.Info().Str("prefix", prefix).Int("deleted", n).Msg("Cache cleared")
	return n, nil
}

// GetOrSet is the read-through helper: on a miss it invokes producer,
// stores a non-nil result, and returns it. Any store failure degrades to
// calling producer directly without caching.
func (c *Cache) GetOrSet(ctx context.Context, key string, ttl time.Duration, producer func(context.Context) (*Entry, error)) (*Entry, error) {
	if entry, err := c.GetEntry(ctx, key); err == nil {
		return entry, nil
	}

	entry, err := producer(ctx)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		c.SetEntry(ctx, key, entry, ttl)
	}
	return entry, nil
}
