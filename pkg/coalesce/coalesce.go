// Package coalesce deduplicates concurrent fetches of the same key:
// one caller becomes the leader and runs the producer, everyone else
// waits for its result. Results are kept for a freshness window and,
// past that, serve as a stale fallback when a refresh fails.
package coalesce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/pixypic/catalog-cache/pkg/logging"
)

var fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "catalog_coalesce_fetches_total",
	Help: "Total number of coalescer fetches by outcome",
}, []string{"outcome"})

const (
	// DefaultTTL is the freshness window of a stored result.
	DefaultTTL = 5 * time.Minute

	// DefaultStaleTTL bounds how old a result may be and still serve
	// as a fallback after a failed refresh.
	DefaultStaleTTL = 10 * time.Minute

	// defaultWaitTimeout caps how long a follower waits on the
	// leader before giving up with the zero value.
	defaultWaitTimeout = 5 * time.Second
)

type entry[T any] struct {
	data     T
	hasData  bool
	storedAt time.Time
	inflight chan struct{} // non-nil while a leader runs the producer
}

// Coalescer caches producer results per key and collapses concurrent
// fetches of the same key into one producer call.
type Coalescer[T any] struct {
	mu          sync.Mutex
	entries     map[string]*entry[T]
	ttl         time.Duration
	staleTTL    time.Duration
	waitTimeout time.Duration
	logger      zerolog.Logger
}

// New creates a Coalescer. Non-positive durations fall back to the
// package defaults.
func New[T any](ttl, staleTTL time.Duration) *Coalescer[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if staleTTL <= 0 {
		staleTTL = DefaultStaleTTL
	}
	return &Coalescer[T]{
		entries:     make(map[string]*entry[T]),
		ttl:         ttl,
		staleTTL:    staleTTL,
		waitTimeout: defaultWaitTimeout,
		logger:      logging.NewLogger("coalesce"),
	}
}

// Fetch returns the value for key: a fresh stored result if one
// exists, otherwise the producer's result. Concurrent callers share a
// single producer run; a caller that waits past the cap on a stuck
// leader runs the producer itself. Fetch never returns an error; on
// failure it degrades to the stale value within the fallback window,
// or the zero value.
func (c *Coalescer[T]) Fetch(ctx context.Context, key string, producer func(context.Context) (T, error)) T {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && e.hasData && time.Since(e.storedAt) < c.ttl {
		data := e.data
		c.mu.Unlock()
		fetchesTotal.WithLabelValues("fresh").Inc()
		return data
	}

	if ok && e.inflight != nil {
		ch := e.inflight
		c.mu.Unlock()
		if data, done := c.wait(ctx, key, ch); done {
			return data
		}
		// The leader is stuck past the wait cap; proceed with our own
		// fetch so one slow refresh cannot stall every caller.
		return c.refresh(ctx, key, e, nil, producer)
	}

	// Claim leadership. The existing entry is kept so its data stays
	// available as a stale fallback if the refresh fails.
	if !ok {
		e = &entry[T]{}
		c.entries[key] = e
	}
	ch := make(chan struct{})
	e.inflight = ch
	c.mu.Unlock()

	return c.refresh(ctx, key, e, ch, producer)
}

// refresh runs the producer and folds its result into the entry. ch is
// the leadership channel, nil when the caller is a follower that gave
// up waiting and fetches on its own.
func (c *Coalescer[T]) refresh(ctx context.Context, key string, e *entry[T], ch chan struct{}, producer func(context.Context) (T, error)) T {
	data, err := c.produce(ctx, key, producer)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ch != nil {
		e.inflight = nil
		close(ch)
	}

	if err == nil {
		e.data = data
		e.hasData = true
		e.storedAt = time.Now()
		fetchesTotal.WithLabelValues("refreshed").Inc()
		return data
	}

	if e.hasData && time.Since(e.storedAt) < c.staleTTL {
		c.logger.Warn().Err(err).Str("key", key).Msg("refresh failed, serving stale result")
		fetchesTotal.WithLabelValues("stale").Inc()
		return e.data
	}

	c.logger.Error().Err(err).Str("key", key).Msg("fetch failed with no fallback")
	fetchesTotal.WithLabelValues("failed").Inc()
	var zero T
	return zero
}

// wait blocks until the leader finishes and returns its result. The
// second return is false when the wait cap elapsed first, telling the
// caller to fetch on its own.
func (c *Coalescer[T]) wait(ctx context.Context, key string, ch <-chan struct{}) (T, bool) {
	timer := time.NewTimer(c.waitTimeout)
	defer timer.Stop()

	var zero T
	select {
	case <-ch:
	case <-ctx.Done():
		fetchesTotal.WithLabelValues("wait_cancelled").Inc()
		return zero, true
	case <-timer.C:
		c.logger.Warn().Str("key", key).Msg("timed out waiting for in-flight fetch, fetching directly")
		fetchesTotal.WithLabelValues("wait_timeout").Inc()
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.hasData {
		fetchesTotal.WithLabelValues("coalesced").Inc()
		return e.data, true
	}
	fetchesTotal.WithLabelValues("coalesced_empty").Inc()
	return zero, true
}

// produce runs the producer, converting a panic into an error so a
// misbehaving producer cannot strand waiting followers.
func (c *Coalescer[T]) produce(ctx context.Context, key string, producer func(context.Context) (T, error)) (data T, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("key", key).Interface("panic", r).Msg("producer panicked")
			err = fmt.Errorf("producer panic: %v", r)
		}
	}()
	return producer(ctx)
}

// Forget drops the stored result for key. A leader currently running
// is unaffected; its result will repopulate the entry.
func (c *Coalescer[T]) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.inflight == nil {
		delete(c.entries, key)
	}
}

// InFlight reports whether a producer is currently running for key.
func (c *Coalescer[T]) InFlight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.inflight != nil
}

// Len returns the number of stored keys.
func (c *Coalescer[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
