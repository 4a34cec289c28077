// Package ratelimit provides a fixed-window per-client request limiter
// for the public listing endpoint. State is process-local: each proxy
// instance enforces its own budget, which is acceptable because the
// limit protects the upstream fetch path rather than billing anyone.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_ratelimit_blocked_total",
		Help: "Total number of requests rejected by the rate limiter",
	})

	activeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_ratelimit_active_clients",
		Help: "Number of client windows currently tracked",
	})
)

// Defaults for the public listing endpoint.
const (
	DefaultLimit           = 60
	DefaultWindow          = time.Minute
	defaultCleanupInterval = 5 * time.Minute
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long a rejected client must wait for a fresh
	// window. Zero when Allowed.
	RetryAfter time.Duration
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key in fixed windows.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window
	limit   int
	window  time.Duration
	done    chan struct{}
}

// NewLimiter creates a Limiter allowing limit requests per key per
// window. Non-positive arguments fall back to the defaults. A janitor
// goroutine evicts expired windows; call Close to stop it.
func NewLimiter(limit int, windowSize time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	l := &Limiter{
		clients: make(map[string]*window),
		limit:   limit,
		window:  windowSize,
		done:    make(chan struct{}),
	}
	go l.janitor()
	return l
}

// Allow records one request for key and reports whether it fits the
// current window.
func (l *Limiter) Allow(key string) Decision {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.clients[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(l.window)}
		l.clients[key] = w
		activeClients.Set(float64(len(l.clients)))
	}

	if w.count >= l.limit {
		blockedTotal.Inc()
		return Decision{RetryAfter: w.resetAt.Sub(now)}
	}

	w.count++
	return Decision{Allowed: true, Remaining: l.limit - w.count}
}

// Len returns the number of tracked client windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Close stops the janitor goroutine.
func (l *Limiter) Close() {
	close(l.done)
}

func (l *Limiter) janitor() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for key, w := range l.clients {
				if now.After(w.resetAt) {
					delete(l.clients, key)
				}
			}
			activeClients.Set(float64(len(l.clients)))
			l.mu.Unlock()
		}
	}
}
