package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by store (redis, memory)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_hits_total",
			Help: "Total number of catalog cache hits",
		},
		[]string{"store"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_cache_misses_total",
			Help: "Total number of catalog cache misses",
		},
	)

	// CacheSize tracks bytes read/written by store
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_cache_size_bytes",
			Help: "Bytes moved through the catalog cache",
		},
		[]string{"store"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "clear"
	)

	// CorruptEntries tracks cached payloads that failed to decode and were
	// deleted in place
	CorruptEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_cache_corrupt_entries_total",
			Help: "Total number of corrupt cache entries deleted on read",
		},
	)

	// NamespaceBumps tracks namespace version bumps
	NamespaceBumps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_namespace_bumps_total",
			Help: "Total number of namespace version bumps",
		},
		[]string{"namespace"},
	)
)
