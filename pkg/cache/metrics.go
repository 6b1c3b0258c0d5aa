package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks count cache hits by layer
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stars_cache_hits_total",
			Help: "Total number of count cache hits",
		},
		[]string{"layer"}, // "memory", "redis"
	)

	// CacheMisses tracks probes that had to be sent upstream
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stars_cache_misses_total",
			Help: "Total number of count cache misses",
		},
	)

	// CacheStores tracks counts written by layer
	CacheStores = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stars_cache_stores_total",
			Help: "Total number of counts stored in the cache",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stars_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "purge"
	)
)
