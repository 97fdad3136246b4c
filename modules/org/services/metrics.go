package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	orgSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "hierarchy",
		Name:      "sync_total",
		Help:      "Total number of hierarchy synchronizations broken down by result.",
	}, []string{"result"})

	orgSyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "org",
		Subsystem: "hierarchy",
		Name:      "sync_duration_seconds",
		Help:      "Hierarchy synchronization latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"result"})

	orgSyncUnits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "hierarchy",
		Name:      "units_total",
		Help:      "Units touched by committed synchronizations broken down by operation.",
	}, []string{"op"})

	orgCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Total number of Org cache lookups broken down by cache and hit/miss.",
	}, []string{"cache", "result"})

	orgCacheInvalidate = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "cache",
		Name:      "invalidate_total",
		Help:      "Total number of Org cache invalidations broken down by reason.",
	}, []string{"reason"})

	orgWriteConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of Org write conflicts broken down by kind.",
	}, []string{"kind"})
)

func recordSync(result string, seconds float64) {
	orgSyncTotal.WithLabelValues(result).Inc()
	orgSyncDuration.WithLabelValues(result).Observe(seconds)
}

func recordSyncUnits(created, updated, deleted int) {
	orgSyncUnits.WithLabelValues("created").Add(float64(created))
	orgSyncUnits.WithLabelValues("updated").Add(float64(updated))
	orgSyncUnits.WithLabelValues("deleted").Add(float64(deleted))
}

func recordCacheRequest(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	orgCacheRequests.WithLabelValues(cache, result).Inc()
}

// RecordCacheInvalidate is exported for the post-commit event handler.
func RecordCacheInvalidate(reason string) {
	if reason == "" {
		reason = "manual"
	}
	orgCacheInvalidate.WithLabelValues(reason).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	orgWriteConflicts.WithLabelValues(kind).Inc()
}
