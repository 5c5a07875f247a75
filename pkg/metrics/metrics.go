package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Storage metrics
	VerticesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graphd_vertices_total",
			Help: "Total number of vertices by tag",
		},
		[]string{"tag"},
	)

	EdgesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graphd_edges_total",
			Help: "Total number of edges by edge type",
		},
		[]string{"edge_type"},
	)

	StorageOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphd_storage_op_duration_seconds",
			Help:    "Storage engine operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// MVCC metrics
	MvccGlobalVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphd_mvcc_global_version",
			Help: "Current global MVCC version counter",
		},
	)

	MvccConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphd_mvcc_conflicts_total",
			Help: "Total number of write-write conflicts detected",
		},
	)

	MvccGCRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphd_mvcc_gc_runs_total",
			Help: "Total number of MVCC garbage collection runs",
		},
	)

	MvccVersionsCollected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphd_mvcc_versions_collected_total",
			Help: "Total number of stale versions reclaimed by GC",
		},
	)

	// Lock manager metrics
	LockWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphd_lock_wait_duration_seconds",
			Help:    "Time spent waiting to acquire a lock in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	LockAcquiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphd_lock_acquired_total",
			Help: "Total number of locks acquired by lock type",
		},
		[]string{"lock_type"},
	)

	LockTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphd_lock_timeouts_total",
			Help: "Total number of lock acquisitions that timed out",
		},
	)

	DeadlocksDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphd_deadlocks_detected_total",
			Help: "Total number of deadlocks detected by wait-for cycle search",
		},
	)

	// Index metrics
	IndexLookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphd_index_lookup_duration_seconds",
			Help:    "Index lookup duration in seconds by lookup kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	IndexCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphd_index_cache_hits_total",
			Help: "Total number of index query cache hits",
		},
	)

	IndexCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphd_index_cache_misses_total",
			Help: "Total number of index query cache misses",
		},
	)

	// Traversal metrics
	TraversalFrontierSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphd_traversal_frontier_size",
			Help:    "Size of the BFS frontier during all-paths traversal",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000},
		},
	)

	TraversalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphd_traversal_duration_seconds",
			Help:    "Time taken to complete an all-paths traversal in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Transaction metrics
	TxCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphd_tx_commit_duration_seconds",
			Help:    "Transaction commit duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	TxAbortedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphd_tx_aborted_total",
			Help: "Total number of aborted transactions by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(VerticesTotal)
	prometheus.MustRegister(EdgesTotal)
	prometheus.MustRegister(StorageOpDuration)
	prometheus.MustRegister(MvccGlobalVersion)
	prometheus.MustRegister(MvccConflictsTotal)
	prometheus.MustRegister(MvccGCRunsTotal)
	prometheus.MustRegister(MvccVersionsCollected)
	prometheus.MustRegister(LockWaitDuration)
	prometheus.MustRegister(LockAcquiredTotal)
	prometheus.MustRegister(LockTimeoutsTotal)
	prometheus.MustRegister(DeadlocksDetectedTotal)
	prometheus.MustRegister(IndexLookupDuration)
	prometheus.MustRegister(IndexCacheHitsTotal)
	prometheus.MustRegister(IndexCacheMissesTotal)
	prometheus.MustRegister(TraversalFrontierSize)
	prometheus.MustRegister(TraversalDuration)
	prometheus.MustRegister(TxCommitDuration)
	prometheus.MustRegister(TxAbortedTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
