package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus is the concrete StorageMetrics sink (grounded on erigon's
// prometheus/client_golang dependency) — every counter named in spec.md
// §4.1's tree statistics, §4.7's vacuum stats, and the facade's cache-hit
// counters registers here under the "sombra_" namespace.
type Prometheus struct {
	treeOps       *prometheus.CounterVec
	cacheAccesses *prometheus.CounterVec

	vacuumPasses         prometheus.Counter
	vacuumLogPruned      prometheus.Counter
	vacuumSegmentsFreed  prometheus.Counter
	vacuumPostingsPruned prometheus.Counter
	vacuumDuration       prometheus.Histogram

	readersActive  prometheus.Gauge
	readerLifetime prometheus.Histogram

	writeDuration prometheus.Histogram
}

// NewPrometheus registers every metric against reg and returns a sink
// ready to pass as StorageMetrics. Pass prometheus.DefaultRegisterer to
// use the global registry.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	f := promauto.With(reg)
	return &Prometheus{
		treeOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sombra",
			Subsystem: "tree",
			Name:      "ops_total",
			Help:      "B+ tree operations by tree name and operation kind.",
		}, []string{"tree", "op"}),
		cacheAccesses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sombra",
			Subsystem: "cache",
			Name:      "accesses_total",
			Help:      "Cache lookups by cache name and hit/miss outcome.",
		}, []string{"cache", "outcome"}),
		vacuumPasses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sombra",
			Subsystem: "vacuum",
			Name:      "passes_total",
			Help:      "Completed vacuum passes.",
		}),
		vacuumLogPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sombra",
			Subsystem: "vacuum",
			Name:      "log_entries_pruned_total",
			Help:      "Version-log entries deleted across all vacuum passes.",
		}),
		vacuumSegmentsFreed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sombra",
			Subsystem: "vacuum",
			Name:      "segments_freed_total",
			Help:      "IFA adjacency segments freed across all vacuum passes.",
		}),
		vacuumPostingsPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sombra",
			Subsystem: "vacuum",
			Name:      "index_postings_pruned_total",
			Help:      "Stale index postings deleted across all vacuum passes.",
		}),
		vacuumDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sombra",
			Subsystem: "vacuum",
			Name:      "pass_duration_seconds",
			Help:      "Wall-clock duration of one vacuum pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		readersActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "sombra",
			Subsystem: "mvcc",
			Name:      "active_readers",
			Help:      "Currently registered MVCC reader snapshots.",
		}),
		readerLifetime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sombra",
			Subsystem: "mvcc",
			Name:      "reader_lifetime_seconds",
			Help:      "Age of a reader snapshot at release.",
			Buckets:   prometheus.DefBuckets,
		}),
		writeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sombra",
			Subsystem: "txn",
			Name:      "write_duration_seconds",
			Help:      "Wall-clock duration of one committed write transaction.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Prometheus) TreeOp(tree, op string, n uint64) {
	m.treeOps.WithLabelValues(tree, op).Add(float64(n))
}

func (m *Prometheus) CacheAccess(cache string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheAccesses.WithLabelValues(cache, outcome).Inc()
}

func (m *Prometheus) VacuumPass(logEntriesPruned, segmentsFreed, indexPostingsPruned int, duration time.Duration) {
	m.vacuumPasses.Inc()
	m.vacuumLogPruned.Add(float64(logEntriesPruned))
	m.vacuumSegmentsFreed.Add(float64(segmentsFreed))
	m.vacuumPostingsPruned.Add(float64(indexPostingsPruned))
	m.vacuumDuration.Observe(duration.Seconds())
}

func (m *Prometheus) ReaderRegistered() {
	m.readersActive.Inc()
}

func (m *Prometheus) ReaderReleased(age time.Duration) {
	m.readersActive.Dec()
	m.readerLifetime.Observe(age.Seconds())
}

func (m *Prometheus) WriteCommitted(duration time.Duration) {
	m.writeDuration.Observe(duration.Seconds())
}

var _ StorageMetrics = (*Prometheus)(nil)
