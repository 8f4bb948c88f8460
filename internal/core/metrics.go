package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// importsStarted counts submitted batches by kind and outcome.
	importsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planties",
			Subsystem: "import",
			Name:      "batches_total",
			Help:      "Total number of submitted import batches by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	rowsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planties",
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Total number of parsed rows by validity",
		},
		[]string{"kind", "valid"},
	)

	conflictsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planties",
			Subsystem: "import",
			Name:      "conflicts_total",
			Help:      "Total number of conflicts detected by conflict kind",
		},
		[]string{"kind", "conflict"},
	)

	resolutionsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planties",
			Subsystem: "import",
			Name:      "resolutions_total",
			Help:      "Total number of submitted resolutions by action and result",
		},
		[]string{"action", "result"},
	)

	commitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planties",
			Subsystem: "import",
			Name:      "commits_total",
			Help:      "Total number of commits by status",
		},
		[]string{"status"},
	)

	commitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "planties",
			Subsystem: "import",
			Name:      "commit_duration_seconds",
			Help:      "Duration of write plan application in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	matchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "planties",
			Subsystem: "import",
			Name:      "match_duration_seconds",
			Help:      "Duration of matching a whole batch in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
	)

	notifyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "planties",
			Subsystem: "import",
			Name:      "notify_failures_total",
			Help:      "Total number of post-commit notifications that failed",
		},
	)

	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "planties",
			Subsystem: "import",
			Name:      "sessions_active",
			Help:      "Number of import sessions held in memory",
		},
	)

	sessionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "planties",
			Subsystem: "import",
			Name:      "sessions_evicted_total",
			Help:      "Total number of sessions evicted after expiry",
		},
	)
)
