package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search pipeline Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "svve",
			Name:      "search_requests_total",
			Help:      "Total number of search pipeline runs",
		},
		[]string{"status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "svve",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search pipeline duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"stage"}, // "embed", "rank", "filter", "total"
	)

	SearchResultCount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "svve",
			Name:      "search_result_count",
			Help:      "Number of results per search, before and after filtering",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
		[]string{"stage"}, // "ranked", "kept"
	)

	FilterDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "svve",
			Name:      "filter_decisions_total",
			Help:      "Relevance filter keep/drop decisions",
		},
		[]string{"decision"}, // "keep" / "drop"
	)

	QueueJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "svve",
			Name:      "queue_jobs_total",
			Help:      "Search jobs by terminal state",
		},
		[]string{"state"}, // "done" / "failed" / "rejected"
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "svve",
			Name:      "queue_depth",
			Help:      "Entries currently in the job stream",
		},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers search pipeline metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchResultCount)
	prometheus.MustRegister(FilterDecisionsTotal)
	prometheus.MustRegister(QueueJobsTotal)
	prometheus.MustRegister(QueueDepth)
	searchMetricsRegistered = true
}
