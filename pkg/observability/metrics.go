package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Permission decision metrics
	DecisionsTotal         *prometheus.CounterVec
	DecisionDuration       *prometheus.HistogramVec
	SystemAccessChecks     *prometheus.CounterVec
	DownloadChecks         *prometheus.CounterVec
	AccessibleDocsResolved prometheus.Histogram

	// Cache metrics
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec

	// Search metrics
	SearchesTotal         *prometheus.CounterVec
	SearchResultsFiltered prometheus.Counter
	SearchDuration        prometheus.Histogram

	// Audit metrics
	AuditRecordsTotal  *prometheus.CounterVec
	AuditQueueDepth    prometheus.Gauge
	AuditWriteFailures prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// Permission decision metrics
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgate_decisions_total",
				Help: "Total number of permission decisions",
			},
			[]string{"action", "result"},
		),
		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docgate_decision_duration_seconds",
				Help:    "Permission decision duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"action"},
		),
		SystemAccessChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgate_system_access_checks_total",
				Help: "Total number of system access checks",
			},
			[]string{"outcome"},
		),
		DownloadChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgate_download_checks_total",
				Help: "Total number of download permission checks",
			},
			[]string{"reason"},
		),
		AccessibleDocsResolved: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docgate_accessible_documents",
				Help:    "Size of resolved accessible document sets",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgate_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"key_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgate_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"key_type"},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgate_cache_invalidations_total",
				Help: "Total number of cache invalidations",
			},
			[]string{"reason"},
		),

		// Search metrics
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgate_searches_total",
				Help: "Total number of permission-filtered searches",
			},
			[]string{"outcome"},
		),
		SearchResultsFiltered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docgate_search_results_filtered_total",
				Help: "Total number of search results removed by permission re-checks",
			},
		),
		SearchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docgate_search_duration_seconds",
				Help:    "Permission-filtered search duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		// Audit metrics
		AuditRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgate_audit_records_total",
				Help: "Total number of audit records written",
			},
			[]string{"action"},
		),
		AuditQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docgate_audit_queue_depth",
				Help: "Number of audit records waiting in the queue",
			},
		),
		AuditWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docgate_audit_write_failures_total",
				Help: "Total number of failed audit writes",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.DecisionsTotal,
		m.DecisionDuration,
		m.SystemAccessChecks,
		m.DownloadChecks,
		m.AccessibleDocsResolved,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
		m.SearchesTotal,
		m.SearchResultsFiltered,
		m.SearchDuration,
		m.AuditRecordsTotal,
		m.AuditQueueDepth,
		m.AuditWriteFailures,
	)

	return m
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
