package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analytics engine
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Read-path tier metrics
	TierResultsTotal *prometheus.CounterVec
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Upstream fetch metrics
	UpstreamPagesTotal  prometheus.Counter
	UpstreamErrorsTotal prometheus.Counter
	PartialResultsTotal prometheus.Counter

	// Aggregation metrics
	AggregationDuration   *prometheus.HistogramVec
	EventsAggregatedTotal prometheus.Counter
	AttributionGapsTotal  prometheus.Counter

	// Reconcile metrics
	ReconcileRunsTotal *prometheus.CounterVec
	RowsUpsertedTotal  prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propsight_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "propsight_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		TierResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propsight_tier_results_total",
				Help: "Stats requests answered per read tier and outcome",
			},
			[]string{"tier", "outcome"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propsight_cache_hits_total",
				Help: "Cache hits by cache kind",
			},
			[]string{"kind"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propsight_cache_misses_total",
				Help: "Cache misses by cache kind, errors included",
			},
			[]string{"kind"},
		),
		UpstreamPagesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "propsight_upstream_pages_total",
				Help: "Pages fetched from the raw-event source",
			},
		),
		UpstreamErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "propsight_upstream_errors_total",
				Help: "Failed upstream fetch calls",
			},
		),
		PartialResultsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "propsight_partial_results_total",
				Help: "Responses served from a truncated upstream scan",
			},
		),
		AggregationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "propsight_aggregation_duration_seconds",
				Help:    "Aggregation pass duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		EventsAggregatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "propsight_events_aggregated_total",
				Help: "Raw events folded into time series",
			},
		),
		AttributionGapsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "propsight_attribution_gaps_total",
				Help: "Events carrying no owner-identifying field",
			},
		),
		ReconcileRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propsight_reconcile_runs_total",
				Help: "Reconcile executions by outcome",
			},
			[]string{"outcome"},
		),
		RowsUpsertedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "propsight_rows_upserted_total",
				Help: "Durable aggregate rows written during reconciles",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TierResultsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.UpstreamPagesTotal,
		m.UpstreamErrorsTotal,
		m.PartialResultsTotal,
		m.AggregationDuration,
		m.EventsAggregatedTotal,
		m.AttributionGapsTotal,
		m.ReconcileRunsTotal,
		m.RowsUpsertedTotal,
	)

	return m
}

// Handler returns the Prometheus scrape handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one served HTTP request
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
