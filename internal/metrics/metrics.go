package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics. Recording methods are no-ops on a nil
// Registry so callers can run without metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Pipeline metrics
	analysesTotal       *prometheus.CounterVec
	analysisDuration    prometheus.Histogram
	stageDuration       *prometheus.HistogramVec
	observationsRemoved *prometheus.CounterVec
	cacheLookups        *prometheus.CounterVec
	degradations        *prometheus.CounterVec
	collectorFetches    *prometheus.CounterVec
	scheduledRuns       *prometheus.CounterVec
	watchlistItems      prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Pipeline metrics
	r.analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardquant_analyses_total",
			Help: "Total number of analysis runs by outcome",
		},
		[]string{"outcome"},
	)
	r.analysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cardquant_analysis_duration_seconds",
			Help:    "Analysis run duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
	)
	r.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardquant_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	r.observationsRemoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardquant_observations_removed_total",
			Help: "Total number of observations removed by filter tier",
		},
		[]string{"tier"},
	)
	r.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardquant_cache_lookups_total",
			Help: "Total number of analysis cache lookups by result",
		},
		[]string{"result"},
	)
	r.degradations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardquant_degradations_total",
			Help: "Total number of non-fatal failures by kind",
		},
		[]string{"kind"},
	)
	r.collectorFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardquant_collector_fetches_total",
			Help: "Total number of collector fetches",
		},
		[]string{"collector", "status"},
	)
	r.scheduledRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardquant_scheduled_runs_total",
			Help: "Total number of scheduled watchlist analyses",
		},
		[]string{"status"},
	)
	r.watchlistItems = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardquant_watchlist_items",
			Help: "Number of products in the watchlist",
		},
	)

	reg.MustRegister(r.analysesTotal)
	reg.MustRegister(r.analysisDuration)
	reg.MustRegister(r.stageDuration)
	reg.MustRegister(r.observationsRemoved)
	reg.MustRegister(r.cacheLookups)
	reg.MustRegister(r.degradations)
	reg.MustRegister(r.collectorFetches)
	reg.MustRegister(r.scheduledRuns)
	reg.MustRegister(r.watchlistItems)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	if r == nil {
		return
	}
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Dec()
}

// RecordAnalysis records a finished analysis run.
func (r *Registry) RecordAnalysis(outcome string, duration float64) {
	if r == nil {
		return
	}
	r.analysesTotal.WithLabelValues(outcome).Inc()
	r.analysisDuration.Observe(duration)
}

// RecordStage records one pipeline stage.
func (r *Registry) RecordStage(stage string, duration float64) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(duration)
}

// RecordRemoved adds filter removals for a tier.
func (r *Registry) RecordRemoved(tier string, count int) {
	if r == nil || count == 0 {
		return
	}
	r.observationsRemoved.WithLabelValues(tier).Add(float64(count))
}

// RecordCacheLookup records a cache hit, miss or error.
func (r *Registry) RecordCacheLookup(result string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// RecordDegradation records a non-fatal failure.
func (r *Registry) RecordDegradation(kind string) {
	if r == nil {
		return
	}
	r.degradations.WithLabelValues(kind).Inc()
}

// RecordFetch records a collector fetch.
func (r *Registry) RecordFetch(collector, status string) {
	if r == nil {
		return
	}
	r.collectorFetches.WithLabelValues(collector, status).Inc()
}

// RecordScheduledRun records one scheduled analysis.
func (r *Registry) RecordScheduledRun(status string) {
	if r == nil {
		return
	}
	r.scheduledRuns.WithLabelValues(status).Inc()
}

// SetWatchlistSize sets the watchlist size.
func (r *Registry) SetWatchlistSize(size int) {
	if r == nil {
		return
	}
	r.watchlistItems.Set(float64(size))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{})
}
