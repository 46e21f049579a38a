// Package metrics defines the Prometheus collectors used by the ranking
// service and serves them for scraping. Every name carries the wikirank
// namespace.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "wikirank"

var (
	latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	termBuckets    = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
)

type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SearchQueriesTotal *prometheus.CounterVec // outcome: hit, zero_result, error
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	CandidateSetSize   prometheus.Histogram
	TermFetchDuration  prometheus.Histogram
	TermsSkippedTotal  prometheus.Counter

	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	CacheInvalidations prometheus.Counter

	SearchEventsTotal   *prometheus.CounterVec // status: published, dropped, failed
	CircuitBreakerState *prometheus.GaugeVec   // 0 closed, 1 open, 2 half-open
}

// New registers the collectors with the default registry. It panics if
// called twice in one process; tests use NewWithRegistry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(counterOpts("http", "requests_total",
			"HTTP requests by method, route and status code."),
			[]string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(histogramOpts("http", "request_duration_seconds",
			"HTTP request latency.", latencyBuckets),
			[]string{"method", "path"}),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_in_flight",
			Help: "HTTP requests being served.",
		}),

		SearchQueriesTotal: prometheus.NewCounterVec(counterOpts("search", "queries_total",
			"Ranked queries by outcome."),
			[]string{"outcome"}),
		SearchLatency: prometheus.NewHistogramVec(histogramOpts("search", "latency_seconds",
			"End-to-end search latency as seen by the handler.", latencyBuckets),
			[]string{"cache_status"}),
		SearchResultsCount: prometheus.NewHistogram(histogramOpts("search", "results",
			"Results returned per query.", []float64{0, 1, 5, 10, 25, 50, 100})),
		CandidateSetSize: prometheus.NewHistogram(histogramOpts("search", "candidates",
			"Candidate documents scored per query.", prometheus.ExponentialBuckets(1, 4, 10))),
		TermFetchDuration: prometheus.NewHistogram(histogramOpts("search", "term_score_duration_seconds",
			"Time to fetch and score one query term.", termBuckets)),
		TermsSkippedTotal: prometheus.NewCounter(counterOpts("search", "terms_skipped_total",
			"Query terms dropped after a failed fetch under the skip policy.")),

		CacheHitsTotal:     prometheus.NewCounter(counterOpts("cache", "hits_total", "Query cache hits.")),
		CacheMissesTotal:   prometheus.NewCounter(counterOpts("cache", "misses_total", "Query cache misses.")),
		CacheInvalidations: prometheus.NewCounter(counterOpts("cache", "invalidations_total", "Query cache flushes after index updates.")),

		SearchEventsTotal: prometheus.NewCounterVec(counterOpts("analytics", "events_total",
			"Search analytics events by delivery status."),
			[]string{"status"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_state",
			Help: "Circuit breaker state by breaker name.",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPRequestsInFlight,
		m.SearchQueriesTotal, m.SearchLatency, m.SearchResultsCount,
		m.CandidateSetSize, m.TermFetchDuration, m.TermsSkippedTotal,
		m.CacheHitsTotal, m.CacheMissesTotal, m.CacheInvalidations,
		m.SearchEventsTotal, m.CircuitBreakerState,
	)
	return m
}

func counterOpts(subsystem, name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}
}

func histogramOpts(subsystem, name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets}
}
