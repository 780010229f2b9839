// Package metrics defines the Prometheus collectors used across the
// pipeline and exposes an HTTP handler for scraping. A nil *Metrics is
// valid and records nothing, so library code never has to branch on it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	DocsIndexedTotal   prometheus.Counter
	VocabularySize     prometheus.Gauge
	IndexLoadDuration  *prometheus.HistogramVec
	QueriesTotal       *prometheus.CounterVec
	QueryLatency       *prometheus.HistogramVec
	ResultsPerQuery    prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	EvaluationsTotal   prometheus.Counter
	EventsDroppedTotal prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them with reg. A nil reg uses a
// fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents normalised into a freshly built index.",
			},
		),
		VocabularySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_vocabulary_terms",
				Help: "Number of distinct terms in the active index.",
			},
		),
		IndexLoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_open_duration_seconds",
				Help:    "Time to obtain the index, by source (built or loaded).",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"source"},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queries_scored_total",
				Help: "Total queries scored by strategy and result type (hit, zero_result, error).",
			},
			[]string{"strategy", "result_type"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "query_latency_seconds",
				Help:    "BM25 scoring latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"strategy", "cache_status"},
		),
		ResultsPerQuery: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "query_results_count",
				Help:    "Number of ranked documents returned per query.",
				Buckets: []float64{0, 1, 10, 100, 1000, 10000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "query_cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "query_cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		EvaluationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "evaluations_total",
				Help: "Total evaluation reports computed.",
			},
		),
		EventsDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analytics_events_dropped_total",
				Help: "Query events dropped because the collector buffer was full.",
			},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.DocsIndexedTotal,
		m.VocabularySize,
		m.IndexLoadDuration,
		m.QueriesTotal,
		m.QueryLatency,
		m.ResultsPerQuery,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.EvaluationsTotal,
		m.EventsDroppedTotal,
	)

	return m
}

// ObserveIndex records how the index was obtained.
func (m *Metrics) ObserveIndex(source string, docs, terms int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if source == "built" {
		m.DocsIndexedTotal.Add(float64(docs))
	}
	m.VocabularySize.Set(float64(terms))
	m.IndexLoadDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveQuery records one scored query.
func (m *Metrics) ObserveQuery(strategy string, cacheHit bool, results int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	resultType := "hit"
	switch {
	case err != nil:
		resultType = "error"
	case results == 0:
		resultType = "zero_result"
	}
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
	}
	m.QueriesTotal.WithLabelValues(strategy, resultType).Inc()
	m.QueryLatency.WithLabelValues(strategy, cacheStatus).Observe(elapsed.Seconds())
	m.ResultsPerQuery.Observe(float64(results))
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHitsTotal.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMissesTotal.Inc()
	}
}

func (m *Metrics) EvaluationDone() {
	if m != nil {
		m.EvaluationsTotal.Inc()
	}
}

func (m *Metrics) EventDropped() {
	if m != nil {
		m.EventsDroppedTotal.Inc()
	}
}

// Handler returns the Prometheus scrape HTTP handler for m's registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
