// Package prometheus registers and exposes the pipeline's operational
// metrics.  One Metrics value is created per process and injected into the
// components that record observations.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every metric the pipeline and API server record.
type Metrics struct {
	// Fetcher
	PagesFetched  *prometheus.CounterVec // labels: page_kind, cache ("hit"|"miss")
	FetchRetries  prometheus.Counter
	FetchDuration *prometheus.HistogramVec // labels: page_kind

	// Pipeline stages
	RecordsProcessed *prometheus.CounterVec // labels: stage, outcome ("ok"|"failed")
	StageDuration    *prometheus.HistogramVec

	// Relation service
	RelationLookups *prometheus.CounterVec // labels: result ("hit"|"miss"|"error")

	// Search index
	IndexOps *prometheus.CounterVec // labels: op ("create"|"update"|"delete"), outcome

	// Search API
	SearchRequests *prometheus.CounterVec   // labels: endpoint, outcome
	SearchDuration *prometheus.HistogramVec // labels: endpoint
}

var defaultDurationBuckets = []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// New registers all pipeline metrics on reg and returns the Metrics handle.
// Passing prometheus.NewRegistry() keeps tests isolated from the default
// registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "humandbs",
			Subsystem: "fetcher",
			Name:      "pages_fetched_total",
			Help:      "Portal pages retrieved, by page kind and cache outcome.",
		}, []string{"page_kind", "cache"}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "humandbs",
			Subsystem: "fetcher",
			Name:      "retries_total",
			Help:      "HTTP retries performed against the portal.",
		}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "humandbs",
			Subsystem: "fetcher",
			Name:      "fetch_duration_seconds",
			Help:      "Wall time per page fetch including retries.",
			Buckets:   defaultDurationBuckets,
		}, []string{"page_kind"}),
		RecordsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "humandbs",
			Subsystem: "pipeline",
			Name:      "records_processed_total",
			Help:      "Work items processed per stage, by outcome.",
		}, []string{"stage", "outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "humandbs",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall time per stage run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"stage"}),
		RelationLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "humandbs",
			Subsystem: "relation",
			Name:      "lookups_total",
			Help:      "Study-to-dataset relation lookups, by cache result.",
		}, []string{"result"}),
		IndexOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "humandbs",
			Subsystem: "index",
			Name:      "operations_total",
			Help:      "Search-index document operations, by op and outcome.",
		}, []string{"op", "outcome"}),
		SearchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "humandbs",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Search API requests, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		SearchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "humandbs",
			Subsystem: "search",
			Name:      "request_duration_seconds",
			Help:      "Search API request latency.",
			Buckets:   defaultDurationBuckets,
		}, []string{"endpoint"}),
	}

	reg.MustRegister(
		m.PagesFetched, m.FetchRetries, m.FetchDuration,
		m.RecordsProcessed, m.StageDuration,
		m.RelationLookups,
		m.IndexOps,
		m.SearchRequests, m.SearchDuration,
	)
	return m
}

// NewNop returns a Metrics handle registered on a throwaway registry.
// Components can record freely without polluting the default registry;
// intended for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
