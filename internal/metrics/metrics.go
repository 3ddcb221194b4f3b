package metrics

import (
	"net/http"

	"github.com/conky/docsearch/internal/indexing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the docs search collectors on an isolated registry, so each
// server (and each test) gets its own set.
type Metrics struct {
	Registry *prometheus.Registry

	SearchQueriesTotal    *prometheus.CounterVec
	SearchDurationSeconds prometheus.Histogram
	SearchResults         prometheus.Histogram
	NavigationsTotal      *prometheus.CounterVec
	IndexRecords          *prometheus.GaugeVec
	HTTPRequestsTotal     *prometheus.CounterVec
	BuildInfo             *prometheus.GaugeVec
}

// Search outcomes
const (
	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
	OutcomeEmpty   = "empty"
	OutcomeLoading = "loading"
)

// NewMetrics creates and registers every collector
func NewMetrics(version string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conkydocs_search_queries_total",
				Help: "Search queries by outcome.",
			},
			[]string{"outcome"},
		),
		SearchDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conkydocs_search_duration_seconds",
				Help:    "Time spent evaluating a search query.",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
			},
		),
		SearchResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conkydocs_search_results",
				Help:    "Number of results returned per query.",
				Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
			},
		),
		NavigationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conkydocs_navigations_total",
				Help: "Selected results by destination page.",
			},
			[]string{"page"},
		),
		IndexRecords: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "conkydocs_index_records",
				Help: "Records in the loaded search index by kind.",
			},
			[]string{"kind"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conkydocs_http_requests_total",
				Help: "HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "conkydocs_info",
				Help: "Build information.",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		m.SearchQueriesTotal,
		m.SearchDurationSeconds,
		m.SearchResults,
		m.NavigationsTotal,
		m.IndexRecords,
		m.HTTPRequestsTotal,
		m.BuildInfo,
	)
	m.BuildInfo.WithLabelValues(version).Set(1)

	return m
}

// ObserveIndex records the per-kind record counts of a loaded index
func (m *Metrics) ObserveIndex(idx *indexing.SearchIndex) {
	for kind, n := range idx.CountByKind() {
		m.IndexRecords.WithLabelValues(string(kind)).Set(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
