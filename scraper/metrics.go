package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the sourcing pipeline.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	ItemsScrapedTotal prometheus.Counter
	MatchesTotal      *prometheus.CounterVec
	ProfitableTotal   prometheus.Counter
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcing_requests_total",
			Help: "Total HTTP requests issued, by target site.",
		},
		[]string{"target"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sourcing_request_duration_seconds",
			Help:    "HTTP request latency across supplier and Amazon fetches.",
			Buckets: prometheus.DefBuckets,
		},
	)
	itemsScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sourcing_supplier_products_total",
			Help: "Total supplier products extracted from category pages.",
		},
	)
	matches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcing_matches_total",
			Help: "Total resolved Amazon matches, by resolution method.",
		},
		[]string{"method"},
	)
	profitable := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sourcing_profitable_products_total",
			Help: "Total products that cleared the profitability gate.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sourcing_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcing_errors_total",
			Help: "Total number of pipeline errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, itemsScraped, matches, profitable, retries, errorsTotal)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		ItemsScrapedTotal: itemsScraped,
		MatchesTotal:      matches,
		ProfitableTotal:   profitable,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
	}
}

// IncRequest increments the requests total counter for a target site.
func (m *Metrics) IncRequest(target string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(target).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncItems increments the supplier products counter.
func (m *Metrics) IncItems() {
	if m == nil {
		return
	}
	m.ItemsScrapedTotal.Inc()
}

// IncMatch increments the match counter for a resolution method.
func (m *Metrics) IncMatch(method string) {
	if m == nil {
		return
	}
	m.MatchesTotal.WithLabelValues(method).Inc()
}

// IncProfitable increments the profitable products counter.
func (m *Metrics) IncProfitable() {
	if m == nil {
		return
	}
	m.ProfitableTotal.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
