package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry            *prometheus.Registry
	PagesTotal          *prometheus.CounterVec
	RequestDuration     prometheus.Histogram
	ItemsScrapedTotal   *prometheus.CounterVec
	DuplicateItemsTotal *prometheus.CounterVec
	CategoriesTotal     *prometheus.CounterVec
	ErrorsTotal         *prometheus.CounterVec
	RowErrorsTotal      *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Page requests issued by the scraper, by classified outcome.",
		},
		[]string{"country", "outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	itemsScraped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_items_scraped_total",
			Help: "Normalized products collected.",
		},
		[]string{"country"},
	)
	duplicates := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_duplicate_items_total",
			Help: "Products whose item id was already seen earlier in the same category fetch.",
		},
		[]string{"country"},
	)
	categories := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_categories_total",
			Help: "Finished category fetches by terminal status.",
		},
		[]string{"country", "status"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of transport errors by type.",
		},
		[]string{"error_type"},
	)
	rowErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_warehouse_row_errors_total",
			Help: "Rows the warehouse rejected.",
		},
		[]string{"country"},
	)

	registry.MustRegister(pages, requestDuration, itemsScraped, duplicates, categories, errorsTotal, rowErrors)

	return &Metrics{
		Registry:            registry,
		PagesTotal:          pages,
		RequestDuration:     requestDuration,
		ItemsScrapedTotal:   itemsScraped,
		DuplicateItemsTotal: duplicates,
		CategoriesTotal:     categories,
		ErrorsTotal:         errorsTotal,
		RowErrorsTotal:      rowErrors,
	}
}

// IncPage counts one classified page response.
func (m *Metrics) IncPage(country, outcome string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(country, outcome).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddItems adds n to the items scraped counter.
func (m *Metrics) AddItems(country string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsScrapedTotal.WithLabelValues(country).Add(float64(n))
}

// AddDuplicates adds n to the duplicate items counter.
func (m *Metrics) AddDuplicates(country string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DuplicateItemsTotal.WithLabelValues(country).Add(float64(n))
}

// IncCategory counts a finished category.
func (m *Metrics) IncCategory(country, status string) {
	if m == nil {
		return
	}
	m.CategoriesTotal.WithLabelValues(country, status).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// AddRowErrors adds n to the warehouse row error counter.
func (m *Metrics) AddRowErrors(country string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowErrorsTotal.WithLabelValues(country).Add(float64(n))
}
