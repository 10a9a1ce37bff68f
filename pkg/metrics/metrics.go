package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection
type Collector struct {
	// Fetch metrics
	FetchesTotal      prometheus.Counter
	FetchErrorsTotal  *prometheus.CounterVec
	FetchRetriesTotal prometheus.Counter
	FetchDuration     prometheus.Histogram

	// Normalization metrics
	RecordsParsedTotal       prometheus.Counter
	MalformedRecordsTotal    prometheus.Counter
	ObservationsDroppedTotal *prometheus.CounterVec
	StationsExcludedTotal    prometheus.Counter

	// Pipeline metrics
	CollectionDuration prometheus.Histogram
	TrendFitDuration   prometheus.Histogram

	// Cache metrics
	CacheBatchSize  prometheus.Histogram
	DBQueryDuration *prometheus.HistogramVec
	DBErrorsTotal   *prometheus.CounterVec

	// API metrics (server mode)
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIErrorsTotal     *prometheus.CounterVec
}

// NewCollector creates a collector registered with the default registry.
func NewCollector(namespace string) *Collector {
	return NewCollectorWith(namespace, prometheus.DefaultRegisterer)
}

// NewCollectorWith creates a collector registered with the given registerer.
// Tests pass a fresh registry to avoid duplicate registration panics.
func NewCollectorWith(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		FetchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "station_fetches_total",
				Help:      "Total number of per-station series fetch attempts",
			},
		),

		FetchErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "station_fetch_errors_total",
				Help:      "Total number of failed station fetches by reason",
			},
			[]string{"reason"},
		),

		FetchRetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "station_fetch_retries_total",
				Help:      "Total number of fetch retries after timeout",
			},
		),

		FetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "station_fetch_duration_seconds",
				Help:      "Duration of per-station series fetches in seconds",
				Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
		),

		RecordsParsedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_parsed_total",
				Help:      "Total number of raw records parsed from station payloads",
			},
		),

		MalformedRecordsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "malformed_records_total",
				Help:      "Total number of raw records dropped as malformed",
			},
		),

		ObservationsDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "observations_dropped_total",
				Help:      "Total number of observations dropped during normalization by reason",
			},
			[]string{"reason"}, // "unverified", "trailing", "duplicate"
		),

		StationsExcludedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stations_excluded_total",
				Help:      "Total number of stations excluded for having too few observations",
			},
		),

		CollectionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "collection_duration_seconds",
				Help:      "Duration of full collection runs in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),

		TrendFitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trend_fit_duration_seconds",
				Help:      "Duration of trend estimation in seconds",
				Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1.0},
			},
		),

		CacheBatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_batch_size",
				Help:      "Number of observations per batch written to the cache",
				Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000},
			},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Cache query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"query_type"},
		),

		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of cache errors by type",
			},
			[]string{"error_type"},
		),

		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"endpoint"},
		),

		APIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of API errors by type",
			},
			[]string{"error_type", "endpoint"},
		),
	}
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordFetchError increments the fetch error counter
func (c *Collector) RecordFetchError(reason string) {
	c.FetchErrorsTotal.WithLabelValues(reason).Inc()
}

// RecordDroppedObservation increments the normalization drop counter
func (c *Collector) RecordDroppedObservation(reason string, count int) {
	c.ObservationsDroppedTotal.WithLabelValues(reason).Add(float64(count))
}

// RecordDBError increments the cache error counter
func (c *Collector) RecordDBError(errorType string) {
	c.DBErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordAPIRequest increments the API request counter
func (c *Collector) RecordAPIRequest(endpoint, method, status string) {
	c.APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordAPIError increments the API error counter
func (c *Collector) RecordAPIError(errorType, endpoint string) {
	c.APIErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}
