package metrics

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Generator metrics
	generatorRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalogseo_generator_request_duration_seconds",
			Help:    "Content generator request duration in seconds by model",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
		},
		[]string{"model", "status"},
	)

	rateLimiterWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalogseo_rate_limiter_wait_duration_seconds",
			Help:    "Rate limiter wait duration in seconds by limiter",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"limiter"},
	)

	// Catalog metrics
	catalogCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogseo_catalog_calls_total",
			Help: "Catalog API calls by operation and HTTP status",
		},
		[]string{"op", "status"},
	)

	// Pipeline metrics
	productOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogseo_products_total",
			Help: "Products handled by the pipeline by outcome",
		},
		[]string{"outcome"}, // "completed", "skipped", "error"
	)

	imageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogseo_images_total",
			Help: "Images handled by the pipeline by outcome",
		},
		[]string{"outcome"}, // "completed", "skipped", "error"
	)

	breakerTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalogseo_breaker_trips_total",
			Help: "Jobs force-stopped after consecutive generator auth or rate-limit failures",
		},
	)

	activeJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalogseo_active_jobs",
			Help: "Number of running optimization jobs",
		},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalogseo_job_duration_seconds",
			Help:    "Wall time of finished jobs by stop reason",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16), // 1s to ~9h
		},
		[]string{"reason"},
	)
)

// Collector provides convenience methods for recording metrics.
// A nil *Collector is valid and records nothing.
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// RecordGeneratorRequest records a content generator request duration
func (c *Collector) RecordGeneratorRequest(model string, duration time.Duration, success bool) {
	if c == nil {
		return
	}
	generatorRequestDuration.WithLabelValues(model, statusLabel(success)).Observe(duration.Seconds())
}

// RecordRateLimiterWait records rate limiter wait time
func (c *Collector) RecordRateLimiterWait(limiter string, duration time.Duration) {
	if c == nil {
		return
	}
	rateLimiterWaitDuration.WithLabelValues(limiter).Observe(duration.Seconds())
}

// RecordCatalogCall counts a catalog request; statusCode 0 means a transport failure
func (c *Collector) RecordCatalogCall(op string, statusCode int) {
	if c == nil {
		return
	}
	status := "transport_error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	catalogCalls.WithLabelValues(op, status).Inc()
}

// IncrementProduct counts a product outcome
func (c *Collector) IncrementProduct(outcome string) {
	if c == nil {
		return
	}
	productOutcomes.WithLabelValues(outcome).Inc()
}

// IncrementImage counts an image outcome
func (c *Collector) IncrementImage(outcome string) {
	if c == nil {
		return
	}
	imageOutcomes.WithLabelValues(outcome).Inc()
}

// RecordBreakerTrip counts a forced stop
func (c *Collector) RecordBreakerTrip() {
	if c == nil {
		return
	}
	breakerTrips.Inc()
	c.logger.Debug("Breaker trip recorded")
}

// JobStarted increments the active job gauge
func (c *Collector) JobStarted() {
	if c == nil {
		return
	}
	activeJobs.Inc()
}

// JobFinished decrements the active job gauge and records the run's duration
func (c *Collector) JobFinished(reason string, duration time.Duration) {
	if c == nil {
		return
	}
	activeJobs.Dec()
	if reason == "" {
		reason = "unknown"
	}
	jobDuration.WithLabelValues(reason).Observe(duration.Seconds())
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
