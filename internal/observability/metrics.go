package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "simplescraper"

// NewRegistry returns a registry preloaded with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// ScraperMetrics records request lifecycle events as Prometheus metrics. It
// satisfies engine.Observer and is safe for concurrent use. A nil
// *ScraperMetrics discards everything.
type ScraperMetrics struct {
	cacheLookups  *prometheus.CounterVec
	throttleWaits *prometheus.HistogramVec
	backoffs      *prometheus.CounterVec
	backoffWaits  *prometheus.HistogramVec
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewScraperMetrics registers the scraper metrics on registry.
func NewScraperMetrics(registry prometheus.Registerer) *ScraperMetrics {
	factory := promauto.With(registry)
	return &ScraperMetrics{
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cache_lookups_total",
				Help:      "Response cache lookups by result",
			},
			[]string{"result"},
		),
		throttleWaits: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "throttle_wait_seconds",
				Help:      "Time spent waiting for a rate limit slot",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300, 3600},
			},
			[]string{"key"},
		),
		backoffs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "backoffs_total",
				Help:      "Backoff waits by rate limit key and attempt",
			},
			[]string{"key", "attempt"},
		),
		backoffWaits: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "backoff_wait_seconds",
				Help:      "Length of backoff waits",
				Buckets:   []float64{1, 2, 5, 10, 20, 60, 300},
			},
			[]string{"key"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Completed request chains by outcome",
			},
			[]string{"key", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of request chains including waits",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}
}

// CacheLookup counts a cache hit or miss.
func (m *ScraperMetrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Throttled records a rate limit wait.
func (m *ScraperMetrics) Throttled(key string, wait time.Duration) {
	if m == nil {
		return
	}
	m.throttleWaits.WithLabelValues(key).Observe(wait.Seconds())
}

// BackedOff records one backoff wait.
func (m *ScraperMetrics) BackedOff(key string, attempt int, wait time.Duration) {
	if m == nil {
		return
	}
	m.backoffs.WithLabelValues(key, strconv.Itoa(attempt)).Inc()
	m.backoffWaits.WithLabelValues(key).Observe(wait.Seconds())
}

// Finished records the outcome of a request chain.
func (m *ScraperMetrics) Finished(key string, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(key, outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}
