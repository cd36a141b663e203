package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "simplescraper"

// HTTPMetrics holds the collectors for the HTTP API surface.
type HTTPMetrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	responseSize *prometheus.HistogramVec
	errors       *prometheus.CounterVec
	panics       prometheus.Counter
	startTime    prometheus.Gauge
}

var (
	mu      sync.RWMutex
	current *HTTPMetrics
)

// NewHTTPMetrics registers the HTTP collectors on registry.
func NewHTTPMetrics(registry prometheus.Registerer) *HTTPMetrics {
	factory := promauto.With(registry)
	return &HTTPMetrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP API requests by method, endpoint and status",
			},
			[]string{"method", "endpoint", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP API request latency",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"method", "endpoint"},
		),
		responseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP API response sizes",
				Buckets:   prometheus.ExponentialBuckets(128, 4, 8),
			},
			[]string{"endpoint"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Error envelopes returned by code and status",
			},
			[]string{"error_code", "http_status"},
		),
		panics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_total",
			Help:      "Recovered handler panics",
		}),
		startTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_start_time_seconds",
			Help:      "Unix time the HTTP server started",
		}),
	}
}

// Install makes m the target of the package level recorders. Passing nil
// disables recording.
func Install(m *HTTPMetrics) {
	mu.Lock()
	defer mu.Unlock()
	current = m
}

func installed() *HTTPMetrics {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// RecordRequest records one completed HTTP API request.
func RecordRequest(method, endpoint string, status int, elapsed time.Duration, size int64) {
	m := installed()
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
	m.responseSize.WithLabelValues(endpoint).Observe(float64(size))
}

// SetServerStartTime records when the server began listening.
func SetServerStartTime(at time.Time) {
	m := installed()
	if m == nil {
		return
	}
	m.startTime.Set(float64(at.Unix()))
}
