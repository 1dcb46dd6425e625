package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/repairradar/repairradar/internal/broker"
)

// Metrics holds every collector of the gateway. Each instance owns its
// registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec
	HTTPActiveRequests  *prometheus.GaugeVec

	// tenant connection broker
	BrokerLookups         *prometheus.CounterVec
	BrokerEvictions       *prometheus.CounterVec
	BrokerConnectFailures prometheus.Counter
	BrokerReleaseFailures prometheus.Counter
	BrokerActiveHandles   prometheus.Gauge
	BrokerPendingClaims   prometheus.Gauge

	// circuit breakers, 0 closed, 1 half-open, 2 open
	CircuitBreakerState *prometheus.GaugeVec

	// system
	ErrorsTotal *prometheus.CounterVec
	GoRoutines  prometheus.Gauge
}

var _ broker.Recorder = (*Metrics)(nil)

// NewMetrics creates the collectors on a fresh registry
func NewMetrics(namespace, subsystem string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size distributions",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 7), // 100B to ~10MB
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size distributions",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 7),
			},
			[]string{"method", "path"},
		),
		HTTPActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_active_requests",
				Help:      "Number of active HTTP requests",
			},
			[]string{"method", "path"},
		),

		BrokerLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "broker_lookups_total",
				Help:      "Session cache lookups by result",
			},
			[]string{"result"}, // hit/miss
		),
		BrokerEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "broker_evictions_total",
				Help:      "Released tenant handles by reason",
			},
			[]string{"reason"},
		),
		BrokerConnectFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "broker_connect_failures_total",
				Help:      "Failed tenant database connects",
			},
		),
		BrokerReleaseFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "broker_release_failures_total",
				Help:      "Tenant handles whose close returned an error",
			},
		),
		BrokerActiveHandles: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "broker_active_handles",
				Help:      "Open tenant handles held by the session cache",
			},
		),
		BrokerPendingClaims: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "broker_pending_claims",
				Help:      "Session cache entries waiting for a connect",
			},
		),

		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "code"},
		),
		GoRoutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "goroutines",
				Help:      "Number of goroutines",
			},
		),
	}
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records a finished HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, duration time.Duration, reqSize, respSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// RecordError counts an error by type and code
func (m *Metrics) RecordError(errType, code string) {
	m.ErrorsTotal.WithLabelValues(errType, code).Inc()
}

// UpdateCircuitBreakerState sets the state gauge of a breaker
func (m *Metrics) UpdateCircuitBreakerState(name string, state float64) {
	m.CircuitBreakerState.WithLabelValues(name).Set(state)
}

// CacheHit implements broker.Recorder
func (m *Metrics) CacheHit() {
	m.BrokerLookups.WithLabelValues("hit").Inc()
}

// CacheMiss implements broker.Recorder
func (m *Metrics) CacheMiss() {
	m.BrokerLookups.WithLabelValues("miss").Inc()
}

// Evicted implements broker.Recorder
func (m *Metrics) Evicted(reason string) {
	m.BrokerEvictions.WithLabelValues(reason).Inc()
}

// ConnectFailed implements broker.Recorder
func (m *Metrics) ConnectFailed() {
	m.BrokerConnectFailures.Inc()
}

// ReleaseFailed implements broker.Recorder
func (m *Metrics) ReleaseFailed() {
	m.BrokerReleaseFailures.Inc()
}

// SetActive implements broker.Recorder
func (m *Metrics) SetActive(n int) {
	m.BrokerActiveHandles.Set(float64(n))
}
