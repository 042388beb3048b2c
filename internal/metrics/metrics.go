package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Quota decision label values
const (
	DecisionAllowed = "allowed"
	DecisionDenied  = "denied"
	DecisionError   = "error"
)

// Metrics holds all Prometheus metrics for the gateway.
// Every Observe* method is safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec

	// Quota metrics
	QuotaDecisions      *prometheus.CounterVec
	QuotaConflicts      prometheus.Counter
	StoreOperationTotal *prometheus.CounterVec
	StoreDuration       *prometheus.HistogramVec

	// Upstream metrics
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec
	UpstreamErrors          *prometheus.CounterVec
	CircuitBreakerState     *prometheus.GaugeVec
}

// New creates a new Metrics instance registered with the default registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_size_bytes",
				Help:    "HTTP request sizes in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6), // 100B to 10MB
			},
			[]string{"method", "route"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_http_requests_active",
				Help: "Number of in-flight HTTP requests",
			},
			[]string{"method", "route"},
		),

		QuotaDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_quota_decisions_total",
				Help: "Quota admission decisions by outcome",
			},
			[]string{"decision"},
		),
		QuotaConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_quota_conflicts_total",
				Help: "Concurrent quota updates that had to be retried",
			},
		),
		StoreOperationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_quota_store_operations_total",
				Help: "Quota store operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		StoreDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_quota_store_duration_seconds",
				Help:    "Quota store operation latencies in seconds",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),

		UpstreamRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_requests_total",
				Help: "Total number of requests sent to the backend",
			},
			[]string{"method", "status"},
		),
		UpstreamRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_upstream_request_duration_seconds",
				Help:    "Backend request latencies in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"method"},
		),
		UpstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_errors_total",
				Help: "Total number of failed backend requests",
			},
			[]string{"error_type"},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_circuit_breaker_state",
				Help: "Circuit breaker state (0 = closed, 1 = half-open, 2 = open)",
			},
			[]string{"name"},
		),
	}
}

// ObserveRequest records a finished inbound request
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.RequestsTotal.WithLabelValues(method, route, statusStr).Inc()
	m.RequestDuration.WithLabelValues(method, route, statusStr).Observe(duration.Seconds())
}

// ObserveQuotaDecision records the outcome of a quota admission
func (m *Metrics) ObserveQuotaDecision(decision string) {
	if m == nil {
		return
	}
	m.QuotaDecisions.WithLabelValues(decision).Inc()
}

// ObserveQuotaConflict records a retried concurrent update
func (m *Metrics) ObserveQuotaConflict() {
	if m == nil {
		return
	}
	m.QuotaConflicts.Inc()
}

// ObserveStoreOperation records one quota store call
func (m *Metrics) ObserveStoreOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StoreOperationTotal.WithLabelValues(operation, result).Inc()
	m.StoreDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveUpstream records one backend round trip. A zero status means no
// response was received.
func (m *Metrics) ObserveUpstream(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusStr := "none"
	if status > 0 {
		statusStr = strconv.Itoa(status)
	}
	m.UpstreamRequestsTotal.WithLabelValues(method, statusStr).Inc()
	m.UpstreamRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveUpstreamError records a failed backend request
func (m *Metrics) ObserveUpstreamError(errorType string) {
	if m == nil {
		return
	}
	m.UpstreamErrors.WithLabelValues(errorType).Inc()
}

// SetCircuitBreakerState records the current breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
