package factory

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/trace"

	"judge0gw/internal/backend"
	"judge0gw/internal/config"
	"judge0gw/internal/metrics"
)

// CreateHTTPClient creates a pooled HTTP client from configuration
func CreateHTTPClient(cfg config.HTTPBackend) *http.Client {
	dialer := &net.Dialer{
		Timeout: time.Duration(cfg.DialTimeout) * time.Second,
	}

	if cfg.KeepAlive {
		dialer.KeepAlive = time.Duration(cfg.KeepAliveTimeout) * time.Second
	} else {
		dialer.KeepAlive = -1
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       time.Duration(cfg.IdleConnTimeout) * time.Second,
		ResponseHeaderTimeout: time.Duration(cfg.ResponseHeaderTimeout) * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	// Per-request deadlines come from the context.
	return &http.Client{Transport: transport}
}

// CreateBreaker returns the backend circuit breaker, or nil when disabled
func CreateBreaker(cfg config.Backend, logger *slog.Logger, m *metrics.Metrics) *gobreaker.CircuitBreaker {
	if !cfg.CircuitBreaker.Enabled {
		return nil
	}
	cb := cfg.CircuitBreaker
	return backend.NewBreaker(cfg.Name, backend.BreakerConfig{
		FailureThreshold: uint32(max(cb.FailureThreshold, 0)),
		MaxRequests:      uint32(max(cb.MaxRequests, 0)),
		Interval:         time.Duration(cb.Interval) * time.Second,
		Timeout:          time.Duration(cb.Timeout) * time.Second,
	}, logger, m)
}

// CreateForwarder creates the backend forwarder
func CreateForwarder(
	client *http.Client,
	cfg config.Backend,
	breaker *gobreaker.CircuitBreaker,
	tracer trace.Tracer,
	logger *slog.Logger,
	m *metrics.Metrics,
) *backend.Forwarder {
	opts := []backend.Option{
		backend.WithLogger(logger),
		backend.WithMetrics(m),
		backend.WithTracer(tracer),
	}
	if breaker != nil {
		opts = append(opts, backend.WithBreaker(breaker))
	}

	return backend.NewForwarder(client, backend.Config{
		Name:    cfg.Name,
		Host:    cfg.Host,
		Timeout: cfg.BackendTimeout(),
	}, opts...)
}
