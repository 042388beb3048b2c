// Package backend forwards admitted requests to the code execution service
// and relays its responses.
package backend

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"judge0gw/internal/core"
	"judge0gw/internal/metrics"
	"judge0gw/pkg/errors"
)

const (
	// DefaultName is used in error messages when no backend name is configured
	DefaultName = "Judge0"
	// DefaultTimeout bounds a single backend round trip
	DefaultTimeout = 30 * time.Second
)

// Outbound is a sanitized request ready to be sent to the backend
type Outbound struct {
	Method string
	// Path is appended to the backend host after a slash
	Path string
	// RawQuery is forwarded verbatim
	RawQuery string
	Headers  map[string][]string
	Cookies  []*http.Cookie
	Body     []byte
	// Synchronous responses are relayed with a fixed JSON content type and
	// no upstream headers
	Synchronous bool
}

// Config configures a Forwarder
type Config struct {
	// Name identifies the backend in error messages
	Name string
	// Host is the backend base URL, e.g. http://judge0:2358
	Host    string
	Timeout time.Duration
}

// Forwarder sends requests to the backend without following redirects
type Forwarder struct {
	client  *http.Client
	name    string
	host    string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures a Forwarder
type Option func(*Forwarder)

// WithBreaker guards backend calls with a circuit breaker
func WithBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(f *Forwarder) {
		f.breaker = cb
	}
}

// WithMetrics enables upstream metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Forwarder) {
		f.metrics = m
	}
}

// WithLogger sets the forwarder logger
func WithLogger(logger *slog.Logger) Option {
	return func(f *Forwarder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithTracer sets the tracer used for client spans
func WithTracer(tracer trace.Tracer) Option {
	return func(f *Forwarder) {
		if tracer != nil {
			f.tracer = tracer
		}
	}
}

// NewForwarder creates a forwarder. The client is copied so that redirect
// handling can be disabled without touching the caller's client.
func NewForwarder(client *http.Client, cfg Config, opts ...Option) *Forwarder {
	if client == nil {
		client = &http.Client{}
	}
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	f := &Forwarder{
		client:  &c,
		name:    cfg.Name,
		host:    strings.TrimRight(cfg.Host, "/"),
		timeout: cfg.Timeout,
		logger:  slog.Default(),
		tracer:  noop.NewTracerProvider().Tracer("backend"),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "forwarder", "backend", f.name)
	return f
}

// Name returns the configured backend name
func (f *Forwarder) Name() string {
	return f.name
}

// URL builds the backend URL for path and rawQuery
func (f *Forwarder) URL(path, rawQuery string) string {
	target := f.host + "/" + strings.TrimLeft(path, "/")
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

// upstreamResponse is the fully read backend response
type upstreamResponse struct {
	status  int
	headers http.Header
	body    []byte
}

// Forward sends out to the backend and returns the relayed response.
// Failures reaching the backend are ErrorTypeUpstreamUnavailable errors;
// anything else is ErrorTypeInternal.
func (f *Forwarder) Forward(ctx context.Context, out Outbound) (core.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	target := f.URL(out.Path, out.RawQuery)
	httpReq, err := http.NewRequestWithContext(ctx, out.Method, target, bytes.NewReader(out.Body))
	if err != nil {
		f.metrics.ObserveUpstreamError("request")
		return nil, errors.Newf(errors.ErrorTypeInternal, "Internal server error: %v", err).WithCause(err)
	}

	copyRequestHeaders(httpReq.Header, out.Headers)
	for _, c := range out.Cookies {
		httpReq.AddCookie(c)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	ctx, span := f.tracer.Start(ctx, fmt.Sprintf("HTTP %s %s", out.Method, httpReq.URL.Host),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", out.Method),
			attribute.String("url.full", target),
		),
	)
	defer span.End()
	httpReq = httpReq.WithContext(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	upstream, err := f.execute(httpReq)
	duration := time.Since(start)

	if err != nil {
		f.metrics.ObserveUpstream(out.Method, 0, duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, f.upstreamError(err)
	}

	f.metrics.ObserveUpstream(out.Method, upstream.status, duration)
	span.SetAttributes(attribute.Int("http.response.status_code", upstream.status))
	f.logger.Debug("backend responded",
		"method", out.Method,
		"path", out.Path,
		"status", upstream.status,
		"duration", duration,
	)

	if out.Synchronous {
		return core.NewResponse(upstream.status, map[string][]string{
			"Content-Type": {"application/json"},
		}, upstream.body), nil
	}
	return core.NewResponse(upstream.status, filterResponseHeaders(upstream.headers), upstream.body), nil
}

func (f *Forwarder) execute(req *http.Request) (*upstreamResponse, error) {
	roundTrip := func() (interface{}, error) {
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response body: %w", err)
		}
		return &upstreamResponse{status: resp.StatusCode, headers: resp.Header, body: body}, nil
	}

	if f.breaker == nil {
		result, err := roundTrip()
		if err != nil {
			return nil, err
		}
		return result.(*upstreamResponse), nil
	}

	result, err := f.breaker.Execute(roundTrip)
	if err != nil {
		return nil, err
	}
	return result.(*upstreamResponse), nil
}

func (f *Forwarder) upstreamError(err error) error {
	errorType := "transport"
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		errorType = "circuit_open"
	} else if stderrors.Is(err, context.DeadlineExceeded) {
		errorType = "timeout"
	}
	f.metrics.ObserveUpstreamError(errorType)
	f.logger.Error("proxy error", "error", err, "error_type", errorType)

	return errors.Newf(errors.ErrorTypeUpstreamUnavailable, "Error connecting to %s: %v", f.name, err).
		WithCause(err).
		WithDetail("error_type", errorType)
}

// requestSkipHeaders are recomputed by the transport or handled separately
var requestSkipHeaders = map[string]bool{
	"Host":                true,
	"Content-Length":      true,
	"Accept-Encoding":     true,
	"Cookie":              true,
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

func copyRequestHeaders(dst http.Header, src map[string][]string) {
	for key, values := range src {
		if requestSkipHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// ExcludedResponseHeaders are never relayed to the caller
var ExcludedResponseHeaders = []string{
	"Content-Encoding",
	"Content-Length",
	"Transfer-Encoding",
	"Connection",
}

func filterResponseHeaders(src http.Header) map[string][]string {
	headers := make(map[string][]string, len(src))
	for key, values := range src {
		if isExcludedResponseHeader(key) {
			continue
		}
		headers[key] = append([]string(nil), values...)
	}
	return headers
}

func isExcludedResponseHeader(key string) bool {
	for _, h := range ExcludedResponseHeaders {
		if strings.EqualFold(h, key) {
			return true
		}
	}
	return false
}
