// Package http is the gateway's HTTP frontend: it routes inbound requests,
// converts them for the core handler and renders responses and errors.
package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/mux"

	"judge0gw/internal/core"
	gwerrors "judge0gw/pkg/errors"
	"judge0gw/pkg/requestid"
)

// PingMessage is the body of GET /ping
const PingMessage = "API Gateway is running!"

const (
	notFoundException         = "404 Not Found: The requested URL was not found on the server. If you entered the URL manually please check your spelling and try again."
	methodNotAllowedException = "405 Method Not Allowed: The method is not allowed for the requested URL."
)

// Adapter handles HTTP requests
type Adapter struct {
	config         Config
	handler        core.Handler
	healthHandler  HealthHandler
	metricsHandler http.Handler
	wrappers       []func(http.Handler) http.Handler

	buildOnce sync.Once
	root      http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener

	reqNum atomic.Uint64
	logger *slog.Logger
}

// HealthHandler handles health check requests
type HealthHandler interface {
	Health(w http.ResponseWriter, r *http.Request)
	Ready(w http.ResponseWriter, r *http.Request)
	Live(w http.ResponseWriter, r *http.Request)
}

// New creates a new HTTP adapter
func New(cfg Config, handler core.Handler, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Service == "" {
		cfg.Service = "judge0"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	return &Adapter{
		config:  cfg,
		handler: handler,
		logger:  logger.With("component", "http"),
	}
}

// WithHealthHandler sets the health handler
func (a *Adapter) WithHealthHandler(handler HealthHandler) *Adapter {
	a.healthHandler = handler
	return a
}

// WithMetricsHandler sets the metrics handler
func (a *Adapter) WithMetricsHandler(handler http.Handler) *Adapter {
	a.metricsHandler = handler
	return a
}

// Wrap adds http-level middleware such as CORS or tracing. The first wrapper
// added sees the request first.
func (a *Adapter) Wrap(wrapper func(http.Handler) http.Handler) *Adapter {
	a.wrappers = append(a.wrappers, wrapper)
	return a
}

// Handler returns the fully wrapped root handler
func (a *Adapter) Handler() http.Handler {
	a.buildOnce.Do(func() {
		var h http.Handler = a.withRequestID(a.router())
		for i := len(a.wrappers) - 1; i >= 0; i-- {
			h = a.wrappers[i](h)
		}
		a.root = h
	})
	return a.root
}

func (a *Adapter) router() *mux.Router {
	r := mux.NewRouter().UseEncodedPath()

	r.HandleFunc("/ping", a.ping).Methods(http.MethodGet, http.MethodHead)

	if a.healthHandler != nil {
		r.HandleFunc("/health", a.healthHandler.Health).Methods(http.MethodGet)
		r.HandleFunc("/ready", a.healthHandler.Ready).Methods(http.MethodGet)
		r.HandleFunc("/live", a.healthHandler.Live).Methods(http.MethodGet)
	}

	if a.metricsHandler != nil {
		r.Handle(a.config.MetricsPath, a.metricsHandler).Methods(http.MethodGet)
	}

	r.HandleFunc("/"+a.config.Service+"/{path:.+}", a.serveProxy).
		Methods(http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(a.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(a.methodNotAllowed)
	return r
}

// withRequestID resolves the request ID, stores it in the context and echoes it
func (a *Adapter) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.reqNum.Add(1)

		id := requestid.Resolve(r.Header.Get(requestid.Header))
		r.Header.Set(requestid.Header, id)
		w.Header().Set(requestid.Header, id)

		next.ServeHTTP(w, r.WithContext(requestid.WithContext(r.Context(), id)))
	})
}

// Start starts the HTTP server
func (a *Adapter) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.config.Host, a.config.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:      a.Handler(),
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		TLSConfig:    a.config.TLSConfig,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	if a.config.TLSConfig != nil {
		a.logger.Info("starting TLS server", "addr", listener.Addr().String())
		listener = tls.NewListener(listener, a.config.TLSConfig)
	} else {
		a.logger.Info("starting server", "addr", listener.Addr().String())
	}

	a.mu.Lock()
	a.server = server
	a.listener = listener
	a.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address once started
func (a *Adapter) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Stop gracefully stops the server, waiting for in-flight requests
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	server := a.server
	a.mu.Unlock()
	if server == nil {
		return nil
	}

	a.logger.Info("stopping server", "requests", a.reqNum.Load())
	return server.Shutdown(ctx)
}

func (a *Adapter) ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, PingMessage)
}

// serveProxy hands a /<service>/<path> request to the core handler
func (a *Adapter) serveProxy(w http.ResponseWriter, r *http.Request) {
	reqID := requestid.FromContext(r.Context())

	if a.config.MaxRequestSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxRequestSize)
	}

	req := newRequest(reqID, r)

	resp, err := a.handler(r.Context(), req)
	if err != nil {
		a.handleError(w, err)
		return
	}

	for k, values := range resp.Headers() {
		w.Header().Del(k)
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode())

	if body := resp.Body(); body != nil {
		defer body.Close()
		if _, err := io.Copy(w, body); err != nil {
			// headers are already sent
			a.logger.Error("failed to copy response body",
				"error", err,
				"request_id", reqID,
				"path", req.Path())
		}
	}
}

func (a *Adapter) notFound(w http.ResponseWriter, r *http.Request) {
	a.handleError(w, gwerrors.NewError(gwerrors.ErrorTypeNotFound, "Not found").
		WithException(notFoundException))
}

func (a *Adapter) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	a.handleError(w, gwerrors.NewError(gwerrors.ErrorTypeMethodNotAllowed, "Method not allowed").
		WithException(methodNotAllowedException))
}

// handleError renders err as {"error": ..., "exception": ...}. Errors without a
// type are reported as internal errors carrying their text.
func (a *Adapter) handleError(w http.ResponseWriter, err error) {
	var gwErr *gwerrors.Error
	if !errors.As(err, &gwErr) {
		gwErr = gwerrors.Newf(gwerrors.ErrorTypeInternal, "Internal server error: %v", err).WithCause(err)
	}
	writeJSON(w, gwErr.HTTPStatusCode(), gwErr.Body())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
