package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	httpAdapter "judge0gw/internal/adapter/http"
	"judge0gw/internal/app/factory"
	"judge0gw/internal/config"
	"judge0gw/internal/dispatch"
	"judge0gw/internal/quota"
	"judge0gw/internal/telemetry"
)

// DefaultVersion is reported by health endpoints and traces when no build
// version is injected
const DefaultVersion = "dev"

// Builder builds the gateway application
type Builder struct {
	config   *config.Config
	logger   *slog.Logger
	version  string
	registry *prometheus.Registry
}

// NewBuilder creates a new application builder
func NewBuilder(cfg *config.Config, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		config:  cfg,
		logger:  logger,
		version: DefaultVersion,
	}
}

// WithVersion sets the version reported by the gateway
func (b *Builder) WithVersion(version string) *Builder {
	if version != "" {
		b.version = version
	}
	return b
}

// WithRegistry registers metrics with registry instead of the default registerer
func (b *Builder) WithRegistry(registry *prometheus.Registry) *Builder {
	b.registry = registry
	return b
}

// Build constructs the gateway server. The quota store is connected here, so
// an unreachable store fails the build.
func (b *Builder) Build(ctx context.Context) (_ *Server, err error) {
	if b.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := b.config

	tel, err := telemetry.New(ctx, cfg.Tracing, b.version)
	if err != nil {
		return nil, fmt.Errorf("creating telemetry: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tel.Shutdown(context.Background())
		}
	}()

	gatewayMetrics, metricsHandler := factory.CreateMetrics(cfg.Metrics, b.registry)

	store, err := factory.CreateStore(ctx, cfg.Quota.Store, factory.CreateStoreClient(), b.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = store.Close()
		}
	}()

	policy := quota.NewPolicy(store,
		quota.WithDefaultLimit(cfg.Quota.DefaultLimit),
		quota.WithTimeout(cfg.Quota.Store.StoreTimeout()),
		quota.WithLogger(b.logger),
		quota.WithMetrics(gatewayMetrics),
		quota.WithTracer(tel.Tracer()),
	)

	httpClient := factory.CreateHTTPClient(cfg.Backend.HTTP)
	breaker := factory.CreateBreaker(cfg.Backend, b.logger, gatewayMetrics)
	forwarder := factory.CreateForwarder(httpClient, cfg.Backend, breaker, tel.Tracer(), b.logger, gatewayMetrics)

	dispatcher := dispatch.New(policy, forwarder, dispatch.Config{
		RateLimitedPrefix: cfg.Quota.Route,
	}, b.logger)

	handler := factory.CreateCoreMiddleware(b.logger, gatewayMetrics, cfg.Backend.Service)(dispatcher.Handle)

	adapterCfg, err := httpAdapter.NewConfig(cfg.Frontend.HTTP, cfg.Backend.Service, cfg.Metrics.Path)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP adapter: %w", err)
	}
	adapter := httpAdapter.New(adapterCfg, handler, b.logger)

	// Wrappers added first run outermost: spans cover preflight responses too.
	tel.WithRoute(telemetry.ServiceRoute(cfg.Backend.Service, "/ping", "/health", "/ready", "/live", cfg.Metrics.Path))
	adapter.Wrap(tel.WrapHTTP)
	if corsWrapper := factory.CreateCORS(cfg.CORS); corsWrapper != nil {
		adapter.Wrap(corsWrapper)
		b.logger.Info("CORS enabled", "origins", cfg.CORS.AllowedOrigins)
	}

	checker := factory.CreateHealthChecker(store, httpClient, cfg.Backend)
	adapter.WithHealthHandler(factory.CreateHealthHandler(checker, b.version))

	if metricsHandler != nil {
		adapter.WithMetricsHandler(metricsHandler)
		b.logger.Info("Metrics enabled", "path", cfg.Metrics.Path)
	}

	b.logger.Info("Gateway built",
		"backend", cfg.Backend.Host,
		"service", cfg.Backend.Service,
		"store", cfg.Quota.Store.Driver,
		"rate_limited_route", cfg.Quota.Route,
		"default_limit", cfg.Quota.DefaultLimit,
		"circuit_breaker", breaker != nil,
		"tracing", cfg.Tracing.Enabled,
	)

	return &Server{
		config:    cfg,
		adapter:   adapter,
		store:     store,
		telemetry: tel,
		logger:    b.logger,
	}, nil
}
