package factory

import (
	"log/slog"
	"net/http"

	"judge0gw/internal/config"
	"judge0gw/internal/core"
	"judge0gw/internal/metrics"
	"judge0gw/internal/middleware"
	"judge0gw/internal/middleware/cors"
	metricsMiddleware "judge0gw/internal/middleware/metrics"
	"judge0gw/internal/middleware/recovery"
)

// CreateCoreMiddleware returns the chain applied to every proxied request.
// Recovery sits innermost so that a panic is logged and counted as a 500.
func CreateCoreMiddleware(logger *slog.Logger, m *metrics.Metrics, service string) core.Middleware {
	chain := []core.Middleware{middleware.Logging(logger)}
	if m != nil {
		chain = append(chain, metricsMiddleware.Middleware(m, metricsMiddleware.ServiceRoute(service)))
	}
	chain = append(chain, recovery.Default(logger))
	return middleware.Chain(chain...)
}

// CreateCORS returns the CORS wrapper, or nil when CORS is disabled
func CreateCORS(cfg config.CORS) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return nil
	}
	return cors.New(cors.FromConfig(cfg)).Handler
}
