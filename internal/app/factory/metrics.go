package factory

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"judge0gw/internal/config"
	"judge0gw/internal/metrics"
)

// CreateMetrics returns the gateway metrics and their HTTP handler, or nils
// when metrics are disabled. A nil registry selects the default registry.
func CreateMetrics(cfg config.Metrics, registry *prometheus.Registry) (*metrics.Metrics, http.Handler) {
	if !cfg.Enabled {
		return nil, nil
	}
	if registry == nil {
		return metrics.New(), metrics.Handler()
	}
	return metrics.NewWithRegistry(registry), metrics.HandlerFor(registry)
}
