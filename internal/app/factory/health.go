package factory

import (
	"net/http"
	"os"

	"judge0gw/internal/config"
	"judge0gw/internal/health"
)

// BackendHealthPath is requested by the backend health check
const BackendHealthPath = "/about"

// Health check names
const (
	CheckQuotaStore = "quota_store"
	CheckBackend    = "backend"
)

// CreateHealthChecker registers the quota store as a critical check and the
// backend as an optional one.
func CreateHealthChecker(store health.Pinger, client *http.Client, cfg config.Backend) *health.Checker {
	checker := health.NewChecker()
	checker.RegisterCheck(CheckQuotaStore, health.StoreCheck(store))
	if cfg.Host != "" {
		checker.RegisterOptionalCheck(CheckBackend, health.BackendCheck(client, cfg.Host, BackendHealthPath))
	}
	return checker
}

// CreateHealthHandler creates the health HTTP handler. The host name
// identifies the instance.
func CreateHealthHandler(checker *health.Checker, version string) *health.Handler {
	serviceID, err := os.Hostname()
	if err != nil {
		serviceID = "gateway"
	}
	return health.NewHandler(checker, version, serviceID)
}
