// Package health serves the gateway's health, readiness and liveness checks.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check represents a health check function
type Check func(ctx context.Context) error

type registeredCheck struct {
	check    Check
	critical bool
}

// Checker manages health checks. A failing critical check makes the gateway
// unhealthy and not ready; other failures only degrade it.
type Checker struct {
	checks map[string]registeredCheck
	mu     sync.RWMutex
}

// NewChecker creates a new health checker
func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]registeredCheck),
	}
}

// RegisterCheck registers a critical health check
func (c *Checker) RegisterCheck(name string, check Check) {
	c.register(name, check, true)
}

// RegisterOptionalCheck registers a check whose failure only degrades health
func (c *Checker) RegisterOptionalCheck(name string, check Check) {
	c.register(name, check, false)
}

func (c *Checker) register(name string, check Check, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registeredCheck{check: check, critical: critical}
}

// Names returns the registered check names in order
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckHealth runs all health checks concurrently
func (c *Checker) CheckHealth(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	checks := make(map[string]registeredCheck, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var wg sync.WaitGroup
	var resultsMu sync.Mutex

	for name, rc := range checks {
		wg.Add(1)
		go func(name string, rc registeredCheck) {
			defer wg.Done()

			start := time.Now()
			err := rc.check(ctx)

			result := CheckResult{
				Status:   StatusHealthy,
				Critical: rc.critical,
				Duration: time.Since(start),
			}
			if err != nil {
				result.Status = StatusUnhealthy
				result.Error = err.Error()
			}

			resultsMu.Lock()
			results[name] = result
			resultsMu.Unlock()
		}(name, rc)
	}

	wg.Wait()
	return results
}

// Overall folds check results into one status
func Overall(results map[string]CheckResult) Status {
	status := StatusHealthy
	for _, result := range results {
		if result.Status != StatusUnhealthy {
			continue
		}
		if result.Critical {
			return StatusUnhealthy
		}
		status = StatusDegraded
	}
	return status
}

// CheckResult represents the result of a health check
type CheckResult struct {
	Status   Status        `json:"status"`
	Critical bool          `json:"critical"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Version   string                 `json:"version,omitempty"`
	ServiceID string                 `json:"service_id,omitempty"`
}

// Handler creates HTTP handlers for health endpoints
type Handler struct {
	checker   *Checker
	version   string
	serviceID string
}

// NewHandler creates a new health handler
func NewHandler(checker *Checker, version, serviceID string) *Handler {
	return &Handler{
		checker:   checker,
		version:   version,
		serviceID: serviceID,
	}
}

// Health handles the /health endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results := h.checker.CheckHealth(ctx)
	status := Overall(results)

	statusCode := http.StatusOK
	if status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    results,
		Version:   h.version,
		ServiceID: h.serviceID,
	})
}

// Ready handles the /ready endpoint. Only critical checks are considered.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	results := h.checker.CheckHealth(ctx)
	if Overall(results) != StatusUnhealthy {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status": "unavailable",
		"error":  firstCriticalError(results),
	})
}

func firstCriticalError(results map[string]CheckResult) string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if r := results[name]; r.Critical && r.Status == StatusUnhealthy {
			return name + ": " + r.Error
		}
	}
	return ""
}

// Live handles the /live endpoint
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
