// Package metrics records Prometheus request metrics for proxied requests.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"judge0gw/internal/core"
	"judge0gw/internal/metrics"
	gwerrors "judge0gw/pkg/errors"
)

// RouteFunc maps a request to a low-cardinality route label
type RouteFunc func(core.Request) string

// ServiceRoute labels requests by service and first target segment, e.g.
// "/judge0/submissions" for both /judge0/submissions and /judge0/submissions/abc.
func ServiceRoute(service string) RouteFunc {
	prefix := "/" + strings.Trim(service, "/") + "/"
	return func(req core.Request) string {
		segment, _, _ := strings.Cut(req.Target(), "/")
		return prefix + segment
	}
}

// Middleware creates metrics collection middleware
func Middleware(m *metrics.Metrics, route RouteFunc) core.Middleware {
	if route == nil {
		route = func(req core.Request) string { return req.Path() }
	}
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, req core.Request) (core.Response, error) {
			if m == nil {
				return next(ctx, req)
			}

			method := req.Method()
			label := route(req)

			m.ActiveRequests.WithLabelValues(method, label).Inc()
			defer m.ActiveRequests.WithLabelValues(method, label).Dec()

			if size := contentLength(req.Headers()); size > 0 {
				m.RequestSize.WithLabelValues(method, label).Observe(float64(size))
			}

			start := time.Now()
			resp, err := next(ctx, req)
			m.ObserveRequest(method, label, statusOf(resp, err), time.Since(start))

			return resp, err
		}
	}
}

func statusOf(resp core.Response, err error) int {
	if err != nil {
		var gwErr *gwerrors.Error
		if errors.As(err, &gwErr) {
			return gwErr.HTTPStatusCode()
		}
		return http.StatusInternalServerError
	}
	if resp == nil {
		return http.StatusOK
	}
	return resp.StatusCode()
}

func contentLength(headers map[string][]string) int64 {
	values := http.Header(headers).Values("Content-Length")
	if len(values) == 0 {
		return 0
	}
	n, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
