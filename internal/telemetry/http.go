package telemetry

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// statusRecorder captures the status code written by the wrapped handler
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RouteFunc maps a request to a low-cardinality route for span names
type RouteFunc func(r *http.Request) string

// ServiceRoute collapses every path under /<service>/ to "/<service>/{path}".
// Paths listed in fixed keep their own name and anything else is "unmatched".
func ServiceRoute(service string, fixed ...string) RouteFunc {
	prefix := "/" + strings.Trim(service, "/") + "/"
	pattern := prefix + "{path}"
	known := make(map[string]struct{}, len(fixed))
	for _, p := range fixed {
		if p != "" {
			known[p] = struct{}{}
		}
	}
	return func(r *http.Request) string {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return pattern
		}
		if _, ok := known[r.URL.Path]; ok {
			return r.URL.Path
		}
		return "unmatched"
	}
}

// WithRoute sets the route used to name server spans. Without one, spans
// are named by method alone.
func (t *Telemetry) WithRoute(route RouteFunc) *Telemetry {
	t.route = route
	return t
}

// WrapHTTP starts a server span for every request, continuing any trace
// context sent by the client
func (t *Telemetry) WrapHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := t.propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		name := r.Method
		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
			attribute.String("server.address", r.Host),
			attribute.String("client.address", r.RemoteAddr),
			attribute.String("user_agent.original", r.UserAgent()),
		}
		if t.route != nil {
			route := t.route(r)
			name += " " + route
			attrs = append(attrs, attribute.String("http.route", route))
		}

		ctx, span := t.tracer.Start(ctx, name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		EndHTTPServerSpan(span, rec.statusCode)
	})
}

// EndHTTPServerSpan records the response status on span. Only 5xx responses
// mark a server span as failed.
func EndHTTPServerSpan(span trace.Span, statusCode int) {
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(attribute.Int("http.response.status_code", statusCode))
	if statusCode >= 500 {
		span.SetStatus(codes.Error, http.StatusText(statusCode))
	}
}
