package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"judge0gw/internal/core"
)

// newRequest converts an inbound proxy request. The target is the escaped path
// below the service mount, exactly as the client sent it.
func newRequest(id string, r *http.Request) core.Request {
	if r.TLS != nil {
		r.Header.Set("X-Forwarded-Proto", "https")
	} else if r.Header.Get("X-Forwarded-Proto") == "" {
		r.Header.Set("X-Forwarded-Proto", "http")
	}

	headers := make(map[string][]string, len(r.Header))
	for k, v := range r.Header {
		headers[k] = v
	}

	return core.NewRequest(r.Context(), id, r.Method,
		r.URL.EscapedPath(),
		mux.Vars(r)["path"],
		r.URL.RawQuery,
		r.RemoteAddr,
		headers,
		r.Body,
	)
}
