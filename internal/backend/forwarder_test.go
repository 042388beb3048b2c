package backend

import (
	"compress/gzip"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"

	"judge0gw/internal/metrics"
	"judge0gw/pkg/errors"
)

func readBody(t *testing.T, body io.ReadCloser) string {
	t.Helper()
	defer body.Close()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return string(b)
}

// unreachableHost returns a URL nothing listens on
func unreachableHost(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()
	return "http://" + addr
}

func TestForwarder_Forward(t *testing.T) {
	var got *http.Request
	var gotBody string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)

		w.Header().Set("X-Judge0-Version", "1.13.1")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"token":"abc"}`))
	}))
	defer backend.Close()

	f := NewForwarder(backend.Client(), Config{Host: backend.URL + "/"})

	resp, err := f.Forward(context.Background(), Outbound{
		Method:   http.MethodPost,
		Path:     "submissions",
		RawQuery: "base64_encoded=false&fields=stdout,stderr",
		Headers: map[string][]string{
			"X-Auth-Token":    {"secret"},
			"Host":            {"gateway.local"},
			"Content-Length":  {"999"},
			"Accept-Encoding": {"br"},
			"Cookie":          {"ignored=1"},
		},
		Cookies: []*http.Cookie{{Name: "session", Value: "s1"}},
		Body:    []byte(`{"source_code":"print(1)","language_id":71}`),
	})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	if got.URL.Path != "/submissions" {
		t.Errorf("path = %q, want /submissions", got.URL.Path)
	}
	if got.URL.RawQuery != "base64_encoded=false&fields=stdout,stderr" {
		t.Errorf("query = %q", got.URL.RawQuery)
	}
	if got.Header.Get("X-Auth-Token") != "secret" {
		t.Error("X-Auth-Token not forwarded")
	}
	if got.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", got.Header.Get("Content-Type"))
	}
	if got.Host == "gateway.local" {
		t.Error("inbound Host header should not be forwarded")
	}
	if c, err := got.Cookie("session"); err != nil || c.Value != "s1" {
		t.Errorf("session cookie = %v, %v", c, err)
	}
	if _, err := got.Cookie("ignored"); err == nil {
		t.Error("raw Cookie header should be replaced by parsed cookies")
	}
	if gotBody != `{"source_code":"print(1)","language_id":71}` {
		t.Errorf("body = %q", gotBody)
	}

	if resp.StatusCode() != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode())
	}
	headers := http.Header(resp.Headers())
	if headers.Get("X-Judge0-Version") != "1.13.1" {
		t.Error("backend header not relayed")
	}
	for _, h := range ExcludedResponseHeaders {
		if _, ok := resp.Headers()[h]; ok {
			t.Errorf("excluded header %s relayed", h)
		}
	}
	if body := readBody(t, resp.Body()); body != `{"token":"abc"}` {
		t.Errorf("body = %q", body)
	}
}

func TestForwarder_Synchronous(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("X-Extra", "1")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"stdout":"1\n","status":{"id":3}}`))
	}))
	defer backend.Close()

	f := NewForwarder(backend.Client(), Config{Host: backend.URL})
	resp, err := f.Forward(context.Background(), Outbound{
		Method:      http.MethodPost,
		Path:        "submissions",
		RawQuery:    "wait=true",
		Body:        []byte(`{}`),
		Synchronous: true,
	})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	if resp.StatusCode() != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode())
	}
	if len(resp.Headers()) != 1 {
		t.Errorf("headers = %v, want only Content-Type", resp.Headers())
	}
	if ct := resp.Headers()["Content-Type"]; len(ct) != 1 || ct[0] != "application/json" {
		t.Errorf("Content-Type = %v", ct)
	}
	if body := readBody(t, resp.Body()); body != `{"stdout":"1\n","status":{"id":3}}` {
		t.Errorf("body = %q", body)
	}
}

func TestForwarder_DoesNotFollowRedirects(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/elsewhere" {
			t.Error("redirect was followed")
		}
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer backend.Close()

	f := NewForwarder(backend.Client(), Config{Host: backend.URL})
	resp, err := f.Forward(context.Background(), Outbound{Method: http.MethodGet, Path: "languages"})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if resp.StatusCode() != http.StatusFound {
		t.Errorf("status = %d, want 302", resp.StatusCode())
	}
	if loc := http.Header(resp.Headers()).Get("Location"); loc != "/elsewhere" {
		t.Errorf("Location = %q", loc)
	}
}

func TestForwarder_DecompressesBody(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte(`[{"id":71,"name":"Python"}]`))
		gz.Close()
	}))
	defer backend.Close()

	f := NewForwarder(backend.Client(), Config{Host: backend.URL})
	resp, err := f.Forward(context.Background(), Outbound{
		Method:  http.MethodGet,
		Path:    "languages",
		Headers: map[string][]string{"Accept-Encoding": {"gzip"}},
	})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if _, ok := resp.Headers()["Content-Encoding"]; ok {
		t.Error("Content-Encoding relayed")
	}
	if body := readBody(t, resp.Body()); body != `[{"id":71,"name":"Python"}]` {
		t.Errorf("body = %q", body)
	}
}

func TestForwarder_UpstreamErrorStatusRelayed(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"language_id":["can't be blank"]}`))
	}))
	defer backend.Close()

	f := NewForwarder(backend.Client(), Config{Host: backend.URL})
	resp, err := f.Forward(context.Background(), Outbound{Method: http.MethodPost, Path: "submissions", Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if resp.StatusCode() != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode())
	}
}

func TestForwarder_Unreachable(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	f := NewForwarder(nil, Config{Host: unreachableHost(t)}, WithMetrics(m))

	_, err := f.Forward(context.Background(), Outbound{Method: http.MethodPost, Path: "submissions"})
	if err == nil {
		t.Fatal("Forward() should fail")
	}

	var gwErr *errors.Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("error type = %T, want *errors.Error", err)
	}
	if gwErr.HTTPStatusCode() != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", gwErr.HTTPStatusCode())
	}
	if !strings.HasPrefix(gwErr.Message, "Error connecting to Judge0: ") {
		t.Errorf("message = %q", gwErr.Message)
	}
	if got := testutil.ToFloat64(m.UpstreamErrors.WithLabelValues("transport")); got != 1 {
		t.Errorf("transport errors = %v, want 1", got)
	}
}

func TestForwarder_Timeout(t *testing.T) {
	release := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer backend.Close()
	defer close(release)

	f := NewForwarder(backend.Client(), Config{Name: "sandbox", Host: backend.URL, Timeout: 20 * time.Millisecond})
	_, err := f.Forward(context.Background(), Outbound{Method: http.MethodGet, Path: "about"})
	if !errors.IsType(err, errors.ErrorTypeUpstreamUnavailable) {
		t.Fatalf("Forward() error = %v, want upstream unavailable", err)
	}
	if !strings.Contains(err.Error(), "Error connecting to sandbox") {
		t.Errorf("error = %q, want backend name", err.Error())
	}
}

func TestForwarder_InvalidMethod(t *testing.T) {
	f := NewForwarder(nil, Config{Host: "http://judge0"})
	_, err := f.Forward(context.Background(), Outbound{Method: "BAD METHOD", Path: "x"})
	if !errors.IsType(err, errors.ErrorTypeInternal) {
		t.Fatalf("Forward() error = %v, want internal", err)
	}
}

func TestForwarder_CircuitBreaker(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	cb := NewBreaker("judge0", BreakerConfig{FailureThreshold: 2, Timeout: time.Minute}, nil, m)
	f := NewForwarder(nil, Config{Host: unreachableHost(t)}, WithBreaker(cb), WithMetrics(m))

	for i := 0; i < 2; i++ {
		f.Forward(context.Background(), Outbound{Method: http.MethodGet, Path: "about"})
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", cb.State())
	}

	_, err := f.Forward(context.Background(), Outbound{Method: http.MethodGet, Path: "about"})
	if !errors.IsType(err, errors.ErrorTypeUpstreamUnavailable) {
		t.Fatalf("Forward() error = %v, want upstream unavailable", err)
	}
	if got := testutil.ToFloat64(m.UpstreamErrors.WithLabelValues("circuit_open")); got != 1 {
		t.Errorf("circuit_open errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("judge0")); got != float64(gobreaker.StateOpen) {
		t.Errorf("breaker gauge = %v, want %d", got, gobreaker.StateOpen)
	}
}

func TestForwarder_CallerCancelDoesNotTripBreaker(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cb := NewBreaker("judge0", BreakerConfig{FailureThreshold: 1, Timeout: time.Minute}, nil, nil)
	f := NewForwarder(srv.Client(), Config{Host: srv.URL, Timeout: 5 * time.Second}, WithBreaker(cb))

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(5 * time.Millisecond)
			cancel()
		}()
		f.Forward(ctx, Outbound{Method: http.MethodPost, Path: "submissions"})
		cancel()
	}

	if cb.State() != gobreaker.StateClosed {
		t.Fatalf("breaker state = %v, want closed", cb.State())
	}
	if got := cb.Counts().TotalFailures; got != 0 {
		t.Errorf("breaker failures = %d, want 0", got)
	}
}

func TestForwarder_URL(t *testing.T) {
	f := NewForwarder(nil, Config{Host: "http://judge0:2358/"})

	tests := []struct {
		path, query, want string
	}{
		{"submissions", "", "http://judge0:2358/submissions"},
		{"submissions/abc", "fields=*", "http://judge0:2358/submissions/abc?fields=*"},
		{"/languages", "", "http://judge0:2358/languages"},
	}
	for _, tt := range tests {
		if got := f.URL(tt.path, tt.query); got != tt.want {
			t.Errorf("URL(%q, %q) = %q, want %q", tt.path, tt.query, got, tt.want)
		}
	}
}
