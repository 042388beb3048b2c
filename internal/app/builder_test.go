package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"judge0gw/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeJudge0 records what reaches the backend
type fakeJudge0 struct {
	mu       sync.Mutex
	requests []recordedRequest
}

type recordedRequest struct {
	method string
	path   string
	query  string
	body   string
}

func (f *fakeJudge0) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.RawQuery,
		body:   string(body),
	})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodPost {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"token":"d85cd024-1548-4165-96c7-7bc88673f194"}`)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, `[{"id":71,"name":"Python (3.8.1)"}]`)
}

func (f *fakeJudge0) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func testConfig(backendURL string) *config.Config {
	cfg := &config.Config{
		Backend: config.Backend{Host: backendURL},
		Quota: config.Quota{
			DefaultLimit: 2,
			Store:        config.Store{Driver: config.DriverMemory},
		},
		CORS:    config.CORS{Enabled: true, AllowedOrigins: []string{"*"}},
		Metrics: config.Metrics{Enabled: true},
	}
	cfg.ApplyDefaults()
	cfg.Frontend.HTTP.Host = "127.0.0.1"
	cfg.Frontend.HTTP.Port = 0
	return cfg
}

func buildServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	server, err := NewBuilder(cfg, discardLogger()).
		WithRegistry(prometheus.NewRegistry()).
		Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() {
		_ = server.Stop(context.Background())
	})
	return server
}

func TestNewBuilder(t *testing.T) {
	cfg := testConfig("http://judge0:2358")
	logger := discardLogger()

	builder := NewBuilder(cfg, logger)

	if builder.config != cfg {
		t.Error("Config not set correctly")
	}
	if builder.logger != logger {
		t.Error("Logger not set correctly")
	}
	if builder.version != DefaultVersion {
		t.Errorf("Expected version %q, got %q", DefaultVersion, builder.version)
	}

	builder.WithVersion("1.4.0").WithVersion("")
	if builder.version != "1.4.0" {
		t.Errorf("Expected version 1.4.0, got %q", builder.version)
	}
}

func TestBuilder_BuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		config  func() *config.Config
		wantErr string
	}{
		{
			name:    "nil config",
			config:  func() *config.Config { return nil },
			wantErr: "config is required",
		},
		{
			name: "unknown store driver",
			config: func() *config.Config {
				cfg := testConfig("http://judge0:2358")
				cfg.Quota.Store.Driver = "dynamodb"
				return cfg
			},
			wantErr: "unknown quota store driver",
		},
		{
			name: "unreachable redis",
			config: func() *config.Config {
				cfg := testConfig("http://judge0:2358")
				cfg.Quota.Store = config.Store{Driver: config.DriverRedis, URL: "redis://127.0.0.1:1", Timeout: 1}
				return cfg
			},
			wantErr: "creating redis store",
		},
		{
			name: "missing TLS certificate",
			config: func() *config.Config {
				cfg := testConfig("http://judge0:2358")
				cfg.Frontend.HTTP.TLS = &config.TLS{
					Enabled:  true,
					CertFile: "/nonexistent/cert.pem",
					KeyFile:  "/nonexistent/key.pem",
				}
				return cfg
			},
			wantErr: "creating HTTP adapter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(tt.config(), discardLogger()).
				WithRegistry(prometheus.NewRegistry()).
				Build(context.Background())
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBuilder_QuotaFlow(t *testing.T) {
	judge0 := &fakeJudge0{}
	upstream := httptest.NewServer(judge0)
	defer upstream.Close()

	server := buildServer(t, testConfig(upstream.URL))
	gateway := httptest.NewServer(server.Handler())
	defer gateway.Close()

	submit := func(body string) (*http.Response, string) {
		t.Helper()
		resp, err := http.Post(gateway.URL+"/judge0/submissions?base64_encoded=false", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST failed: %v", err)
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return resp, string(data)
	}

	submission := `{"source_code":"print(1)","language_id":71,"userId":"user-1"}`
	for i := 0; i < 2; i++ {
		resp, body := submit(submission)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("submission %d: expected 201, got %d: %s", i+1, resp.StatusCode, body)
		}
		if !strings.Contains(body, "token") {
			t.Errorf("submission %d: expected backend body, got %s", i+1, body)
		}
	}

	resp, body := submit(submission)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 after the limit, got %d", resp.StatusCode)
	}
	want := `{"error":"Daily limit of 2 submissions exceeded. Try again later."}`
	if strings.TrimSpace(body) != want {
		t.Errorf("Expected %s, got %s", want, body)
	}

	resp, body = submit(`{"source_code":"print(1)"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without userId, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Invalid JSON body") {
		t.Errorf("Expected invalid body error, got %s", body)
	}

	// Other paths are not counted.
	req, _ := http.NewRequest(http.MethodGet, gateway.URL+"/judge0/languages", strings.NewReader(`{"userId":"user-1"}`))
	req.Header.Set("Content-Type", "application/json")
	langResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	langResp.Body.Close()
	if langResp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for languages, got %d", langResp.StatusCode)
	}

	recorded := judge0.recorded()
	if len(recorded) != 3 {
		t.Fatalf("Expected 3 forwarded requests, got %d", len(recorded))
	}
	for _, r := range recorded {
		if strings.Contains(r.body, "userId") {
			t.Errorf("userId forwarded to backend: %s", r.body)
		}
	}
	if recorded[0].path != "/submissions" || recorded[0].query != "base64_encoded=false" {
		t.Errorf("Unexpected forwarded target %s?%s", recorded[0].path, recorded[0].query)
	}
	if recorded[2].path != "/languages" {
		t.Errorf("Expected /languages, got %s", recorded[2].path)
	}
}

func TestBuilder_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	upstream := httptest.NewServer(&fakeJudge0{})
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	cfg.Quota.Store = config.Store{
		Driver:  config.DriverRedis,
		URL:     "redis://" + mr.Addr(),
		Table:   "judge0tokens",
		Timeout: 1,
	}

	server := buildServer(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/judge0/submissions", strings.NewReader(`{"userId":"user-7","source_code":"x"}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := mr.HGet("judge0tokens:user-7", "usage"); got != "1" {
		t.Errorf("Expected usage 1, got %q", got)
	}
	if got := mr.HGet("judge0tokens:user-7", "limit"); got != "2" {
		t.Errorf("Expected limit 2, got %q", got)
	}
}

func TestBuilder_Endpoints(t *testing.T) {
	upstream := httptest.NewServer(&fakeJudge0{})
	defer upstream.Close()

	server := buildServer(t, testConfig(upstream.URL))
	handler := server.Handler()

	t.Run("ping", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "API Gateway is running!" {
			t.Errorf("Unexpected ping response %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("ready", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("request id echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/judge0/submissions", strings.NewReader(`{"userId":"user-9"}`))
		req.Header.Set("X-Request-ID", "trace-abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Request-ID"); got != "trace-abc" {
			t.Errorf("Expected request id trace-abc, got %q", got)
		}
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/judge0/submissions", nil)
		req.Header.Set("Origin", "https://ide.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", rec.Code)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") == "" {
			t.Error("Expected Access-Control-Allow-Origin")
		}
	})

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "gateway_http_requests_total") {
			t.Error("Expected request counter in metrics output")
		}
	})
}
