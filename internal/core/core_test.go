package core_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"judge0gw/internal/core"
)

func TestNewRequest(t *testing.T) {
	headers := map[string][]string{
		"Content-Type": {"application/json"},
		"Cookie":       {"session=abc; theme=dark"},
	}
	req := core.NewRequest(context.Background(), "req-1", "POST", "/judge0/submissions", "submissions",
		"base64_encoded=false&wait=true", "10.0.0.1:5000", headers, io.NopCloser(strings.NewReader(`{}`)))

	if req.Target() != "submissions" {
		t.Errorf("Target() = %q", req.Target())
	}
	if req.URL() != "/judge0/submissions?base64_encoded=false&wait=true" {
		t.Errorf("URL() = %q", req.URL())
	}

	cookies := req.Cookies()
	if len(cookies) != 2 {
		t.Fatalf("Cookies() returned %d cookies, want 2", len(cookies))
	}
	if cookies[0].Name != "session" || cookies[0].Value != "abc" {
		t.Errorf("first cookie = %s=%s", cookies[0].Name, cookies[0].Value)
	}
}

func TestNewRequestDefaults(t *testing.T) {
	req := core.NewRequest(context.Background(), "req-2", "GET", "/judge0/about", "about", "", "", nil, nil)

	if req.Headers() == nil {
		t.Error("Headers() should not be nil")
	}
	body, err := io.ReadAll(req.Body())
	if err != nil || len(body) != 0 {
		t.Errorf("Body() = %q, %v; want empty", body, err)
	}
	if req.URL() != "/judge0/about" {
		t.Errorf("URL() = %q", req.URL())
	}
}

func TestNewResponse(t *testing.T) {
	resp := core.NewResponse(201, nil, []byte(`{"token":"t1"}`))

	if resp.StatusCode() != 201 {
		t.Errorf("StatusCode() = %d", resp.StatusCode())
	}
	if resp.Headers() == nil {
		t.Error("Headers() should not be nil")
	}

	// body can be read more than once
	for i := 0; i < 2; i++ {
		body, _ := io.ReadAll(resp.Body())
		if string(body) != `{"token":"t1"}` {
			t.Errorf("read %d: Body() = %q", i, body)
		}
	}
}

func TestNewTextResponse(t *testing.T) {
	resp := core.NewTextResponse(200, "API Gateway is running!")

	if ct := resp.Headers()["Content-Type"]; len(ct) != 1 || !strings.HasPrefix(ct[0], "text/plain") {
		t.Errorf("Content-Type = %v", ct)
	}
	body, _ := io.ReadAll(resp.Body())
	if string(body) != "API Gateway is running!" {
		t.Errorf("Body() = %q", body)
	}
}

func TestMiddlewareChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) core.Middleware {
		return func(next core.Handler) core.Handler {
			return func(ctx context.Context, req core.Request) (core.Response, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	var h core.Handler = func(ctx context.Context, req core.Request) (core.Response, error) {
		order = append(order, "handler")
		return core.NewResponse(200, nil, nil), nil
	}
	h = mw("inner")(h)
	h = mw("outer")(h)

	req := core.NewRequest(context.Background(), "id", "GET", "/", "", "", "", nil, nil)
	if _, err := h(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	want := "outer,inner,handler"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}
