package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Pinger is implemented by the quota stores
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreCheck reports whether the quota store answers
func StoreCheck(store Pinger) Check {
	return func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("quota store: %w", err)
		}
		return nil
	}
}

// BackendCheck checks the backend with a GET on host + path. Any response
// below 500 counts as reachable.
func BackendCheck(client *http.Client, host, path string) Check {
	if client == nil {
		client = http.DefaultClient
	}
	url := strings.TrimRight(host, "/") + "/" + strings.TrimLeft(path, "/")
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
		}
		return nil
	}
}
