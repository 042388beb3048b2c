// Package postgrest keeps quota records in a Supabase table through its
// PostgREST endpoint. Conditional writes are expressed as filtered PATCH and
// conflict-ignoring POST requests, so the row count returned by the server
// tells whether the write happened.
package postgrest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"judge0gw/internal/quota"
)

// DefaultTable is the table holding one row per user
const DefaultTable = "judge0tokens"

const restPath = "/rest/v1/"

// maxResponseBody bounds how much of a response is read
const maxResponseBody = 1 << 20

// Store implements quota.Store against a PostgREST endpoint
type Store struct {
	client  *http.Client
	baseURL string
	key     string
	table   string
}

// New creates a store for the project at baseURL authenticated with key
func New(client *http.Client, baseURL, key, table string) (*Store, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if table == "" {
		table = DefaultTable
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid supabase url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid supabase url %q: scheme must be http or https", baseURL)
	}
	if key == "" {
		return nil, fmt.Errorf("supabase key is required")
	}

	return &Store{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		table:   table,
	}, nil
}

// Get returns the user's record
func (s *Store) Get(ctx context.Context, userID string) (quota.Record, error) {
	query := url.Values{}
	query.Set("select", "limit,usage")
	query.Set("userId", "eq."+userID)

	rows, err := s.do(ctx, "get", http.MethodGet, query, nil, "")
	if err != nil {
		return quota.Record{}, err
	}

	row := rows.Get("0")
	if !row.Exists() {
		return quota.Record{}, quota.ErrNotFound
	}
	limit, usage := row.Get("limit"), row.Get("usage")
	if limit.Type != gjson.Number || usage.Type != gjson.Number {
		return quota.Record{}, quota.Unavailable("get", fmt.Errorf("malformed quota row %s", row.Raw))
	}
	return quota.Record{UserID: userID, Limit: int(limit.Int()), Usage: int(usage.Int())}, nil
}

// Create inserts the user's record unless one already exists
func (s *Store) Create(ctx context.Context, userID string, limit, initialUsage int) error {
	body := []byte(`{}`)
	var err error
	for _, field := range []struct {
		path  string
		value any
	}{
		{"userId", userID},
		{"limit", limit},
		{"usage", initialUsage},
	} {
		if body, err = sjson.SetBytes(body, field.path, field.value); err != nil {
			return quota.Unavailable("create", err)
		}
	}

	query := url.Values{}
	query.Set("on_conflict", "userId")

	rows, err := s.do(ctx, "create", http.MethodPost, query, body,
		"return=representation,resolution=ignore-duplicates")
	if err != nil {
		return err
	}
	if len(rows.Array()) == 0 {
		return quota.ErrAlreadyExists
	}
	return nil
}

// IncrementUsage bumps usage by one if it still equals currentUsage
func (s *Store) IncrementUsage(ctx context.Context, userID string, currentUsage int) error {
	body, err := sjson.SetBytes([]byte(`{}`), "usage", currentUsage+1)
	if err != nil {
		return quota.Unavailable("increment", err)
	}

	query := url.Values{}
	query.Set("userId", "eq."+userID)
	query.Set("usage", "eq."+strconv.Itoa(currentUsage))

	rows, err := s.do(ctx, "increment", http.MethodPatch, query, body, "return=representation")
	if err != nil {
		return err
	}
	if len(rows.Array()) == 0 {
		return quota.ErrConflict
	}
	return nil
}

// Ping reads at most one row of the quota table
func (s *Store) Ping(ctx context.Context) error {
	query := url.Values{}
	query.Set("select", "userId")
	query.Set("limit", "1")
	_, err := s.do(ctx, "ping", http.MethodGet, query, nil, "")
	return err
}

// Close releases idle connections
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// do sends one request and returns the JSON array in the response
func (s *Store) do(ctx context.Context, op, method string, query url.Values, body []byte, prefer string) (gjson.Result, error) {
	endpoint := s.baseURL + restPath + s.table + "?" + query.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return gjson.Result{}, quota.Unavailable(op, err)
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return gjson.Result{}, quota.Unavailable(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return gjson.Result{}, quota.Unavailable(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gjson.Result{}, quota.Unavailable(op, responseError(resp.StatusCode, data))
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return gjson.Parse("[]"), nil
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, quota.Unavailable(op, fmt.Errorf("invalid JSON response from %s", s.table))
	}
	result := gjson.ParseBytes(data)
	if !result.IsArray() {
		return gjson.Result{}, quota.Unavailable(op, fmt.Errorf("unexpected response from %s: %s", s.table, truncate(data)))
	}
	return result, nil
}

// responseError renders a PostgREST error body ({"code","message","details","hint"})
func responseError(status int, body []byte) error {
	if msg := gjson.GetBytes(body, "message"); msg.Exists() {
		if code := gjson.GetBytes(body, "code").String(); code != "" {
			return fmt.Errorf("postgrest status %d (%s): %s", status, code, msg.String())
		}
		return fmt.Errorf("postgrest status %d: %s", status, msg.String())
	}
	return fmt.Errorf("postgrest status %d: %s", status, truncate(body))
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
