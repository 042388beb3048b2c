package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"judge0gw/internal/quota"
)

// mockClient implements the Client interface for testing
type mockClient struct {
	evalFunc    func(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
	hgetallFunc func(ctx context.Context, key string) (map[string]string, error)
	closed      bool
}

func (m *mockClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	if m.evalFunc != nil {
		return m.evalFunc(ctx, script, keys, args...)
	}
	return int64(1), nil
}

func (m *mockClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetallFunc != nil {
		return m.hgetallFunc(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockClient) Ping(ctx context.Context) error {
	return nil
}

func (m *mockClient) Close() error {
	m.closed = true
	return nil
}

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	store := NewStore(NewClientAdapter(client), "")
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	if _, err := store.Get(ctx, "u1"); !errors.Is(err, quota.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}

	if err := store.Create(ctx, "u1", 100, 1); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rec, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	want := quota.Record{UserID: "u1", Limit: 100, Usage: 1}
	if rec != want {
		t.Errorf("Get() = %+v, want %+v", rec, want)
	}

	if got := mr.HGet("judge0tokens:u1", "usage"); got != "1" {
		t.Errorf("stored usage = %q, want \"1\"", got)
	}

	if err := store.Create(ctx, "u1", 100, 1); !errors.Is(err, quota.ErrAlreadyExists) {
		t.Errorf("second Create() error = %v, want ErrAlreadyExists", err)
	}
}

func TestStore_IncrementUsage(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	mr.HSet("judge0tokens:u1", "limit", "10", "usage", "4")

	if err := store.IncrementUsage(ctx, "u1", 4); err != nil {
		t.Fatalf("IncrementUsage() error = %v", err)
	}
	if err := store.IncrementUsage(ctx, "u1", 4); !errors.Is(err, quota.ErrConflict) {
		t.Errorf("stale IncrementUsage() error = %v, want ErrConflict", err)
	}
	if err := store.IncrementUsage(ctx, "missing", 0); !errors.Is(err, quota.ErrConflict) {
		t.Errorf("IncrementUsage() on missing record error = %v, want ErrConflict", err)
	}

	rec, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Usage != 5 {
		t.Errorf("usage = %d, want 5", rec.Usage)
	}
}

func TestStore_ConcurrentIncrement(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	if err := store.Create(ctx, "u1", 100, 1); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.IncrementUsage(ctx, "u1", 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("%d increments from the same usage succeeded, want 1", succeeded)
	}
}

func TestStore_KeyPrefix(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	store := NewStore(NewClientAdapter(client), "quota")
	defer store.Close()

	if err := store.Create(ctx, "u1", 5, 1); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !mr.Exists("quota:u1") {
		t.Error("expected key quota:u1 to exist")
	}
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")

	tests := []struct {
		name   string
		client *mockClient
		run    func(*Store) error
	}{
		{
			name: "get fails",
			client: &mockClient{hgetallFunc: func(context.Context, string) (map[string]string, error) {
				return nil, boom
			}},
			run: func(s *Store) error {
				_, err := s.Get(ctx, "u1")
				return err
			},
		},
		{
			name: "corrupt record",
			client: &mockClient{hgetallFunc: func(context.Context, string) (map[string]string, error) {
				return map[string]string{"limit": "ten", "usage": "1"}, nil
			}},
			run: func(s *Store) error {
				_, err := s.Get(ctx, "u1")
				return err
			},
		},
		{
			name: "create script fails",
			client: &mockClient{evalFunc: func(context.Context, string, []string, ...interface{}) (interface{}, error) {
				return nil, boom
			}},
			run: func(s *Store) error {
				return s.Create(ctx, "u1", 100, 1)
			},
		},
		{
			name: "unexpected script result",
			client: &mockClient{evalFunc: func(context.Context, string, []string, ...interface{}) (interface{}, error) {
				return "OK", nil
			}},
			run: func(s *Store) error {
				return s.IncrementUsage(ctx, "u1", 1)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(NewStore(tt.client, ""))
			if !errors.Is(err, quota.ErrStoreUnavailable) {
				t.Errorf("error = %v, want ErrStoreUnavailable", err)
			}
		})
	}
}

func TestStore_Close(t *testing.T) {
	client := &mockClient{}
	store := NewStore(client, "")

	if err := store.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !client.closed {
		t.Error("expected client to be closed")
	}
}

func TestDial(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")
	url := "redis://" + mr.Addr()

	t.Run("with credential", func(t *testing.T) {
		client, err := Dial(ctx, url, "s3cret", time.Second)
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		defer client.Close()

		if err := client.Ping(ctx); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})

	t.Run("wrong credential", func(t *testing.T) {
		if _, err := Dial(ctx, url, "nope", time.Second); err == nil {
			t.Error("Dial() should fail with a wrong credential")
		}
	})

	t.Run("invalid url", func(t *testing.T) {
		if _, err := Dial(ctx, "http://example.com", "", time.Second); err == nil {
			t.Error("Dial() should reject non-redis urls")
		}
	})
}
