package memory

import (
	"context"
	"errors"
	"testing"

	"judge0gw/internal/quota"
)

func TestStore_GetMissing(t *testing.T) {
	store := NewStore()
	defer store.Close()

	_, err := store.Get(context.Background(), "nobody")
	if !errors.Is(err, quota.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_Create(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	defer store.Close()

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

	if err := store.Create(ctx, "u1", 100, 1); !errors.Is(err, quota.ErrAlreadyExists) {
		t.Errorf("second Create() error = %v, want ErrAlreadyExists", err)
	}
}

func TestStore_IncrementUsage(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		current   int
		wantErr   error
		wantUsage int
	}{
		{name: "matching usage", current: 5, wantUsage: 6},
		{name: "stale usage", current: 4, wantErr: quota.ErrConflict, wantUsage: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore()
			store.Put(quota.Record{UserID: "u1", Limit: 10, Usage: 5})

			err := store.IncrementUsage(ctx, "u1", tt.current)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("IncrementUsage() error = %v, want %v", err, tt.wantErr)
			}

			rec, _ := store.Get(ctx, "u1")
			if rec.Usage != tt.wantUsage {
				t.Errorf("usage = %d, want %d", rec.Usage, tt.wantUsage)
			}
		})
	}

	t.Run("missing record", func(t *testing.T) {
		store := NewStore()
		if err := store.IncrementUsage(ctx, "ghost", 0); !errors.Is(err, quota.ErrConflict) {
			t.Errorf("IncrementUsage() error = %v, want ErrConflict", err)
		}
	})
}

func TestStore_Closed(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.Close()

	if err := store.Ping(ctx); err == nil {
		t.Error("Ping() should fail on a closed store")
	}
	if _, err := store.Get(ctx, "u1"); !errors.Is(err, quota.ErrStoreUnavailable) {
		t.Errorf("Get() error = %v, want ErrStoreUnavailable", err)
	}
	if err := store.Create(ctx, "u1", 1, 1); !errors.Is(err, quota.ErrStoreUnavailable) {
		t.Errorf("Create() error = %v, want ErrStoreUnavailable", err)
	}
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewStore()
	if _, err := store.Get(ctx, "u1"); !errors.Is(err, quota.ErrStoreUnavailable) {
		t.Errorf("Get() error = %v, want ErrStoreUnavailable", err)
	}
}
