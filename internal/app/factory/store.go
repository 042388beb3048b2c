package factory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"judge0gw/internal/config"
	"judge0gw/internal/quota"
	"judge0gw/internal/storage/memory"
	"judge0gw/internal/storage/postgrest"
	"judge0gw/internal/storage/redis"
	"judge0gw/internal/storage/sqlstore"
)

// CreateStore opens the quota store selected by cfg.Driver. The supabase
// driver sends its requests through client.
func CreateStore(ctx context.Context, cfg config.Store, client *http.Client, logger *slog.Logger) (quota.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	connectCtx := ctx
	if timeout := cfg.StoreTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory quota store, usage is lost on restart")
		return memory.NewStore(), nil

	case config.DriverSupabase:
		store, err := postgrest.New(client, cfg.URL, cfg.Credential, cfg.Table)
		if err != nil {
			return nil, fmt.Errorf("creating supabase store: %w", err)
		}
		return store, nil

	case config.DriverRedis:
		conn, err := redis.Dial(connectCtx, cfg.URL, cfg.Credential, cfg.StoreTimeout())
		if err != nil {
			return nil, fmt.Errorf("creating redis store: %w", err)
		}
		return redis.NewStore(conn, cfg.Table), nil

	case config.DriverPostgres, config.DriverLibsql:
		store, err := sqlstore.Open(connectCtx, cfg.Driver, cfg.URL, cfg.Credential, cfg.Table)
		if err != nil {
			return nil, fmt.Errorf("creating %s store: %w", cfg.Driver, err)
		}
		if cfg.Migrate {
			if err := store.Migrate(connectCtx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrating %s store: %w", cfg.Driver, err)
			}
			logger.Info("quota table ready", "driver", cfg.Driver, "table", cfg.Table)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown quota store driver %q", cfg.Driver)
	}
}

// CreateStoreClient creates the HTTP client used by the supabase driver
func CreateStoreClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 10
	return &http.Client{Transport: transport}
}
