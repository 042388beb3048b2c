package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"judge0gw/pkg/errors"
)

// Loader loads configuration from file
type Loader struct {
	path       string
	envEnabled bool
}

// NewLoader creates a config loader. An empty path loads the embedded default.
func NewLoader(path string) *Loader {
	return &Loader{
		path:       path,
		envEnabled: true,
	}
}

// WithEnvVars enables or disables environment variable loading
func (l *Loader) WithEnvVars(enabled bool) *Loader {
	l.envEnabled = enabled
	return l
}

// Load loads, defaults and validates the configuration
func (l *Loader) Load() (*Config, error) {
	var cfg *Config
	if l.path == "" {
		var err error
		cfg, err = LoadDefault()
		if err != nil {
			return nil, errors.NewError(errors.ErrorTypeInternal, "failed to parse default config").WithCause(err)
		}
	} else {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, errors.NewError(errors.ErrorTypeInternal, "failed to read config file").WithCause(err)
		}
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.NewError(errors.ErrorTypeInternal, "failed to parse config").WithCause(err)
		}
	}

	if l.envEnabled {
		if err := LoadEnv(cfg); err != nil {
			return nil, errors.NewError(errors.ErrorTypeInternal, "failed to load env vars").WithCause(err)
		}
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "invalid configuration").WithCause(err)
	}

	return cfg, nil
}

// Load loads configuration from path with environment overrides
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Validate checks that the configuration can start a gateway
func (c *Config) Validate() error {
	if c.Frontend.HTTP.Port <= 0 || c.Frontend.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Frontend.HTTP.Port)
	}
	if tls := c.Frontend.HTTP.TLS; tls != nil && tls.Enabled && (tls.CertFile == "" || tls.KeyFile == "") {
		return fmt.Errorf("TLS enabled but certFile or keyFile is missing")
	}

	if c.Backend.Host == "" {
		return fmt.Errorf("backend host is required (set JUDGE0_HOST or GATEWAY_BACKEND_HOST)")
	}
	if !strings.HasPrefix(c.Backend.Host, "http://") && !strings.HasPrefix(c.Backend.Host, "https://") {
		return fmt.Errorf("backend host must be an http(s) URL: %s", c.Backend.Host)
	}
	if strings.Contains(c.Backend.Service, "/") || c.Backend.Service == "" {
		return fmt.Errorf("backend service must be a single path segment: %q", c.Backend.Service)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend timeout must not be negative")
	}

	if c.Quota.DefaultLimit < 0 {
		return fmt.Errorf("quota default limit must not be negative")
	}

	store := c.Quota.Store
	switch store.Driver {
	case DriverMemory:
	case DriverSupabase, DriverPostgres, DriverLibsql, DriverRedis:
		if store.URL == "" {
			return fmt.Errorf("quota store url is required for driver %s (set SUPABASE_URL or GATEWAY_QUOTA_STORE_URL)", store.Driver)
		}
		if store.Credential == "" && store.Driver == DriverSupabase {
			return fmt.Errorf("quota store credential is required for driver %s (set SUPABASE_KEY or GATEWAY_QUOTA_STORE_CREDENTIAL)", store.Driver)
		}
	default:
		return fmt.Errorf("unknown quota store driver: %s", store.Driver)
	}

	if c.Tracing.Enabled && (c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1) {
		return fmt.Errorf("tracing sample rate must be between 0 and 1")
	}

	return nil
}
