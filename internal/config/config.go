package config

import (
	"time"
)

// Config holds gateway configuration
type Config struct {
	Frontend Frontend `yaml:"frontend"`
	Backend  Backend  `yaml:"backend"`
	Quota    Quota    `yaml:"quota"`
	CORS     CORS     `yaml:"cors"`
	Metrics  Metrics  `yaml:"metrics"`
	Tracing  Tracing  `yaml:"tracing"`
	Logging  Logging  `yaml:"logging"`
}

// Frontend configuration
type Frontend struct {
	HTTP HTTP `yaml:"http"`
}

// HTTP configuration
type HTTP struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReadTimeout    int    `yaml:"readTimeout"`
	WriteTimeout   int    `yaml:"writeTimeout"`
	MaxRequestSize int64  `yaml:"maxRequestSize"`
	TLS            *TLS   `yaml:"tls,omitempty"`
}

// TLS configuration
type TLS struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"certFile"`
	KeyFile    string `yaml:"keyFile"`
	MinVersion string `yaml:"minVersion,omitempty"`
}

// Backend configuration for the code execution service
type Backend struct {
	// Name appears in error messages, e.g. "Error connecting to Judge0: ..."
	Name string `yaml:"name"`
	// Host is the backend base URL
	Host string `yaml:"host"`
	// Service is the first path segment the backend is mounted under
	Service string `yaml:"service"`
	// Timeout in seconds for a single backend round trip
	Timeout        int            `yaml:"timeout"`
	HTTP           HTTPBackend    `yaml:"http"`
	CircuitBreaker CircuitBreaker `yaml:"circuitBreaker"`
}

// HTTPBackend configuration for backend connections
type HTTPBackend struct {
	// Connection pool settings
	MaxIdleConns        int `yaml:"maxIdleConns"`
	MaxIdleConnsPerHost int `yaml:"maxIdleConnsPerHost"`
	IdleConnTimeout     int `yaml:"idleConnTimeout"`

	// Keep-alive settings
	KeepAlive        bool `yaml:"keepAlive"`
	KeepAliveTimeout int  `yaml:"keepAliveTimeout"`

	// Additional transport settings
	DialTimeout           int `yaml:"dialTimeout"`
	ResponseHeaderTimeout int `yaml:"responseHeaderTimeout"`
}

// CircuitBreaker configuration
type CircuitBreaker struct {
	Enabled          bool `yaml:"enabled"`
	FailureThreshold int  `yaml:"failureThreshold"`
	MaxRequests      int  `yaml:"maxRequests"`
	Interval         int  `yaml:"interval"`
	Timeout          int  `yaml:"timeout"`
}

// Quota configuration
type Quota struct {
	// Route is the target path prefix whose requests consume quota
	Route        string `yaml:"route"`
	DefaultLimit int    `yaml:"defaultLimit"`
	Store        Store  `yaml:"store"`
}

// Store configuration for the quota store
type Store struct {
	// Driver is one of supabase, postgres, libsql, redis or memory
	Driver     string `yaml:"driver"`
	URL        string `yaml:"url"`
	Credential string `yaml:"credential"`
	Table      string `yaml:"table"`
	// Timeout in seconds for a single store call
	Timeout int `yaml:"timeout"`
	// Migrate creates the quota table on startup (SQL drivers only)
	Migrate bool `yaml:"migrate"`
}

// CORS configuration
type CORS struct {
	Enabled          bool     `yaml:"enabled"`
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowedMethods   []string `yaml:"allowedMethods"`
	AllowedHeaders   []string `yaml:"allowedHeaders"`
	ExposedHeaders   []string `yaml:"exposedHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// Metrics configuration
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Tracing configuration
type Tracing struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"serviceName"`
	SampleRate  float64 `yaml:"sampleRate"`
	Insecure    bool    `yaml:"insecure"`
}

// Logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Store drivers
const (
	DriverSupabase = "supabase"
	DriverPostgres = "postgres"
	DriverLibsql   = "libsql"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// ApplyDefaults fills unset fields with their default values
func (c *Config) ApplyDefaults() {
	if c.Frontend.HTTP.Host == "" {
		c.Frontend.HTTP.Host = "0.0.0.0"
	}
	if c.Frontend.HTTP.Port == 0 {
		c.Frontend.HTTP.Port = 5001
	}
	if c.Frontend.HTTP.ReadTimeout == 0 {
		c.Frontend.HTTP.ReadTimeout = 30
	}
	if c.Frontend.HTTP.WriteTimeout == 0 {
		c.Frontend.HTTP.WriteTimeout = 60
	}
	if c.Frontend.HTTP.MaxRequestSize == 0 {
		c.Frontend.HTTP.MaxRequestSize = 10 * 1024 * 1024
	}

	if c.Backend.Name == "" {
		c.Backend.Name = "Judge0"
	}
	if c.Backend.Service == "" {
		c.Backend.Service = "judge0"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 30
	}

	if c.Quota.Route == "" {
		c.Quota.Route = "submissions"
	}
	if c.Quota.DefaultLimit == 0 {
		c.Quota.DefaultLimit = 100
	}
	if c.Quota.Store.Driver == "" {
		c.Quota.Store.Driver = DriverSupabase
	}
	if c.Quota.Store.Table == "" {
		c.Quota.Store.Table = "judge0tokens"
	}
	if c.Quota.Store.Timeout == 0 {
		c.Quota.Store.Timeout = 5
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "judge0-gateway"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// BackendTimeout returns the backend timeout as a duration
func (b Backend) BackendTimeout() time.Duration {
	return time.Duration(b.Timeout) * time.Second
}

// StoreTimeout returns the store call timeout as a duration
func (s Store) StoreTimeout() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}
