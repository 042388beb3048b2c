package http

import (
	"crypto/tls"
	"fmt"
	"time"

	"judge0gw/internal/config"
	tlsutil "judge0gw/pkg/tls"
)

// Config holds HTTP adapter configuration
type Config struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64 // Maximum request body size in bytes (0 = no limit)
	TLSConfig      *tls.Config

	// Service is the path segment the backend is mounted under
	Service string
	// MetricsPath serves the metrics handler when one is set
	MetricsPath string
}

// NewConfig converts the frontend settings. TLS certificates are loaded here so
// that a bad certificate fails startup.
func NewConfig(httpCfg config.HTTP, service, metricsPath string) (Config, error) {
	cfg := Config{
		Host:           httpCfg.Host,
		Port:           httpCfg.Port,
		ReadTimeout:    time.Duration(httpCfg.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(httpCfg.WriteTimeout) * time.Second,
		MaxRequestSize: httpCfg.MaxRequestSize,
		Service:        service,
		MetricsPath:    metricsPath,
	}

	if httpCfg.TLS != nil && httpCfg.TLS.Enabled {
		tlsConfig, err := tlsutil.ServerConfig(httpCfg.TLS.CertFile, httpCfg.TLS.KeyFile, httpCfg.TLS.MinVersion)
		if err != nil {
			return Config{}, fmt.Errorf("create TLS config: %w", err)
		}
		cfg.TLSConfig = tlsConfig
	}

	return cfg, nil
}
