// Package tls builds server TLS settings from configuration values.
package tls

import (
	"crypto/tls"
	"fmt"
)

// ParseTLSVersion converts "1.0".."1.3" to a crypto/tls version constant.
// Anything else selects TLS 1.2.
func ParseTLSVersion(version string) uint16 {
	switch version {
	case "1.0":
		return tls.VersionTLS10
	case "1.1":
		return tls.VersionTLS11
	case "1.2":
		return tls.VersionTLS12
	case "1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}

// ServerConfig loads the certificate pair and returns a server TLS configuration
func ServerConfig(certFile, keyFile, minVersion string) (*tls.Config, error) {
	if certFile == "" || keyFile == "" {
		return nil, fmt.Errorf("certificate and key files are required")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}

	return &tls.Config{
		MinVersion:   ParseTLSVersion(minVersion),
		MaxVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
	}, nil
}
