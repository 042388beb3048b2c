package sqlstore

import (
	"fmt"
	"net/url"
	"strings"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverLibsql   = "libsql"
)

// Dialect captures the differences between the supported SQL backends
type Dialect struct {
	// Name is the database/sql driver name
	Name string
	// Placeholder returns the bind parameter for the n-th argument (1-based)
	Placeholder func(n int) string
	// DSN builds the data source name from the configured url and credential
	DSN func(rawURL, credential string) (string, error)
}

// Postgres talks to PostgreSQL (and Supabase) through lib/pq
var Postgres = Dialect{
	Name:        DriverPostgres,
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	DSN:         postgresDSN,
}

// Libsql talks to libSQL/Turso or a local SQLite file through go-libsql
var Libsql = Dialect{
	Name:        DriverLibsql,
	Placeholder: func(int) string { return "?" },
	DSN:         libsqlDSN,
}

// DialectFor returns the dialect registered under driver
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres, "postgresql", "supabase":
		return Postgres, nil
	case DriverLibsql, "sqlite", "turso":
		return Libsql, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported store driver: %s", driver)
	}
}

// postgresDSN injects the credential as the connection password
func postgresDSN(rawURL, credential string) (string, error) {
	if strings.TrimSpace(credential) == "" {
		return rawURL, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return "", fmt.Errorf("invalid store url: unsupported scheme %q", parsed.Scheme)
	}

	username := "postgres"
	if parsed.User != nil && parsed.User.Username() != "" {
		username = parsed.User.Username()
	}
	parsed.User = url.UserPassword(username, credential)

	return parsed.String(), nil
}

// libsqlDSN passes the credential as the authToken query parameter
func libsqlDSN(rawURL, credential string) (string, error) {
	if strings.TrimSpace(credential) == "" {
		return rawURL, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}

	query := parsed.Query()
	if query.Get("authToken") == "" {
		query.Set("authToken", credential)
		parsed.RawQuery = query.Encode()
	}

	return parsed.String(), nil
}
