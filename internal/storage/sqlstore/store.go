// Package sqlstore keeps quota records in a SQL table with one row per user.
// Usage updates are conditional UPDATEs, so several gateway instances can
// share the same table.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/go-libsql"

	"judge0gw/internal/quota"
)

// DefaultTable is the quota table read by the gateway and reset by the daily job
const DefaultTable = "judge0tokens"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store implements quota.Store on top of database/sql
type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string

	getQuery       string
	createQuery    string
	incrementQuery string
	migrateQuery   string
}

// Open connects to the database at rawURL and verifies the connection
func Open(ctx context.Context, driver, rawURL, credential, table string) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	dsn, err := dialect.DSN(rawURL, credential)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.Name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", dialect.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s store: %w", dialect.Name, err)
	}

	store, err := New(db, dialect, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an open database. An empty table selects DefaultTable.
func New(db *sql.DB, dialect Dialect, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid quota table name %q", table)
	}

	p := dialect.Placeholder
	return &Store{
		db:      db,
		dialect: dialect,
		table:   table,
		getQuery: fmt.Sprintf(`SELECT "limit", usage FROM %s WHERE "userId" = %s`,
			table, p(1)),
		createQuery: fmt.Sprintf(`INSERT INTO %s ("userId", "limit", usage) VALUES (%s, %s, %s) ON CONFLICT ("userId") DO NOTHING`,
			table, p(1), p(2), p(3)),
		incrementQuery: fmt.Sprintf(`UPDATE %s SET usage = usage + 1 WHERE "userId" = %s AND usage = %s`,
			table, p(1), p(2)),
		migrateQuery: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s ("userId" TEXT PRIMARY KEY, "limit" INTEGER NOT NULL DEFAULT %d, usage INTEGER NOT NULL DEFAULT 0)`,
			table, quota.DefaultLimit),
	}, nil
}

// Migrate creates the quota table if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.migrateQuery); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Get returns the record for userID
func (s *Store) Get(ctx context.Context, userID string) (quota.Record, error) {
	rec := quota.Record{UserID: userID}
	err := s.db.QueryRowContext(ctx, s.getQuery, userID).Scan(&rec.Limit, &rec.Usage)
	if errors.Is(err, sql.ErrNoRows) {
		return quota.Record{}, quota.ErrNotFound
	}
	if err != nil {
		return quota.Record{}, quota.Unavailable("get", err)
	}
	return rec, nil
}

// Create inserts a new record
func (s *Store) Create(ctx context.Context, userID string, limit, initialUsage int) error {
	res, err := s.db.ExecContext(ctx, s.createQuery, userID, limit, initialUsage)
	if err != nil {
		return quota.Unavailable("create", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return quota.Unavailable("create", err)
	}
	if n == 0 {
		return quota.ErrAlreadyExists
	}
	return nil
}

// IncrementUsage bumps usage if it still equals currentUsage
func (s *Store) IncrementUsage(ctx context.Context, userID string, currentUsage int) error {
	res, err := s.db.ExecContext(ctx, s.incrementQuery, userID, currentUsage)
	if err != nil {
		return quota.Unavailable("increment", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return quota.Unavailable("increment", err)
	}
	if n == 0 {
		return quota.ErrConflict
	}
	return nil
}

// Ping checks connectivity with the database
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases database resources
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
