package memory

import (
	"context"
	"errors"
	"sync"

	"judge0gw/internal/quota"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("memory store closed")

// Store implements quota.Store in process memory. Records live until the
// process exits, so it is meant for development and tests.
type Store struct {
	mu      sync.RWMutex
	records map[string]quota.Record
	closed  bool
}

// NewStore creates a new memory store
func NewStore() *Store {
	return &Store{
		records: make(map[string]quota.Record),
	}
}

// Get returns the record for userID
func (s *Store) Get(ctx context.Context, userID string) (quota.Record, error) {
	if err := ctx.Err(); err != nil {
		return quota.Record{}, quota.Unavailable("get", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return quota.Record{}, quota.Unavailable("get", ErrClosed)
	}
	rec, ok := s.records[userID]
	if !ok {
		return quota.Record{}, quota.ErrNotFound
	}
	return rec, nil
}

// Create inserts a new record
func (s *Store) Create(ctx context.Context, userID string, limit, initialUsage int) error {
	if err := ctx.Err(); err != nil {
		return quota.Unavailable("create", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return quota.Unavailable("create", ErrClosed)
	}
	if _, ok := s.records[userID]; ok {
		return quota.ErrAlreadyExists
	}
	s.records[userID] = quota.Record{UserID: userID, Limit: limit, Usage: initialUsage}
	return nil
}

// IncrementUsage bumps usage if it still equals currentUsage
func (s *Store) IncrementUsage(ctx context.Context, userID string, currentUsage int) error {
	if err := ctx.Err(); err != nil {
		return quota.Unavailable("increment", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return quota.Unavailable("increment", ErrClosed)
	}
	rec, ok := s.records[userID]
	if !ok || rec.Usage != currentUsage {
		return quota.ErrConflict
	}
	rec.Usage++
	s.records[userID] = rec
	return nil
}

// Put stores rec as is, replacing any existing record
func (s *Store) Put(rec quota.Record) {
	s.mu.Lock()
	s.records[rec.UserID] = rec
	s.mu.Unlock()
}

// Ping reports whether the store is open
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close closes the store
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
