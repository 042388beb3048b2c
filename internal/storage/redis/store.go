package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"judge0gw/internal/quota"
)

// DefaultKeyPrefix namespaces quota hashes
const DefaultKeyPrefix = "judge0tokens"

// Client defines the interface for Redis operations
type Client interface {
	// Eval executes a Lua script
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
	// HGetAll returns all fields of a hash
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// Ping checks the connection
	Ping(ctx context.Context) error
	// Close closes the connection
	Close() error
}

// Each record is a hash with "limit" and "usage" fields. Both writes are Lua
// scripts so the existence check and the write happen atomically.
const (
	createScript = `
		if redis.call('EXISTS', KEYS[1]) == 1 then
			return 0
		end
		redis.call('HSET', KEYS[1], 'limit', ARGV[1], 'usage', ARGV[2])
		return 1
	`

	incrementScript = `
		local usage = redis.call('HGET', KEYS[1], 'usage')
		if not usage or tonumber(usage) ~= tonumber(ARGV[1]) then
			return 0
		end
		redis.call('HINCRBY', KEYS[1], 'usage', 1)
		return 1
	`
)

// Store implements quota.Store using Redis hashes
type Store struct {
	client Client
	prefix string
}

// NewStore creates a new Redis store. An empty prefix selects DefaultKeyPrefix.
func NewStore(client Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{
		client: client,
		prefix: prefix,
	}
}

func (s *Store) key(userID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, userID)
}

// Get returns the record for userID
func (s *Store) Get(ctx context.Context, userID string) (quota.Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key(userID))
	if err != nil {
		return quota.Record{}, quota.Unavailable("get", err)
	}
	if len(fields) == 0 {
		return quota.Record{}, quota.ErrNotFound
	}

	limit, err := strconv.Atoi(fields["limit"])
	if err != nil {
		return quota.Record{}, quota.Unavailable("get", fmt.Errorf("invalid limit for %q: %w", userID, err))
	}
	usage, err := strconv.Atoi(fields["usage"])
	if err != nil {
		return quota.Record{}, quota.Unavailable("get", fmt.Errorf("invalid usage for %q: %w", userID, err))
	}

	return quota.Record{UserID: userID, Limit: limit, Usage: usage}, nil
}

// Create inserts a new record
func (s *Store) Create(ctx context.Context, userID string, limit, initialUsage int) error {
	ok, err := s.eval(ctx, createScript, userID, limit, initialUsage)
	if err != nil {
		return quota.Unavailable("create", err)
	}
	if !ok {
		return quota.ErrAlreadyExists
	}
	return nil
}

// IncrementUsage bumps usage if it still equals currentUsage
func (s *Store) IncrementUsage(ctx context.Context, userID string, currentUsage int) error {
	ok, err := s.eval(ctx, incrementScript, userID, currentUsage)
	if err != nil {
		return quota.Unavailable("increment", err)
	}
	if !ok {
		return quota.ErrConflict
	}
	return nil
}

func (s *Store) eval(ctx context.Context, script, userID string, args ...interface{}) (bool, error) {
	result, err := s.client.Eval(ctx, script, []string{s.key(userID)}, args...)
	if err != nil {
		return false, fmt.Errorf("failed to execute quota script: %w", err)
	}

	n, ok := result.(int64)
	if !ok {
		return false, errors.New("invalid quota script result")
	}
	return n == 1, nil
}

// Ping checks connectivity with Redis
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close closes the store
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
