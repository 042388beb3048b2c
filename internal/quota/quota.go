// Package quota holds the per-user daily submission quota: the record
// persisted by the quota store and the admission policy built on top of it.
package quota

import (
	"context"
	"errors"
)

// DefaultLimit is the daily submission limit given to users seen for the first time.
const DefaultLimit = 100

var (
	// ErrNotFound is returned by Store.Get when the user has no record.
	ErrNotFound = errors.New("quota record not found")
	// ErrAlreadyExists is returned by Store.Create when another writer created the record first.
	ErrAlreadyExists = errors.New("quota record already exists")
	// ErrConflict is returned by Store.IncrementUsage when the stored usage changed since it was read.
	ErrConflict = errors.New("quota usage changed concurrently")
	// ErrStoreUnavailable marks failures reaching the backing store.
	ErrStoreUnavailable = errors.New("quota store unavailable")
)

// Record is the persisted quota state of one user.
type Record struct {
	UserID string `json:"userId"`
	Limit  int    `json:"limit"`
	Usage  int    `json:"usage"`
}

// Exhausted reports whether the record admits no further submissions.
func (r Record) Exhausted() bool {
	return r.Usage >= r.Limit
}

// Store persists quota records. Implementations must be safe for concurrent use
// and must make IncrementUsage a conditional write.
type Store interface {
	// Get returns the record for userID or ErrNotFound.
	Get(ctx context.Context, userID string) (Record, error)

	// Create inserts a new record. It fails with ErrAlreadyExists when a record
	// for userID is already present.
	Create(ctx context.Context, userID string, limit, initialUsage int) error

	// IncrementUsage sets usage to currentUsage+1 only if the stored usage still
	// equals currentUsage; otherwise it fails with ErrConflict.
	IncrementUsage(ctx context.Context, userID string, currentUsage int) error

	// Ping checks connectivity with the backing store.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// Unavailable wraps a backing store failure so that errors.Is(err,
// ErrStoreUnavailable) holds while the original cause stays inspectable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &unavailableError{op: op, err: err}
}

type unavailableError struct {
	op  string
	err error
}

func (e *unavailableError) Error() string {
	return e.op + ": " + e.err.Error()
}

func (e *unavailableError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.err}
}
