// Package requestid assigns an identifier to every inbound request so that log
// lines, traces and error responses can be correlated.
package requestid

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// Header carries the request ID in both directions
const Header = "X-Request-ID"

// maxLength bounds accepted client-supplied IDs
const maxLength = 128

// counter is used as fallback when random generation fails
var counter atomic.Uint64

type contextKey struct{}

// GenerateRequestID generates a unique request ID with format: timestamp-randomhex
// Example: 1737039600123-a2b3c4d5
func GenerateRequestID() string {
	timestamp := time.Now().UnixMilli()

	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return fmt.Sprintf("%d-%d", timestamp, counter.Add(1))
	}

	return fmt.Sprintf("%d-%s", timestamp, hex.EncodeToString(randomBytes))
}

// Resolve returns incoming when it is a usable ID and a fresh one otherwise
func Resolve(incoming string) string {
	if Valid(incoming) {
		return incoming
	}
	return GenerateRequestID()
}

// Valid reports whether id is non-empty, short and limited to
// letters, digits and "-_.:" so it is safe to echo into headers and logs
func Valid(id string) bool {
	if id == "" || len(id) > maxLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}

// WithContext stores the request ID in ctx
func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the request ID stored in ctx, if any
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
