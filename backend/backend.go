// Package backend defines the storage abstraction behind the cache core.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same payload that was previously passed to Set for a key. Internal
// transforms (compression, chunking) must be fully reversed before returning.
// A missing or expired entry is a miss, never an error.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vikyol/awsideman-cache/secure"
)

// Type identifies a backend implementation in configuration and errors.
type Type string

const (
	TypeFile   Type = "file"
	TypeDynamo Type = "dynamo"
	TypeHybrid Type = "hybrid"
	TypeMemory Type = "memory"
	TypeRedis  Type = "redis"
)

var (
	// ErrInvalidKey wraps a cache-key validation failure.
	ErrInvalidKey = errors.New("backend: invalid cache key")

	// ErrInvalidTTL is returned when a caller-supplied TTL is negative.
	ErrInvalidTTL = errors.New("backend: ttl must be positive")

	// ErrInvalidPayload is returned when a payload is nil.
	ErrInvalidPayload = errors.New("backend: payload must not be nil")
)

// Backend is a byte store with per-entry TTLs. Implementations must be safe
// for concurrent use from multiple goroutines.
type Backend interface {
	// Get returns (payload, true, nil) on hit; (nil, false, nil) on miss or
	// expiry. Expired entries are purged as a side effect of the read that
	// discovers them.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set persists payload under key. ttl <= 0 selects the backend default.
	// Last write wins; Set is idempotent.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration, operation string) error

	// Invalidate removes one entry; a missing target is not an error.
	Invalidate(ctx context.Context, key string) error

	// InvalidateAll removes every entry owned by this backend.
	InvalidateAll(ctx context.Context) error

	// Stats returns backend-specific counters (entry counts, sizes).
	Stats(ctx context.Context) (map[string]any, error)

	// HealthCheck is a cheap connectivity/access probe. It must not mutate
	// stored state.
	HealthCheck(ctx context.Context) bool

	// Close releases resources.
	Close(ctx context.Context) error
}

// Error is the single error kind all backends signal failures through.
type Error struct {
	Backend Type
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s backend: %s: %s: %v", e.Backend, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s backend: %s: %s", e.Backend, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a backend Error carrying its cause.
func NewError(bt Type, op, message string, cause error) *Error {
	return &Error{Backend: bt, Op: op, Message: message, Err: cause}
}

// ValidateKey applies the shared cache-key rule and wraps failures in a
// backend Error so callers see one error kind at every boundary.
func ValidateKey(bt Type, op, key string) error {
	if err := secure.ValidateKey(key); err != nil {
		return &Error{Backend: bt, Op: op, Message: "key validation failed", Err: fmt.Errorf("%w: %w", ErrInvalidKey, err)}
	}
	return nil
}

// ValidateSet checks the key, payload and ttl of a write.
func ValidateSet(bt Type, key string, payload []byte, ttl time.Duration) error {
	if err := ValidateKey(bt, "set", key); err != nil {
		return err
	}
	if payload == nil {
		return &Error{Backend: bt, Op: "set", Message: "payload validation failed", Err: ErrInvalidPayload}
	}
	if ttl < 0 {
		return &Error{Backend: bt, Op: "set", Message: "ttl validation failed", Err: ErrInvalidTTL}
	}
	return nil
}
