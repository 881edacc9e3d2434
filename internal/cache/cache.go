// Package cache provides the key/value backends used by the cache-aside
// coordinator: Redis for deployments and an in-process go-cache store for
// single-process runs and tests.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Entry is a value stored together with the indexes that reach it.
type Entry struct {
	Key   string
	Value []byte
	TTL   time.Duration
	// Indexes are the sets Key is added to; their expiry is reset to IndexTTL.
	Indexes  []string
	IndexTTL time.Duration
	// Guards maps generation counters to the values read before Value was loaded.
	Guards map[string]int64
}

// Backend is an opaque key/value store with TTLs, named key sets and
// generation counters.
type Backend interface {
	// Get returns the value stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes keys; missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// StoreIndexed atomically adds entry.Key to every index and stores the
	// value, provided every guard counter still holds its expected
	// generation. It reports whether the entry was stored.
	StoreIndexed(ctx context.Context, entry Entry) (bool, error)
	// IndexMembers returns the members of the set named index.
	IndexMembers(ctx context.Context, index string) ([]string, error)
	// Generations returns the current value of each counter; a missing counter is 0.
	Generations(ctx context.Context, counters ...string) ([]int64, error)
	// BumpGenerations increments each counter and resets its expiry to ttl.
	BumpGenerations(ctx context.Context, ttl time.Duration, counters ...string) error
	Ping(ctx context.Context) error
	Close() error
}

// CacheError wraps a failing backend call.
type CacheError struct {
	Operation string
	Key       string
	Cause     error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache error during %s on %q: %v", e.Operation, e.Key, e.Cause)
}

func (e *CacheError) Unwrap() error {
	return e.Cause
}

// NewCacheError creates an error for a failed backend operation
func NewCacheError(operation, key string, cause error) *CacheError {
	return &CacheError{
		Operation: operation,
		Key:       key,
		Cause:     cause,
	}
}

func guardsHold(guards map[string]int64, current func(counter string) int64) bool {
	for counter, expected := range guards {
		if current(counter) != expected {
			return false
		}
	}
	return true
}
