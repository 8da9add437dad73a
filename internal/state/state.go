// Package state defines the shared-state services the pipeline components
// communicate through: ordered job queues, the TTL-bounded completion store,
// and the per-replica load counters. The Redis implementation is the normal
// deployment; the in-memory implementation serves single-process runs and
// tests.
package state

import (
	"context"
	"time"
)

// Queue is an ordered multi-producer/multi-consumer list. Each pushed item
// is popped by exactly one consumer; no ordering is guaranteed across
// concurrent consumers.
type Queue interface {
	// Push appends a payload to the named queue without blocking.
	Push(ctx context.Context, queue string, payload []byte) error

	// Pop removes the oldest payload from the named queue, blocking up to
	// timeout. It returns (nil, nil) when the timeout elapses with no item.
	Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)

	// Len reports the current depth of the named queue.
	Len(ctx context.Context, queue string) (int64, error)
}

// Completions is a key/value store with per-key expiry, used to hand the
// terminal result of a job back to the polling gateway.
type Completions interface {
	// Put writes a payload under key with the given TTL, overwriting any
	// previous value for the same key.
	Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error

	// Get reads the payload for key. The second return is false when the key
	// is absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// Loads holds one non-negative counter per replica. All mutations are
// single-key atomic operations.
type Loads interface {
	// Increment adds one to the counter for key.
	Increment(ctx context.Context, key string) error

	// DecrementClamped subtracts one from the counter for key, clamping the
	// stored value at zero so external readers never observe a negative count.
	DecrementClamped(ctx context.Context, key string) error

	// Get returns the current counter value for key; a missing key reads as 0.
	Get(ctx context.Context, key string) (int64, error)
}
