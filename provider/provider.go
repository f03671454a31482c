// Package provider defines the backing-store abstraction used by lockcache.
//
// A Store is one named cache region in a (usually shared, remote) key/value
// store. Implementations MUST be byte-for-byte transparent: Get must return
// exactly the []byte previously passed to Set/SetNX for a key. They MUST be
// linearizable per key, and Lock must serialize holders of the same key across
// every process sharing the region.
//
// Keys passed to a Store are the caller's keys; the Store owns any prefixing
// needed to isolate its region from others on the same backend.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotHeld is returned by Lock.Unlock when the lock is no longer owned by
// the caller (lease expired, or already released).
var ErrLockNotHeld = errors.New("provider: lock not held")

// Expiry is the per-entry eviction policy applied on write.
// Zero fields disable the respective limit.
type Expiry struct {
	TTL     time.Duration // absolute lifetime from write
	MaxIdle time.Duration // max time between accesses
}

// None reports whether no limit is set.
func (e Expiry) None() bool { return e.TTL <= 0 && e.MaxIdle <= 0 }

// Store is a named region of a key/value store with per-key locking.
// Must be safe for concurrent use.
type Store interface {
	// Name returns the region name.
	Name() string

	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	// A read counts as an access for MaxIdle.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value unconditionally with the given expiry.
	Set(ctx context.Context, key string, value []byte, exp Expiry) error

	// SetNX stores value only if key is absent. When an entry exists it is
	// returned as prev with stored=false and left untouched.
	SetNX(ctx context.Context, key string, value []byte, exp Expiry) (prev []byte, stored bool, err error)

	// Del removes a key. Missing keys are not an error.
	Del(ctx context.Context, key string) error

	// Clear removes every entry of this region and nothing else.
	Clear(ctx context.Context) error

	// Lock blocks until the per-key lock is acquired or ctx is done.
	Lock(ctx context.Context, key string) (Lock, error)

	// Close releases resources.
	Close(ctx context.Context) error
}

// Lock is a held per-key lock.
type Lock interface {
	// Unlock releases the lock. It returns ErrLockNotHeld if ownership was lost.
	Unlock(ctx context.Context) error
}
