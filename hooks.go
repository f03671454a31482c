package lockcache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// The per-key lock was acquired after waiting for wait.
	LockAcquired(key string, wait time.Duration)

	// The double-check under lock found an entry written by another holder.
	LoadShared(key string)

	// The loader failed (error or panic). Nothing was written.
	LoadFailed(key string, err error)

	// Releasing the per-key lock failed (lease lost or store error).
	ReleaseFailed(key string, err error)

	// A present entry could not be decoded as the cache's value type.
	CorruptEntry(key string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) LockAcquired(string, time.Duration) {}
func (NopHooks) LoadShared(string)                  {}
func (NopHooks) LoadFailed(string, error)           {}
func (NopHooks) ReleaseFailed(string, error)        {}
func (NopHooks) CorruptEntry(string, error)         {}
