package lockcache

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/unkn0wn-root/lockcache/codec"
	pr "github.com/unkn0wn-root/lockcache/provider"
)

// Loader computes the value for a missing key. ok=false means the result is
// null; it is cached as such and later reads report a present null entry.
type Loader[V any] func(ctx context.Context) (v V, ok bool, err error)

// Cache is a named cache region over a shared store.
// V is the caller's value type. Serialization is handled by a pluggable Codec[V].
type Cache[V any] interface {
	Name() string
	// Native returns the backing store of this region.
	Native() pr.Store

	// Get reads key without decoding a null entry away.
	Get(ctx context.Context, key string) (Value[V], error)
	// GetValue reads key; absent and null entries both return ok=false.
	GetValue(ctx context.Context, key string) (v V, ok bool, err error)
	// GetOrLoad returns the cached value or computes it with load. At most one
	// load runs per key at a time across every process sharing the store.
	GetOrLoad(ctx context.Context, key string, load Loader[V]) (v V, ok bool, err error)

	Put(ctx context.Context, key string, value V) error
	PutNull(ctx context.Context, key string) error
	// PutIfAbsent writes value only if key has no entry. It returns the
	// existing entry, or an absent Value when the write took effect.
	PutIfAbsent(ctx context.Context, key string, value V) (prev Value[V], err error)
	Evict(ctx context.Context, key string) error
	Clear(ctx context.Context) error

	Hits() uint64
	Misses() uint64
	Stats() Stats

	Close(ctx context.Context) error
}

// EntryPolicy is the expiry applied on writes. Zero fields disable a limit.
type EntryPolicy struct {
	TTL     time.Duration // absolute lifetime from write
	MaxIdle time.Duration // max time between accesses
}

func (p EntryPolicy) expiry() pr.Expiry {
	return pr.Expiry{TTL: p.TTL, MaxIdle: p.MaxIdle}
}

// LoadPolicy selects the expiry for values written by GetOrLoad.
type LoadPolicy uint8

const (
	// LoadPolicyApply writes loaded values with the EntryPolicy, like Put.
	LoadPolicyApply LoadPolicy = iota
	// LoadPolicyNone writes loaded values without expiry.
	LoadPolicyNone
)

// Options configure a cache. Only Store and Codec are required.
type Options[V any] struct {
	// Required
	Store pr.Store
	Codec codec.Codec[V]

	Policy      EntryPolicy
	LoadPolicy  LoadPolicy    // default LoadPolicyApply
	LockTimeout time.Duration // bound on waiting for the per-key lock; 0 => none
	LoadTimeout time.Duration // bound on a single loader run; 0 => none

	Logger  Logger       // if nil, NopLogger is used
	Hooks   Hooks        // if nil, NopHooks is used
	Metrics Metrics      // if nil, NopMetrics is used
	Tracer  trace.Tracer // if nil, a no-op tracer is used

	// DisableCoalescing makes every goroutine of this process take the store
	// lock itself instead of sharing an in-flight load.
	DisableCoalescing bool
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
