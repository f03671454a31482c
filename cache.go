package lockcache

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/lockcache/codec"
	"github.com/unkn0wn-root/lockcache/internal/wire"
	pr "github.com/unkn0wn-root/lockcache/provider"
)

const tracerName = "github.com/unkn0wn-root/lockcache"

type cache[V any] struct {
	name    string
	store   pr.Store
	codec   codec.Codec[V]
	exp     pr.Expiry // Put, PutNull, PutIfAbsent
	loadExp pr.Expiry // GetOrLoad writes

	lockTimeout time.Duration
	loadTimeout time.Duration

	log     Logger
	hooks   Hooks
	metrics Metrics
	tracer  trace.Tracer

	coalesce bool
	sf       singleflight.Group

	stats counters
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	if opts.Codec == nil {
		return nil, ErrNoCodec
	}
	if opts.Policy.TTL < 0 || opts.Policy.MaxIdle < 0 {
		return nil, fmt.Errorf("lockcache: negative entry policy (ttl=%s, max_idle=%s)", opts.Policy.TTL, opts.Policy.MaxIdle)
	}
	if opts.LockTimeout < 0 || opts.LoadTimeout < 0 {
		return nil, fmt.Errorf("lockcache: negative timeout (lock=%s, load=%s)", opts.LockTimeout, opts.LoadTimeout)
	}

	c := &cache[V]{
		name:        opts.Store.Name(),
		store:       opts.Store,
		codec:       opts.Codec,
		exp:         opts.Policy.expiry(),
		lockTimeout: opts.LockTimeout,
		loadTimeout: opts.LoadTimeout,
		coalesce:    !opts.DisableCoalescing,
	}
	switch opts.LoadPolicy {
	case LoadPolicyApply:
		c.loadExp = c.exp
	case LoadPolicyNone:
	default:
		return nil, fmt.Errorf("lockcache: unknown load policy %d", opts.LoadPolicy)
	}

	// defaults
	c.log = orDefault[Logger](opts.Logger, NopLogger{})
	c.hooks = orDefault[Hooks](opts.Hooks, NopHooks{})
	c.metrics = orDefault[Metrics](opts.Metrics, NopMetrics{})
	c.tracer = opts.Tracer
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c, nil
}

func (c *cache[V]) Name() string     { return c.name }
func (c *cache[V]) Native() pr.Store { return c.store }

func (c *cache[V]) Hits() uint64   { return c.stats.hits.Load() }
func (c *cache[V]) Misses() uint64 { return c.stats.misses.Load() }
func (c *cache[V]) Stats() Stats   { return c.stats.snapshot() }

func (c *cache[V]) hit() {
	c.stats.recordHit()
	c.metrics.Hit(c.name)
}

func (c *cache[V]) miss() {
	c.stats.recordMiss()
	c.metrics.Miss(c.name)
}

func (c *cache[V]) Close(ctx context.Context) error {
	return c.store.Close(ctx)
}

func (c *cache[V]) Get(ctx context.Context, key string) (Value[V], error) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return Value[V]{}, err
	}
	if !ok {
		c.miss()
		return Absent[V](), nil
	}
	// presence, not payload, defines a hit
	c.hit()
	return c.decode(key, raw)
}

func (c *cache[V]) GetValue(ctx context.Context, key string) (V, bool, error) {
	x, err := c.Get(ctx, key)
	if err != nil {
		var zero V
		return zero, false, err
	}
	v, ok := x.Get()
	return v, ok, nil
}

func (c *cache[V]) decode(key string, raw []byte) (Value[V], error) {
	x, err := fromStoreValue(c.codec, raw)
	if err != nil {
		c.hooks.CorruptEntry(key, err)
		c.log.Warn("entry does not decode as cache value type", Fields{"cache": c.name, "key": key, "err": err})
		return Value[V]{}, &TypeMismatchError{Key: key, Err: err}
	}
	return x, nil
}

func (c *cache[V]) Put(ctx context.Context, key string, value V) error {
	b, err := toStoreValue(c.codec, value, true)
	if err != nil {
		return fmt.Errorf("lockcache: encode %q: %w", key, err)
	}
	return c.store.Set(ctx, key, b, c.exp)
}

func (c *cache[V]) PutNull(ctx context.Context, key string) error {
	return c.store.Set(ctx, key, wire.EncodeNull(), c.exp)
}

func (c *cache[V]) PutIfAbsent(ctx context.Context, key string, value V) (Value[V], error) {
	b, err := toStoreValue(c.codec, value, true)
	if err != nil {
		return Value[V]{}, fmt.Errorf("lockcache: encode %q: %w", key, err)
	}
	prev, stored, err := c.store.SetNX(ctx, key, b, c.exp)
	if err != nil {
		return Value[V]{}, err
	}
	if stored {
		return Absent[V](), nil
	}
	return c.decode(key, prev)
}

func (c *cache[V]) Evict(ctx context.Context, key string) error {
	return c.store.Del(ctx, key)
}

func (c *cache[V]) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.log.Info("cache cleared", Fields{"cache": c.name})
	return nil
}
