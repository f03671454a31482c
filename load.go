package lockcache

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// GetOrLoad runs the double-checked load:
//
//	read          -> hit: return
//	miss          -> lock(key)
//	re-read       -> populated meanwhile: unlock, return it
//	load; write   -> unlock, return the loaded value
//
// Goroutines of one process missing on the same key share a single pass
// unless coalescing is disabled. The shared pass keeps the first caller's
// context values but not its cancellation, so one caller giving up never
// fails the others; it is bounded by LockTimeout and LoadTimeout. Every
// caller stops waiting when its own ctx is done.
func (c *cache[V]) GetOrLoad(ctx context.Context, key string, load Loader[V]) (V, bool, error) {
	var zero V
	if load == nil {
		return zero, false, ErrNoLoader
	}

	ctx, span := c.tracer.Start(ctx, "lockcache.GetOrLoad", trace.WithAttributes(
		attribute.String("lockcache.cache", c.name),
		attribute.String("lockcache.key", key),
	))
	defer span.End()

	x, err := c.getOrLoad(ctx, span, key, load)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	v, ok := x.Get()
	return v, ok, err
}

func (c *cache[V]) getOrLoad(ctx context.Context, span trace.Span, key string, load Loader[V]) (Value[V], error) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return Value[V]{}, err
	}
	if ok {
		c.hit()
		span.SetAttributes(attribute.Bool("lockcache.hit", true))
		return c.decode(key, raw)
	}
	// counted once here, not again after the lock
	c.miss()
	span.SetAttributes(attribute.Bool("lockcache.hit", false))

	if !c.coalesce {
		return c.lockAndLoad(ctx, key, load)
	}
	shared := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(key, func() (any, error) {
		return c.lockAndLoad(shared, key, load)
	})
	select {
	case r := <-ch:
		x, _ := r.Val.(Value[V])
		if r.Shared {
			span.AddEvent("lockcache.shared")
		}
		return x, r.Err
	case <-ctx.Done():
		return Value[V]{}, ctx.Err()
	}
}

// lockAndLoad holds the store lock for key around loadLocked. The lock is
// released on every path; a release failure is joined with the result error.
func (c *cache[V]) lockAndLoad(ctx context.Context, key string, load Loader[V]) (Value[V], error) {
	lctx := ctx
	if c.lockTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, c.lockTimeout)
		defer cancel()
	}

	start := time.Now()
	lk, err := c.store.Lock(lctx, key)
	if err != nil {
		return Value[V]{}, fmt.Errorf("lockcache: lock %q: %w", key, err)
	}
	wait := time.Since(start)
	c.metrics.LockWait(c.name, wait)
	c.hooks.LockAcquired(key, wait)
	c.log.Debug("lock acquired", Fields{"cache": c.name, "key": key, "wait": wait})

	x, err := c.loadLocked(ctx, key, load)

	// release even when ctx is done
	if uerr := lk.Unlock(context.WithoutCancel(ctx)); uerr != nil {
		c.hooks.ReleaseFailed(key, uerr)
		c.log.Warn("lock release failed", Fields{"cache": c.name, "key": key, "err": uerr})
		err = errors.Join(err, fmt.Errorf("lockcache: unlock %q: %w", key, uerr))
	}
	return x, err
}

func (c *cache[V]) loadLocked(ctx context.Context, key string, load Loader[V]) (Value[V], error) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return Value[V]{}, err
	}
	if ok {
		c.hooks.LoadShared(key)
		c.log.Debug("populated while waiting for lock", Fields{"cache": c.name, "key": key})
		return c.decode(key, raw)
	}

	lctx := ctx
	if c.loadTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, c.loadTimeout)
		defer cancel()
	}
	start := time.Now()
	v, vok, err := runLoader(lctx, load)
	c.metrics.Load(c.name, time.Since(start), err)
	if err != nil {
		c.hooks.LoadFailed(key, err)
		c.log.Error("load failed", Fields{"cache": c.name, "key": key, "err": err})
		return Value[V]{}, &ComputeError{Key: key, Loader: load, Err: err}
	}

	b, err := toStoreValue(c.codec, v, vok)
	if err != nil {
		return Value[V]{}, fmt.Errorf("lockcache: encode %q: %w", key, err)
	}
	if err := c.store.Set(ctx, key, b, c.loadExp); err != nil {
		return Value[V]{}, err
	}
	if !vok || isNil(v) {
		return Null[V](), nil
	}
	return Of(v), nil
}

func runLoader[V any](ctx context.Context, load Loader[V]) (v V, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return load(ctx)
}
