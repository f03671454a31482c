// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    LockAcquiredEvery: 100, // sample logs: ~every 100th acquisition
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	users, _ := lockcache.New[User](lockcache.Options[User]{
//	    Store: store,
//	    Codec: codec.JSON[User]{},
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/lockcache"
)

// Hooks forwards events to inner on worker goroutines. Events are dropped
// when the queue is full so the cache never blocks on a slow hook.
type Hooks struct {
	inner   lockcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ lockcache.Hooks = (*Hooks)(nil)

func New(inner lockcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped returns the number of events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// lost the race with Close
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) LoadShared(k string) { h.try(func() { h.inner.LoadShared(k) }) }
func (h *Hooks) LockAcquired(k string, wait time.Duration) {
	h.try(func() { h.inner.LockAcquired(k, wait) })
}
func (h *Hooks) LoadFailed(k string, err error)    { h.try(func() { h.inner.LoadFailed(k, err) }) }
func (h *Hooks) ReleaseFailed(k string, err error) { h.try(func() { h.inner.ReleaseFailed(k, err) }) }
func (h *Hooks) CorruptEntry(k string, err error)  { h.try(func() { h.inner.CorruptEntry(k, err) }) }
