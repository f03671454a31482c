package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/lockcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	LockAcquiredEvery uint64
	LoadSharedEvery   uint64
	// Only lock waits at least this long are logged.
	SlowLockWait time.Duration
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	lockCtr   atomic.Uint64
	sharedCtr atomic.Uint64
}

var _ lockcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) LockAcquired(key string, wait time.Duration) {
	if h.l == nil || wait < h.opts.SlowLockWait || !sample(h.opts.LockAcquiredEvery, &h.lockCtr) {
		return
	}
	h.l.Debug("lockcache.lock_acquired",
		"key", h.redact(key),
		"wait", wait)
}

func (h *Hooks) LoadShared(key string) {
	if h.l == nil || !sample(h.opts.LoadSharedEvery, &h.sharedCtr) {
		return
	}
	h.l.Debug("lockcache.load_shared",
		"key", h.redact(key))
}

func (h *Hooks) LoadFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("lockcache.load_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) ReleaseFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("lockcache.release_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) CorruptEntry(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("lockcache.corrupt_entry",
		"key", h.redact(key),
		"err", err)
}
