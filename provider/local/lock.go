package local

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	pr "github.com/unkn0wn-root/lockcache/provider"
)

// keyLocks hands out one binary semaphore per key. Entries are refcounted and
// dropped when the last holder or waiter leaves.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	sem  *semaphore.Weighted
	refs int
}

func (kl *keyLocks) ref(key string) *keyLock {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	l := kl.m[key]
	if l == nil {
		l = &keyLock{sem: semaphore.NewWeighted(1)}
		kl.m[key] = l
	}
	l.refs++
	return l
}

func (kl *keyLocks) unref(key string, l *keyLock) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(kl.m, key)
	}
}

func (s *Store) Lock(ctx context.Context, key string) (pr.Lock, error) {
	l := s.reg.locks.ref(key)
	if err := l.sem.Acquire(ctx, 1); err != nil {
		s.reg.locks.unref(key, l)
		return nil, err
	}
	return &held{kl: &s.reg.locks, key: key, l: l}, nil
}

type held struct {
	kl   *keyLocks
	key  string
	l    *keyLock
	once sync.Once
}

func (h *held) Unlock(context.Context) error {
	err := pr.ErrLockNotHeld
	h.once.Do(func() {
		h.l.sem.Release(1)
		h.kl.unref(h.key, h.l)
		err = nil
	})
	return err
}
