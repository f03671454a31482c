package redis

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/lockcache/provider"
)

func newTestStore(t *testing.T, name string, mr *miniredis.Miniredis) *Redis {
	t.Helper()
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	p, err := New(Config{Client: rdb, Name: name, LockRetry: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Config{Name: "x"}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("want ErrNilClient, got %v", err)
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	if _, err := New(Config{Client: rdb}); !errors.Is(err, ErrNoName) {
		t.Fatalf("want ErrNoName, got %v", err)
	}
}

func TestGetSetDel(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	p := newTestStore(t, "users", mr)

	if _, ok, err := p.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("empty get: ok=%v err=%v", ok, err)
	}
	if err := p.Set(ctx, "k", []byte("v1"), pr.Expiry{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	b, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || !bytes.Equal(b, []byte("v1")) {
		t.Fatalf("get after set: %q ok=%v err=%v", b, ok, err)
	}
	if !mr.Exists("lockcache:{users}:e:k") {
		t.Fatalf("entry key not namespaced as expected; keys=%v", mr.Keys())
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after Del")
	}
	if err := p.Del(ctx, "missing"); err != nil {
		t.Fatalf("Del missing: %v", err)
	}
}

func TestSetBinaryTransparent(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	p := newTestStore(t, "bin", mr)

	val := []byte{0, 1, 0xff, 0, 'x'}
	if err := p.Set(ctx, "b", val, pr.Expiry{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := p.Get(ctx, "b")
	if err != nil || !ok || !bytes.Equal(got, val) {
		t.Fatalf("binary mismatch: %x ok=%v err=%v", got, ok, err)
	}
}

func TestSetNX(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	p := newTestStore(t, "nx", mr)

	prev, stored, err := p.SetNX(ctx, "k", []byte("first"), pr.Expiry{})
	if err != nil || !stored || prev != nil {
		t.Fatalf("first SetNX: prev=%q stored=%v err=%v", prev, stored, err)
	}
	prev, stored, err = p.SetNX(ctx, "k", []byte("second"), pr.Expiry{})
	if err != nil || stored || !bytes.Equal(prev, []byte("first")) {
		t.Fatalf("second SetNX: prev=%q stored=%v err=%v", prev, stored, err)
	}
	got, _, _ := p.Get(ctx, "k")
	if !bytes.Equal(got, []byte("first")) {
		t.Fatalf("SetNX must not overwrite; got %q", got)
	}
}

func TestClearIsolatesRegions(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	a := newTestStore(t, "a", mr)
	b := newTestStore(t, "b", mr)

	for _, k := range []string{"1", "2", "3"} {
		if err := a.Set(ctx, k, []byte("a"+k), pr.Expiry{}); err != nil {
			t.Fatalf("Set a: %v", err)
		}
	}
	if err := b.Set(ctx, "1", []byte("b1"), pr.Expiry{}); err != nil {
		t.Fatalf("Set b: %v", err)
	}

	if err := a.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for _, k := range []string{"1", "2", "3"} {
		if _, ok, _ := a.Get(ctx, k); ok {
			t.Fatalf("key %q survived Clear", k)
		}
	}
	if got, ok, _ := b.Get(ctx, "1"); !ok || string(got) != "b1" {
		t.Fatalf("other region touched by Clear: %q ok=%v", got, ok)
	}
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	p := newTestStore(t, "ttl", mr)

	if err := p.Set(ctx, "k", []byte("v"), pr.Expiry{TTL: time.Second}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(500 * time.Millisecond)
	if _, ok, _ := p.Get(ctx, "k"); !ok {
		t.Fatalf("entry expired too early")
	}
	mr.FastForward(600 * time.Millisecond)
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("entry should have expired")
	}
}

func TestIdleRefreshedOnRead(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	p := newTestStore(t, "idle", mr)

	if err := p.Set(ctx, "k", []byte("v"), pr.Expiry{MaxIdle: 100 * time.Millisecond}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	for i := 0; i < 3; i++ {
		mr.FastForward(60 * time.Millisecond)
		if _, ok, _ := p.Get(ctx, "k"); !ok {
			t.Fatalf("read %d: entry expired although accessed within idle window", i)
		}
	}
	mr.FastForward(150 * time.Millisecond)
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("entry should expire after idle window")
	}
}

func TestIdleCappedByDeadline(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	p := newTestStore(t, "cap", mr)

	now := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return now }

	exp := pr.Expiry{TTL: 150 * time.Millisecond, MaxIdle: 100 * time.Millisecond}
	if err := p.Set(ctx, "k", []byte("v"), exp); err != nil {
		t.Fatalf("Set: %v", err)
	}
	now = now.Add(160 * time.Millisecond)
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("deadline must win over idle refresh")
	}
}

func TestIndexPrunesExpiredKeys(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	p := newTestStore(t, "prune", mr)

	now := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return now }
	idx := "lockcache:{prune}:idx"

	for _, k := range []string{"a", "b", "c"} {
		if err := p.Set(ctx, k, []byte("v"), pr.Expiry{TTL: 100 * time.Millisecond}); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}
	if err := p.Set(ctx, "keep", []byte("v"), pr.Expiry{}); err != nil {
		t.Fatalf("Set keep: %v", err)
	}
	if got, _ := mr.ZMembers(idx); len(got) != 4 {
		t.Fatalf("index before expiry: %v", got)
	}

	mr.FastForward(200 * time.Millisecond)
	now = now.Add(200 * time.Millisecond)
	if err := p.Set(ctx, "d", []byte("v"), pr.Expiry{TTL: time.Second}); err != nil {
		t.Fatalf("Set d: %v", err)
	}
	got, err := mr.ZMembers(idx)
	if err != nil {
		t.Fatalf("ZMembers: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expired keys left in index: %v", got)
	}

	if err := p.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if mr.Exists(idx) || mr.Exists("lockcache:{prune}:e:keep") || mr.Exists("lockcache:{prune}:e:d") {
		t.Fatalf("Clear left keys behind: %v", mr.Keys())
	}
}

func TestIndexFollowsIdleRefresh(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	p := newTestStore(t, "touch", mr)

	now := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return now }
	idx := "lockcache:{touch}:idx"

	if err := p.Set(ctx, "k", []byte("v"), pr.Expiry{MaxIdle: 100 * time.Millisecond}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	now = now.Add(60 * time.Millisecond)
	if _, ok, _ := p.Get(ctx, "k"); !ok {
		t.Fatalf("entry missing within idle window")
	}
	score, err := mr.ZScore(idx, "k")
	if err != nil {
		t.Fatalf("ZScore: %v", err)
	}
	if want := float64(now.Add(100 * time.Millisecond).UnixMilli()); score != want {
		t.Fatalf("index score = %v, want %v", score, want)
	}
}

func TestLockExcludesAndWakes(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	p := newTestStore(t, "lk", mr)

	l1, err := p.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	acquired := make(chan pr.Lock, 1)
	go func() {
		l2, err := p.Lock(ctx, "k")
		if err != nil {
			t.Errorf("second Lock: %v", err)
			close(acquired)
			return
		}
		acquired <- l2
	}()

	select {
	case <-acquired:
		t.Fatalf("second holder acquired while lock held")
	case <-time.After(50 * time.Millisecond):
	}

	if err := l1.Unlock(ctx); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	select {
	case l2 := <-acquired:
		if l2 == nil {
			t.Fatalf("second Lock failed")
		}
		if err := l2.Unlock(ctx); err != nil {
			t.Fatalf("Unlock l2: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter not woken after release")
	}
}

func TestLockDistinctKeysIndependent(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	p := newTestStore(t, "lk", mr)

	a, err := p.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	defer a.Unlock(ctx)

	cctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	b, err := p.Lock(cctx, "b")
	if err != nil {
		t.Fatalf("Lock b blocked by unrelated key: %v", err)
	}
	_ = b.Unlock(ctx)
}

func TestLockContextTimeout(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	p := newTestStore(t, "lk", mr)

	l, err := p.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer l.Unlock(ctx)

	cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := p.Lock(cctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want DeadlineExceeded, got %v", err)
	}
}

func TestUnlockAfterLossReportsNotHeld(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	p := newTestStore(t, "lk", mr)

	l, err := p.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	mr.Del(p.lockKey("k"))
	if err := l.Unlock(ctx); !errors.Is(err, pr.ErrLockNotHeld) {
		t.Fatalf("want ErrLockNotHeld, got %v", err)
	}
}

func TestUnlockTwice(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	p := newTestStore(t, "lk", mr)

	l, err := p.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := l.Unlock(ctx); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := l.Unlock(ctx); !errors.Is(err, pr.ErrLockNotHeld) {
		t.Fatalf("second Unlock: want ErrLockNotHeld, got %v", err)
	}
}

func TestWatchdogExtendsLease(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	p, err := New(Config{Client: rdb, Name: "wd", LockLease: 90 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l, err := p.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	mr.FastForward(80 * time.Millisecond)
	time.Sleep(60 * time.Millisecond) // let the watchdog renew
	mr.FastForward(50 * time.Millisecond)

	if !mr.Exists(p.lockKey("k")) {
		t.Fatalf("lease was not renewed while held")
	}
	if err := l.Unlock(ctx); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}
