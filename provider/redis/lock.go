package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	pr "github.com/unkn0wn-root/lockcache/provider"
)

// Lock acquires the cluster-wide lock for key.
//
// The lock is a lease (SET NX PX) owned by a random token. Waiters subscribe to
// the region's unlock channel and retry when the key is released, with a poll
// interval as fallback for missed messages and crashed holders. While held, a
// watchdog keeps extending the lease so long loads do not lose the lock.
func (p *Redis) Lock(ctx context.Context, key string) (pr.Lock, error) {
	token := uuid.NewString()
	lk := p.lockKey(key)

	ok, err := p.tryLock(ctx, lk, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := p.waitLock(ctx, key, lk, token); err != nil {
			return nil, err
		}
	}
	return p.hold(key, lk, token), nil
}

func (p *Redis) tryLock(ctx context.Context, lk, token string) (bool, error) {
	return p.rdb.SetNX(ctx, lk, token, p.lease).Result()
}

func (p *Redis) waitLock(ctx context.Context, key, lk, token string) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()
	// wait for the subscription to be confirmed so a release between our
	// failed attempt and SUBSCRIBE is not lost
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	msgs := sub.Channel()

	t := time.NewTicker(p.retry)
	defer t.Stop()

	for {
		ok, err := p.tryLock(ctx, lk, token)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	wait:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case m, open := <-msgs:
				if !open {
					msgs = nil // rely on polling
					continue
				}
				if m.Payload == key {
					break wait
				}
			case <-t.C:
				break wait
			}
		}
	}
}

type lock struct {
	p     *Redis
	key   string
	lk    string
	token string

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (p *Redis) hold(key, lk, token string) *lock {
	l := &lock{
		p:     p,
		key:   key,
		lk:    lk,
		token: token,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.watchdog()
	return l
}

func (l *lock) watchdog() {
	defer close(l.done)
	every := l.p.lease / 3
	if every <= 0 {
		every = l.p.lease
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			n, err := renewScript.Run(ctx, l.p.rdb, []string{l.lk}, l.token, l.p.lease.Milliseconds()).Int()
			cancel()
			if err == nil && n == 0 {
				return // ownership lost; Unlock will report it
			}
		}
	}
}

func (l *lock) Unlock(ctx context.Context) error {
	err := pr.ErrLockNotHeld
	l.once.Do(func() {
		close(l.stop)
		<-l.done

		n, e := unlockScript.Run(ctx, l.p.rdb, []string{l.lk}, l.token, l.p.channel, l.key).Int()
		switch {
		case e != nil:
			err = e
		case n == 0:
			err = pr.ErrLockNotHeld
		default:
			err = nil
		}
	})
	return err
}
