package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/lockcache/provider"
)

var (
	ErrNilClient = errors.New("redis provider: nil client")
	ErrNoName    = errors.New("redis provider: region name is required")
)

const (
	defaultLockLease = 30 * time.Second
	defaultLockRetry = 100 * time.Millisecond
	keyPrefix        = "lockcache:"
)

// Redis stores one cache region in Redis.
//
// Layout (the {name} hash tag pins a region to one cluster slot):
//
//	lockcache:{name}:e:<key>     hash {v: value, i: max idle ms, e: deadline ms}
//	lockcache:{name}:idx         zset of keys scored by expiry ms (for Clear)
//	lockcache:{name}:lock:<key>  lock token with lease
//	lockcache:{name}:unlock      pub/sub channel, payload = released key
type Redis struct {
	rdb         goredis.UniversalClient
	name        string
	closeClient bool

	lease time.Duration
	retry time.Duration
	now   func() time.Time

	entryPrefix string
	index       string
	lockPrefix  string
	channel     string
}

var _ pr.Store = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	Name        string        // region name; required
	CloseClient bool          // set true only if this provider exclusively owns the client
	LockLease   time.Duration // 0 => 30s; renewed by a watchdog while held
	LockRetry   time.Duration // 0 => 100ms; poll interval while waiting for a lock
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.Name == "" {
		return nil, ErrNoName
	}
	base := keyPrefix + "{" + cfg.Name + "}:"
	p := &Redis{
		rdb:         cfg.Client,
		name:        cfg.Name,
		closeClient: cfg.CloseClient,
		lease:       cfg.LockLease,
		retry:       cfg.LockRetry,
		now:         time.Now,
		entryPrefix: base + "e:",
		index:       base + "idx",
		lockPrefix:  base + "lock:",
		channel:     base + "unlock",
	}
	if p.lease <= 0 {
		p.lease = defaultLockLease
	}
	if p.retry <= 0 {
		p.retry = defaultLockRetry
	}
	return p, nil
}

func (p *Redis) Name() string { return p.name }

// Client returns the underlying redis client.
func (p *Redis) Client() goredis.UniversalClient { return p.rdb }

func (p *Redis) entryKey(key string) string { return p.entryPrefix + key }
func (p *Redis) lockKey(key string) string  { return p.lockPrefix + key }
func (p *Redis) nowMs() int64               { return p.now().UnixMilli() }

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s, err := getScript.Run(ctx, p.rdb, []string{p.entryKey(key), p.index}, p.nowMs(), key).Text()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return []byte(s), true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, exp pr.Expiry) error {
	return setScript.Run(ctx, p.rdb, []string{p.entryKey(key), p.index}, p.writeArgs(key, value, exp)...).Err()
}

func (p *Redis) SetNX(ctx context.Context, key string, value []byte, exp pr.Expiry) ([]byte, bool, error) {
	res, err := setNXScript.Run(ctx, p.rdb, []string{p.entryKey(key), p.index}, p.writeArgs(key, value, exp)...).Slice()
	if err != nil {
		return nil, false, err
	}
	if len(res) == 0 {
		return nil, false, fmt.Errorf("redis provider: unexpected setnx reply %v", res)
	}
	if stored, _ := res[0].(int64); stored == 1 {
		return nil, true, nil
	}
	if len(res) < 2 {
		return nil, false, fmt.Errorf("redis provider: unexpected setnx reply %v", res)
	}
	switch prev := res[1].(type) {
	case string:
		return []byte(prev), false, nil
	case []byte:
		return prev, false, nil
	default:
		return nil, false, fmt.Errorf("redis provider: unexpected setnx value %T", prev)
	}
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return delScript.Run(ctx, p.rdb, []string{p.entryKey(key), p.index}, key).Err()
}

func (p *Redis) Clear(ctx context.Context) error {
	return clearScript.Run(ctx, p.rdb, []string{p.index}, p.nowMs(), p.entryPrefix).Err()
}

// writeArgs: value, now ms, ttl ms, idle ms, member
func (p *Redis) writeArgs(key string, value []byte, exp pr.Expiry) []any {
	return []any{value, p.nowMs(), millis(exp.TTL), millis(exp.MaxIdle), key}
}

// millis rounds positive sub-millisecond durations up so they still expire.
func millis(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	return ms
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
