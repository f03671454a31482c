// Package local is an in-process provider.Store. Locks are process-wide only,
// so it fits single-instance deployments and tests.
package local

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/lockcache/internal/wire"
	pr "github.com/unkn0wn-root/lockcache/provider"
)

const defaultStripes = 64

var ErrNoEngine = errors.New("local provider: nil engine")

type Config struct {
	Name    string
	Engine  Engine           // required; must be comparable (pointer engines are)
	Stripes int              // write stripes; 0 => 64
	Now     func() time.Time // clock; nil => time.Now
}

// Store keeps entries in an Engine wrapped in an expiry envelope. Expiry is
// enforced when an entry is read.
//
// Several Stores may share one Engine. Keys are prefixed with the region
// name and a clear epoch, so regions never see each other's entries and
// Clear drops only its own region. Stores with the same name on the same
// Engine are one region and share its locks. The Engine is closed together
// with the last Store using it.
type Store struct {
	name   string
	eng    Engine
	now    func() time.Time
	reg    *region
	closed sync.Once
}

var _ pr.Store = (*Store)(nil)

// region is the state shared by Stores of one name on one Engine.
type region struct {
	prefix string
	epoch  atomic.Uint64
	mu     []sync.Mutex
	locks  keyLocks
}

type engineRef struct {
	stores  int
	regions map[string]*region
}

var shared = struct {
	mu sync.Mutex
	m  map[Engine]*engineRef
}{m: make(map[Engine]*engineRef)}

func New(cfg Config) (*Store, error) {
	if cfg.Engine == nil {
		return nil, ErrNoEngine
	}
	n := cfg.Stripes
	if n <= 0 {
		n = defaultStripes
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	shared.mu.Lock()
	defer shared.mu.Unlock()
	ref := shared.m[cfg.Engine]
	if ref == nil {
		ref = &engineRef{regions: make(map[string]*region)}
		shared.m[cfg.Engine] = ref
	}
	reg := ref.regions[cfg.Name]
	if reg == nil {
		reg = &region{
			prefix: strconv.Quote(cfg.Name) + ":",
			mu:     make([]sync.Mutex, n),
			locks:  keyLocks{m: make(map[string]*keyLock)},
		}
		ref.regions[cfg.Name] = reg
	}
	ref.stores++

	return &Store{name: cfg.Name, eng: cfg.Engine, now: now, reg: reg}, nil
}

func (s *Store) Name() string { return s.name }

// engineKey is the key an entry lives under in the Engine.
func (s *Store) engineKey(key string) string {
	return s.reg.prefix + strconv.FormatUint(s.reg.epoch.Load(), 10) + ":" + key
}

func (s *Store) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.reg.mu[h.Sum32()%uint32(len(s.reg.mu))]
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	m := s.stripe(key)
	m.Lock()
	defer m.Unlock()
	return s.load(s.engineKey(key), s.now().UnixMilli())
}

// load reads a live entry and records the access. Caller holds the stripe.
func (s *Store) load(ek string, now int64) ([]byte, bool, error) {
	raw, ok, err := s.eng.Get(ek)
	if err != nil {
		return nil, false, fmt.Errorf("local provider: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	env, err := wire.DecodeEnvelope(raw)
	if err != nil {
		s.eng.Del(ek)
		return nil, false, fmt.Errorf("local provider: %w", err)
	}
	if env.Expired(now) {
		s.eng.Del(ek)
		return nil, false, nil
	}
	if env.Idle > 0 {
		env.Access = now
		if err := s.eng.Set(ek, wire.EncodeEnvelope(env)); err != nil {
			return nil, false, err
		}
	}
	return env.Payload, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, exp pr.Expiry) error {
	m := s.stripe(key)
	m.Lock()
	defer m.Unlock()
	return s.put(s.engineKey(key), value, exp, s.now().UnixMilli())
}

func (s *Store) put(ek string, value []byte, exp pr.Expiry, now int64) error {
	env := wire.Envelope{Access: now, Payload: value}
	if exp.TTL > 0 {
		env.Deadline = now + millis(exp.TTL)
	}
	if exp.MaxIdle > 0 {
		env.Idle = millis(exp.MaxIdle)
	}
	return s.eng.Set(ek, wire.EncodeEnvelope(env))
}

func (s *Store) SetNX(_ context.Context, key string, value []byte, exp pr.Expiry) ([]byte, bool, error) {
	m := s.stripe(key)
	m.Lock()
	defer m.Unlock()
	ek := s.engineKey(key)
	now := s.now().UnixMilli()
	prev, ok, err := s.load(ek, now)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return prev, false, nil
	}
	if err := s.put(ek, value, exp, now); err != nil {
		return nil, false, err
	}
	return nil, true, nil
}

func (s *Store) Del(_ context.Context, key string) error {
	m := s.stripe(key)
	m.Lock()
	defer m.Unlock()
	s.eng.Del(s.engineKey(key))
	return nil
}

// Clear moves the region to a new epoch; entries of the old one are no
// longer addressable and age out through engine eviction. When the region is
// the only user of its Engine the engine is wiped as well.
func (s *Store) Clear(context.Context) error {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	s.reg.epoch.Add(1)
	if ref := shared.m[s.eng]; ref != nil && len(ref.regions) == 1 {
		s.eng.Clear()
	}
	return nil
}

// Close detaches the Store from its Engine and closes the Engine once no
// Store uses it. Repeated calls are no-ops.
func (s *Store) Close(context.Context) error {
	var err error
	s.closed.Do(func() {
		shared.mu.Lock()
		ref := shared.m[s.eng]
		last := false
		if ref != nil {
			ref.stores--
			if ref.stores <= 0 {
				delete(shared.m, s.eng)
				last = true
			}
		}
		shared.mu.Unlock()
		if last {
			err = s.eng.Close()
		}
	})
	return err
}

func millis(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	return ms
}
