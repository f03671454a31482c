package local

import (
	"errors"
	"fmt"
	"time"

	bc "github.com/allegro/bigcache/v3"
	rc "github.com/dgraph-io/ristretto"
	"github.com/maypok86/otter/v2"
)

// ErrRejected is returned by an Engine that did not keep a write, for
// example when the entry exceeds its capacity.
var ErrRejected = errors.New("local provider: engine rejected write")

// Engine is the byte-level in-memory map a Store sits on. Engines may evict
// entries at any time; they never interpret the bytes. A miss is (nil, false,
// nil); an error means the engine failed, not that the key is absent.
type Engine interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Del(key string)
	Clear()
	Close() error
}

// Otter is a W-TinyLFU engine bounded by entry count.
type Otter struct {
	c *otter.Cache[string, []byte]
}

func NewOtter(maxSize int) (*Otter, error) {
	if maxSize <= 0 {
		return nil, errors.New("otter engine: maxSize must be > 0")
	}
	c, err := otter.New[string, []byte](&otter.Options[string, []byte]{
		MaximumSize: maxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create otter cache: %w", err)
	}
	return &Otter{c: c}, nil
}

func (o *Otter) Get(key string) ([]byte, bool, error) {
	v, ok := o.c.GetIfPresent(key)
	return v, ok, nil
}

func (o *Otter) Set(key string, value []byte) error {
	o.c.Set(key, value)
	return nil
}

func (o *Otter) Del(key string) { o.c.Invalidate(key) }
func (o *Otter) Clear()         { o.c.InvalidateAll() }
func (o *Otter) Close() error   { return nil }

// Ristretto is a cost-bounded engine. Each entry costs its byte length.
type Ristretto struct {
	c       *rc.Cache
	maxCost int64
}

type RistrettoConfig struct {
	NumCounters int64
	MaxCost     int64 // total bytes
	BufferItems int64
}

func NewRistretto(cfg RistrettoConfig) (*Ristretto, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto engine: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		// cost is exactly len(value)
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Ristretto{c: c, maxCost: cfg.MaxCost}, nil
}

func (r *Ristretto) Get(key string) ([]byte, bool, error) {
	v, ok := r.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		r.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set waits for the write buffer and then checks that the entry was
// admitted. Ristretto drops writes on buffer contention and rejects them in
// the background when they do not fit; both surface as ErrRejected.
func (r *Ristretto) Set(key string, value []byte) error {
	cost := int64(len(value))
	if cost > r.maxCost {
		return fmt.Errorf("%w: %d bytes over max cost %d", ErrRejected, cost, r.maxCost)
	}
	if !r.c.Set(key, value, cost) {
		return fmt.Errorf("%w: ristretto dropped %q", ErrRejected, key)
	}
	r.c.Wait()
	if _, ok := r.c.Get(key); !ok {
		return fmt.Errorf("%w: ristretto did not admit %q", ErrRejected, key)
	}
	return nil
}

func (r *Ristretto) Del(key string) { r.c.Del(key) }
func (r *Ristretto) Clear()         { r.c.Clear() }

func (r *Ristretto) Close() error {
	r.c.Wait()
	r.c.Close()
	return nil
}

// BigCache is a GC-friendly engine for large entry counts. Its LifeWindow acts
// as an upper bound on every entry's lifetime on top of the Store's policy.
type BigCache struct {
	c *bc.BigCache
}

type BigCacheConfig struct {
	LifeWindow         time.Duration // 0 => 24h
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func NewBigCache(cfg BigCacheConfig) (*BigCache, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = 24 * time.Hour
	}
	conf := bc.DefaultConfig(life)
	conf.Verbose = false
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &BigCache{c: c}, nil
}

func (b *BigCache) Get(key string) ([]byte, bool, error) {
	v, err := b.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("bigcache engine: %w", err)
	}
	return v, true, nil
}

func (b *BigCache) Set(key string, value []byte) error { return b.c.Set(key, value) }

func (b *BigCache) Del(key string) {
	// ErrEntryNotFound on a missing key is fine
	_ = b.c.Delete(key)
}

func (b *BigCache) Clear()       { _ = b.c.Reset() }
func (b *BigCache) Close() error { return b.c.Close() }
