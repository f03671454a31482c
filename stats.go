package lockcache

import (
	"sync/atomic"
	"time"
)

// Stats is a snapshot of one cache instance's counters.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// counters are owned by a single cache instance and never reset.
type counters struct {
	hits   atomic.Uint64
	misses atomic.Uint64
}

func (c *counters) recordHit()  { c.hits.Add(1) }
func (c *counters) recordMiss() { c.misses.Add(1) }

func (c *counters) snapshot() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Metrics receives cache events for export. Implementations must be safe for
// concurrent use and cheap; they run on the read path.
type Metrics interface {
	Hit(cache string)
	Miss(cache string)
	// Load is called once per loader execution with its duration and result.
	Load(cache string, d time.Duration, err error)
	// LockWait is the time spent acquiring the per-key lock.
	LockWait(cache string, d time.Duration)
}

// NopMetrics is the default.
type NopMetrics struct{}

func (NopMetrics) Hit(string)                        {}
func (NopMetrics) Miss(string)                       {}
func (NopMetrics) Load(string, time.Duration, error) {}
func (NopMetrics) LockWait(string, time.Duration)    {}

var _ Metrics = NopMetrics{}
