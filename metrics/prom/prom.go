package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/lockcache"
)

// Adapter implements lockcache.Metrics and exports Prometheus counters and
// histograms labelled by cache name. Safe for concurrent use; all Prometheus
// metric types are goroutine-safe.
type Adapter struct {
	hits       *prometheus.CounterVec
	misses     *prometheus.CounterVec
	loads      *prometheus.CounterVec
	loadErrors *prometheus.CounterVec
	loadTime   *prometheus.HistogramVec
	lockWait   *prometheus.HistogramVec
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, []string{"cache"})
	}
	histogram := func(name, help string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"cache"})
	}
	a := &Adapter{
		hits:       counter("hits_total", "Cache hits"),
		misses:     counter("misses_total", "Cache misses"),
		loads:      counter("loads_total", "Loader executions"),
		loadErrors: counter("load_errors_total", "Loader executions that failed"),
		loadTime:   histogram("load_duration_seconds", "Loader execution time"),
		lockWait:   histogram("lock_wait_seconds", "Time spent acquiring the per-key lock"),
	}
	reg.MustRegister(a.hits, a.misses, a.loads, a.loadErrors, a.loadTime, a.lockWait)
	return a
}

func (a *Adapter) Hit(cache string)  { a.hits.WithLabelValues(cache).Inc() }
func (a *Adapter) Miss(cache string) { a.misses.WithLabelValues(cache).Inc() }

// Load records one loader execution.
func (a *Adapter) Load(cache string, d time.Duration, err error) {
	a.loads.WithLabelValues(cache).Inc()
	if err != nil {
		a.loadErrors.WithLabelValues(cache).Inc()
	}
	a.loadTime.WithLabelValues(cache).Observe(d.Seconds())
}

func (a *Adapter) LockWait(cache string, d time.Duration) {
	a.lockWait.WithLabelValues(cache).Observe(d.Seconds())
}

// Compile-time check: ensure Adapter implements lockcache.Metrics.
var _ lockcache.Metrics = (*Adapter)(nil)
