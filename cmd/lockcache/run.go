package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/lockcache"
	"github.com/unkn0wn-root/lockcache/codec"
	asynchook "github.com/unkn0wn-root/lockcache/hooks/async"
	"github.com/unkn0wn-root/lockcache/internal/config"
	lzap "github.com/unkn0wn-root/lockcache/log/zap"
	"github.com/unkn0wn-root/lockcache/metrics/prom"
	pr "github.com/unkn0wn-root/lockcache/provider"
	"github.com/unkn0wn-root/lockcache/provider/local"
	"github.com/unkn0wn-root/lockcache/provider/redis"
	"github.com/unkn0wn-root/lockcache/sloghooks"
)

var errUsage = errors.New("bad command line; see -h")

func run(configPath string, args []string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	zl, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer zl.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	hooks := asynchook.New(sloghooks.New(slog.New(slog.NewTextHandler(os.Stderr, nil)), sloghooks.Options{}), 1, 256)
	defer hooks.Close()

	opts := lockcache.Options[string]{
		Store: store,
		Codec: codec.String{},
		Policy: lockcache.EntryPolicy{
			TTL:     cfg.Cache.TTL,
			MaxIdle: cfg.Cache.MaxIdle,
		},
		LockTimeout: cfg.Cache.LockTimeout,
		LoadTimeout: cfg.Cache.LoadTimeout,
		Logger:      lzap.New(zl),
		Hooks:       hooks,
	}
	if cfg.Cache.LoadPolicy == "none" {
		opts.LoadPolicy = lockcache.LoadPolicyNone
	}
	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		opts.Metrics = prom.New(reg, cfg.Metrics.Namespace, "", nil)
	}

	cache, err := lockcache.New[string](opts)
	if err != nil {
		_ = store.Close(ctx)
		return err
	}
	defer cache.Close(context.WithoutCancel(ctx))

	zl.Debug("cache opened", zap.String("cache", cache.Name()), zap.String("store", cfg.Store.Type))

	if err := exec(ctx, cache, args, out); err != nil {
		return err
	}

	st := cache.Stats()
	zl.Info("done", zap.String("cache", cache.Name()), zap.Uint64("hits", st.Hits), zap.Uint64("misses", st.Misses))
	if reg != nil {
		return dumpMetrics(reg, out)
	}
	return nil
}

func exec(ctx context.Context, cache lockcache.Cache[string], args []string, out io.Writer) error {
	need := func(n int) error {
		if len(args)-1 != n {
			return fmt.Errorf("%s: want %d argument(s): %w", args[0], n, errUsage)
		}
		return nil
	}
	switch args[0] {
	case "get":
		if err := need(1); err != nil {
			return err
		}
		x, err := cache.Get(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, describe(x))
	case "put":
		if err := need(2); err != nil {
			return err
		}
		return cache.Put(ctx, args[1], args[2])
	case "put-null":
		if err := need(1); err != nil {
			return err
		}
		return cache.PutNull(ctx, args[1])
	case "put-if-absent":
		if err := need(2); err != nil {
			return err
		}
		prev, err := cache.PutIfAbsent(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, describe(prev))
	case "load":
		if err := need(2); err != nil {
			return err
		}
		v, ok, err := cache.GetOrLoad(ctx, args[1], func(context.Context) (string, bool, error) {
			return args[2], true, nil
		})
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "(null)")
			return nil
		}
		fmt.Fprintln(out, v)
	case "evict":
		if err := need(1); err != nil {
			return err
		}
		return cache.Evict(ctx, args[1])
	case "clear":
		if err := need(0); err != nil {
			return err
		}
		return cache.Clear(ctx)
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
	return nil
}

func describe(x lockcache.Value[string]) string {
	switch {
	case !x.Present():
		return "(absent)"
	case x.IsNull():
		return "(null)"
	}
	v, _ := x.Get()
	return v
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	}
	lvl, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc.Level = lvl
	return zc.Build()
}

func openStore(cfg *config.Config) (pr.Store, error) {
	switch cfg.Store.Type {
	case "redis":
		rc := cfg.Store.Redis
		rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:       rc.Addrs,
			Username:    rc.Username,
			Password:    rc.Password,
			DB:          rc.DB,
			DialTimeout: rc.DialTimeout,
		})
		s, err := redis.New(redis.Config{
			Client:      rdb,
			Name:        cfg.Cache.Name,
			CloseClient: true,
			LockLease:   rc.LockLease,
			LockRetry:   rc.LockRetry,
		})
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		return s, nil
	case "local":
		eng, err := newEngine(cfg.Store.Local)
		if err != nil {
			return nil, err
		}
		return local.New(local.Config{Name: cfg.Cache.Name, Engine: eng})
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

func newEngine(cfg config.LocalConfig) (local.Engine, error) {
	switch cfg.Engine {
	case "ristretto":
		return local.NewRistretto(local.RistrettoConfig{
			NumCounters: int64(cfg.MaxSize) * 10,
			MaxCost:     cfg.MaxBytes,
			BufferItems: 64,
		})
	case "bigcache":
		return local.NewBigCache(local.BigCacheConfig{
			HardMaxCacheSizeMB: int(cfg.MaxBytes >> 20),
		})
	default:
		return local.NewOtter(cfg.MaxSize)
	}
}

// dumpMetrics prints counter and histogram-count samples, one per line.
func dumpMetrics(reg *prometheus.Registry, out io.Writer) error {
	mfs, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(out, "%s %g\n", mf.GetName(), m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				fmt.Fprintf(out, "%s_count %d\n", mf.GetName(), m.GetHistogram().GetSampleCount())
			}
		}
	}
	return nil
}
