// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level configuration of one cache region.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Cache   CacheConfig   `yaml:"cache"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig selects and configures the backing store.
type StoreConfig struct {
	Type  string      `yaml:"type"` // "redis" or "local"
	Redis RedisConfig `yaml:"redis"`
	Local LocalConfig `yaml:"local"`
}

// RedisConfig holds client and lock settings. Several addrs select a cluster client.
type RedisConfig struct {
	Addrs       []string      `yaml:"addrs"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	LockLease   time.Duration `yaml:"lock_lease"`
	LockRetry   time.Duration `yaml:"lock_retry"`
}

// LocalConfig holds in-process store settings.
type LocalConfig struct {
	Engine   string `yaml:"engine"`    // "otter", "ristretto" or "bigcache"
	MaxSize  int    `yaml:"max_size"`  // otter: max entries
	MaxBytes int64  `yaml:"max_bytes"` // ristretto: max total bytes
}

// CacheConfig holds region and load settings.
type CacheConfig struct {
	Name        string        `yaml:"name"`
	TTL         time.Duration `yaml:"ttl"`      // 0 = no expiry
	MaxIdle     time.Duration `yaml:"max_idle"` // 0 = no idle eviction
	LockTimeout time.Duration `yaml:"lock_timeout"`
	LoadTimeout time.Duration `yaml:"load_timeout"`
	LoadPolicy  string        `yaml:"load_policy"` // "apply" or "none"
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Default returns the configuration used for fields a file leaves unset.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Type: "redis",
			Redis: RedisConfig{
				Addrs:       []string{"127.0.0.1:6379"},
				DialTimeout: 5 * time.Second,
				LockLease:   30 * time.Second,
				LockRetry:   100 * time.Millisecond,
			},
			Local: LocalConfig{
				Engine:   "otter",
				MaxSize:  10_000,
				MaxBytes: 64 << 20,
			},
		},
		Cache: CacheConfig{
			Name:       "default",
			LoadPolicy: "apply",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Namespace: "lockcache",
		},
	}
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML config bytes on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(expandEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Type {
	case "redis":
		if len(c.Store.Redis.Addrs) == 0 {
			errs = append(errs, errors.New("store.redis.addrs is required"))
		}
	case "local":
		switch c.Store.Local.Engine {
		case "otter", "ristretto", "bigcache":
		default:
			errs = append(errs, fmt.Errorf("store.local.engine: unknown engine %q", c.Store.Local.Engine))
		}
	default:
		errs = append(errs, fmt.Errorf("store.type: unknown store %q", c.Store.Type))
	}
	if c.Cache.Name == "" {
		errs = append(errs, errors.New("cache.name is required"))
	}
	for name, d := range map[string]time.Duration{
		"cache.ttl":          c.Cache.TTL,
		"cache.max_idle":     c.Cache.MaxIdle,
		"cache.lock_timeout": c.Cache.LockTimeout,
		"cache.load_timeout": c.Cache.LoadTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	switch c.Cache.LoadPolicy {
	case "apply", "none":
	default:
		errs = append(errs, fmt.Errorf("cache.load_policy: unknown policy %q", c.Cache.LoadPolicy))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
