package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// StoreKind selects the cache storage backend.
type StoreKind string

const (
	StoreMemory StoreKind = "memory"
	StoreRedis  StoreKind = "redis"
	StoreSQLite StoreKind = "sqlite"
)

// Config holds every runtime setting of the proxy.
type Config struct {
	ListenAddr string   `env:"PROXY_LISTEN_ADDR" envDefault:":8080"`
	Targets    []string `env:"PROXY_TARGETS" envDefault:"direct://" envSeparator:","`

	CacheName      string    `env:"PROXY_CACHE_NAME" envDefault:"nk-cache"`
	Store          StoreKind `env:"PROXY_STORE" envDefault:"memory"`
	RedisURL       string    `env:"PROXY_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisPrefix    string    `env:"PROXY_REDIS_PREFIX" envDefault:"nkcache"`
	SQLitePath     string    `env:"PROXY_SQLITE_PATH" envDefault:"nk-cache.db"`
	CoalesceMisses bool      `env:"PROXY_COALESCE_MISSES" envDefault:"false"`

	LogLevel slog.Level `env:"PROXY_LOG_LEVEL" envDefault:"info"`

	RequestTimeout      time.Duration `env:"PROXY_REQUEST_TIMEOUT" envDefault:"30s"`
	TransportTimeout    time.Duration `env:"PROXY_TRANSPORT_TIMEOUT" envDefault:"60s"`
	DialTimeout         time.Duration `env:"PROXY_DIAL_TIMEOUT" envDefault:"5s"`
	IdleConnTimeout     time.Duration `env:"PROXY_IDLE_CONN_TIMEOUT" envDefault:"90s"`
	MaxIdleConns        int           `env:"PROXY_MAX_IDLE_CONNS" envDefault:"256"`
	MaxIdleConnsPerHost int           `env:"PROXY_MAX_IDLE_CONNS_PER_HOST" envDefault:"64"`
	CacheWriteTimeout   time.Duration `env:"PROXY_CACHE_WRITE_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout     time.Duration `env:"PROXY_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreRedis, StoreSQLite:
	default:
		return fmt.Errorf("unsupported store %q", c.Store)
	}

	if c.CacheName == "" {
		return fmt.Errorf("cache name is required")
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}

	for name, d := range map[string]time.Duration{
		"request timeout":     c.RequestTimeout,
		"transport timeout":   c.TransportTimeout,
		"dial timeout":        c.DialTimeout,
		"cache write timeout": c.CacheWriteTimeout,
		"shutdown timeout":    c.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	return nil
}
