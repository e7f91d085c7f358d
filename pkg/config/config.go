// Package config loads lamacheck configuration files.
//
// Files are TOML by default; a ".yaml" or ".yml" extension selects YAML.
// Every field has a default, so a missing file is not an error. Durations
// are written as Go duration strings ("72h", "30s").
//
//	[store]
//	dsn = "mongodb://localhost:27017"
//
//	[update]
//	workers = 32
//	new_artifact = "72h"
//	refresh = "48h"
//
// The environment variables LAMACHECK_STORE_DSN and LAMACHECK_REDIS_ADDR
// override the matching fields after the file is read.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/lamacheck/pkg/errors"
	"github.com/matzehuels/lamacheck/pkg/planner"
)

// AppName names the XDG directories.
const AppName = "lamacheck"

// Environment overrides.
const (
	EnvStoreDSN  = "LAMACHECK_STORE_DSN"
	EnvRedisAddr = "LAMACHECK_REDIS_ADDR"
)

// Cache backends.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// Config is the complete configuration.
type Config struct {
	Store  StoreConfig  `toml:"store" yaml:"store"`
	Cache  CacheConfig  `toml:"cache" yaml:"cache"`
	HTTP   HTTPConfig   `toml:"http" yaml:"http"`
	Update UpdateConfig `toml:"update" yaml:"update"`
	Server ServerConfig `toml:"server" yaml:"server"`
	Log    LogConfig    `toml:"log" yaml:"log"`
}

// StoreConfig selects where the registry is persisted. A DSN starting with
// "mongodb://" selects MongoDB; anything else is a JSON file path.
type StoreConfig struct {
	DSN      string `toml:"dsn" yaml:"dsn"`
	Database string `toml:"database" yaml:"database"`
}

// CacheConfig configures the HTTP response cache.
type CacheConfig struct {
	Backend       string        `toml:"backend" yaml:"backend"` // file, redis or none
	Dir           string        `toml:"dir" yaml:"dir"`
	TTL           time.Duration `toml:"ttl" yaml:"ttl"`
	RedisAddr     string        `toml:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `toml:"redis_password" yaml:"redis_password"`
	RedisDB       int           `toml:"redis_db" yaml:"redis_db"`
}

// HTTPConfig configures the repository HTTP client.
type HTTPConfig struct {
	Timeout          time.Duration `toml:"timeout" yaml:"timeout"`
	Attempts         int           `toml:"attempts" yaml:"attempts"`
	BaseDelay        time.Duration `toml:"base_delay" yaml:"base_delay"`
	BreakerThreshold int64         `toml:"breaker_threshold" yaml:"breaker_threshold"`
	UserAgent        string        `toml:"user_agent" yaml:"user_agent"`
}

// UpdateConfig configures update cycles.
type UpdateConfig struct {
	Workers            int           `toml:"workers" yaml:"workers"`
	AllowDowngrade     bool          `toml:"allow_downgrade" yaml:"allow_downgrade"`
	Every              time.Duration `toml:"every" yaml:"every"`
	planner.Thresholds `yaml:",inline"`
}

// ServerConfig configures the status API.
type ServerConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level" yaml:"level"` // debug, info, warn or error
}

// Default values.
const (
	DefaultCacheTTL = 6 * time.Hour
	DefaultTimeout  = 30 * time.Second
	DefaultEvery    = time.Hour
	DefaultAddr     = ":8080"
	DefaultLevel    = "info"
)

// WithDefaults returns a copy of c with empty fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Store.DSN == "" {
		c.Store.DSN = filepath.Join(DataDir(), "registry.json")
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheFile
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = CacheDir()
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultTimeout
	}
	if c.Update.Every == 0 {
		c.Update.Every = DefaultEvery
	}
	c.Update.Thresholds = c.Update.Thresholds.WithDefaults()
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLevel
	}
	return c
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Cache.Backend {
	case CacheFile, CacheNone:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return invalid("cache.redis_addr is required for the redis backend")
		}
	default:
		return invalid("cache.backend must be file, redis or none, got %q", c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return invalid("cache.ttl must not be negative")
	}
	if c.HTTP.Timeout < 0 || c.HTTP.BaseDelay < 0 {
		return invalid("http durations must not be negative")
	}
	if c.HTTP.Attempts < 0 || c.HTTP.BreakerThreshold < 0 {
		return invalid("http.attempts and http.breaker_threshold must not be negative")
	}
	if c.Update.Workers < 0 {
		return invalid("update.workers must not be negative")
	}
	if c.Update.Every < time.Minute {
		return invalid("update.every must be at least 1m, got %s", c.Update.Every)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.New(errors.ErrCodeInvalidConfig, format, args...)
}

// Load reads path, applies environment overrides and defaults, and
// validates the result. An empty path reads the default config file; a
// missing default file yields the defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, &cfg); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config file %s", path)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg.applyEnv()
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		_, err := toml.Decode(string(data), cfg)
		return err
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvStoreDSN); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Cache.RedisAddr = v
		if c.Cache.Backend == "" {
			c.Cache.Backend = CacheRedis
		}
	}
}
