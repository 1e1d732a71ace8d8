// Package config loads process settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTP  HTTPConfig
	DB    DBConfig
	Redis RedisConfig
	Log   LogConfig
	JWT   JWTConfig
}

type HTTPConfig struct {
	Addr              string        `envconfig:"HTTP_ADDR" default:":8080"`
	ReadTimeout       time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"5s"`
	ReadHeaderTimeout time.Duration `envconfig:"HTTP_READ_HEADER_TIMEOUT" default:"5s"`
	WriteTimeout      time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout       time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout   time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DBConfig selects the storage backend. An empty URL means the in-memory store.
type DBConfig struct {
	URL         string `envconfig:"DATABASE_URL"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"false"`
	DevSeed     bool   `envconfig:"DEV_SEED" default:"false"`
}

// RedisConfig enables the shared timeline locker when URL is set.
type RedisConfig struct {
	URL string `envconfig:"REDIS_URL"`
	// LockTTL is the lease on a timeline lock. Held locks are refreshed every half TTL.
	LockTTL time.Duration `envconfig:"LOCK_TTL" default:"30s"`
	// LockWait bounds how long a request retries before giving up on a busy timeline.
	LockWait time.Duration `envconfig:"LOCK_WAIT" default:"5s"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// JWTConfig turns on bearer authentication when Secret is non-empty.
type JWTConfig struct {
	Secret   string `envconfig:"JWT_HS256_SECRET"`
	Issuer   string `envconfig:"JWT_ISSUER"`
	Audience string `envconfig:"JWT_AUDIENCE"`
}

// UseMemory reports whether no database was configured.
func (c *Config) UseMemory() bool { return strings.TrimSpace(c.DB.URL) == "" }

// AuthEnabled reports whether bearer tokens are required on /v1 routes.
func (c *Config) AuthEnabled() bool { return c.JWT.Secret != "" }

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv parses the process environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return nil, fmt.Errorf("parsing config: LOG_FORMAT must be json or text, got %q", cfg.Log.Format)
	}
	if cfg.Redis.LockTTL <= 0 {
		return nil, fmt.Errorf("parsing config: LOCK_TTL must be positive")
	}
	return &cfg, nil
}
