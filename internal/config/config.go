// Package config provides application configuration management.
// Configuration is loaded from environment variables, optionally seeded from
// a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/mmynk/mealsync/internal/namespace"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Storage
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"sqlite"`
	DBPath         string `env:"DB_PATH" envDefault:"./data/mealsync.db"`
	RedisURL       string `env:"REDIS_URL"`
	RedisPrefix    string `env:"REDIS_PREFIX" envDefault:"mealsync:kv:"`
	RedisChannel   string `env:"REDIS_CHANNEL" envDefault:"mealsync:changes"`

	// QuotaBytes caps the stored bytes, as browser local storage does. It
	// applies to every backend; for redis it covers the keys under
	// RedisPrefix. Zero disables the cap.
	QuotaBytes int64 `env:"STORAGE_QUOTA_BYTES" envDefault:"5242880"`

	// Identity
	JWTSecret string        `env:"JWT_SECRET" envDefault:"mealsync-local-secret"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"720h"`

	// LegacyPolicy decides whether pre-namespacing keys survive migration:
	// "preserve" or "delete".
	LegacyPolicy string `env:"LEGACY_POLICY" envDefault:"preserve"`

	// ClearPreviousUserData removes the previous user's profile and
	// notifications when a different account signs in.
	ClearPreviousUserData bool `env:"CLEAR_PREVIOUS_USER_DATA" envDefault:"true"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads the given .env files, when they exist, and then parses the
// environment. Variables already set in the environment win over the files.
func Load(files ...string) (*Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageBackend {
	case BackendSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite backend"))
		}
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	if c.QuotaBytes < 0 {
		errs = append(errs, fmt.Errorf("STORAGE_QUOTA_BYTES must not be negative, got %d", c.QuotaBytes))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL))
	}
	if _, err := c.Policy(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Policy returns the configured legacy key policy.
func (c *Config) Policy() (namespace.Policy, error) {
	return namespace.ParsePolicy(c.LegacyPolicy)
}
