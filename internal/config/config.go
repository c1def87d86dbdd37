// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const devSecret = "packwise-dev-secret-do-not-use-in-production"

type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string
	Dev       bool

	JWTSecret string
	TokenTTL  time.Duration

	ReconcileMode        string
	ReconcileInterval    time.Duration
	ReconcileMaxAttempts int

	WSOrigins []string
}

// Load reads an optional .env file, then the PACKWISE_* variables. Values
// already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{
		Port:          getenv("PACKWISE_PORT", "8080"),
		DBPath:        getenv("PACKWISE_DB_PATH", "packwise.db"),
		LogLevel:      getenv("PACKWISE_LOG_LEVEL", "info"),
		LogFormat:     strings.ToLower(getenv("PACKWISE_LOG_FORMAT", "text")),
		JWTSecret:     os.Getenv("PACKWISE_JWT_SECRET"),
		ReconcileMode: strings.ToLower(getenv("PACKWISE_RECONCILE_MODE", "sync")),
	}

	var err error
	if cfg.Dev, err = parseBool("PACKWISE_DEV", false); err != nil {
		return nil, err
	}
	if cfg.TokenTTL, err = parseDuration("PACKWISE_TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ReconcileInterval, err = parseDuration("PACKWISE_RECONCILE_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconcileMaxAttempts, err = parseInt("PACKWISE_RECONCILE_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if origins := os.Getenv("PACKWISE_WS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.WSOrigins = append(cfg.WSOrigins, o)
			}
		}
	}

	if cfg.JWTSecret == "" {
		if !cfg.Dev {
			return nil, errors.New("PACKWISE_JWT_SECRET is required (set PACKWISE_DEV=true for a development secret)")
		}
		cfg.JWTSecret = devSecret
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.ReconcileMode {
	case "sync", "async":
	default:
		return fmt.Errorf("PACKWISE_RECONCILE_MODE must be sync or async, got %q", c.ReconcileMode)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("PACKWISE_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if c.TokenTTL <= 0 {
		return errors.New("PACKWISE_TOKEN_TTL must be positive")
	}
	if c.ReconcileInterval <= 0 {
		return errors.New("PACKWISE_RECONCILE_INTERVAL must be positive")
	}
	if c.ReconcileMaxAttempts < 1 {
		return errors.New("PACKWISE_RECONCILE_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
