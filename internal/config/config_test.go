package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PACKWISE_PORT", "PACKWISE_DB_PATH", "PACKWISE_LOG_LEVEL", "PACKWISE_LOG_FORMAT",
		"PACKWISE_DEV", "PACKWISE_JWT_SECRET", "PACKWISE_TOKEN_TTL", "PACKWISE_RECONCILE_MODE",
		"PACKWISE_RECONCILE_INTERVAL", "PACKWISE_RECONCILE_MAX_ATTEMPTS", "PACKWISE_WS_ORIGINS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func noEnvFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("PACKWISE_JWT_SECRET", "s3cret")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "packwise.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "sync", cfg.ReconcileMode)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 2*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 5, cfg.ReconcileMaxAttempts)
	assert.Empty(t, cfg.WSOrigins)
}

func TestLoadRequiresSecret(t *testing.T) {
	clearEnv(t)

	_, err := Load(noEnvFile(t))
	require.Error(t, err)

	t.Setenv("PACKWISE_DEV", "true")
	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, devSecret, cfg.JWTSecret)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PACKWISE_JWT_SECRET", "s3cret")
	t.Setenv("PACKWISE_PORT", "9090")
	t.Setenv("PACKWISE_RECONCILE_MODE", "ASYNC")
	t.Setenv("PACKWISE_RECONCILE_INTERVAL", "500ms")
	t.Setenv("PACKWISE_RECONCILE_MAX_ATTEMPTS", "3")
	t.Setenv("PACKWISE_WS_ORIGINS", "localhost:5173, example.com")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "async", cfg.ReconcileMode)
	assert.Equal(t, 500*time.Millisecond, cfg.ReconcileInterval)
	assert.Equal(t, 3, cfg.ReconcileMaxAttempts)
	assert.Equal(t, []string{"localhost:5173", "example.com"}, cfg.WSOrigins)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PACKWISE_RECONCILE_MODE", "later"},
		{"PACKWISE_LOG_FORMAT", "xml"},
		{"PACKWISE_TOKEN_TTL", "forever"},
		{"PACKWISE_RECONCILE_MAX_ATTEMPTS", "0"},
		{"PACKWISE_DEV", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("PACKWISE_JWT_SECRET", "s3cret")
			t.Setenv(tt.key, tt.value)

			_, err := Load(noEnvFile(t))
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PACKWISE_JWT_SECRET=from-file\nPACKWISE_PORT=7000\n"), 0o600))
	t.Setenv("PACKWISE_PORT", "7100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, "7100", cfg.Port, "environment wins over .env")
}
