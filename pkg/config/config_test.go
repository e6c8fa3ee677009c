package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/borglife-labs/borglife/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	// Ensure clean env
	t.Setenv("BORG_ID", "")
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("BREAKER_THRESHOLD", "")
	t.Setenv("BREAKER_RECOVERY", "")
	t.Setenv("BORG_PROFILE", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "borg-local", cfg.BorgID)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, 5, cfg.BreakerThreshold)
	assert.Equal(t, 300*time.Second, cfg.BreakerRecovery)
	assert.Equal(t, 60, cfg.RatePerMinute)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BORG_ID", "borg-042")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://production:5432/borglife")
	t.Setenv("BREAKER_THRESHOLD", "3")
	t.Setenv("BREAKER_RECOVERY", "45s")
	t.Setenv("RATE_PER_MINUTE", "120")
	t.Setenv("BORG_PROFILE", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "borg-042", cfg.BorgID)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://production:5432/borglife", cfg.DatabaseURL)
	assert.Equal(t, 3, cfg.BreakerThreshold)
	assert.Equal(t, 45*time.Second, cfg.BreakerRecovery)
	assert.Equal(t, 120, cfg.RatePerMinute)
}

// TestLoad_MalformedValuesFallBack verifies that unparsable numerics keep
// their defaults rather than failing the boot.
func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("BREAKER_THRESHOLD", "many")
	t.Setenv("BREAKER_RECOVERY", "soon")
	t.Setenv("BORG_PROFILE", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.BreakerThreshold)
	assert.Equal(t, 300*time.Second, cfg.BreakerRecovery)
}

// TestLoad_ProfileOverlay verifies that BORG_PROFILE applies the named
// deployment profile on top of the environment values.
func TestLoad_ProfileOverlay(t *testing.T) {
	dir := t.TempDir()
	profile := `
name: Production
code: prod
resilience:
  breaker_threshold: 3
  breaker_recovery: 60s
  rate_per_minute: 600
`
	err := os.WriteFile(filepath.Join(dir, "profile_prod.yaml"), []byte(profile), 0o600)
	require.NoError(t, err)

	t.Setenv("BREAKER_THRESHOLD", "")
	t.Setenv("BORG_PROFILE", "prod")
	t.Setenv("BORG_PROFILES_DIR", dir)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Profile)
	assert.Equal(t, 3, cfg.BreakerThreshold)
	assert.Equal(t, 60*time.Second, cfg.BreakerRecovery)
	assert.Equal(t, 600, cfg.RatePerMinute)
}

// TestLoad_MissingProfileFailsBoot verifies that a named but absent
// profile is a startup error, never a silent fallback.
func TestLoad_MissingProfileFailsBoot(t *testing.T) {
	t.Setenv("BORG_PROFILE", "staging")
	t.Setenv("BORG_PROFILES_DIR", t.TempDir())

	_, err := config.Load()
	assert.Error(t, err)
}
