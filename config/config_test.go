package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, "blossom", cfg.Matching.Strategy)
	assert.True(t, cfg.Matching.DroughtPrePass)
	assert.Equal(t, 5, cfg.Matching.DroughtWindowCycles)
	assert.Equal(t, 168*time.Hour, cfg.Matching.CycleLength)
	assert.False(t, cfg.Matching.CohortFilter)
	assert.Equal(t, 10, cfg.Matching.OptimizerMaxPasses)
	assert.Equal(t, "log", cfg.Notify.Channel)
	assert.Equal(t, 2, cfg.Notify.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Notify.BaseDelay)
	assert.Equal(t, "0 18 * * 5", cfg.Scheduler.MatchCron)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 8080, cfg.HTTP.Port)
}

func TestLoad_DatabaseURLFromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "matcher")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://matcher:secret@db:5432/postgres?sslmode=require", cfg.Database.URL)
}

func TestLoad_ValidationErrors(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MATCH_STRATEGY", "hungarian")
	t.Setenv("NOTIFY_CHANNEL", "telegram")

	_, err := Load()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "configuration errors")
	assert.Contains(t, msg, "Database.URL")
	assert.Contains(t, msg, "Matching.Strategy")
	assert.Contains(t, msg, "TELEGRAM_BOT_TOKEN")
}

func TestLoad_BadTimezone(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	assert.ErrorContains(t, err, "APP_TIMEZONE")
}

func TestValidate_ProductionRequiresCronSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	assert.ErrorContains(t, err, "CRON_SECRET")

	t.Setenv("CRON_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "json", cfg.Observability.LogFormat)
}

func TestMatchingConfig_ApplyPolicy(t *testing.T) {
	m := loadMatchingConfig()

	err := m.ApplyPolicy([]byte(`
strategy: Greedy
cohort_filter: true
drought_window_cycles: 3
cycle_length: 24h
`))
	require.NoError(t, err)

	assert.Equal(t, "greedy", m.Strategy)
	assert.True(t, m.CohortFilter)
	assert.Equal(t, 3, m.DroughtWindowCycles)
	assert.Equal(t, 24*time.Hour, m.CycleLength)
	// untouched keys keep env values
	assert.True(t, m.OptimizerEnabled)
	assert.Equal(t, 15*time.Minute, m.LockTTL)
}

func TestMatchingConfig_ApplyPolicyErrors(t *testing.T) {
	m := loadMatchingConfig()
	assert.ErrorContains(t, m.ApplyPolicy([]byte("lock_ttl: soon")), "lock_ttl")
	assert.Error(t, m.ApplyPolicy([]byte("strategy: [")))
	assert.Error(t, m.ApplyPolicyFile(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestLoad_PolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("optimizer_enabled: false\n"), 0o600))

	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("MATCH_POLICY_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Matching.OptimizerEnabled)
}

func TestLoad_StaleShorterThanLock(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("MATCH_STALE_RUN_AFTER", "1m")

	_, err := Load()
	assert.ErrorContains(t, err, "MATCH_STALE_RUN_AFTER")
}
