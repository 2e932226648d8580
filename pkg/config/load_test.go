package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	content := "AUTH_JWT_SECRET=supersecretvalue\n" +
		"EVENT_BUS_DRIVER=redis\n" +
		"SCHEDULER_INTERVAL=30s\n" +
		"SCHEDULER_TIME_ZONE=Europe/Berlin\n" +
		"RETRY_MAX_ATTEMPTS=7\n" +
		"OUTBOX_MIN_AGE=45s\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))
	t.Cleanup(func() {
		for _, k := range []string{
			"AUTH_JWT_SECRET", "EVENT_BUS_DRIVER", "SCHEDULER_INTERVAL",
			"SCHEDULER_TIME_ZONE", "RETRY_MAX_ATTEMPTS", "OUTBOX_MIN_AGE",
		} {
			os.Unsetenv(k) //nolint:errcheck
		}
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "redis", cfg.EventBus.Driver)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Scheduler.AnchorMinute)
	assert.Equal(t, "Europe/Berlin", cfg.Scheduler.TimeZone)
	assert.True(t, cfg.Outbox.Enabled)
	assert.Equal(t, 45*time.Second, cfg.Outbox.MinAge)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
}

func TestLoad_MissingSecret(t *testing.T) {
	os.Unsetenv("AUTH_JWT_SECRET") //nolint:errcheck
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestSchedulerLocation_Fallback(t *testing.T) {
	var nilCfg *Scheduler
	assert.Equal(t, time.UTC, nilCfg.Location())
	assert.Equal(t, time.UTC, (&Scheduler{TimeZone: "Nowhere/Unknown"}).Location())
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "", maskValue(""))
	assert.Equal(t, "****", maskValue("abc"))
	assert.Equal(t, "po****5432", maskValue("postgres://host:5432"))
}

func TestFindEnvFile_NotFound(t *testing.T) {
	_, err := FindEnvFile("definitely-not-present.env")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
