package config_test

import (
	"testing"
	"time"

	"github.com/agentgov/substrate/pkg/config"
	"github.com/stretchr/testify/assert"
)

// TestLoad_Defaults verifies that Load() returns safe, fail-closed
// defaults when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "DATABASE_URL", "SIGNING_KEY_PATH",
		"DEFAULT_CONFLICT_STRATEGY", "ALLOW_ON_NO_MATCH",
		"AUDIT_ARCHIVE_AFTER_DAYS", "AUDIT_RETENTION_DAYS",
		"SEMANTIC_PRE_ACTION_VALIDATOR_TIMEOUT", "SEMANTIC_POST_ACTION_VALIDATOR_TIMEOUT",
		"SEMANTIC_PRE_ACTION_BUDGET", "SEMANTIC_POST_ACTION_BUDGET",
	} {
		t.Setenv(key, "")
	}

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Contains(t, cfg.DatabaseURL, "localhost")
	assert.Equal(t, "deny_overrides", cfg.DefaultConflictStrategy)
	assert.False(t, cfg.AllowOnNoMatch)
	assert.Equal(t, 30, cfg.ArchiveAfterDays)
	assert.Equal(t, 365, cfg.RetentionDays)
	assert.Equal(t, 100*time.Millisecond, cfg.PreActionValidatorTimeout)
	assert.Equal(t, 2*time.Second, cfg.PostActionBudget)
}

// TestLoad_Overrides verifies environment variables override defaults.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://production:5432/db")
	t.Setenv("DEFAULT_CONFLICT_STRATEGY", "allow_overrides")
	t.Setenv("ALLOW_ON_NO_MATCH", "true")
	t.Setenv("AUDIT_ARCHIVE_AFTER_DAYS", "7")
	t.Setenv("AUDIT_RETENTION_DAYS", "90")
	t.Setenv("SEMANTIC_PRE_ACTION_BUDGET", "750ms")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://production:5432/db", cfg.DatabaseURL)
	assert.Equal(t, "allow_overrides", cfg.DefaultConflictStrategy)
	assert.True(t, cfg.AllowOnNoMatch)
	assert.Equal(t, 7, cfg.ArchiveAfterDays)
	assert.Equal(t, 90, cfg.RetentionDays)
	assert.Equal(t, 750*time.Millisecond, cfg.PreActionBudget)
}

// TestLoad_InvalidNumericEnvFallsBackToDefault guards against a malformed
// override silently producing a zero-value duration or count.
func TestLoad_InvalidNumericEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("AUDIT_RETENTION_DAYS", "not-a-number")
	t.Setenv("SEMANTIC_PRE_ACTION_BUDGET", "not-a-duration")

	cfg := config.Load()

	assert.Equal(t, 365, cfg.RetentionDays)
	assert.Equal(t, 500*time.Millisecond, cfg.PreActionBudget)
}
