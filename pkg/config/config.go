package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration, loaded from the environment.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseURL string

	// SigningKeyPath points at the Ed25519 private key used to sign audit
	// archive artifacts and policy bundle attestations.
	SigningKeyPath string

	// DefaultConflictStrategy is the Governance Engine's policy used when
	// multiple enabled policies match an Intent and disagree.
	DefaultConflictStrategy string
	// AllowOnNoMatch, when true, makes the Engine permissive (allow) rather
	// than fail-closed (deny) when no enabled policy matches an Intent.
	AllowOnNoMatch bool

	// ArchiveAfterDays and RetentionDays set the Audit Service's cleanup
	// sweep windows: records older than ArchiveAfterDays are archived, and
	// already-archived records older than RetentionDays are purged.
	ArchiveAfterDays int
	RetentionDays    int

	// PreActionValidatorTimeout and PostActionValidatorTimeout bound how
	// long the Semantic Governance Service waits on each validator before
	// treating it as failed; PreActionBudget and PostActionBudget bound
	// the phase as a whole.
	PreActionValidatorTimeout  time.Duration
	PostActionValidatorTimeout time.Duration
	PreActionBudget            time.Duration
	PostActionBudget           time.Duration
}

// Load loads configuration from environment variables, falling back to
// safe, fail-closed defaults for anything unset.
func Load() *Config {
	return &Config{
		Port:                       getEnv("PORT", "8080"),
		LogLevel:                   getEnv("LOG_LEVEL", "INFO"),
		DatabaseURL:                getEnv("DATABASE_URL", "postgres://substrate@localhost:5432/substrate?sslmode=disable"),
		SigningKeyPath:             getEnv("SIGNING_KEY_PATH", ""),
		DefaultConflictStrategy:    getEnv("DEFAULT_CONFLICT_STRATEGY", "deny_overrides"),
		AllowOnNoMatch:             getBool("ALLOW_ON_NO_MATCH", false),
		ArchiveAfterDays:           getInt("AUDIT_ARCHIVE_AFTER_DAYS", 30),
		RetentionDays:              getInt("AUDIT_RETENTION_DAYS", 365),
		PreActionValidatorTimeout:  getDuration("SEMANTIC_PRE_ACTION_VALIDATOR_TIMEOUT", 100*time.Millisecond),
		PostActionValidatorTimeout: getDuration("SEMANTIC_POST_ACTION_VALIDATOR_TIMEOUT", 200*time.Millisecond),
		PreActionBudget:            getDuration("SEMANTIC_PRE_ACTION_BUDGET", 500*time.Millisecond),
		PostActionBudget:           getDuration("SEMANTIC_POST_ACTION_BUDGET", 2*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
