package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEnv(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func requiredEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL": "postgres://localhost/reelhouse",
		"JWT_SECRET":   "jwt-secret",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(fakeEnv(requiredEnv()))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, 300*time.Second, cfg.PlaybackTokenTTL)
	assert.Equal(t, 5000*time.Millisecond, cfg.DwellThreshold)
	assert.Equal(t, 5000*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 3000*time.Millisecond, cfg.TranscodeDelay)
	assert.Equal(t, 10*time.Minute, cfg.TranscodeTimeout)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.UsageRetention)
	assert.True(t, cfg.InsecurePlaybackSecret())
	assert.True(t, cfg.AllowTTLOverride())
}

func TestLoadOverrides(t *testing.T) {
	values := requiredEnv()
	values["VIEW_DWELL_MS"] = "2500"
	values["WORKER_POLL_INTERVAL_MS"] = "1000"
	values["PLAYBACK_TOKEN_SECRET"] = "s3cret"
	values["MANIFEST_BASE_URL"] = "https://cdn.example.com/"
	values["BASE_URL"] = "https://api.example.com/"

	cfg, err := Load(fakeEnv(values))
	require.NoError(t, err)

	assert.Equal(t, 2500*time.Millisecond, cfg.DwellThreshold)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, "https://cdn.example.com", cfg.ManifestBaseURL)
	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.False(t, cfg.InsecurePlaybackSecret())
}

func TestLoadRejectsDefaultSecretInProduction(t *testing.T) {
	values := requiredEnv()
	values["APP_ENV"] = "production"

	_, err := Load(fakeEnv(values))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PLAYBACK_TOKEN_SECRET must be set in production")
}

func TestProductionDisablesTTLOverride(t *testing.T) {
	values := requiredEnv()
	values["APP_ENV"] = "Production"
	values["PLAYBACK_TOKEN_SECRET"] = "prod-secret"

	cfg, err := Load(fakeEnv(values))
	require.NoError(t, err)
	assert.True(t, cfg.Production())
	assert.False(t, cfg.AllowTTLOverride())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		message string
	}{
		{"NonNumericDwell", "VIEW_DWELL_MS", "soon", "VIEW_DWELL_MS: invalid integer"},
		{"ZeroPollInterval", "WORKER_POLL_INTERVAL_MS", "0", "WORKER_POLL_INTERVAL_MS must be positive"},
		{"NegativeDwell", "VIEW_DWELL_MS", "-1", "VIEW_DWELL_MS must not be negative"},
		{"ZeroAttempts", "TRANSCODE_MAX_ATTEMPTS", "0", "TRANSCODE_MAX_ATTEMPTS must be at least 1"},
		{"TTLBelowMinimum", "PLAYBACK_TOKEN_TTL_SECONDS", "10", "PLAYBACK_TOKEN_TTL_SECONDS must be between 30 and 3600"},
		{"TTLPastRetention", "PLAYBACK_TOKEN_TTL_SECONDS", "172800", "PLAYBACK_TOKEN_TTL_SECONDS must be between 30 and 3600"},
		{"ZeroRetention", "USAGE_RETENTION_HOURS", "0", "USAGE_RETENTION_HOURS must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := requiredEnv()
			values[tt.key] = tt.value

			_, err := Load(fakeEnv(values))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoadedTokenTTLNeverOutlivesUsageRetention(t *testing.T) {
	values := requiredEnv()
	values["PLAYBACK_TOKEN_TTL_SECONDS"] = "3600"
	values["USAGE_RETENTION_HOURS"] = "1"

	cfg, err := Load(fakeEnv(values))
	require.NoError(t, err)
	assert.LessOrEqual(t, cfg.PlaybackTokenTTL, cfg.UsageRetention)
}

func TestLoadRequiresDatabaseAndJWTSecret(t *testing.T) {
	_, err := Load(fakeEnv(map[string]string{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
}
