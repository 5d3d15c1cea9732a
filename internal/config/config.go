package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/reelhouse/reelhouse/internal/playback"
)

// DefaultPlaybackSecret is only meant for local development. Load refuses it
// when APP_ENV is production.
const DefaultPlaybackSecret = "dev-playback-secret"

type Config struct {
	Env         string
	Port        string
	BaseURL     string
	DatabaseURL string
	JWTSecret   string
	LogLevel    string

	PlaybackSecret   string
	PlaybackTokenTTL time.Duration
	DwellThreshold   time.Duration
	ManifestBaseURL  string
	UsageRetention   time.Duration

	PollInterval     time.Duration
	TranscodeDelay   time.Duration
	TranscodeTimeout time.Duration
	MaxAttempts      int

	RedisAddr   string
	GeoIPDBPath string

	S3Endpoint       string
	S3PublicEndpoint string
	S3Bucket         string
	S3AccessKey      string
	S3SecretKey      string
	S3Region         string
	MaxUploadBytes   int64
}

// Production reports whether the process runs with production hardening.
func (c Config) Production() bool {
	return c.Env == "production"
}

// AllowTTLOverride reports whether clients may ask for a custom playback token TTL.
func (c Config) AllowTTLOverride() bool {
	return !c.Production()
}

// InsecurePlaybackSecret reports whether the development secret is in use.
func (c Config) InsecurePlaybackSecret() bool {
	return c.PlaybackSecret == DefaultPlaybackSecret
}

// Load reads configuration through getenv, usually os.Getenv.
func Load(getenv func(string) string) (Config, error) {
	e := env{getenv: getenv}

	cfg := Config{
		Env:         strings.ToLower(e.str("APP_ENV", "development")),
		Port:        e.str("PORT", "8080"),
		BaseURL:     strings.TrimRight(e.str("BASE_URL", "http://localhost:8080"), "/"),
		DatabaseURL: e.str("DATABASE_URL", ""),
		JWTSecret:   e.str("JWT_SECRET", ""),
		LogLevel:    e.str("LOG_LEVEL", "info"),

		PlaybackSecret:   e.str("PLAYBACK_TOKEN_SECRET", DefaultPlaybackSecret),
		PlaybackTokenTTL: e.seconds("PLAYBACK_TOKEN_TTL_SECONDS", 300),
		DwellThreshold:   e.millis("VIEW_DWELL_MS", 5000),
		ManifestBaseURL:  strings.TrimRight(e.str("MANIFEST_BASE_URL", "http://localhost:8080"), "/"),
		UsageRetention:   time.Duration(e.integer("USAGE_RETENTION_HOURS", 24)) * time.Hour,

		PollInterval:     e.millis("WORKER_POLL_INTERVAL_MS", 5000),
		TranscodeDelay:   e.millis("TRANSCODE_DELAY_MS", 3000),
		TranscodeTimeout: e.seconds("TRANSCODE_TIMEOUT_SECONDS", 600),
		MaxAttempts:      int(e.integer("TRANSCODE_MAX_ATTEMPTS", 3)),

		RedisAddr:   e.str("REDIS_ADDR", ""),
		GeoIPDBPath: e.str("GEOIP_DB_PATH", ""),

		S3Endpoint:       e.str("S3_ENDPOINT", "http://localhost:3900"),
		S3PublicEndpoint: e.str("S3_PUBLIC_ENDPOINT", ""),
		S3Bucket:         e.str("S3_BUCKET", "reelhouse"),
		S3AccessKey:      e.str("S3_ACCESS_KEY", ""),
		S3SecretKey:      e.str("S3_SECRET_KEY", ""),
		S3Region:         e.str("S3_REGION", "eu-central-1"),
		MaxUploadBytes:   e.integer("MAX_UPLOAD_BYTES", 2*1024*1024*1024),
	}

	if e.err != nil {
		return Config{}, e.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.PlaybackSecret == "" {
		errs = append(errs, errors.New("PLAYBACK_TOKEN_SECRET must not be empty"))
	}
	if c.Production() && c.InsecurePlaybackSecret() {
		errs = append(errs, errors.New("PLAYBACK_TOKEN_SECRET must be set in production"))
	}
	if playback.ValidateTTL(c.PlaybackTokenTTL) != nil {
		errs = append(errs, fmt.Errorf("PLAYBACK_TOKEN_TTL_SECONDS must be between %d and %d",
			int(playback.MinTTL/time.Second), int(playback.MaxTTL/time.Second)))
	}
	// Usage rows must outlive every token that can still verify.
	if c.UsageRetention < playback.MaxTTL {
		errs = append(errs, fmt.Errorf("USAGE_RETENTION_HOURS must be at least %d", int(playback.MaxTTL/time.Hour)))
	}
	if c.DwellThreshold < 0 {
		errs = append(errs, errors.New("VIEW_DWELL_MS must not be negative"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("WORKER_POLL_INTERVAL_MS must be positive"))
	}
	if c.TranscodeTimeout <= 0 {
		errs = append(errs, errors.New("TRANSCODE_TIMEOUT_SECONDS must be positive"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, errors.New("TRANSCODE_MAX_ATTEMPTS must be at least 1"))
	}
	return errors.Join(errs...)
}

type env struct {
	getenv func(string) string
	err    error
}

func (e *env) str(key, fallback string) string {
	if value := e.getenv(key); value != "" {
		return value
	}
	return fallback
}

func (e *env) integer(key string, fallback int64) int64 {
	value := e.getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		e.err = errors.Join(e.err, fmt.Errorf("%s: invalid integer %q", key, value))
		return fallback
	}
	return parsed
}

func (e *env) millis(key string, fallback int64) time.Duration {
	return time.Duration(e.integer(key, fallback)) * time.Millisecond
}

func (e *env) seconds(key string, fallback int64) time.Duration {
	return time.Duration(e.integer(key, fallback)) * time.Second
}
