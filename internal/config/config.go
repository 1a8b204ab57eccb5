// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Storage settings.
	DatabaseURL            string // Postgres URL for prompts and custom providers. Empty disables both.
	SkipEmbeddedMigrations bool
	PrefsPath              string // SQLite file holding local preferences.
	SecretKey              string // Hex-encoded 32-byte key sealing custom provider secrets.

	// Auth settings.
	APIKey            string // Bootstrap key exchanged for tokens. Empty disables auth.
	JWTPrivateKeyPath string // Path to Ed25519 private key PEM file.
	JWTPublicKeyPath  string // Path to Ed25519 public key PEM file.
	JWTExpiration     time.Duration

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string
	OTELInsecure bool

	// Rate limiting.
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// Playground settings.
	DebounceInterval      time.Duration // Quiet period before a message content edit is committed.
	SessionIdleTimeout    time.Duration
	SessionSweepSpec      string // Cron spec for evicting idle sessions.
	CredentialTestTimeout time.Duration

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64 // Maximum request body size in bytes.
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed value is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var cfg Config
	var err error

	cfg.Port, err = envInt("KAIWA_PORT", 8080)
	collect(err)
	cfg.ReadTimeout, err = envDuration("KAIWA_READ_TIMEOUT", 30*time.Second)
	collect(err)
	// Zero: session event streams stay open indefinitely.
	cfg.WriteTimeout, err = envDuration("KAIWA_WRITE_TIMEOUT", 0)
	collect(err)

	cfg.DatabaseURL = envStr("DATABASE_URL", "")
	cfg.SkipEmbeddedMigrations, err = envBool("KAIWA_SKIP_EMBEDDED_MIGRATIONS", false)
	collect(err)
	cfg.PrefsPath = envStr("KAIWA_PREFS_PATH", "kaiwa-prefs.db")
	cfg.SecretKey = envStr("KAIWA_SECRET_KEY", "")

	cfg.APIKey = envStr("KAIWA_API_KEY", "")
	cfg.JWTPrivateKeyPath = envStr("KAIWA_JWT_PRIVATE_KEY", "")
	cfg.JWTPublicKeyPath = envStr("KAIWA_JWT_PUBLIC_KEY", "")
	cfg.JWTExpiration, err = envDuration("KAIWA_JWT_EXPIRATION", 24*time.Hour)
	collect(err)

	cfg.OTELEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.ServiceName = envStr("OTEL_SERVICE_NAME", "kaiwa")
	cfg.OTELInsecure, err = envBool("KAIWA_OTEL_INSECURE", false)
	collect(err)

	cfg.RateLimitEnabled, err = envBool("KAIWA_RATE_LIMIT_ENABLED", true)
	collect(err)
	cfg.RateLimitRPS, err = envFloat("KAIWA_RATE_LIMIT_RPS", 1)
	collect(err)
	cfg.RateLimitBurst, err = envInt("KAIWA_RATE_LIMIT_BURST", 5)
	collect(err)

	cfg.DebounceInterval, err = envDuration("KAIWA_DEBOUNCE_INTERVAL", 250*time.Millisecond)
	collect(err)
	cfg.SessionIdleTimeout, err = envDuration("KAIWA_SESSION_IDLE_TIMEOUT", 30*time.Minute)
	collect(err)
	cfg.SessionSweepSpec = envStr("KAIWA_SESSION_SWEEP_SPEC", "@every 1m")
	cfg.CredentialTestTimeout, err = envDuration("KAIWA_CREDENTIAL_TEST_TIMEOUT", 15*time.Second)
	collect(err)

	cfg.LogLevel = envStr("KAIWA_LOG_LEVEL", "info")
	maxBody, err := envInt("KAIWA_MAX_REQUEST_BODY_BYTES", 1*1024*1024) // 1 MB default
	collect(err)
	cfg.MaxRequestBodyBytes = int64(maxBody)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that configuration values are usable together.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("KAIWA_PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("KAIWA_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if c.DebounceInterval < 0 {
		errs = append(errs, errors.New("KAIWA_DEBOUNCE_INTERVAL must not be negative"))
	}
	if c.SessionIdleTimeout <= 0 {
		errs = append(errs, errors.New("KAIWA_SESSION_IDLE_TIMEOUT must be positive"))
	}
	if c.CredentialTestTimeout <= 0 {
		errs = append(errs, errors.New("KAIWA_CREDENTIAL_TEST_TIMEOUT must be positive"))
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		errs = append(errs, errors.New("KAIWA_RATE_LIMIT_RPS and KAIWA_RATE_LIMIT_BURST must be positive when rate limiting is enabled"))
	}
	if c.PrefsPath == "" {
		errs = append(errs, errors.New("KAIWA_PREFS_PATH is required"))
	}
	if c.DatabaseURL != "" && c.SecretKey == "" {
		errs = append(errs, errors.New("KAIWA_SECRET_KEY is required when DATABASE_URL is set"))
	}
	if (c.JWTPrivateKeyPath == "") != (c.JWTPublicKeyPath == "") {
		errs = append(errs, errors.New("KAIWA_JWT_PRIVATE_KEY and KAIWA_JWT_PUBLIC_KEY must be set together"))
	}
	if _, err := sweepParser.Parse(c.SessionSweepSpec); err != nil {
		errs = append(errs, fmt.Errorf("KAIWA_SESSION_SWEEP_SPEC=%q is not a valid schedule: %w", c.SessionSweepSpec, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// sweepParser accepts the same schedules as the session sweeper.
var sweepParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// AuthEnabled reports whether requests must carry a bearer token.
func (c Config) AuthEnabled() bool {
	return c.APIKey != ""
}

// PersistenceEnabled reports whether prompts and custom providers are stored.
func (c Config) PersistenceEnabled() bool {
	return c.DatabaseURL != ""
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
