package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv unsets variables that would make Load depend on the host.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "KAIWA_SECRET_KEY", "KAIWA_PORT", "KAIWA_API_KEY",
		"KAIWA_JWT_PRIVATE_KEY", "KAIWA_JWT_PUBLIC_KEY", "KAIWA_SESSION_SWEEP_SPEC",
		"KAIWA_DEBOUNCE_INTERVAL", "KAIWA_RATE_LIMIT_ENABLED", "KAIWA_RATE_LIMIT_RPS",
	} {
		t.Setenv(k, "")
	}
}

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.5")
	v, err := envFloat("TEST_FLOAT", 1)
	if err != nil || v != 0.5 {
		t.Fatalf("expected 0.5, got %v (%v)", v, err)
	}
	t.Setenv("TEST_FLOAT", "half")
	if _, err := envFloat("TEST_FLOAT", 1); err == nil {
		t.Fatal("expected error for non-numeric value")
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 5*time.Second {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadFailsOnInvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("KAIWA_PORT", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid KAIWA_PORT")
	}
	if got := err.Error(); !strings.Contains(got, "KAIWA_PORT") || !strings.Contains(got, "abc") {
		t.Fatalf("error should mention KAIWA_PORT and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("KAIWA_PORT", "abc")
	t.Setenv("KAIWA_DEBOUNCE_INTERVAL", "soon")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !strings.Contains(got, "KAIWA_PORT") {
		t.Fatalf("error should mention KAIWA_PORT, got: %s", got)
	}
	if !strings.Contains(got, "KAIWA_DEBOUNCE_INTERVAL") {
		t.Fatalf("error should mention KAIWA_DEBOUNCE_INTERVAL, got: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.DebounceInterval != 250*time.Millisecond {
		t.Fatalf("expected default debounce 250ms, got %s", cfg.DebounceInterval)
	}
	if cfg.AuthEnabled() || cfg.PersistenceEnabled() {
		t.Fatal("auth and persistence should be disabled by default")
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base, err := Load()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"database without secret key", func(c *Config) { c.DatabaseURL = "postgres://x" }, "KAIWA_SECRET_KEY"},
		{"one jwt key", func(c *Config) { c.JWTPrivateKeyPath = "priv.pem" }, "must be set together"},
		{"bad sweep spec", func(c *Config) { c.SessionSweepSpec = "whenever" }, "KAIWA_SESSION_SWEEP_SPEC"},
		{"seconds sweep spec", func(c *Config) { c.SessionSweepSpec = "*/30 * * * * *" }, ""},
		{"zero body limit", func(c *Config) { c.MaxRequestBodyBytes = 0 }, "KAIWA_MAX_REQUEST_BODY_BYTES"},
		{"rate limit without rps", func(c *Config) { c.RateLimitRPS = 0 }, "KAIWA_RATE_LIMIT_RPS"},
		{"rate limit disabled", func(c *Config) { c.RateLimitEnabled, c.RateLimitRPS = false, 0 }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got: %v", tt.want, err)
			}
		})
	}
}
