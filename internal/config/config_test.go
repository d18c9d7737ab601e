package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SLOT_DURATION_MINUTES", "")
	t.Setenv("ENABLE_TEST_ROUTES", "")
	t.Setenv("REDIS_ADDR", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("expected json logs by default, got %s", cfg.LogFormat)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("expected in-memory store by default, got %s", cfg.DatabaseURL)
	}
	if cfg.SlotDurationMinutes != 60 || cfg.MaxBookingDurationMinutes != 240 {
		t.Fatalf("unexpected durations %d/%d", cfg.SlotDurationMinutes, cfg.MaxBookingDurationMinutes)
	}
	if !cfg.EnableTestRoutes {
		t.Fatalf("expected test routes forced on in development")
	}
	if cfg.OutboxPollInterval != 2*time.Second {
		t.Fatalf("expected default poll interval, got %s", cfg.OutboxPollInterval)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("expected velocity limiter disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_FORMAT", "TEXT")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("SCHEDULE_TIMEZONE", "America/New_York")
	t.Setenv("SLOT_DURATION_MINUTES", "45")
	t.Setenv("ENABLE_TEST_ROUTES", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("OUTBOX_POLL_INTERVAL", "500ms")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.EnableTestRoutes {
		t.Fatalf("expected test routes off in production")
	}
	if cfg.LogFormat != "text" {
		t.Fatalf("expected lower-cased log format, got %s", cfg.LogFormat)
	}
	if cfg.SlotDurationMinutes != 45 {
		t.Fatalf("expected slot override, got %d", cfg.SlotDurationMinutes)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected rps override, got %v", cfg.RateLimitRPS)
	}
	if cfg.OutboxPollInterval != 500*time.Millisecond {
		t.Fatalf("expected poll override, got %s", cfg.OutboxPollInterval)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "America/New_York" {
		t.Fatalf("expected New York location, got %v (%v)", loc, err)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("SCHEDULE_TIMEZONE", "")
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero slot", func(c *Config) { c.SlotDurationMinutes = 0 }},
		{"max below slot", func(c *Config) { c.MaxBookingDurationMinutes = 30 }},
		{"bad timezone", func(c *Config) { c.ScheduleTimezone = "Mars/Olympus" }},
		{"negative retries", func(c *Config) { c.StoreMaxTxRetries = -1 }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"zero poll", func(c *Config) { c.OutboxPollInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
