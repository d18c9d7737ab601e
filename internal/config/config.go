package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// LogFormat is "json" (default) or "text".
	LogFormat string

	// Persistence. An empty DatabaseURL selects the in-memory store.
	DatabaseURL       string
	DBMaxConns        int
	StoreMaxTxRetries int

	// Scheduling
	ScheduleTimezone          string
	SlotDurationMinutes       int
	MaxBookingDurationMinutes int

	// HTTP surface
	EnableTestRoutes   bool
	TestRoutesToken    string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
	AuthJWTSecret      string
	ShutdownTimeout    time.Duration

	// Booking velocity limiter (disabled when RedisAddr is empty)
	RedisAddr              string
	RedisPassword          string
	RedisTLS               bool
	BookingAttemptsPerHour int

	// Outbox delivery
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	EventsQueueURL      string
	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
}

// Load reads configuration from environment variables
func Load() *Config {
	env := getEnv("ENV", "development")
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       env,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		DatabaseURL:       getEnv("DATABASE_URL", ""),
		DBMaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
		StoreMaxTxRetries: getEnvAsInt("STORE_MAX_TX_RETRIES", 3),

		ScheduleTimezone:          getEnv("SCHEDULE_TIMEZONE", "UTC"),
		SlotDurationMinutes:       getEnvAsInt("SLOT_DURATION_MINUTES", 60),
		MaxBookingDurationMinutes: getEnvAsInt("MAX_BOOKING_DURATION_MINUTES", 240),

		// Test routes are always on in development.
		EnableTestRoutes:   getEnvAsBool("ENABLE_TEST_ROUTES", false) || env == "development",
		TestRoutesToken:    getEnv("TEST_ROUTES_TOKEN", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
		AuthJWTSecret:      getEnv("AUTH_JWT_SECRET", ""),
		ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		RedisAddr:              getEnv("REDIS_ADDR", ""),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisTLS:               getEnvAsBool("REDIS_TLS", false),
		BookingAttemptsPerHour: getEnvAsInt("BOOKING_ATTEMPTS_PER_HOUR", 20),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		EventsQueueURL:      getEnv("EVENTS_QUEUE_URL", ""),
		OutboxPollInterval:  getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:     getEnvAsInt("OUTBOX_BATCH_SIZE", 50),
	}
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.SlotDurationMinutes <= 0 {
		return fmt.Errorf("config: SLOT_DURATION_MINUTES must be positive, got %d", c.SlotDurationMinutes)
	}
	if c.MaxBookingDurationMinutes < c.SlotDurationMinutes {
		return fmt.Errorf("config: MAX_BOOKING_DURATION_MINUTES (%d) is below the slot duration (%d)",
			c.MaxBookingDurationMinutes, c.SlotDurationMinutes)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.StoreMaxTxRetries < 0 {
		return fmt.Errorf("config: STORE_MAX_TX_RETRIES must not be negative")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown LOG_FORMAT %q", c.LogFormat)
	}
	if c.OutboxPollInterval <= 0 {
		return fmt.Errorf("config: OUTBOX_POLL_INTERVAL must be positive")
	}
	return nil
}

// Location resolves ScheduleTimezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ScheduleTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: unknown SCHEDULE_TIMEZONE %q: %w", c.ScheduleTimezone, err)
	}
	return loc, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
