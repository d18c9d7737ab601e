package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/therapy-scheduler/pkg/logging"
)

var velocityTracer = otel.Tracer("therapy.internal.velocity")

// Config bounds how many booking attempts one patient may make per window.
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultConfig returns the default booking limits.
func DefaultConfig() Config {
	return Config{MaxAttempts: 20, Window: time.Hour}
}

// Result describes the outcome of a check.
type Result struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	RetryAfter   time.Duration
	Message      string
}

// Checker counts booking attempts per patient in Redis. Counting covers
// attempts, not successes, so repeated conflicts also consume the budget.
type Checker struct {
	redis  *redis.Client
	logger *logging.Logger
	config Config
}

func NewChecker(redisClient *redis.Client, config Config, logger *logging.Logger) *Checker {
	if logger == nil {
		logger = logging.Default()
	}
	if config.MaxAttempts <= 0 || config.Window <= 0 {
		config = DefaultConfig()
	}
	return &Checker{redis: redisClient, logger: logger, config: config}
}

func attemptKey(patientID string) string {
	return fmt.Sprintf("velocity:booking:%s", patientID)
}

// CheckBooking records one attempt for patientID and reports whether it is
// within the limit. Redis failures fail open.
func (c *Checker) CheckBooking(ctx context.Context, patientID string) (*Result, error) {
	ctx, span := velocityTracer.Start(ctx, "velocity.check_booking")
	defer span.End()
	span.SetAttributes(attribute.String("therapy.patient_id", patientID))

	if c == nil || c.redis == nil {
		return &Result{Allowed: true}, nil
	}

	count, ttl, err := c.incrementAndGet(ctx, attemptKey(patientID))
	if err != nil {
		c.logger.Error("booking velocity check failed", "error", err, "patient_id", patientID)
		return &Result{Allowed: true, Message: "velocity check unavailable"}, nil
	}

	result := &Result{
		Allowed:      count <= c.config.MaxAttempts,
		CurrentCount: count,
		MaxAllowed:   c.config.MaxAttempts,
	}
	if !result.Allowed {
		result.RetryAfter = ttl
		result.Message = fmt.Sprintf("exceeded %d booking attempts in %s", c.config.MaxAttempts, c.config.Window)
		c.logger.Warn("booking velocity exceeded",
			"patient_id", patientID,
			"count", count,
			"max", c.config.MaxAttempts,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return result, nil
}

func (c *Checker) incrementAndGet(ctx context.Context, key string) (int, time.Duration, error) {
	count, err := c.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		c.redis.Expire(ctx, key, c.config.Window)
	}
	ttl, err := c.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = c.config.Window
	}
	return int(count), ttl, nil
}

// Reset clears the counter for patientID.
func (c *Checker) Reset(ctx context.Context, patientID string) error {
	return c.redis.Del(ctx, attemptKey(patientID)).Err()
}
