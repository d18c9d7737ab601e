package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/therapy-scheduler/internal/config"
	"github.com/wolfman30/therapy-scheduler/internal/velocity"
	"github.com/wolfman30/therapy-scheduler/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available; booking velocity limit disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildVelocityChecker returns the booking attempt limiter, or nil when Redis
// is not configured.
func BuildVelocityChecker(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) *velocity.Checker {
	if redisClient == nil || cfg == nil {
		return nil
	}
	vc := velocity.DefaultConfig()
	if cfg.BookingAttemptsPerHour > 0 {
		vc.MaxAttempts = cfg.BookingAttemptsPerHour
	}
	return velocity.NewChecker(redisClient, vc, logger)
}

// RedisPinger adapts a Redis client to the health check interface.
type RedisPinger struct {
	Client *redis.Client
}

func (p RedisPinger) Ping(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}
