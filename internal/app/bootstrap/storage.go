package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/wolfman30/therapy-scheduler/internal/config"
	"github.com/wolfman30/therapy-scheduler/internal/events"
	"github.com/wolfman30/therapy-scheduler/internal/scheduling"
	"github.com/wolfman30/therapy-scheduler/pkg/logging"
)

// Storage bundles the scheduling store with the outbox it appends to.
type Storage struct {
	Store  scheduling.Store
	Outbox events.Source
	// Pool is nil for the in-memory store.
	Pool *pgxpool.Pool
}

// Close releases the connection pool, if any.
func (s *Storage) Close() {
	if s != nil && s.Pool != nil {
		s.Pool.Close()
	}
}

// BuildPostgresPool connects to DATABASE_URL and verifies the connection.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: parse database url: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.DBMaxConns)
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}

// BuildStorage selects Postgres when DATABASE_URL is set and the in-memory
// store otherwise.
func BuildStorage(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL not set; using in-memory store (data is lost on restart)")
		mem := scheduling.NewMemoryStore()
		return &Storage{Store: mem, Outbox: mem}, nil
	}

	pool, err := BuildPostgresPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to postgres", "max_conns", pool.Config().MaxConns)
	return &Storage{
		Store:  scheduling.NewPostgresStore(pool, cfg.StoreMaxTxRetries, logger),
		Outbox: events.NewOutboxStore(pool),
		Pool:   pool,
	}, nil
}

// BuildDeliveryHandler publishes outbox events to SQS when EVENTS_QUEUE_URL
// is set, and to the structured log otherwise.
func BuildDeliveryHandler(cfg *appconfig.Config, sqsClient *sqs.Client, logger *logging.Logger) (events.DeliveryHandler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	queueURL := strings.TrimSpace(cfg.EventsQueueURL)
	if queueURL == "" {
		return events.NewLogHandler(logger), nil
	}
	if sqsClient == nil {
		return nil, fmt.Errorf("bootstrap: EVENTS_QUEUE_URL set but no SQS client")
	}
	return events.NewSQSPublisher(sqsClient, queueURL), nil
}

// BuildDeliverer wires the outbox poller.
func BuildDeliverer(storage *Storage, handler events.DeliveryHandler, cfg *appconfig.Config, logger *logging.Logger) *events.Deliverer {
	d := events.NewDeliverer(storage.Outbox, handler, logger).WithInterval(cfg.OutboxPollInterval)
	if cfg.OutboxBatchSize > 0 {
		d = d.WithBatchSize(int32(cfg.OutboxBatchSize))
	}
	return d
}
