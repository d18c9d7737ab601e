package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/therapy-scheduler/pkg/logging"
)

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, env Envelope) error
}

// Source yields undelivered envelopes in creation order.
type Source interface {
	FetchPending(ctx context.Context, limit int32) ([]Envelope, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
}

type outboxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore reads and acknowledges rows of the Postgres outbox. Rows are
// written by Append inside the scheduling transactions.
type OutboxStore struct {
	db outboxDB
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: pool}
}

func newOutboxStoreWithExec(db outboxDB) *OutboxStore {
	return &OutboxStore{db: db}
}

const pendingSQL = `SELECT id, aggregate, event_type, correlation_id, payload, created_at
	FROM outbox
	WHERE delivered_at IS NULL
	ORDER BY created_at, id
	LIMIT $1`

// FetchPending returns up to limit undelivered envelopes, oldest first.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]Envelope, error) {
	rows, err := s.db.Query(ctx, pendingSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("events: query pending: %w", err)
	}
	envs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Envelope, error) {
		var (
			env     Envelope
			payload []byte
		)
		if err := row.Scan(&env.ID, &env.Aggregate, &env.Type, &env.CorrelationID, &payload, &env.OccurredAt); err != nil {
			return Envelope{}, err
		}
		env.Payload = payload
		env.OccurredAt = env.OccurredAt.UTC()
		return env, nil
	})
	if err != nil {
		return nil, fmt.Errorf("events: read pending: %w", err)
	}
	return envs, nil
}

// MarkDelivered stamps id as delivered. It reports false when another
// deliverer got there first.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE outbox SET delivered_at = now() WHERE id = $1 AND delivered_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("events: mark %s delivered: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

const (
	defaultBatchSize    int32 = 25
	defaultPollInterval       = 2 * time.Second
)

// Deliverer moves envelopes from a Source to a DeliveryHandler. Delivery is
// at least once: an envelope is acknowledged only after the handler
// succeeds, and a failed one is retried on the next pass.
type Deliverer struct {
	source   Source
	handler  DeliveryHandler
	logger   *logging.Logger
	batch    int32
	interval time.Duration
}

func NewDeliverer(source Source, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		source:   source,
		handler:  handler,
		logger:   logger,
		batch:    defaultBatchSize,
		interval: defaultPollInterval,
	}
}

// WithBatchSize caps how many envelopes one pass fetches. Non-positive
// values are ignored.
func (d *Deliverer) WithBatchSize(n int32) *Deliverer {
	if n > 0 {
		d.batch = n
	}
	return d
}

// WithInterval sets the poll period. Non-positive values are ignored.
func (d *Deliverer) WithInterval(every time.Duration) *Deliverer {
	if every > 0 {
		d.interval = every
	}
	return d
}

// Start polls until ctx is cancelled.
func (d *Deliverer) Start(ctx context.Context) {
	if d.source == nil || d.handler == nil {
		d.logger.Warn("outbox deliverer not started: missing source or handler")
		return
	}
	d.logger.Info("outbox deliverer started", "interval", d.interval, "batch_size", d.batch)
	t := time.NewTicker(d.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox deliverer stopped")
			return
		case <-t.C:
			d.Drain(ctx)
		}
	}
}

// Drain runs a single pass and returns the number of envelopes acknowledged.
func (d *Deliverer) Drain(ctx context.Context) int {
	pending, err := d.source.FetchPending(ctx, d.batch)
	if err != nil {
		d.logger.Error("outbox poll failed", "error", err)
		return 0
	}

	acked := 0
	for _, env := range pending {
		log := []any{"event_id", env.ID, "type", env.Type, "aggregate", env.Aggregate}
		if err := d.handler.Handle(ctx, env); err != nil {
			d.logger.Error("event delivery failed; will retry", append(log, "error", err)...)
			continue
		}
		ok, err := d.source.MarkDelivered(ctx, env.ID)
		switch {
		case err != nil:
			d.logger.Error("event delivered but not acknowledged", append(log, "error", err)...)
		case ok:
			acked++
			d.logger.Debug("event delivered", log...)
		}
	}
	return acked
}
