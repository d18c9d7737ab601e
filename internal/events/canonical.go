package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Event is a domain event payload. Types are dotted and versioned, for
// example "appointment.booked.v1".
type Event interface {
	EventType() string
}

// Envelope is both the outbox row and the message body published
// downstream.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	Type          string          `json:"type"`
	Aggregate     string          `json:"aggregate"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

var (
	ErrNoAggregate = errors.New("events: aggregate is required")
	ErrNoEvent     = errors.New("events: event is required")
)

// Encoder stamps events into envelopes. Zero fields fall back to time.Now
// and random v4 ids.
type Encoder struct {
	Now   func() time.Time
	NewID func() uuid.UUID
}

// Encode wraps evt for aggregate, which is "<kind>:<id>" such as
// "therapist:t-1". The correlation id is taken from ctx.
func (c Encoder) Encode(ctx context.Context, aggregate string, evt Event) (Envelope, error) {
	aggregate = strings.TrimSpace(aggregate)
	if aggregate == "" {
		return Envelope{}, ErrNoAggregate
	}
	if evt == nil {
		return Envelope{}, ErrNoEvent
	}
	typ := strings.TrimSpace(evt.EventType())
	if typ == "" {
		return Envelope{}, fmt.Errorf("events: %T has no event type", evt)
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: encode %s: %w", typ, err)
	}

	now, newID := c.Now, c.NewID
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.New
	}
	return Envelope{
		ID:            newID(),
		Type:          typ,
		Aggregate:     aggregate,
		OccurredAt:    now().UTC().Truncate(time.Microsecond),
		CorrelationID: CorrelationIDFromContext(ctx),
		Payload:       payload,
	}, nil
}

// Encode uses the default Encoder.
func Encode(ctx context.Context, aggregate string, evt Event) (Envelope, error) {
	return Encoder{}.Encode(ctx, aggregate, evt)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Append inserts env into the outbox through exec. Pass the open
// transaction so the event commits or rolls back with the state change.
func Append(ctx context.Context, exec execer, env Envelope) error {
	if exec == nil {
		return errors.New("events: exec required")
	}
	const stmt = `INSERT INTO outbox (id, aggregate, event_type, correlation_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := exec.Exec(ctx, stmt, env.ID, env.Aggregate, env.Type, env.CorrelationID, []byte(env.Payload), env.OccurredAt)
	if err != nil {
		return fmt.Errorf("events: append %s: %w", env.Type, err)
	}
	return nil
}

type ctxKey struct{}

// WithCorrelationID tags envelopes encoded under ctx with id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// CorrelationIDFromContext returns the stored correlation id, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
