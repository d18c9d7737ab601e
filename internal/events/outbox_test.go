package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/wolfman30/therapy-scheduler/pkg/logging"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newOutboxStoreWithExec(mock)

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "aggregate", "event_type", "correlation_id", "payload", "created_at"}).
		AddRow(id, "therapist:t-1", "appointment.booked.v1", "req-1", []byte(`{"appointment_id":"a-1"}`), now)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id {
		t.Fatalf("unexpected entries: %#v", entries)
	}
	if entries[0].CorrelationID != "req-1" {
		t.Fatalf("expected correlation id, got %q", entries[0].CorrelationID)
	}

	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	if !ok {
		t.Fatal("expected mark delivered to report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type sliceSource struct {
	pending   []Envelope
	delivered []uuid.UUID
}

func (s *sliceSource) FetchPending(ctx context.Context, limit int32) ([]Envelope, error) {
	if int(limit) < len(s.pending) {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *sliceSource) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	s.delivered = append(s.delivered, id)
	return true, nil
}

type flakyHandler struct {
	failType string
	seen     []string
}

func (h *flakyHandler) Handle(ctx context.Context, env Envelope) error {
	h.seen = append(h.seen, env.Type)
	if env.Type == h.failType {
		return errors.New("transport down")
	}
	return nil
}

func TestDelivererDrainSkipsFailedEntries(t *testing.T) {
	ok := Envelope{ID: uuid.New(), Type: "appointment.booked.v1"}
	bad := Envelope{ID: uuid.New(), Type: "appointment.status_changed.v1"}
	source := &sliceSource{pending: []Envelope{ok, bad}}
	handler := &flakyHandler{failType: bad.Type}

	d := NewDeliverer(source, handler, logging.Default()).WithBatchSize(10)
	if n := d.Drain(context.Background()); n != 1 {
		t.Fatalf("expected 1 delivered, got %d", n)
	}
	if len(source.delivered) != 1 || source.delivered[0] != ok.ID {
		t.Fatalf("expected only the successful entry to be marked, got %v", source.delivered)
	}
	if len(handler.seen) != 2 {
		t.Fatalf("expected both entries attempted, got %v", handler.seen)
	}
}

func TestDelivererStartStopsOnCancel(t *testing.T) {
	source := &sliceSource{}
	d := NewDeliverer(source, &flakyHandler{}, nil).WithInterval(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deliverer did not stop after cancel")
	}
}
