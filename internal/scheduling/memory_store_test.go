package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"
)

// seedAppointment inserts appt directly, bypassing the reconciler.
func (s *MemoryStore) seedAppointment(appt Appointment) (Appointment, error) {
	var out Appointment
	err := s.Update(context.Background(), func(tx Tx) error {
		var err error
		out, err = tx.InsertAppointment(context.Background(), appt)
		return err
	})
	return out, err
}

func TestMemoryStoreRollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Update(ctx, func(tx Tx) error {
		if _, err := tx.InsertRule(ctx, rule("", Monday, "09:00", "10:00")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error to propagate, got %v", err)
	}

	_ = store.View(ctx, func(tx Tx) error {
		rules, err := tx.ListRules(ctx, "t-1")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(rules) != 0 {
			t.Fatalf("expected rollback, found %d rules", len(rules))
		}
		return nil
	})
}

func TestMemoryStoreViewIsReadOnly(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	err := store.View(ctx, func(tx Tx) error {
		_, err := tx.InsertRule(ctx, rule("", Monday, "09:00", "10:00"))
		return err
	})
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestMemoryStoreAppointmentQueries(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seed := []Appointment{
		appt("", at(monday, "09:00"), 60, StatusScheduled),
		appt("", at(monday, "10:00"), 60, StatusCancelled),
		appt("", at(monday, "11:00"), 30, StatusConfirmed),
		appt("", at(monday.AddDate(0, 0, 1), "09:00"), 60, StatusScheduled),
	}
	for _, a := range seed {
		if _, err := store.seedAppointment(a); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	_ = store.View(ctx, func(tx Tx) error {
		active, err := tx.ListActiveAppointments(ctx, "t-1", monday, monday.Add(24*time.Hour))
		if err != nil || len(active) != 2 {
			t.Fatalf("expected 2 active appointments on monday, got %d (%v)", len(active), err)
		}
		if !active[0].ScheduledTime.Before(active[1].ScheduledTime) {
			t.Fatalf("expected ordering by start")
		}
		all, _ := tx.ListTherapistAppointments(ctx, "t-1", monday, monday.Add(24*time.Hour))
		if len(all) != 3 {
			t.Fatalf("expected 3 monday appointments of any status, got %d", len(all))
		}
		history, _ := tx.ListPatientAppointments(ctx, "p-1")
		if len(history) != 4 {
			t.Fatalf("expected 4 patient appointments, got %d", len(history))
		}
		if _, err := tx.GetAppointment(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		return nil
	})
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := store.Update(ctx, func(Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrStoreUnavailable) || called {
		t.Fatalf("expected store error without running fn, got %v (called=%v)", err, called)
	}
}
