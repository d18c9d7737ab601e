package scheduling

import (
	"context"
	"time"

	"github.com/wolfman30/therapy-scheduler/internal/events"
)

// Store is the persistent home of rules, appointments and the event outbox.
// Nothing is cached between calls; every operation reads committed state.
type Store interface {
	// Update runs fn in a serializable read-write transaction. Writes made
	// through the Tx land only if fn returns nil and the commit succeeds;
	// otherwise nothing is persisted. fn may be invoked more than once when
	// the store retries a serialization failure, so it must not have side
	// effects outside the Tx.
	Update(ctx context.Context, fn func(Tx) error) error

	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	// LockTherapist serializes writers touching one therapist's schedule
	// until the transaction ends.
	LockTherapist(ctx context.Context, therapistID string) error

	ListRules(ctx context.Context, therapistID string) ([]Rule, error)
	ListRulesForDay(ctx context.Context, therapistID string, day Weekday) ([]Rule, error)
	GetRule(ctx context.Context, id string) (Rule, error)
	InsertRule(ctx context.Context, rule Rule) (Rule, error)
	UpdateRule(ctx context.Context, rule Rule) (Rule, error)
	DeleteRule(ctx context.Context, id string) error

	// ListActiveAppointments returns scheduled/confirmed appointments whose
	// window intersects [from, to), ordered by start.
	ListActiveAppointments(ctx context.Context, therapistID string, from, to time.Time) ([]Appointment, error)
	// ListTherapistAppointments returns appointments of any status starting in [from, to).
	ListTherapistAppointments(ctx context.Context, therapistID string, from, to time.Time) ([]Appointment, error)
	ListPatientAppointments(ctx context.Context, patientID string) ([]Appointment, error)
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	InsertAppointment(ctx context.Context, appt Appointment) (Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, status AppointmentStatus, reason string, at time.Time) (Appointment, error)

	AppendEvent(ctx context.Context, env events.Envelope) error
}
