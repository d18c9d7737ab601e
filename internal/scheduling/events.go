package scheduling

import (
	"context"
	"time"

	"github.com/wolfman30/therapy-scheduler/internal/events"
)

// RuleChangedV1 is emitted whenever an availability rule is created,
// edited or removed.
type RuleChangedV1 struct {
	Kind        string    `json:"-"`
	RuleID      string    `json:"availability_id"`
	TherapistID string    `json:"therapist_id"`
	DayOfWeek   Weekday   `json:"day_of_week"`
	StartTime   TimeOfDay `json:"start_time"`
	EndTime     TimeOfDay `json:"end_time"`
	IsRecurring bool      `json:"is_recurring"`
}

const (
	ruleCreated = "availability.rule_created.v1"
	ruleUpdated = "availability.rule_updated.v1"
	ruleDeleted = "availability.rule_deleted.v1"
)

func (e RuleChangedV1) EventType() string { return e.Kind }

func ruleEvent(kind string, r Rule) RuleChangedV1 {
	return RuleChangedV1{
		Kind:        kind,
		RuleID:      r.ID,
		TherapistID: r.TherapistID,
		DayOfWeek:   r.DayOfWeek,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		IsRecurring: r.IsRecurring,
	}
}

// AppointmentBookedV1 is emitted when a booking is committed.
type AppointmentBookedV1 struct {
	AppointmentID   string    `json:"appointment_id"`
	PatientID       string    `json:"patient_id"`
	TherapistID     string    `json:"therapist_id"`
	ScheduledTime   time.Time `json:"scheduled_time"`
	DurationMinutes int       `json:"duration_minutes"`
	TherapyType     string    `json:"therapy_type,omitempty"`
}

func (AppointmentBookedV1) EventType() string { return "appointment.booked.v1" }

// AppointmentStatusChangedV1 is emitted for every accepted status transition.
type AppointmentStatusChangedV1 struct {
	AppointmentID string            `json:"appointment_id"`
	PatientID     string            `json:"patient_id"`
	TherapistID   string            `json:"therapist_id"`
	From          AppointmentStatus `json:"from"`
	To            AppointmentStatus `json:"to"`
	Reason        string            `json:"reason,omitempty"`
}

func (AppointmentStatusChangedV1) EventType() string { return "appointment.status_changed.v1" }

func therapistAggregate(therapistID string) string {
	return "therapist:" + therapistID
}

// emit appends evt to the transaction's outbox, stamped with the service clock.
func emit(ctx context.Context, tx Tx, now func() time.Time, therapistID string, evt events.Event) error {
	env, err := events.Encoder{Now: now}.Encode(ctx, therapistAggregate(therapistID), evt)
	if err != nil {
		return &StoreError{Op: "build event", Err: err}
	}
	return tx.AppendEvent(ctx, env)
}
