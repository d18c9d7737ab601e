package scheduling

import (
	"fmt"
	"strings"
	"time"
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusScheduled, StatusConfirmed, StatusCancelled},
	StatusScheduled: {StatusConfirmed, StatusCompleted, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// ParseAppointmentStatus accepts the American "canceled" spelling as well.
func ParseAppointmentStatus(raw string) (AppointmentStatus, error) {
	s := AppointmentStatus(strings.ToLower(strings.TrimSpace(raw)))
	if s == "canceled" {
		s = StatusCancelled
	}
	switch s {
	case StatusPending, StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("invalid appointment status %q", raw)
}

// Active reports whether an appointment in this status occupies its window.
func (s AppointmentStatus) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// Terminal reports whether no further transitions are allowed.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Appointment is a booked session. Appointments are never deleted.
type Appointment struct {
	ID                 string            `json:"appointment_id"`
	PatientID          string            `json:"patient_id"`
	TherapistID        string            `json:"therapist_id"`
	ScheduledTime      time.Time         `json:"scheduled_time"`
	DurationMinutes    int               `json:"duration_minutes"`
	Status             AppointmentStatus `json:"status"`
	Notes              string            `json:"notes,omitempty"`
	TherapyType        string            `json:"therapy_type,omitempty"`
	CancellationReason string            `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Duration returns the session length.
func (a Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

// EndTime returns the exclusive end of the appointment window.
func (a Appointment) EndTime() time.Time {
	return a.ScheduledTime.Add(a.Duration())
}

// Overlaps reports whether the appointment window intersects [start, end).
func (a Appointment) Overlaps(start, end time.Time) bool {
	return windowsOverlap(a.ScheduledTime, a.EndTime(), start, end)
}

// firstCollision returns the first active appointment in appts intersecting
// [start, end), ignoring excludeID.
func firstCollision(appts []Appointment, start, end time.Time, excludeID string) (Appointment, bool) {
	for _, a := range appts {
		if !a.Status.Active() || a.ID == excludeID {
			continue
		}
		if a.Overlaps(start, end) {
			return a, true
		}
	}
	return Appointment{}, false
}
