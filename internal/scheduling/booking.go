package scheduling

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/therapy-scheduler/internal/identity"
)

// BookingRequest is the wire body of the booking endpoints. Either
// scheduledTime (ISO-8601) or date plus time must be supplied.
type BookingRequest struct {
	PatientID       string `json:"patientId"`
	TherapistID     string `json:"therapistId"`
	ScheduledTime   string `json:"scheduledTime"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"durationMinutes"`
	Notes           string `json:"notes"`
	TherapyType     string `json:"therapyType"`
}

// BookingInput is a parsed booking request.
type BookingInput struct {
	PatientID       string
	TherapistID     string
	Start           time.Time
	DurationMinutes int
	Notes           string
	TherapyType     string
}

var localTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Input parses the request. Times without an offset are read in loc.
func (r *BookingRequest) Input(loc *time.Location) (BookingInput, error) {
	if loc == nil {
		loc = time.UTC
	}
	in := BookingInput{
		PatientID:       strings.TrimSpace(r.PatientID),
		TherapistID:     strings.TrimSpace(r.TherapistID),
		DurationMinutes: r.DurationMinutes,
		Notes:           strings.TrimSpace(r.Notes),
		TherapyType:     strings.TrimSpace(r.TherapyType),
	}
	if in.PatientID == "" {
		return BookingInput{}, invalid("patientId", "patient id is required")
	}
	if in.TherapistID == "" {
		return BookingInput{}, invalid("therapistId", "therapist id is required")
	}
	if in.DurationMinutes < 0 {
		return BookingInput{}, invalid("durationMinutes", "duration must be positive")
	}

	raw := strings.TrimSpace(r.ScheduledTime)
	if raw == "" {
		if strings.TrimSpace(r.Date) == "" || strings.TrimSpace(r.Time) == "" {
			return BookingInput{}, invalid("scheduledTime", "scheduledTime or date and time are required")
		}
		day, err := ParseDate(r.Date, loc)
		if err != nil {
			return BookingInput{}, invalid("date", "%v", err)
		}
		tod, err := ParseTimeOfDay(r.Time)
		if err != nil {
			return BookingInput{}, invalid("time", "%v", err)
		}
		in.Start = tod.On(day)
		return in, nil
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		in.Start = t.In(loc)
		return in, nil
	}
	for _, layout := range localTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			in.Start = t
			return in, nil
		}
	}
	return BookingInput{}, invalid("scheduledTime", "invalid scheduled time %q: expected ISO-8601", raw)
}

// Reconciler books appointments. A booking re-derives the therapist's slots
// and re-checks for colliding appointments inside the same serializable
// transaction that inserts the appointment, so two racing requests for one
// slot cannot both commit.
type Reconciler struct {
	store Store
	opts  Options
}

func NewReconciler(store Store, opts Options) *Reconciler {
	if store == nil {
		panic("scheduling: store required")
	}
	return &Reconciler{store: store, opts: opts.withDefaults()}
}

// Location is the clinic time zone bookings are interpreted in.
func (r *Reconciler) Location() *time.Location { return r.opts.Location }

// Book reserves in.Start for in.DurationMinutes. It fails with a
// *ValidationError when the time is in the past or not an offered slot, and
// with a *BookingConflictError when an active appointment holds the window.
func (r *Reconciler) Book(ctx context.Context, in BookingInput) (Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("therapy.therapist_id", in.TherapistID),
		attribute.String("therapy.scheduled_time", in.Start.Format(time.RFC3339)),
	)

	appt, err := r.book(ctx, in)
	r.opts.Metrics.ObserveBooking(outcome(err))
	if err != nil {
		r.fail(span, "booking failed", err, "therapist_id", in.TherapistID, "patient_id", in.PatientID)
		return Appointment{}, err
	}
	r.opts.Logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"therapist_id", appt.TherapistID,
		"patient_id", appt.PatientID,
		"scheduled_time", appt.ScheduledTime,
	)
	return appt, nil
}

func (r *Reconciler) book(ctx context.Context, in BookingInput) (Appointment, error) {
	if strings.TrimSpace(in.PatientID) == "" {
		return Appointment{}, invalid("patientId", "patient id is required")
	}
	if strings.TrimSpace(in.TherapistID) == "" {
		return Appointment{}, invalid("therapistId", "therapist id is required")
	}
	if !identity.CanActAsPatient(ctx, in.PatientID) {
		return Appointment{}, invalid("patientId", "cannot book on behalf of another patient")
	}
	if in.DurationMinutes == 0 {
		in.DurationMinutes = r.opts.SlotMinutes
	}
	if err := r.opts.validateDuration("durationMinutes", in.DurationMinutes); err != nil {
		return Appointment{}, err
	}
	if in.Start.IsZero() {
		return Appointment{}, invalid("scheduledTime", "scheduled time is required")
	}

	start := in.Start.In(r.opts.Location)
	now := r.opts.Now()
	if !start.After(now) {
		return Appointment{}, invalid("scheduledTime", "appointment time must be in the future")
	}
	day := StartOfDay(start, r.opts.Location)
	length := time.Duration(in.DurationMinutes) * time.Minute

	var booked Appointment
	err := r.store.Update(ctx, func(tx Tx) error {
		if err := tx.LockTherapist(ctx, in.TherapistID); err != nil {
			return err
		}
		rules, err := tx.ListRulesForDay(ctx, in.TherapistID, WeekdayOf(day))
		if err != nil {
			return err
		}
		if !offered(DeriveSlots(day, rules, nil, in.DurationMinutes, now), start) {
			return invalid("scheduledTime", "%s %s is not an available slot for this therapist",
				day.Format(DateLayout), TimeOfDayOf(start).Short())
		}
		active, err := tx.ListActiveAppointments(ctx, in.TherapistID, start, start.Add(length))
		if err != nil {
			return err
		}
		if conflict, ok := firstCollision(active, start, start.Add(length), ""); ok {
			return &BookingConflictError{Conflicting: conflict}
		}
		booked, err = tx.InsertAppointment(ctx, Appointment{
			PatientID:       in.PatientID,
			TherapistID:     in.TherapistID,
			ScheduledTime:   start,
			DurationMinutes: in.DurationMinutes,
			Status:          StatusScheduled,
			Notes:           in.Notes,
			TherapyType:     in.TherapyType,
		})
		if err != nil {
			return err
		}
		return emit(ctx, tx, r.opts.Now, in.TherapistID, AppointmentBookedV1{
			AppointmentID:   booked.ID,
			PatientID:       booked.PatientID,
			TherapistID:     booked.TherapistID,
			ScheduledTime:   booked.ScheduledTime.UTC(),
			DurationMinutes: booked.DurationMinutes,
			TherapyType:     booked.TherapyType,
		})
	})
	if err != nil {
		return Appointment{}, err
	}
	return r.localize(booked), nil
}

func offered(slots []Slot, start time.Time) bool {
	for _, s := range slots {
		if s.Start.Equal(start) {
			return true
		}
	}
	return false
}

// UpdateStatus moves appointment id to next. Patients may only cancel.
// Re-activating an appointment re-checks the therapist's schedule.
func (r *Reconciler) UpdateStatus(ctx context.Context, id string, next AppointmentStatus, reason string) (Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.update_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("therapy.appointment_id", id),
		attribute.String("therapy.status", string(next)),
	)

	var (
		from    AppointmentStatus
		updated Appointment
	)
	err := r.store.Update(ctx, func(tx Tx) error {
		current, err := r.visibleAppointment(ctx, tx, id)
		if err != nil {
			return err
		}
		from = current.Status
		if p, ok := identity.PrincipalFromContext(ctx); ok && p.Role == identity.RolePatient && next != StatusCancelled {
			return invalid("status", "patients may only cancel appointments")
		}
		if !current.Status.CanTransitionTo(next) {
			return &TransitionError{From: current.Status, To: next}
		}
		if err := tx.LockTherapist(ctx, current.TherapistID); err != nil {
			return err
		}
		if next.Active() && !current.Status.Active() {
			active, err := tx.ListActiveAppointments(ctx, current.TherapistID, current.ScheduledTime, current.EndTime())
			if err != nil {
				return err
			}
			if conflict, ok := firstCollision(active, current.ScheduledTime, current.EndTime(), current.ID); ok {
				return &BookingConflictError{Conflicting: conflict}
			}
		}
		if next != StatusCancelled {
			reason = ""
		}
		updated, err = tx.UpdateAppointmentStatus(ctx, current.ID, next, strings.TrimSpace(reason), r.opts.Now())
		if err != nil {
			return err
		}
		return emit(ctx, tx, r.opts.Now, updated.TherapistID, AppointmentStatusChangedV1{
			AppointmentID: updated.ID,
			PatientID:     updated.PatientID,
			TherapistID:   updated.TherapistID,
			From:          from,
			To:            next,
			Reason:        updated.CancellationReason,
		})
	})
	r.opts.Metrics.ObserveStatusChange(string(from), string(next), outcome(err))
	if err != nil {
		r.fail(span, "appointment status change failed", err, "appointment_id", id, "status", next)
		return Appointment{}, err
	}
	r.opts.Logger.Info("appointment status changed",
		"appointment_id", updated.ID,
		"from", from,
		"to", next,
	)
	return r.localize(updated), nil
}

// Get returns appointment id if the caller may see it.
func (r *Reconciler) Get(ctx context.Context, id string) (Appointment, error) {
	var appt Appointment
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		appt, err = r.visibleAppointment(ctx, tx, id)
		return err
	})
	if err != nil {
		logFailure(r.opts.Logger, "get appointment failed", err, "appointment_id", id)
		return Appointment{}, err
	}
	return r.localize(appt), nil
}

// ListForTherapist returns every appointment, of any status, starting on date.
func (r *Reconciler) ListForTherapist(ctx context.Context, therapistID string, date time.Time) ([]Appointment, error) {
	if !identity.CanActAsTherapist(ctx, therapistID) {
		return nil, ErrAppointmentNotFound
	}
	day := StartOfDay(date, r.opts.Location)
	var appts []Appointment
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		appts, err = tx.ListTherapistAppointments(ctx, therapistID, day, day.AddDate(0, 0, 1))
		return err
	})
	if err != nil {
		logFailure(r.opts.Logger, "list therapist appointments failed", err, "therapist_id", therapistID)
		return nil, err
	}
	return r.localizeAll(appts), nil
}

// ListForPatient returns the patient's appointment history.
func (r *Reconciler) ListForPatient(ctx context.Context, patientID string) ([]Appointment, error) {
	if !identity.CanActAsPatient(ctx, patientID) {
		return nil, ErrAppointmentNotFound
	}
	var appts []Appointment
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		appts, err = tx.ListPatientAppointments(ctx, patientID)
		return err
	})
	if err != nil {
		logFailure(r.opts.Logger, "list patient appointments failed", err, "patient_id", patientID)
		return nil, err
	}
	return r.localizeAll(appts), nil
}

func (r *Reconciler) visibleAppointment(ctx context.Context, tx Tx, id string) (Appointment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Appointment{}, ErrAppointmentNotFound
	}
	appt, err := tx.GetAppointment(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if !identity.CanActAsTherapist(ctx, appt.TherapistID) && !identity.CanActAsPatient(ctx, appt.PatientID) {
		return Appointment{}, ErrAppointmentNotFound
	}
	return appt, nil
}

func (r *Reconciler) localize(a Appointment) Appointment {
	a.ScheduledTime = a.ScheduledTime.In(r.opts.Location)
	return a
}

func (r *Reconciler) localizeAll(appts []Appointment) []Appointment {
	out := make([]Appointment, 0, len(appts))
	for _, a := range appts {
		out = append(out, r.localize(a))
	}
	return out
}

func (r *Reconciler) fail(span trace.Span, msg string, err error, args ...any) {
	span.RecordError(err)
	if classify(err) == "" {
		span.SetStatus(codes.Error, err.Error())
	}
	logFailure(r.opts.Logger, msg, err, args...)
}
