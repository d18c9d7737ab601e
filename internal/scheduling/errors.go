package scheduling

import (
	"errors"
	"fmt"
	"time"
)

// Error classes. Every error returned by this package matches exactly one of
// them under errors.Is.
var (
	ErrValidation       = errors.New("scheduling: validation failed")
	ErrConflict         = errors.New("scheduling: conflict")
	ErrNotFound         = errors.New("scheduling: not found")
	ErrStoreUnavailable = errors.New("scheduling: store unavailable")
)

var (
	// ErrRuleNotFound is returned for unknown rule ids and rules owned by someone else.
	ErrRuleNotFound error = &notFoundError{resource: "availability rule"}

	// ErrAppointmentNotFound is returned for unknown appointment ids and appointments the caller may not see.
	ErrAppointmentNotFound error = &notFoundError{resource: "appointment"}

	// ErrConcurrentChange is returned when a database constraint rejected a
	// write that a concurrent transaction made invalid and retries ran out.
	ErrConcurrentChange error = &concurrentChangeError{}

	// ErrReadOnly is returned when a write is attempted inside a View transaction.
	ErrReadOnly = errors.New("scheduling: write in read-only transaction")
)

type notFoundError struct {
	resource string
}

func (e *notFoundError) Error() string        { return e.resource + " not found" }
func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

type concurrentChangeError struct{}

func (*concurrentChangeError) Error() string {
	return "the schedule changed while saving; reload and try again"
}
func (*concurrentChangeError) Is(target error) bool { return target == ErrConflict }

// ValidationError reports malformed input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// RuleConflictError reports that a candidate range overlaps an existing rule.
type RuleConflictError struct {
	Conflicting Rule
}

func (e *RuleConflictError) Error() string {
	return fmt.Sprintf("This time slot overlaps with your existing availability on %s from %s to %s",
		e.Conflicting.DayOfWeek.Title(),
		e.Conflicting.StartTime.Short(),
		e.Conflicting.EndTime.Short(),
	)
}

func (e *RuleConflictError) Is(target error) bool { return target == ErrConflict }

// BookingConflictError reports that the requested window collides with an active appointment.
type BookingConflictError struct {
	Conflicting Appointment
}

func (e *BookingConflictError) Error() string {
	return fmt.Sprintf("therapist already has an appointment from %s to %s",
		e.Conflicting.ScheduledTime.Format(time.RFC3339),
		e.Conflicting.EndTime().Format(time.RFC3339),
	)
}

func (e *BookingConflictError) Is(target error) bool { return target == ErrConflict }

// TransitionError reports a status change the appointment state machine forbids.
type TransitionError struct {
	From AppointmentStatus
	To   AppointmentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change appointment status from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrConflict }

// StoreError wraps a persistence failure. It is never retried by callers.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("scheduling: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error        { return e.Err }
func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// storeErr leaves domain errors untouched and wraps everything else.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
