package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/wolfman30/therapy-scheduler/internal/scheduling"
	"github.com/wolfman30/therapy-scheduler/pkg/logging"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Message                string                  `json:"message"`
	Field                  string                  `json:"field,omitempty"`
	ConflictingSlot        *conflictingSlot        `json:"conflictingSlot,omitempty"`
	ConflictingAppointment *conflictingAppointment `json:"conflictingAppointment,omitempty"`
}

type conflictingSlot struct {
	DayOfWeek scheduling.Weekday   `json:"day_of_week"`
	StartTime scheduling.TimeOfDay `json:"start_time"`
	EndTime   scheduling.TimeOfDay `json:"end_time"`
}

// conflictingAppointment omits ids and patient data: the caller may not own
// the appointment it collided with.
type conflictingAppointment struct {
	ScheduledTime   time.Time `json:"scheduled_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, errorResponse{Message: msg})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeSchedulingError maps a scheduling error class onto an HTTP status and body.
func writeSchedulingError(w http.ResponseWriter, logger *logging.Logger, err error) {
	var (
		validation *scheduling.ValidationError
		ruleClash  *scheduling.RuleConflictError
		apptClash  *scheduling.BookingConflictError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: validation.Message, Field: validation.Field})
	case errors.As(err, &ruleClash):
		c := ruleClash.Conflicting
		writeJSON(w, http.StatusConflict, errorResponse{
			Message: ruleClash.Error(),
			ConflictingSlot: &conflictingSlot{
				DayOfWeek: c.DayOfWeek,
				StartTime: c.StartTime,
				EndTime:   c.EndTime,
			},
		})
	case errors.As(err, &apptClash):
		c := apptClash.Conflicting
		writeJSON(w, http.StatusConflict, errorResponse{
			Message: apptClash.Error(),
			ConflictingAppointment: &conflictingAppointment{
				ScheduledTime:   c.ScheduledTime,
				EndTime:         c.EndTime(),
				DurationMinutes: c.DurationMinutes,
			},
		})
	case errors.Is(err, scheduling.ErrConflict):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, scheduling.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, scheduling.ErrValidation):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error("scheduling request failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}
