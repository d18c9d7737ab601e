package handlers

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/therapy-scheduler/internal/observability/metrics"
	"github.com/wolfman30/therapy-scheduler/internal/scheduling"
	"github.com/wolfman30/therapy-scheduler/internal/velocity"
	"github.com/wolfman30/therapy-scheduler/pkg/logging"
)

// Booker is the appointment-side surface of the scheduling core.
type Booker interface {
	Book(ctx context.Context, in scheduling.BookingInput) (scheduling.Appointment, error)
	UpdateStatus(ctx context.Context, id string, next scheduling.AppointmentStatus, reason string) (scheduling.Appointment, error)
	Get(ctx context.Context, id string) (scheduling.Appointment, error)
	ListForTherapist(ctx context.Context, therapistID string, date time.Time) ([]scheduling.Appointment, error)
	ListForPatient(ctx context.Context, patientID string) ([]scheduling.Appointment, error)
	Location() *time.Location
}

// AttemptLimiter throttles booking attempts per patient.
type AttemptLimiter interface {
	CheckBooking(ctx context.Context, patientID string) (*velocity.Result, error)
}

// AppointmentHandler serves booking and appointment lifecycle endpoints.
type AppointmentHandler struct {
	booker  Booker
	limiter AttemptLimiter
	metrics *metrics.SchedulingMetrics
	logger  *logging.Logger
}

// NewAppointmentHandler creates a new appointment handler. limiter and m may be nil.
func NewAppointmentHandler(booker Booker, limiter AttemptLimiter, m *metrics.SchedulingMetrics, logger *logging.Logger) *AppointmentHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentHandler{booker: booker, limiter: limiter, metrics: m, logger: logger}
}

// StatusUpdateRequest is the body of PATCH /api/appointments/{appointmentID}/status.
type StatusUpdateRequest struct {
	Status             string `json:"status"`
	CancellationReason string `json:"cancellationReason"`
}

// BookAppointment handles POST /api/appointments and POST /api/test/book-appointment.
func (h *AppointmentHandler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req scheduling.BookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.Input(h.booker.Location())
	if err != nil {
		writeSchedulingError(w, h.logger, err)
		return
	}

	if h.limiter != nil {
		res, err := h.limiter.CheckBooking(r.Context(), in.PatientID)
		if err == nil && res != nil && !res.Allowed {
			h.metrics.ObserveVelocityBlocked()
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			jsonError(w, "Too many booking attempts. Please try again later.", http.StatusTooManyRequests)
			return
		}
	}

	appt, err := h.booker.Book(r.Context(), in)
	if err != nil {
		writeSchedulingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// UpdateStatus handles PATCH /api/appointments/{appointmentID}/status.
func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	next, err := scheduling.ParseAppointmentStatus(req.Status)
	if err != nil {
		writeSchedulingError(w, h.logger, &scheduling.ValidationError{Field: "status", Message: err.Error()})
		return
	}

	appt, err := h.booker.UpdateStatus(r.Context(), chi.URLParam(r, "appointmentID"), next, req.CancellationReason)
	if err != nil {
		writeSchedulingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// GetAppointment handles GET /api/appointments/{appointmentID}.
func (h *AppointmentHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.booker.Get(r.Context(), chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeSchedulingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// ListTherapistAppointments handles GET /api/therapists/{therapistID}/appointments?date=.
func (h *AppointmentHandler) ListTherapistAppointments(w http.ResponseWriter, r *http.Request) {
	rawDate := strings.TrimSpace(r.URL.Query().Get("date"))
	if rawDate == "" {
		writeSchedulingError(w, h.logger, &scheduling.ValidationError{Field: "date", Message: "date is required"})
		return
	}
	date, err := scheduling.ParseDate(rawDate, h.booker.Location())
	if err != nil {
		writeSchedulingError(w, h.logger, &scheduling.ValidationError{Field: "date", Message: err.Error()})
		return
	}

	appts, err := h.booker.ListForTherapist(r.Context(), chi.URLParam(r, "therapistID"), date)
	if err != nil {
		writeSchedulingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

// ListPatientAppointments handles GET /api/patients/{patientID}/appointments.
func (h *AppointmentHandler) ListPatientAppointments(w http.ResponseWriter, r *http.Request) {
	appts, err := h.booker.ListForPatient(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		writeSchedulingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appts)
}
