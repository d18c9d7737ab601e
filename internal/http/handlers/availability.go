package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/therapy-scheduler/internal/identity"
	"github.com/wolfman30/therapy-scheduler/internal/scheduling"
	"github.com/wolfman30/therapy-scheduler/pkg/logging"
)

// RuleManager is the rule-side surface of the scheduling core.
type RuleManager interface {
	ListRules(ctx context.Context, therapistID string) ([]scheduling.Rule, error)
	ManageRules(ctx context.Context, therapistID string) ([]scheduling.Rule, error)
	AddRule(ctx context.Context, in scheduling.RuleInput) (scheduling.Rule, error)
	UpdateRule(ctx context.Context, id string, patch scheduling.RulePatch) (scheduling.Rule, error)
	DeleteRule(ctx context.Context, id string) error
}

// SlotDeriver derives open slots for a date.
type SlotDeriver interface {
	Derive(ctx context.Context, therapistID string, date time.Time, slotMinutes int) ([]scheduling.Slot, error)
	Location() *time.Location
}

// AvailabilityHandler serves weekly availability rules and derived slots.
type AvailabilityHandler struct {
	rules   RuleManager
	deriver SlotDeriver
	logger  *logging.Logger
}

// NewAvailabilityHandler creates a new availability handler.
func NewAvailabilityHandler(rules RuleManager, deriver SlotDeriver, logger *logging.Logger) *AvailabilityHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityHandler{rules: rules, deriver: deriver, logger: logger}
}

// AvailableSlotsResponse is returned when a date is supplied.
type AvailableSlotsResponse struct {
	Date            string   `json:"date"`
	DurationMinutes int      `json:"duration_minutes"`
	AvailableSlots  []string `json:"available_slots"`
}

// GetAvailability handles GET /api/therapists/{therapistID}/availability.
// Without ?date it lists the weekly rules; with it, the open slots that day.
func (h *AvailabilityHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	therapistID := chi.URLParam(r, "therapistID")
	rawDate := strings.TrimSpace(r.URL.Query().Get("date"))
	if rawDate == "" {
		rules, err := h.rules.ListRules(r.Context(), therapistID)
		if err != nil {
			writeSchedulingError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rules)
		return
	}

	date, err := scheduling.ParseDate(rawDate, h.deriver.Location())
	if err != nil {
		writeSchedulingError(w, h.logger, &scheduling.ValidationError{Field: "date", Message: err.Error()})
		return
	}
	minutes := 0
	if raw := r.URL.Query().Get("duration"); raw != "" {
		minutes, err = strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			writeSchedulingError(w, h.logger, &scheduling.ValidationError{Field: "duration", Message: "duration must be a positive number of minutes"})
			return
		}
	}

	slots, err := h.deriver.Derive(r.Context(), therapistID, date, minutes)
	if err != nil {
		writeSchedulingError(w, h.logger, err)
		return
	}
	resp := AvailableSlotsResponse{
		Date:           date.Format(scheduling.DateLayout),
		AvailableSlots: make([]string, 0, len(slots)),
	}
	for _, s := range slots {
		resp.DurationMinutes = s.DurationMinutes
		resp.AvailableSlots = append(resp.AvailableSlots, s.StartTime.String())
	}
	if resp.DurationMinutes == 0 {
		resp.DurationMinutes = minutes
	}
	writeJSON(w, http.StatusOK, resp)
}

// ManageAvailability handles GET /api/therapist/availability/manage/{therapistID}.
func (h *AvailabilityHandler) ManageAvailability(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.ManageRules(r.Context(), chi.URLParam(r, "therapistID"))
	if err != nil {
		writeSchedulingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// CreateRule handles POST /api/therapist/availability.
func (h *AvailabilityHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req scheduling.CreateRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TherapistID) == "" {
		if p, ok := identity.PrincipalFromContext(r.Context()); ok && p.Role == identity.RoleTherapist {
			req.TherapistID = p.Subject
		}
	}
	in, err := req.Input()
	if err != nil {
		writeSchedulingError(w, h.logger, err)
		return
	}

	rule, err := h.rules.AddRule(r.Context(), in)
	if err != nil {
		writeSchedulingError(w, h.logger, err)
		return
	}
	h.logger.Info("availability rule created",
		"availability_id", rule.ID,
		"therapist_id", rule.TherapistID,
		"day_of_week", rule.DayOfWeek,
	)
	writeJSON(w, http.StatusCreated, rule)
}

// UpdateRule handles PUT /api/therapist/availability/{ruleID}.
func (h *AvailabilityHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var req scheduling.UpdateRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	patch, err := req.Patch()
	if err != nil {
		writeSchedulingError(w, h.logger, err)
		return
	}

	rule, err := h.rules.UpdateRule(r.Context(), chi.URLParam(r, "ruleID"), patch)
	if err != nil {
		writeSchedulingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /api/therapist/availability/{ruleID}.
func (h *AvailabilityHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.rules.DeleteRule(r.Context(), chi.URLParam(r, "ruleID")); err != nil {
		writeSchedulingError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
