package scheduling

import (
	"errors"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/wolfman30/therapy-scheduler/internal/observability/metrics"
	"github.com/wolfman30/therapy-scheduler/pkg/logging"
)

var schedulingTracer = otel.Tracer("therapy.internal.scheduling")

const (
	DefaultSlotMinutes        = 60
	DefaultMaxDurationMinutes = 240
	slotGranularityMinutes    = 5
)

// Options configures the scheduling services. Zero values fall back to
// defaults: UTC, 60-minute slots, 240-minute maximum, time.Now.
type Options struct {
	Location           *time.Location
	SlotMinutes        int
	MaxDurationMinutes int
	Now                func() time.Time
	Logger             *logging.Logger
	Metrics            *metrics.SchedulingMetrics
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.SlotMinutes <= 0 {
		o.SlotMinutes = DefaultSlotMinutes
	}
	if o.MaxDurationMinutes <= 0 {
		o.MaxDurationMinutes = DefaultMaxDurationMinutes
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	return o
}

// validateDuration checks a slot or booking length in minutes.
func (o Options) validateDuration(field string, minutes int) error {
	if minutes <= 0 {
		return invalid(field, "duration must be positive")
	}
	if minutes > o.MaxDurationMinutes {
		return invalid(field, "duration must be at most %d minutes", o.MaxDurationMinutes)
	}
	if minutes%slotGranularityMinutes != 0 {
		return invalid(field, "duration must be a multiple of %d minutes", slotGranularityMinutes)
	}
	return nil
}

func outcome(err error) string {
	return metrics.Outcome(err, classify)
}

func classify(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return ""
}

// logFailure logs err at a level matching its class. Conflicts are expected
// business outcomes; only store failures are errors.
func logFailure(logger *logging.Logger, msg string, err error, args ...any) {
	args = append(args, "error", err)
	switch classify(err) {
	case "conflict":
		logger.Info(msg, args...)
	case "invalid", "not_found":
		logger.Debug(msg, args...)
	default:
		logger.Error(msg, args...)
	}
}
