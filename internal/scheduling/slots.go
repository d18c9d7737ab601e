package scheduling

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Slot is a bookable start time on a concrete date. Slots are derived on
// demand and never stored.
type Slot struct {
	Date            string    `json:"date"`
	StartTime       TimeOfDay `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Start           time.Time `json:"scheduled_time"`
}

// End returns the exclusive end of the slot.
func (s Slot) End() time.Time {
	return s.Start.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// DeriveSlots projects the rules for date's weekday onto date and returns
// the fixed-length slots that fit inside a rule, do not intersect an active
// appointment in booked and start after notBefore (ignored when zero).
// date is interpreted as a calendar day in its own location.
func DeriveSlots(date time.Time, rules []Rule, booked []Appointment, slotMinutes int, notBefore time.Time) []Slot {
	if slotMinutes <= 0 {
		return nil
	}
	day := WeekdayOf(date)
	length := time.Duration(slotMinutes) * time.Minute
	dateLabel := date.Format(DateLayout)

	slots := make([]Slot, 0)
	for _, rule := range rules {
		if rule.DayOfWeek != day {
			continue
		}
		for t := rule.StartTime; t.Add(length) <= rule.EndTime; t = t.Add(length) {
			start := t.On(date)
			if !notBefore.IsZero() && !start.After(notBefore) {
				continue
			}
			if _, busy := firstCollision(booked, start, start.Add(length), ""); busy {
				continue
			}
			slots = append(slots, Slot{
				Date:            dateLabel,
				StartTime:       t,
				DurationMinutes: slotMinutes,
				Start:           start,
			})
		}
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots
}

// Deriver answers "which slots are open for this therapist on this date".
type Deriver struct {
	store Store
	opts  Options
}

func NewDeriver(store Store, opts Options) *Deriver {
	if store == nil {
		panic("scheduling: store required")
	}
	return &Deriver{store: store, opts: opts.withDefaults()}
}

// Location is the clinic time zone dates are interpreted in.
func (d *Deriver) Location() *time.Location { return d.opts.Location }

// Derive returns the open slots for therapistID on date. slotMinutes of zero
// selects the configured default. An empty result is a valid answer meaning
// the therapist is unavailable that day.
func (d *Deriver) Derive(ctx context.Context, therapistID string, date time.Time, slotMinutes int) ([]Slot, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.derive_slots")
	defer span.End()
	started := time.Now()

	slots, err := d.derive(ctx, therapistID, date, slotMinutes)
	d.opts.Metrics.ObserveDerivation(outcome(err), time.Since(started).Seconds())
	span.SetAttributes(
		attribute.String("therapy.therapist_id", therapistID),
		attribute.Int("therapy.slot_count", len(slots)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logFailure(d.opts.Logger, "slot derivation failed", err, "therapist_id", therapistID)
		return nil, err
	}
	return slots, nil
}

func (d *Deriver) derive(ctx context.Context, therapistID string, date time.Time, slotMinutes int) ([]Slot, error) {
	therapistID = strings.TrimSpace(therapistID)
	if therapistID == "" {
		return nil, invalid("therapistId", "therapist id is required")
	}
	if slotMinutes == 0 {
		slotMinutes = d.opts.SlotMinutes
	}
	if err := d.opts.validateDuration("duration", slotMinutes); err != nil {
		return nil, err
	}

	var slots []Slot
	err := d.store.View(ctx, func(tx Tx) error {
		var err error
		slots, err = openSlots(ctx, tx, therapistID, StartOfDay(date, d.opts.Location), slotMinutes, d.opts.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return slots, nil
}

// openSlots reads the day's rules and active appointments through tx and
// derives the remaining slots. day must be midnight in the clinic zone.
func openSlots(ctx context.Context, tx Tx, therapistID string, day time.Time, slotMinutes int, now time.Time) ([]Slot, error) {
	rules, err := tx.ListRulesForDay(ctx, therapistID, WeekdayOf(day))
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return []Slot{}, nil
	}
	booked, err := tx.ListActiveAppointments(ctx, therapistID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return DeriveSlots(day, rules, booked, slotMinutes, now), nil
}
