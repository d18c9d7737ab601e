package scheduling

import (
	"reflect"
	"testing"
	"time"
)

var monday = time.Date(2030, time.January, 7, 0, 0, 0, 0, time.UTC)

func labels(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.StartTime.Short())
	}
	return out
}

func appt(id string, start time.Time, minutes int, status AppointmentStatus) Appointment {
	return Appointment{
		ID:              id,
		PatientID:       "p-1",
		TherapistID:     "t-1",
		ScheduledTime:   start,
		DurationMinutes: minutes,
		Status:          status,
	}
}

func at(day time.Time, hhmm string) time.Time {
	return MustParseTimeOfDay(hhmm).On(day)
}

func TestDeriveSlotsFullDay(t *testing.T) {
	rules := []Rule{rule("r-1", Monday, "09:00", "17:00")}
	got := labels(DeriveSlots(monday, rules, nil, 60, time.Time{}))
	want := []string{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDeriveSlotsMustFitInsideRule(t *testing.T) {
	rules := []Rule{rule("r-1", Monday, "09:00", "11:30")}
	got := labels(DeriveSlots(monday, rules, nil, 60, time.Time{}))
	if !reflect.DeepEqual(got, []string{"09:00", "10:00"}) {
		t.Fatalf("unexpected slots %v", got)
	}
	if slots := DeriveSlots(monday, []Rule{rule("r-2", Monday, "09:00", "09:45")}, nil, 60, time.Time{}); len(slots) != 0 {
		t.Fatalf("expected no slot in a range shorter than the duration, got %v", labels(slots))
	}
}

func TestDeriveSlotsOtherWeekdayIgnored(t *testing.T) {
	rules := []Rule{rule("r-1", Tuesday, "09:00", "17:00")}
	if slots := DeriveSlots(monday, rules, nil, 60, time.Time{}); len(slots) != 0 {
		t.Fatalf("expected empty, got %v", labels(slots))
	}
}

func TestDeriveSlotsSubtractsActiveAppointments(t *testing.T) {
	rules := []Rule{rule("r-1", Monday, "09:00", "13:00")}
	booked := []Appointment{
		appt("a-1", at(monday, "10:00"), 60, StatusScheduled),
		appt("a-2", at(monday, "11:30"), 30, StatusConfirmed),
		appt("a-3", at(monday, "12:00"), 60, StatusCancelled),
		appt("a-4", at(monday, "09:00"), 60, StatusCompleted),
	}
	got := labels(DeriveSlots(monday, rules, booked, 60, time.Time{}))
	if !reflect.DeepEqual(got, []string{"09:00", "12:00"}) {
		t.Fatalf("unexpected slots %v", got)
	}
}

func TestDeriveSlotsSortedAcrossRules(t *testing.T) {
	rules := []Rule{
		rule("r-2", Monday, "14:00", "15:00"),
		rule("r-1", Monday, "08:00", "09:00"),
	}
	got := labels(DeriveSlots(monday, rules, nil, 30, time.Time{}))
	want := []string{"08:00", "08:30", "14:00", "14:30"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDeriveSlotsDropsPastStarts(t *testing.T) {
	rules := []Rule{rule("r-1", Monday, "09:00", "12:00")}
	now := at(monday, "10:00")
	got := labels(DeriveSlots(monday, rules, nil, 60, now))
	if !reflect.DeepEqual(got, []string{"11:00"}) {
		t.Fatalf("unexpected slots %v", got)
	}
}

func TestDeriveSlotsDeterministic(t *testing.T) {
	rules := []Rule{rule("r-1", Monday, "09:00", "17:00"), rule("r-2", Monday, "18:00", "20:00")}
	booked := []Appointment{appt("a-1", at(monday, "13:00"), 90, StatusScheduled)}
	first := DeriveSlots(monday, rules, booked, 60, time.Time{})
	second := DeriveSlots(monday, rules, booked, 60, time.Time{})
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("derivation not deterministic")
	}
}

func TestDeriveSlotsNonPositiveDuration(t *testing.T) {
	if slots := DeriveSlots(monday, []Rule{rule("r-1", Monday, "09:00", "10:00")}, nil, 0, time.Time{}); slots != nil {
		t.Fatalf("expected nil for zero duration")
	}
}
