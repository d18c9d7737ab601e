package scheduling

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "09:00", want: "09:00:00"},
		{raw: "09:30:00", want: "09:30:00"},
		{raw: " 17:45 ", want: "17:45:00"},
		{raw: "00:00", want: "00:00:00"},
		{raw: "24:00:00", want: "24:00:00"},
		{raw: "24:30", wantErr: true},
		{raw: "25:00", wantErr: true},
		{raw: "9:00", wantErr: true},
		{raw: "09:60", wantErr: true},
		{raw: "09:00:30", wantErr: true},
		{raw: "ab:cd", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "09", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %s", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Fatalf("got %s want %s", got, tt.want)
			}
		})
	}
}

func TestTimeOfDayArithmetic(t *testing.T) {
	nine := MustParseTimeOfDay("09:00")
	if got := nine.Add(90 * time.Minute); got.Short() != "10:30" {
		t.Fatalf("expected 10:30, got %s", got.Short())
	}
	if d := MustParseTimeOfDay("17:00").Sub(nine); d != 8*time.Hour {
		t.Fatalf("expected 8h, got %s", d)
	}
	if nine.Hour() != 9 || nine.Minute() != 0 {
		t.Fatalf("unexpected hour/minute %d:%d", nine.Hour(), nine.Minute())
	}
}

func TestTimeOfDayOn(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	day := time.Date(2030, time.January, 7, 0, 0, 0, 0, loc)
	got := MustParseTimeOfDay("10:15").On(day)
	want := time.Date(2030, time.January, 7, 10, 15, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("got %s want %s", got, want)
	}
	if TimeOfDayOf(got) != MustParseTimeOfDay("10:15") {
		t.Fatalf("TimeOfDayOf did not round-trip")
	}
}

func TestTimeOfDayJSON(t *testing.T) {
	var payload struct {
		Start TimeOfDay `json:"start_time"`
	}
	if err := json.Unmarshal([]byte(`{"start_time":"08:30"}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"start_time":"08:30:00"}` {
		t.Fatalf("unexpected json %s", out)
	}
	if err := json.Unmarshal([]byte(`{"start_time":830}`), &payload); err == nil {
		t.Fatalf("expected numeric time to be rejected")
	}
}

func TestParseWeekday(t *testing.T) {
	day, err := ParseWeekday(" Wednesday ")
	if err != nil || day != Wednesday {
		t.Fatalf("expected wednesday, got %q (%v)", day, err)
	}
	if day.Title() != "Wednesday" {
		t.Fatalf("unexpected title %q", day.Title())
	}
	if _, err := ParseWeekday("funday"); err == nil {
		t.Fatalf("expected invalid day to fail")
	}
	if WeekdayOf(time.Date(2030, time.January, 7, 12, 0, 0, 0, time.UTC)) != Monday {
		t.Fatalf("expected 2030-01-07 to be a monday")
	}
	if Sunday.Index() != 6 || Weekday("x").Index() != -1 {
		t.Fatalf("unexpected weekday index")
	}
}
