package scheduling

import (
	"sort"
	"strings"
	"time"
)

// Rule is a therapist's recurring weekly availability range [StartTime, EndTime).
type Rule struct {
	ID          string    `json:"availability_id"`
	TherapistID string    `json:"therapist_id"`
	DayOfWeek   Weekday   `json:"day_of_week"`
	StartTime   TimeOfDay `json:"start_time"`
	EndTime     TimeOfDay `json:"end_time"`
	IsRecurring bool      `json:"is_recurring"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Candidate is the part of a rule that takes part in overlap checks.
type Candidate struct {
	DayOfWeek Weekday
	StartTime TimeOfDay
	EndTime   TimeOfDay
}

func (r Rule) candidate() Candidate {
	return Candidate{DayOfWeek: r.DayOfWeek, StartTime: r.StartTime, EndTime: r.EndTime}
}

// RuleInput is a validated request to create a rule.
type RuleInput struct {
	TherapistID string
	DayOfWeek   Weekday
	StartTime   TimeOfDay
	EndTime     TimeOfDay
	IsRecurring bool
}

// RulePatch carries the fields an edit may change; nil means unchanged.
type RulePatch struct {
	DayOfWeek   *Weekday
	StartTime   *TimeOfDay
	EndTime     *TimeOfDay
	IsRecurring *bool
}

func (p RulePatch) apply(r Rule) Rule {
	if p.DayOfWeek != nil {
		r.DayOfWeek = *p.DayOfWeek
	}
	if p.StartTime != nil {
		r.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		r.EndTime = *p.EndTime
	}
	if p.IsRecurring != nil {
		r.IsRecurring = *p.IsRecurring
	}
	return r
}

// CreateRuleRequest is the wire body of POST /api/therapist/availability.
type CreateRuleRequest struct {
	TherapistID string `json:"therapistId"`
	DayOfWeek   string `json:"dayOfWeek"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	IsRecurring *bool  `json:"isRecurring"`
}

// Input validates field formats. Range and overlap checks happen in the service.
func (r *CreateRuleRequest) Input() (RuleInput, error) {
	in := RuleInput{TherapistID: strings.TrimSpace(r.TherapistID), IsRecurring: true}
	if in.TherapistID == "" {
		return RuleInput{}, invalid("therapistId", "therapist id is required")
	}
	day, err := ParseWeekday(r.DayOfWeek)
	if err != nil {
		return RuleInput{}, invalid("dayOfWeek", "%v", err)
	}
	in.DayOfWeek = day
	if in.StartTime, err = parseField("startTime", r.StartTime); err != nil {
		return RuleInput{}, err
	}
	if in.EndTime, err = parseField("endTime", r.EndTime); err != nil {
		return RuleInput{}, err
	}
	if r.IsRecurring != nil {
		in.IsRecurring = *r.IsRecurring
	}
	return in, nil
}

// UpdateRuleRequest is the wire body of PUT /api/therapist/availability/{id}.
type UpdateRuleRequest struct {
	DayOfWeek   *string `json:"dayOfWeek"`
	StartTime   *string `json:"startTime"`
	EndTime     *string `json:"endTime"`
	IsRecurring *bool   `json:"isRecurring"`
}

// Patch validates the supplied fields.
func (r *UpdateRuleRequest) Patch() (RulePatch, error) {
	var p RulePatch
	if r.DayOfWeek != nil {
		day, err := ParseWeekday(*r.DayOfWeek)
		if err != nil {
			return RulePatch{}, invalid("dayOfWeek", "%v", err)
		}
		p.DayOfWeek = &day
	}
	if r.StartTime != nil {
		t, err := parseField("startTime", *r.StartTime)
		if err != nil {
			return RulePatch{}, err
		}
		p.StartTime = &t
	}
	if r.EndTime != nil {
		t, err := parseField("endTime", *r.EndTime)
		if err != nil {
			return RulePatch{}, err
		}
		p.EndTime = &t
	}
	p.IsRecurring = r.IsRecurring
	return p, nil
}

func parseField(field, raw string) (TimeOfDay, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, invalid(field, "%s is required", field)
	}
	t, err := ParseTimeOfDay(raw)
	if err != nil {
		return 0, invalid(field, "%v", err)
	}
	return t, nil
}

// SortRules orders rules by day of week (Monday first) then start time.
func SortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		di, dj := rules[i].DayOfWeek.Index(), rules[j].DayOfWeek.Index()
		if di != dj {
			return di < dj
		}
		return rules[i].StartTime < rules[j].StartTime
	})
}
