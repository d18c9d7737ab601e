package scheduling

import "time"

// ValidateRange rejects empty, inverted and out-of-day ranges.
func ValidateRange(start, end TimeOfDay) error {
	if !start.Valid() || start >= endOfDay {
		return invalid("startTime", "start time %s is outside the day", start)
	}
	if !end.Valid() {
		return invalid("endTime", "end time %s is outside the day", end)
	}
	if start >= end {
		return invalid("endTime", "end time %s must be after start time %s", end, start)
	}
	return nil
}

// CheckOverlap returns the first rule in existing, in stored order, whose
// half-open range shares an instant with candidate on the same day. The rule
// with id excludeID is skipped so an edit does not collide with itself.
func CheckOverlap(candidate Candidate, existing []Rule, excludeID string) (Rule, bool) {
	for _, r := range existing {
		if r.DayOfWeek != candidate.DayOfWeek {
			continue
		}
		if excludeID != "" && r.ID == excludeID {
			continue
		}
		if r.StartTime < candidate.EndTime && candidate.StartTime < r.EndTime {
			return r, true
		}
	}
	return Rule{}, false
}

// ValidateCandidate runs the range check and then the overlap check,
// returning a *ValidationError or *RuleConflictError.
func ValidateCandidate(candidate Candidate, existing []Rule, excludeID string) error {
	if !candidate.DayOfWeek.Valid() {
		return invalid("dayOfWeek", "invalid day of week %q", candidate.DayOfWeek)
	}
	if err := ValidateRange(candidate.StartTime, candidate.EndTime); err != nil {
		return err
	}
	if conflict, ok := CheckOverlap(candidate, existing, excludeID); ok {
		return &RuleConflictError{Conflicting: conflict}
	}
	return nil
}

func windowsOverlap(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}
