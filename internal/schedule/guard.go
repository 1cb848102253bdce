package schedule

import "time"

// Guard applies the full guard chain (spec.md §4.1) to a candidate
// instant. It is applied to every candidate regardless of Kind,
// including pure_cron.
func (cs *CompiledSchedule) Guard(t time.Time) bool {
	wall := t.In(cs.TZ)

	// 1. Reject if the local wall time does not exist (DST spring-
	// forward gap). Detected by comparing the candidate's realized
	// local hour/minute against the schedule's intended fixed time:
	// when Go's time.Date normalizes a nonexistent wall clock forward
	// across the gap, the realized hour/minute no longer match.
	if cs.expectedHour != nil && cs.expectedMinute != nil {
		if wall.Hour() != *cs.expectedHour || wall.Minute() != *cs.expectedMinute {
			return false
		}
	}

	// 2. Fall-back ambiguity: keep only fold=0.
	if wall.Fold() != 0 {
		return false
	}

	// 3. Start/end bounds.
	if cs.Start != nil && t.Before(*cs.Start) {
		return false
	}
	if cs.End != nil && t.After(*cs.End) {
		return false
	}

	// 4. Exclusion dates.
	if len(cs.Exclude) > 0 {
		dateKey := wall.Format("2006-01-02")
		if cs.Exclude[dateKey] {
			return false
		}
	}

	// 5. Hybrid ordinal-of-month predicate.
	if cs.Kind == KindHybrid {
		if !cs.matchesOrdinal(wall) {
			return false
		}
	}

	return true
}

// matchesOrdinal implements the first..fourth / last occurrence-of-
// weekday-in-month semantics (spec.md §4.1).
func (cs *CompiledSchedule) matchesOrdinal(wall time.Time) bool {
	day := wall.Day()
	if cs.ordinalLast {
		daysInMonth := lastDayOfMonth(wall).Day()
		return day > daysInMonth-7
	}
	occurrence := (day-1)/7 + 1
	return occurrence == cs.ordinalIndex
}

func lastDayOfMonth(t time.Time) time.Time {
	firstOfNextMonth := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	return firstOfNextMonth.AddDate(0, 0, -1)
}
