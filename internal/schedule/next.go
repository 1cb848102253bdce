package schedule

import "time"

// maxCandidateSearch bounds how many candidates NextRunAfter will
// examine before giving up (e.g. an exclude list covering every
// occurrence before End). It is generous enough to cross several
// years of a yearly schedule without false negatives.
const maxCandidateSearch = 10000

// NextRunAfter returns the earliest instant strictly after t that
// satisfies the guard. ok is false if no such instant exists within
// the search bound (commonly because Start/End/Exclude rule out
// everything the cron/interval generator can produce).
func (cs *CompiledSchedule) NextRunAfter(t time.Time) (next time.Time, ok bool) {
	if cs.Kind == KindRuntimeOnly {
		return cs.nextRuntimeOnly(t)
	}

	// cron.Schedule.Next matches a candidate's hour/minute fields
	// against its own wall clock, in whatever Location that candidate
	// already carries (robfig/cron/v3 only forces its own Location
	// when one was set via CRON_TZ, which finalizeCron never does).
	// Converting into cs.TZ here, and letting Next's own output stay
	// in that Location across iterations, keeps every match and every
	// Guard call working against the job's declared timezone instead
	// of whatever zone the caller's t happened to carry.
	candidate := t.In(cs.TZ)
	for i := 0; i < maxCandidateSearch; i++ {
		candidate = cs.cronSchedule.Next(candidate)
		if candidate.IsZero() {
			return time.Time{}, false
		}
		if cs.Guard(candidate) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// NextRunTimes returns up to n deduplicated instants after t. Dedup
// key is (local_date, local_minute), per spec.md §4.1 — this collapses
// the case where a fall-back guard rejection and a genuine later
// occurrence would otherwise be indistinguishable at minute
// granularity.
func (cs *CompiledSchedule) NextRunTimes(t time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	seen := map[string]bool{}
	cursor := t
	for len(out) < n {
		next, ok := cs.NextRunAfter(cursor)
		if !ok {
			break
		}
		wall := next.In(cs.TZ)
		key := wall.Format("2006-01-02 15:04")
		if !seen[key] {
			seen[key] = true
			out = append(out, next)
		}
		cursor = next
	}
	return out
}

// nextRuntimeOnly computes the next periodic instant for a
// runtime_only interval schedule: anchor + ceil((t-anchor+1s)/period)
// * period, filtered through the guard and advanced by one period on
// rejection (spec.md §4.1).
func (cs *CompiledSchedule) nextRuntimeOnly(t time.Time) (time.Time, bool) {
	period := time.Duration(cs.IntervalSeconds) * time.Second
	if period <= 0 {
		return time.Time{}, false
	}

	elapsed := t.Sub(cs.Anchor) + time.Second
	periods := elapsed / period
	if elapsed%period != 0 {
		periods++
	}
	if periods < 1 {
		periods = 1
	}
	candidate := cs.Anchor.Add(periods * period)

	for i := 0; i < maxCandidateSearch; i++ {
		if !candidate.After(t) {
			candidate = candidate.Add(period)
			continue
		}
		if cs.Guard(candidate) {
			return candidate, true
		}
		candidate = candidate.Add(period)
	}
	return time.Time{}, false
}
