package schedule

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// cronSchedule is the subset of cron.Schedule the compiler needs.
// Aliased so the rest of the package doesn't import robfig/cron/v3
// directly.
type cronSchedule = cron.Schedule

// standardParser parses five-field cron expressions (minute hour
// dom month dow), the form every pure_cron/hybrid CompiledSchedule
// produces, per the table in spec.md §4.1.
var standardParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

func parseCronExpr(expr string) (cronSchedule, error) {
	s, err := standardParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return s, nil
}

// Field identifiers for validCronField, re-exported so callers outside
// this file don't need to import robfig/cron/v3 directly.
const (
	cronFieldMinute = cron.Minute
	cronFieldHour   = cron.Hour
	cronFieldDom    = cron.Dom
	cronFieldMonth  = cron.Month
	cronFieldDow    = cron.Dow
)

// validCronField reports whether every token in field parses under
// the given bounds, accepting the full robfig grammar (lists, ranges,
// steps, "*").
func validCronField(field string, bounds cron.ParseOption) bool {
	// Build a full five-field expression with the other positions
	// wildcarded, and let the parser do the real validation work
	// rather than hand-rolling token-range checks.
	parts := []string{"*", "*", "*", "*", "*"}
	switch bounds {
	case cron.Minute:
		parts[0] = field
	case cron.Hour:
		parts[1] = field
	case cron.Dom:
		parts[2] = field
	case cron.Month:
		parts[3] = field
	case cron.Dow:
		parts[4] = field
	}
	expr := parts[0] + " " + parts[1] + " " + parts[2] + " " + parts[3] + " " + parts[4]
	_, err := standardParser.Parse(expr)
	return err == nil
}
