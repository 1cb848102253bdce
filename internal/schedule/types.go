// Package schedule compiles a parsed job-config tree into dispatch-
// ready schedules: validation, cron compilation, and the guard chain
// that filters every candidate firing instant (DST, bounds, excludes,
// ordinal-of-month rules).
package schedule

import "time"

// OverlapPolicy decides what happens when a trigger fires while the
// same job is still running.
type OverlapPolicy string

const (
	OverlapSkip     OverlapPolicy = "skip"
	OverlapQueue    OverlapPolicy = "queue"
	OverlapParallel OverlapPolicy = "parallel"
)

// Kind is the three-way classification of a compiled schedule.
type Kind string

const (
	KindPureCron    Kind = "pure_cron"
	KindHybrid      Kind = "hybrid"
	KindRuntimeOnly Kind = "runtime_only"
)

// ScriptSpec is one step in a job: its path (a relative path joined
// with the job's working_dir), its arguments, and a timeout. Immutable
// once compiled.
type ScriptSpec struct {
	Path           string
	Args           []string
	TimeoutSeconds int
}

const DefaultScriptTimeoutSeconds = 3600

// JobSpec is a named unit of work.
type JobSpec struct {
	Name          string
	Enabled       bool
	WorkingDir    string
	StopOnFailure bool
	Overlap       OverlapPolicy
	Schedule      ScheduleSpec
	Scripts       []ScriptSpec
	Monitor       *MonitorSettings
}

// MonitorSettings carries the optional per-job check configuration
// that gets embedded into emitted telemetry metadata so the Monitor's
// check engine can seed a CheckState on first sight of the job.
type MonitorSettings struct {
	CheckEnabled   bool
	GraceSeconds   int
	AlertOnFailure bool
	AlertOnMiss    bool
}

// ScheduleSpec is the friendly scheduling DSL input: a frequency tag
// plus frequency-specific fields and timezone/bounds/exclude
// modifiers.
type ScheduleSpec struct {
	Frequency string // daily | weekly | monthly | yearly | interval | custom

	// daily / weekly / monthly / yearly
	Time string // "HH:MM"

	// weekly
	Days []string // weekday names

	// monthly / yearly / custom (string: literal day-of-month for
	// monthly/yearly, cron token for custom)
	DayOfMonth string
	Ordinal    string // first|second|third|fourth|last
	Day        string // weekday name, used with Ordinal

	// yearly / custom (string: literal month name/number for yearly,
	// cron token for custom)
	Month string

	// interval
	Every string // e.g. "30m", "2h", "1d"

	// custom
	Minute    string
	Hour      string
	DayOfWeek string

	WeekdaysOnly bool

	Timezone string
	Start    *time.Time // naive, interpreted in Timezone
	End      *time.Time // naive, interpreted in Timezone
	Exclude  []string   // "YYYY-MM-DD"
}

// CompiledSchedule is the compilation output.
type CompiledSchedule struct {
	Kind     Kind
	CronExpr string

	TZ      *time.Location
	Start   *time.Time
	End     *time.Time
	Exclude map[string]bool

	IntervalSeconds int
	Anchor          time.Time

	// expectedHour/expectedMinute are set when the schedule has a
	// single fixed HH:MM trigger time, enabling DST-gap detection in
	// the guard. Left nil for custom/interval schedules.
	expectedHour   *int
	expectedMinute *int

	// ordinal-of-month predicate state for hybrid monthly schedules.
	ordinalIndex int // 1-4, 0 if not applicable
	ordinalLast  bool

	cronSchedule cronSchedule
}

// JobRuntime is the compiled, dispatch-ready view of a job.
type JobRuntime struct {
	Job      JobSpec
	Schedule *CompiledSchedule

	NextFire      time.Time
	RunningCount  int
	QueuedPending bool
}
