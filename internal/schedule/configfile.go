package schedule

// ConfigFile is the parsed config tree handed to the Compiler. YAML
// loading itself is an external collaborator (spec.md §1) — this
// struct is only the shape the Compiler validates, independent of
// whatever decoded it from bytes. The "no unknown keys anywhere" rule
// (spec.md §4.1) is enforced by the loader via
// yaml.Decoder.KnownFields(true) against these struct tags, not by
// the Compiler itself.
type ConfigFile struct {
	Version int      `yaml:"version"`
	Jobs    []RawJob `yaml:"jobs"`
}

// RawJob is one job's entry in the config tree, in YAML-ish shape.
// Jobs are a YAML sequence, not a map, specifically so declaration
// order — which the Dispatcher's tie-break rule (spec.md §4.2)
// depends on — survives decoding without relying on Go's unordered
// map iteration.
type RawJob struct {
	Name          string      `yaml:"name"`
	Enabled       *bool       `yaml:"enabled"`
	WorkingDir    string      `yaml:"working_dir"`
	StopOnFailure bool        `yaml:"stop_on_failure"`
	Overlap       string      `yaml:"overlap"`
	Schedule      RawSchedule `yaml:"schedule"`
	Scripts       []RawScript `yaml:"scripts"`
	Monitor       *RawMonitor `yaml:"monitor"`
}

// RawScript is one step of a job in the config tree.
type RawScript struct {
	Path    string      `yaml:"path"`
	Args    interface{} `yaml:"args"` // list form or shell-string form
	Timeout int         `yaml:"timeout"`
}

// RawMonitor is the optional per-job monitor/check block.
type RawMonitor struct {
	Enabled        *bool `yaml:"enabled"`
	GraceSeconds   *int  `yaml:"grace_seconds"`
	AlertOnFailure *bool `yaml:"alert_on_failure"`
	AlertOnMiss    *bool `yaml:"alert_on_miss"`
}

// RawSchedule is the scheduling DSL block in the config tree.
//
// DayOfMonth and Month are plain strings so the same YAML keys serve
// both the "monthly"/"yearly" forms (where they hold a literal day
// number / month name) and the "custom" form (where they hold a cron
// token such as "*/2" or "1,15"). Frequency determines interpretation.
type RawSchedule struct {
	Frequency string `yaml:"frequency"`

	Time         string   `yaml:"time"`
	Day          string   `yaml:"day"`
	Days         []string `yaml:"days"`
	DayOfMonth   string   `yaml:"day_of_month"`
	Ordinal      string   `yaml:"ordinal"`
	Month        string   `yaml:"month"`
	Every        string   `yaml:"every"`
	WeekdaysOnly bool     `yaml:"weekdays_only"`

	Minute    string `yaml:"minute"`
	Hour      string `yaml:"hour"`
	DayOfWeek string `yaml:"day_of_week"`

	Timezone string   `yaml:"timezone"`
	Start    string   `yaml:"start"`
	End      string   `yaml:"end"`
	Exclude  []string `yaml:"exclude"`
}
