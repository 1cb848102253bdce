package schedule

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	timeRe     = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):([0-5][0-9])$`)
	intervalRe = regexp.MustCompile(`^(\d+)([mhd])$`)
	secondsRe  = regexp.MustCompile(`^(\d+)s$`)
	dateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

var weekdayByName = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var monthByName = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var ordinalIndexByName = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4,
}

// Compile validates a parsed config tree and compiles every job into
// a dispatch-ready JobRuntime, in YAML declaration order. It returns
// a *ConfigError on any validation violation. now anchors any
// runtime_only interval schedule that lacks an explicit start time;
// callers pass the wall clock at load time rather than letting the
// compiler read it itself, keeping compilation deterministic for tests.
func Compile(cfg *ConfigFile, now time.Time) ([]*JobRuntime, error) {
	if cfg.Version == 0 {
		return nil, newConfigError("", "version", "version is required")
	}
	if len(cfg.Jobs) == 0 {
		return nil, newConfigError("", "jobs", "jobs must be non-empty")
	}

	seen := map[string]bool{}
	runtimes := make([]*JobRuntime, 0, len(cfg.Jobs))

	for _, raw := range cfg.Jobs {
		if raw.Name == "" {
			return nil, newConfigError("", "jobs[].name", "job name is required")
		}
		if seen[raw.Name] {
			return nil, newConfigError(raw.Name, "name", "duplicate job name")
		}
		seen[raw.Name] = true

		job, compiled, err := compileJob(raw, now)
		if err != nil {
			return nil, err
		}

		runtimes = append(runtimes, &JobRuntime{
			Job:      job,
			Schedule: compiled,
		})
	}

	return runtimes, nil
}

func compileJob(raw RawJob, now time.Time) (JobSpec, *CompiledSchedule, error) {
	job := JobSpec{
		Name:          raw.Name,
		Enabled:       raw.Enabled == nil || *raw.Enabled,
		WorkingDir:    raw.WorkingDir,
		StopOnFailure: raw.StopOnFailure,
		Overlap:       OverlapPolicy(raw.Overlap),
	}

	if job.WorkingDir == "" {
		return job, nil, newConfigError(job.Name, "working_dir", "working_dir is required")
	}
	info, err := os.Stat(job.WorkingDir)
	if err != nil || !info.IsDir() {
		return job, nil, newConfigError(job.Name, "working_dir", "must exist and be a directory: %s", job.WorkingDir)
	}

	switch job.Overlap {
	case OverlapSkip, OverlapQueue, OverlapParallel:
	default:
		return job, nil, newConfigError(job.Name, "overlap", "must be one of skip, queue, parallel, got %q", raw.Overlap)
	}

	if len(raw.Scripts) == 0 {
		return job, nil, newConfigError(job.Name, "scripts", "scripts must be non-empty")
	}
	scripts := make([]ScriptSpec, 0, len(raw.Scripts))
	for i, rs := range raw.Scripts {
		spec, err := compileScript(job.Name, job.WorkingDir, i, rs)
		if err != nil {
			return job, nil, err
		}
		scripts = append(scripts, spec)
	}
	job.Scripts = scripts

	if raw.Monitor != nil {
		job.Monitor = &MonitorSettings{
			CheckEnabled:   raw.Monitor.Enabled == nil || *raw.Monitor.Enabled,
			GraceSeconds:   120,
			AlertOnFailure: raw.Monitor.AlertOnFailure == nil || *raw.Monitor.AlertOnFailure,
			AlertOnMiss:    raw.Monitor.AlertOnMiss == nil || *raw.Monitor.AlertOnMiss,
		}
		if raw.Monitor.GraceSeconds != nil {
			job.Monitor.GraceSeconds = *raw.Monitor.GraceSeconds
		}
	}

	compiled, err := compileSchedule(job.Name, raw.Schedule, now)
	if err != nil {
		return job, nil, err
	}
	job.Schedule = raw.Schedule.toSpec()

	return job, compiled, nil
}

func compileScript(jobName, workingDir string, idx int, rs RawScript) (ScriptSpec, error) {
	field := fmt.Sprintf("scripts[%d].path", idx)
	if rs.Path == "" {
		return ScriptSpec{}, newConfigError(jobName, field, "path is required")
	}
	path := rs.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(workingDir, path)
	}
	if _, err := os.Stat(path); err != nil {
		return ScriptSpec{}, newConfigError(jobName, field, "script not found: %s", path)
	}

	args, err := compileArgs(jobName, idx, rs.Args)
	if err != nil {
		return ScriptSpec{}, err
	}

	timeout := rs.Timeout
	if timeout == 0 {
		timeout = DefaultScriptTimeoutSeconds
	}

	return ScriptSpec{Path: path, Args: args, TimeoutSeconds: timeout}, nil
}

func compileArgs(jobName string, idx int, raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, newConfigError(jobName, fmt.Sprintf("scripts[%d].args", idx), "list-form args must be strings")
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return append([]string(nil), v...), nil
	case string:
		return SplitWords(v)
	default:
		return nil, newConfigError(jobName, fmt.Sprintf("scripts[%d].args", idx), "args must be a list or a shell-string")
	}
}

// toSpec carries the raw DSL fields into JobSpec for diagnostics;
// export-cron prints CompiledSchedule.CronExpr instead. Start/End surface through CompiledSchedule, not
// here, since those require timezone-aware parsing already done by
// compileSchedule.
func (rs RawSchedule) toSpec() ScheduleSpec {
	return ScheduleSpec{
		Frequency:    rs.Frequency,
		Time:         rs.Time,
		Day:          rs.Day,
		Days:         rs.Days,
		DayOfMonth:   rs.DayOfMonth,
		Ordinal:      rs.Ordinal,
		Month:        rs.Month,
		Every:        rs.Every,
		Minute:       rs.Minute,
		Hour:         rs.Hour,
		DayOfWeek:    rs.DayOfWeek,
		WeekdaysOnly: rs.WeekdaysOnly,
		Timezone:     rs.Timezone,
		Exclude:      rs.Exclude,
	}
}

func compileSchedule(jobName string, raw RawSchedule, now time.Time) (*CompiledSchedule, error) {
	tzName := raw.Timezone
	if tzName == "" {
		tzName = "UTC"
	}
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, newConfigError(jobName, "schedule.timezone", "not a valid IANA timezone: %s", tzName)
	}

	cs := &CompiledSchedule{TZ: tz, Exclude: map[string]bool{}}

	for _, d := range raw.Exclude {
		if !dateRe.MatchString(d) {
			return nil, newConfigError(jobName, "schedule.exclude", "not a YYYY-MM-DD date: %s", d)
		}
		cs.Exclude[d] = true
	}

	if raw.Start != "" {
		t, err := parseNaiveDatetime(raw.Start, tz)
		if err != nil {
			return nil, newConfigError(jobName, "schedule.start", "%v", err)
		}
		cs.Start = &t
	}
	if raw.End != "" {
		t, err := parseNaiveDatetime(raw.End, tz)
		if err != nil {
			return nil, newConfigError(jobName, "schedule.end", "%v", err)
		}
		cs.End = &t
	}

	switch raw.Frequency {
	case "daily":
		return compileDaily(jobName, raw, cs)
	case "weekly":
		return compileWeekly(jobName, raw, cs)
	case "monthly":
		return compileMonthly(jobName, raw, cs)
	case "yearly":
		return compileYearly(jobName, raw, cs)
	case "interval":
		return compileInterval(jobName, raw, cs, now)
	case "custom":
		return compileCustom(jobName, raw, cs)
	case "":
		return nil, newConfigError(jobName, "schedule.frequency", "frequency is required")
	default:
		return nil, newConfigError(jobName, "schedule.frequency", "unknown frequency: %s", raw.Frequency)
	}
}

func parseHHMM(jobName, field, s string) (hour, minute int, err error) {
	if !timeRe.MatchString(s) {
		return 0, 0, newConfigError(jobName, field, "must be HH:MM 24-hour, got %q", s)
	}
	parts := strings.SplitN(s, ":", 2)
	hour, _ = strconv.Atoi(parts[0])
	minute, _ = strconv.Atoi(parts[1])
	return hour, minute, nil
}

func finalizeCron(cs *CompiledSchedule, expr string, kind Kind) (*CompiledSchedule, error) {
	sched, err := parseCronExpr(expr)
	if err != nil {
		return nil, err
	}
	cs.Kind = kind
	cs.CronExpr = expr
	cs.cronSchedule = sched
	return cs, nil
}

func compileDaily(jobName string, raw RawSchedule, cs *CompiledSchedule) (*CompiledSchedule, error) {
	h, m, err := parseHHMM(jobName, "schedule.time", raw.Time)
	if err != nil {
		return nil, err
	}
	cs.expectedHour, cs.expectedMinute = &h, &m

	dow := "*"
	if raw.WeekdaysOnly {
		dow = "1-5"
	}
	expr := fmt.Sprintf("%d %d * * %s", m, h, dow)
	return finalizeCron(cs, expr, KindPureCron)
}

func compileWeekly(jobName string, raw RawSchedule, cs *CompiledSchedule) (*CompiledSchedule, error) {
	h, m, err := parseHHMM(jobName, "schedule.time", raw.Time)
	if err != nil {
		return nil, err
	}
	cs.expectedHour, cs.expectedMinute = &h, &m

	days := raw.Days
	if raw.Day != "" {
		days = append(days, raw.Day)
	}
	if len(days) == 0 {
		return nil, newConfigError(jobName, "schedule.day", "weekly schedule requires day or days")
	}
	dowList := make([]string, 0, len(days))
	for _, d := range days {
		wd, ok := weekdayByName[strings.ToLower(d)]
		if !ok {
			return nil, newConfigError(jobName, "schedule.day", "not a weekday name: %s", d)
		}
		dowList = append(dowList, strconv.Itoa(int(wd)))
	}

	expr := fmt.Sprintf("%d %d * * %s", m, h, strings.Join(dowList, ","))
	return finalizeCron(cs, expr, KindPureCron)
}

func compileMonthly(jobName string, raw RawSchedule, cs *CompiledSchedule) (*CompiledSchedule, error) {
	h, m, err := parseHHMM(jobName, "schedule.time", raw.Time)
	if err != nil {
		return nil, err
	}
	cs.expectedHour, cs.expectedMinute = &h, &m

	hasDOM := raw.DayOfMonth != ""
	hasOrdinal := raw.Ordinal != "" || raw.Day != ""

	if hasDOM && hasOrdinal {
		return nil, newConfigError(jobName, "schedule", "monthly may specify day_of_month OR ordinal+day, never both")
	}
	if !hasDOM && !hasOrdinal {
		return nil, newConfigError(jobName, "schedule", "monthly requires day_of_month or ordinal+day")
	}

	if hasDOM {
		dom, err := strconv.Atoi(raw.DayOfMonth)
		if err != nil || dom < 1 || dom > 31 {
			return nil, newConfigError(jobName, "schedule.day_of_month", "must be 1-31, got %q", raw.DayOfMonth)
		}
		expr := fmt.Sprintf("%d %d %d * *", m, h, dom)
		return finalizeCron(cs, expr, KindPureCron)
	}

	if raw.Ordinal == "" || raw.Day == "" {
		return nil, newConfigError(jobName, "schedule", "ordinal form requires both ordinal and day")
	}
	wd, ok := weekdayByName[strings.ToLower(raw.Day)]
	if !ok {
		return nil, newConfigError(jobName, "schedule.day", "not a weekday name: %s", raw.Day)
	}
	ord := strings.ToLower(raw.Ordinal)
	if ord == "last" {
		cs.ordinalLast = true
	} else if idx, ok := ordinalIndexByName[ord]; ok {
		cs.ordinalIndex = idx
	} else {
		return nil, newConfigError(jobName, "schedule.ordinal", "must be first..fourth or last, got %q", raw.Ordinal)
	}

	expr := fmt.Sprintf("%d %d * * %d", m, h, int(wd))
	return finalizeCron(cs, expr, KindHybrid)
}

func compileYearly(jobName string, raw RawSchedule, cs *CompiledSchedule) (*CompiledSchedule, error) {
	h, m, err := parseHHMM(jobName, "schedule.time", raw.Time)
	if err != nil {
		return nil, err
	}
	cs.expectedHour, cs.expectedMinute = &h, &m

	if raw.Month == "" {
		return nil, newConfigError(jobName, "schedule.month", "yearly requires month")
	}
	mon, ok := monthByName[strings.ToLower(raw.Month)]
	if !ok {
		if n, err := strconv.Atoi(raw.Month); err == nil && n >= 1 && n <= 12 {
			mon = time.Month(n)
		} else {
			return nil, newConfigError(jobName, "schedule.month", "not a valid month: %s", raw.Month)
		}
	}
	if raw.DayOfMonth == "" {
		return nil, newConfigError(jobName, "schedule.day_of_month", "yearly requires day_of_month")
	}
	dom, err := strconv.Atoi(raw.DayOfMonth)
	if err != nil || dom < 1 || dom > 31 {
		return nil, newConfigError(jobName, "schedule.day_of_month", "must be 1-31, got %q", raw.DayOfMonth)
	}

	expr := fmt.Sprintf("%d %d %d %d *", m, h, dom, int(mon))
	return finalizeCron(cs, expr, KindPureCron)
}

func compileInterval(jobName string, raw RawSchedule, cs *CompiledSchedule, now time.Time) (*CompiledSchedule, error) {
	if raw.Time != "" {
		return nil, newConfigError(jobName, "schedule.time", "time is forbidden alongside interval")
	}
	if secondsRe.MatchString(raw.Every) {
		return nil, newConfigError(jobName, "schedule.every", "sub-minute (seconds) intervals are not supported: %s", raw.Every)
	}
	match := intervalRe.FindStringSubmatch(raw.Every)
	if match == nil {
		return nil, newConfigError(jobName, "schedule.every", "must match /^\\d+[mhd]$/, got %q", raw.Every)
	}
	n, _ := strconv.Atoi(match[1])
	unit := match[2]

	switch unit {
	case "m":
		if n > 0 && 60%n == 0 {
			expr := fmt.Sprintf("*/%d * * * *", n)
			if n == 60 {
				expr = "0 * * * *"
			}
			return finalizeCron(cs, expr, KindPureCron)
		}
	case "h":
		if n > 0 && 24%n == 0 {
			expr := fmt.Sprintf("0 */%d * * *", n)
			return finalizeCron(cs, expr, KindPureCron)
		}
	case "d":
		if n == 1 {
			return finalizeCron(cs, "0 0 * * *", KindPureCron)
		}
	}

	// Falls through to runtime_only: not evenly divisible, or a
	// multi-day interval.
	seconds := n
	switch unit {
	case "m":
		seconds *= 60
	case "h":
		seconds *= 3600
	case "d":
		seconds *= 86400
	}
	cs.Kind = KindRuntimeOnly
	cs.IntervalSeconds = seconds
	cs.Anchor = now.In(cs.TZ)
	if cs.Start != nil {
		cs.Anchor = *cs.Start
	}
	return cs, nil
}

func compileCustom(jobName string, raw RawSchedule, cs *CompiledSchedule) (*CompiledSchedule, error) {
	if raw.Minute == "" && raw.Hour == "" && raw.DayOfMonth == "" && raw.Month == "" && raw.DayOfWeek == "" {
		return nil, newConfigError(jobName, "schedule", "custom requires at least one of minute, hour, day_of_month, month, day_of_week")
	}

	field := func(v string) string {
		if v == "" {
			return "*"
		}
		return v
	}
	minute, hour, dom, month, dow := field(raw.Minute), field(raw.Hour), field(raw.DayOfMonth), field(raw.Month), field(raw.DayOfWeek)

	if raw.Minute != "" && !validCronField(minute, cronFieldMinute) {
		return nil, newConfigError(jobName, "schedule.minute", "invalid cron token: %s", raw.Minute)
	}
	if raw.Hour != "" && !validCronField(hour, cronFieldHour) {
		return nil, newConfigError(jobName, "schedule.hour", "invalid cron token: %s", raw.Hour)
	}
	if raw.DayOfMonth != "" && !validCronField(dom, cronFieldDom) {
		return nil, newConfigError(jobName, "schedule.day_of_month", "invalid cron token: %s", raw.DayOfMonth)
	}
	if raw.Month != "" && !validCronField(month, cronFieldMonth) {
		return nil, newConfigError(jobName, "schedule.month", "invalid cron token: %s", raw.Month)
	}
	if raw.DayOfWeek != "" && !validCronField(dow, cronFieldDow) {
		return nil, newConfigError(jobName, "schedule.day_of_week", "invalid cron token: %s", raw.DayOfWeek)
	}

	expr := fmt.Sprintf("%s %s %s %s %s", minute, hour, dom, month, dow)
	return finalizeCron(cs, expr, KindPureCron)
}

func parseNaiveDatetime(s string, tz *time.Location) (time.Time, error) {
	layouts := []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02T15:04", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, tz); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not a valid ISO datetime: %s", s)
}
