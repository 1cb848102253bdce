// Package telemetry contains the wire record shared between the
// Orchestrator's emitter and the Monitor's ingest handler.
package telemetry

import (
	"encoding/json"
	"strings"
	"time"
)

// SourceType identifies which process emitted an Event.
type SourceType string

const (
	SourceChief   SourceType = "chief"
	SourceWorker  SourceType = "worker"
	SourceMonitor SourceType = "monitor"
)

// Level is the event severity.
type Level string

const (
	LevelDebug    Level = "DEBUG"
	LevelInfo     Level = "INFO"
	LevelWarn     Level = "WARN"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

var validSources = map[SourceType]bool{
	SourceChief:   true,
	SourceWorker:  true,
	SourceMonitor: true,
}

var validLevels = map[Level]bool{
	LevelDebug:    true,
	LevelInfo:     true,
	LevelWarn:     true,
	LevelError:    true,
	LevelCritical: true,
}

// Known event types. The set is not closed: unrecognized eventType
// values are still accepted; only the lifecycle, script, daemon and
// heartbeat types this repository emits are named here.
const (
	EventJobStarted       = "job.started"
	EventJobCompleted     = "job.completed"
	EventJobFailed        = "job.failed"
	EventJobNextScheduled = "job.next_scheduled"
	EventScriptStarted    = "script.started"
	EventScriptCompleted  = "script.completed"
	EventDaemonDispatch   = "daemon.dispatch"
	EventOverlapSkipped   = "daemon.overlap_skipped"
	EventQueuedPending    = "daemon.queued_pending"
	EventChiefHeartbeat   = "chief.heartbeat"
)

// Event is the telemetry wire record described by the event wire
// format: correlation fields, outcome fields and a free-form metadata
// map.
type Event struct {
	SourceType SourceType `json:"sourceType"`
	EventType  string     `json:"eventType"`
	Level      Level      `json:"level"`
	Message    string     `json:"message"`
	EventAt    time.Time  `json:"eventAt"`

	JobName      string `json:"jobName,omitempty"`
	ScriptPath   string `json:"scriptPath,omitempty"`
	RunID        string `json:"runId,omitempty"`
	ScheduledFor string `json:"scheduledFor,omitempty"`

	Success    *bool `json:"success,omitempty"`
	ReturnCode *int  `json:"returnCode,omitempty"`
	DurationMs *int  `json:"durationMs,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Normalize lowercases SourceType and uppercases Level in place, and
// defaults EventAt to now when zero. It reports whether the event is
// well-formed enough to accept (all of sourceType, level, message,
// eventType present and within their enumeration).
func (e *Event) Normalize(now time.Time) bool {
	e.SourceType = SourceType(strings.ToLower(string(e.SourceType)))
	e.Level = Level(strings.ToUpper(string(e.Level)))

	if e.EventAt.IsZero() {
		e.EventAt = now
	}
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}

	if e.EventType == "" || e.Message == "" {
		return false
	}
	if !validSources[e.SourceType] {
		return false
	}
	if !validLevels[e.Level] {
		return false
	}
	return true
}

// MarshalJSONL renders the event as a single newline-terminated JSON
// line, the unit the spool file is built from.
func MarshalJSONL(e Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
