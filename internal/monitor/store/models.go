// Package store contains the Monitor's embedded-database persistence
// layer: telemetry events, per-job check state, and alerts.
package store

import "time"

// Event is a persisted TelemetryEvent, stamped with the time the
// Monitor accepted it.
type Event struct {
	ID           int64
	SourceType   string
	EventType    string
	Level        string
	Message      string
	EventAt      time.Time
	ReceivedAt   time.Time
	JobName      *string
	ScriptPath   *string
	RunID        *string
	ScheduledFor *time.Time
	Success      *bool
	ReturnCode   *int
	DurationMs   *int
	Metadata     string // JSON-encoded object
}

// CheckStatus is a CheckState's liveness classification.
type CheckStatus string

const (
	CheckStatusUp   CheckStatus = "UP"
	CheckStatusLate CheckStatus = "LATE"
	CheckStatusDown CheckStatus = "DOWN"
)

// CheckState is the Monitor's per-job heartbeat and health record.
type CheckState struct {
	JobName             string
	Enabled             bool
	AlertOnFailure      bool
	AlertOnMiss         bool
	GraceSeconds        int
	Status              CheckStatus
	ExpectedNextAt      *time.Time
	LastHeartbeatAt     *time.Time
	LastSuccessAt       *time.Time
	LastFailureAt       *time.Time
	ConsecutiveFailures int
	UpdatedAt           time.Time
}

// AlertType is the category of condition an Alert reports.
type AlertType string

const (
	AlertTypeFailure  AlertType = "FAILURE"
	AlertTypeMissed   AlertType = "MISSED"
	AlertTypeRecovery AlertType = "RECOVERY"
)

// AlertSeverity ranks an Alert's urgency.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "INFO"
	SeverityWarn     AlertSeverity = "WARN"
	SeverityError    AlertSeverity = "ERROR"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// AlertStatus is an Alert's open/closed lifecycle state.
type AlertStatus string

const (
	AlertStatusOpen   AlertStatus = "OPEN"
	AlertStatusClosed AlertStatus = "CLOSED"
)

// Alert is a raised or resolved condition against a job's check state.
// ID is a UUID minted by OpenAlert when the caller leaves it empty,
// matching the pack's convention of UUID primary keys for durable
// domain entities rather than database-assigned autoincrement.
type Alert struct {
	ID        string
	JobName   string
	AlertType AlertType
	Severity  AlertSeverity
	Status    AlertStatus
	OpenedAt  time.Time
	ClosedAt  *time.Time
	DedupeKey string
	Title     string
	Details   string // JSON-encoded object
}
