package store

import (
	"context"
	"database/sql"
	"time"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx, so
// repository methods can run against either a pool or an active
// transaction, and so sqlmock can stand in for the pool in tests.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tx is a DBTransaction that can be committed or rolled back.
type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// EventStore persists ingested telemetry and supports retention pruning.
type EventStore interface {
	InsertEvent(ctx context.Context, e *Event) error
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CheckStore manages per-job CheckState rows.
type CheckStore interface {
	UpsertCheckDefaults(ctx context.Context, jobName string, cfg CheckConfig, now time.Time) error
	GetCheck(ctx context.Context, jobName string) (*CheckState, error)
	UpdateCheck(ctx context.Context, cs *CheckState) error
	ListEnabledChecks(ctx context.Context) ([]*CheckState, error)
}

// AlertStore manages Alert rows, including dedupe-key-based idempotent
// opens and recovery closes.
type AlertStore interface {
	OpenAlert(ctx context.Context, a *Alert) (created bool, err error)
	CloseAlert(ctx context.Context, dedupeKey string, closedAt time.Time) (closed bool, err error)
	GetOpenAlert(ctx context.Context, dedupeKey string) (*Alert, error)
	ListOpenAlertsByType(ctx context.Context, jobName string, t AlertType) ([]*Alert, error)
	ListOpenRecoveryAlertsOlderThan(ctx context.Context, cutoff time.Time) ([]*Alert, error)
	CountOpenAlerts(ctx context.Context) (int, error)
}

// CheckConfig is the per-job check configuration derived from event
// metadata, used to seed or refresh a CheckState row.
type CheckConfig struct {
	Enabled        bool
	GraceSeconds   int
	AlertOnFailure bool
	AlertOnMiss    bool
}
