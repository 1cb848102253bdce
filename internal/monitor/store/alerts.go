package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OpenAlert inserts a new OPEN alert, unless one with the same
// dedupeKey is already OPEN, in which case it is a no-op: the
// "opening an alert twice while one is open yields exactly one row"
// invariant is enforced by the partial unique index on
// (dedupe_key) WHERE status = 'OPEN', not by a SELECT-then-INSERT race.
func (s *Store) OpenAlert(ctx context.Context, a *Alert) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO alerts (id, job_name, alert_type, severity, status, opened_at, closed_at, dedupe_key, title, details)
		VALUES (?, ?, ?, ?, 'OPEN', ?, NULL, ?, ?, ?)
	`,
		a.ID, a.JobName, string(a.AlertType), string(a.Severity),
		a.OpenedAt.UTC().Format(time.RFC3339Nano), a.DedupeKey, a.Title, a.Details,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CloseAlert transitions the OPEN alert identified by dedupeKey to
// CLOSED, stamping closedAt. Returns false if no matching OPEN alert
// existed (already closed, or never opened).
func (s *Store) CloseAlert(ctx context.Context, dedupeKey string, closedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = 'CLOSED', closed_at = ?
		WHERE dedupe_key = ? AND status = 'OPEN'
	`, closedAt.UTC().Format(time.RFC3339Nano), dedupeKey)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetOpenAlert returns the OPEN alert with the given dedupeKey, or
// sql.ErrNoRows if none is open.
func (s *Store) GetOpenAlert(ctx context.Context, dedupeKey string) (*Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_name, alert_type, severity, status, opened_at, closed_at, dedupe_key, title, details
		FROM alerts WHERE dedupe_key = ? AND status = 'OPEN'
	`, dedupeKey)
	return scanAlert(row)
}

// ListOpenAlertsByType returns every OPEN alert for jobName of type t
// (at most one, per the dedupe invariant, but callers should not
// assume that about rows created before the invariant held).
func (s *Store) ListOpenAlertsByType(ctx context.Context, jobName string, t AlertType) ([]*Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_name, alert_type, severity, status, opened_at, closed_at, dedupe_key, title, details
		FROM alerts WHERE job_name = ? AND alert_type = ? AND status = 'OPEN'
	`, jobName, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListOpenRecoveryAlertsOlderThan returns OPEN RECOVERY alerts opened
// before cutoff, for the recovery auto-close sweep.
func (s *Store) ListOpenRecoveryAlertsOlderThan(ctx context.Context, cutoff time.Time) ([]*Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_name, alert_type, severity, status, opened_at, closed_at, dedupe_key, title, details
		FROM alerts WHERE alert_type = 'RECOVERY' AND status = 'OPEN' AND opened_at < ?
	`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountOpenAlerts returns the number of alerts currently OPEN, for the
// Evaluator's open-alert-count gauge.
func (s *Store) CountOpenAlerts(ctx context.Context) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE status = 'OPEN'`)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanAlert(row rowScanner) (*Alert, error) {
	var a Alert
	var alertType, severity, status string
	var closedAt sql.NullString
	var openedAt string

	err := row.Scan(&a.ID, &a.JobName, &alertType, &severity, &status, &openedAt, &closedAt, &a.DedupeKey, &a.Title, &a.Details)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}

	a.AlertType = AlertType(alertType)
	a.Severity = AlertSeverity(severity)
	a.Status = AlertStatus(status)

	a.OpenedAt, err = time.Parse(time.RFC3339Nano, openedAt)
	if err != nil {
		return nil, fmt.Errorf("parse opened_at: %w", err)
	}
	if a.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return nil, fmt.Errorf("parse closed_at: %w", err)
	}
	return &a, nil
}
