package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertCheckDefaults creates a check row on first sight of jobName
// (status=UP) or refreshes its config fields on subsequent sight,
// leaving status and heartbeat/failure bookkeeping untouched on an
// existing row.
func (s *Store) UpsertCheckDefaults(ctx context.Context, jobName string, cfg CheckConfig, now time.Time) error {
	query := `
		INSERT INTO checks (job_name, enabled, alert_on_failure, alert_on_miss, grace_seconds, status, updated_at)
		VALUES (?, ?, ?, ?, ?, 'UP', ?)
		ON CONFLICT(job_name) DO UPDATE SET
			enabled = excluded.enabled,
			alert_on_failure = excluded.alert_on_failure,
			alert_on_miss = excluded.alert_on_miss,
			grace_seconds = excluded.grace_seconds
	`
	_, err := s.db.ExecContext(ctx, query,
		jobName, boolToInt(cfg.Enabled), boolToInt(cfg.AlertOnFailure), boolToInt(cfg.AlertOnMiss), cfg.GraceSeconds,
		now.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetCheck returns the CheckState for jobName, or sql.ErrNoRows if no
// row exists yet.
func (s *Store) GetCheck(ctx context.Context, jobName string) (*CheckState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_name, enabled, alert_on_failure, alert_on_miss, grace_seconds, status,
		       expected_next_at, last_heartbeat_at, last_success_at, last_failure_at,
		       consecutive_failures, updated_at
		FROM checks WHERE job_name = ?
	`, jobName)
	return scanCheck(row)
}

// UpdateCheck writes back the mutable fields of cs.
func (s *Store) UpdateCheck(ctx context.Context, cs *CheckState) error {
	query := `
		UPDATE checks SET
			status = ?, expected_next_at = ?, last_heartbeat_at = ?,
			last_success_at = ?, last_failure_at = ?, consecutive_failures = ?, updated_at = ?
		WHERE job_name = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		string(cs.Status), nullableTimeStr(cs.ExpectedNextAt), nullableTimeStr(cs.LastHeartbeatAt),
		nullableTimeStr(cs.LastSuccessAt), nullableTimeStr(cs.LastFailureAt), cs.ConsecutiveFailures,
		cs.UpdatedAt.UTC().Format(time.RFC3339Nano), cs.JobName,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update check %q: %w", cs.JobName, sql.ErrNoRows)
	}
	return nil
}

// ListEnabledChecks returns every enabled CheckState, for the
// Evaluator's periodic sweep.
func (s *Store) ListEnabledChecks(ctx context.Context) ([]*CheckState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_name, enabled, alert_on_failure, alert_on_miss, grace_seconds, status,
		       expected_next_at, last_heartbeat_at, last_success_at, last_failure_at,
		       consecutive_failures, updated_at
		FROM checks WHERE enabled = 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CheckState
	for rows.Next() {
		cs, err := scanCheckRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCheck(row rowScanner) (*CheckState, error) {
	return scanCheckRows(row)
}

func scanCheckRows(row rowScanner) (*CheckState, error) {
	var cs CheckState
	var enabled, alertOnFailure, alertOnMiss int64
	var status string
	var expectedNextAt, lastHeartbeatAt, lastSuccessAt, lastFailureAt sql.NullString
	var updatedAt string

	err := row.Scan(
		&cs.JobName, &enabled, &alertOnFailure, &alertOnMiss, &cs.GraceSeconds, &status,
		&expectedNextAt, &lastHeartbeatAt, &lastSuccessAt, &lastFailureAt,
		&cs.ConsecutiveFailures, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	cs.Enabled = enabled != 0
	cs.AlertOnFailure = alertOnFailure != 0
	cs.AlertOnMiss = alertOnMiss != 0
	cs.Status = CheckStatus(status)

	if cs.ExpectedNextAt, err = parseNullTime(expectedNextAt); err != nil {
		return nil, fmt.Errorf("parse expected_next_at: %w", err)
	}
	if cs.LastHeartbeatAt, err = parseNullTime(lastHeartbeatAt); err != nil {
		return nil, fmt.Errorf("parse last_heartbeat_at: %w", err)
	}
	if cs.LastSuccessAt, err = parseNullTime(lastSuccessAt); err != nil {
		return nil, fmt.Errorf("parse last_success_at: %w", err)
	}
	if cs.LastFailureAt, err = parseNullTime(lastFailureAt); err != nil {
		return nil, fmt.Errorf("parse last_failure_at: %w", err)
	}
	cs.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &cs, nil
}
