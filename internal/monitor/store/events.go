package store

import (
	"context"
	"time"
)

// InsertEvent persists an accepted TelemetryEvent.
func (s *Store) InsertEvent(ctx context.Context, e *Event) error {
	query := `
		INSERT INTO events (
			source_type, event_type, level, message, event_at, received_at,
			job_name, script_path, run_id, scheduled_for,
			success, return_code, duration_ms, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.SourceType, e.EventType, e.Level, e.Message,
		e.EventAt.UTC().Format(time.RFC3339Nano), e.ReceivedAt.UTC().Format(time.RFC3339Nano),
		nullableString(e.JobName), nullableString(e.ScriptPath), nullableString(e.RunID),
		nullableTimeStr(e.ScheduledFor),
		nullableBool(e.Success), nullableInt(e.ReturnCode), nullableInt(e.DurationMs),
		e.Metadata,
	)
	return err
}

// DeleteEventsBefore removes events whose eventAt precedes cutoff and
// reports how many rows were removed, for the Retention Sweeper.
func (s *Store) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE event_at < ?`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
