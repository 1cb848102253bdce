package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

func TestInsertEvent_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	jobName := "etl"
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ev := &Event{
		SourceType: "chief",
		EventType:  "job.completed",
		Level:      "INFO",
		Message:    "job completed",
		EventAt:    now,
		ReceivedAt: now,
		JobName:    &jobName,
		Metadata:   "{}",
	}

	mock.ExpectExec(`INSERT INTO events`).WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.InsertEvent(context.Background(), ev); err != nil {
		t.Fatalf("InsertEvent failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetCheck_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT job_name, enabled`).
		WithArgs("etl").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetCheck(context.Background(), "etl")
	if err != sql.ErrNoRows {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestGetCheck_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339Nano)
	rows := sqlmock.NewRows([]string{
		"job_name", "enabled", "alert_on_failure", "alert_on_miss", "grace_seconds", "status",
		"expected_next_at", "last_heartbeat_at", "last_success_at", "last_failure_at",
		"consecutive_failures", "updated_at",
	}).AddRow("etl", 1, 1, 1, 120, "UP", nil, nil, nil, nil, 0, now)

	mock.ExpectQuery(`SELECT job_name, enabled`).WithArgs("etl").WillReturnRows(rows)

	cs, err := s.GetCheck(context.Background(), "etl")
	if err != nil {
		t.Fatalf("GetCheck failed: %v", err)
	}
	if cs.JobName != "etl" || cs.Status != CheckStatusUp || !cs.Enabled {
		t.Errorf("unexpected check state: %+v", cs)
	}
	if cs.ConsecutiveFailures != 0 {
		t.Errorf("expected ConsecutiveFailures 0, got %d", cs.ConsecutiveFailures)
	}
}

func TestOpenAlert_IdempotentSecondCallIsNoop(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	a := &Alert{
		JobName:   "etl",
		AlertType: AlertTypeFailure,
		Severity:  SeverityError,
		OpenedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		DedupeKey: "etl:FAILURE",
		Title:     "etl failed",
		Details:   "{}",
	}

	mock.ExpectExec(`INSERT OR IGNORE INTO alerts`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT OR IGNORE INTO alerts`).WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := s.OpenAlert(context.Background(), a)
	if err != nil {
		t.Fatalf("OpenAlert failed: %v", err)
	}
	if !created {
		t.Error("expected first OpenAlert to report created")
	}

	created, err = s.OpenAlert(context.Background(), a)
	if err != nil {
		t.Fatalf("OpenAlert (second) failed: %v", err)
	}
	if created {
		t.Error("expected second OpenAlert with same dedupe key to be a no-op")
	}
}

func TestCloseAlert_ReportsWhetherARowWasClosed(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`UPDATE alerts SET status = 'CLOSED'`).
		WithArgs(sqlmock.AnyArg(), "etl:FAILURE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	closed, err := s.CloseAlert(context.Background(), "etl:FAILURE", time.Now())
	if err != nil {
		t.Fatalf("CloseAlert failed: %v", err)
	}
	if !closed {
		t.Error("expected CloseAlert to report the row as closed")
	}
}

func TestDeleteEventsBefore_ReturnsRowsAffected(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`DELETE FROM events WHERE event_at < \?`).
		WillReturnResult(sqlmock.NewResult(0, 42))

	n, err := s.DeleteEventsBefore(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("DeleteEventsBefore failed: %v", err)
	}
	if n != 42 {
		t.Errorf("expected 42 rows deleted, got %d", n)
	}
}
