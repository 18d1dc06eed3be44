package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
)

type runRow struct {
	ID          string       `db:"id"`
	Status      string       `db:"status"`
	TriggeredBy string       `db:"triggered_by"`
	QueuedAt    time.Time    `db:"queued_at"`
	StartedAt   sql.NullTime `db:"started_at"`
	FinishedAt  sql.NullTime `db:"finished_at"`
	Updated     int          `db:"updated"`
	Outcome     string       `db:"outcome"`
	Message     string       `db:"message"`
	Error       string       `db:"error"`
}

func (r runRow) toRun() refresh.Run {
	run := refresh.Run{
		ID:       r.ID,
		Status:   refresh.RunStatus(r.Status),
		Trigger:  refresh.Trigger(r.TriggeredBy),
		QueuedAt: r.QueuedAt,
		Updated:  r.Updated,
		Outcome:  r.Outcome,
		Message:  r.Message,
		Error:    r.Error,
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		run.StartedAt = &t
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		run.FinishedAt = &t
	}
	return run
}

// RunStore persists refresh runs.
type RunStore struct {
	db *sqlx.DB
}

var _ refresh.RunStore = (*RunStore)(nil)

// NewRunStore wraps an open, migrated database.
func NewRunStore(db *sqlx.DB) (*RunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &RunStore{db: db}, nil
}

// CreateRun inserts a queued run.
func (s *RunStore) CreateRun(ctx context.Context, run refresh.Run) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO refresh_runs (id, status, triggered_by, queued_at)
VALUES (?, ?, ?, ?)`, run.ID, string(run.Status), string(run.Trigger), run.QueuedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// MarkRunning sets the run running and stamps started_at once.
func (s *RunStore) MarkRunning(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, `UPDATE refresh_runs
SET status = ?, started_at = COALESCE(started_at, ?)
WHERE id = ?`, string(refresh.RunRunning), at.UTC(), id)
}

// CompleteRun records the terminal state of a run.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	id string,
	status refresh.RunStatus,
	summary refresh.Summary,
	errText string,
	at time.Time,
) error {
	message := refresh.FailureMessage
	if status == refresh.RunSucceeded {
		message = summary.Message()
	}
	return s.update(ctx, `UPDATE refresh_runs
SET status = ?, finished_at = ?, updated = ?, outcome = ?, message = ?, error = ?
WHERE id = ?`, string(status), at.UTC(), summary.Updated, string(summary.Outcome), message, errText, id)
}

// GetRun fetches a run.
func (s *RunStore) GetRun(ctx context.Context, id string) (refresh.Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT id, status, triggered_by, queued_at, started_at, finished_at,
	updated, outcome, message, error
FROM refresh_runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return refresh.Run{}, refresh.ErrRunNotFound
	}
	if err != nil {
		return refresh.Run{}, fmt.Errorf("get run: %w", err)
	}
	return row.toRun(), nil
}

func (s *RunStore) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n == 0 {
		return refresh.ErrRunNotFound
	}
	return nil
}

// SnapshotLog records archived pages in page_snapshots.
type SnapshotLog struct {
	db *sqlx.DB
}

var _ refresh.SnapshotLog = (*SnapshotLog)(nil)

// NewSnapshotLog wraps an open, migrated database.
func NewSnapshotLog(db *sqlx.DB) (*SnapshotLog, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &SnapshotLog{db: db}, nil
}

// RecordSnapshot inserts one row.
func (l *SnapshotLog) RecordSnapshot(ctx context.Context, snap refresh.Snapshot) error {
	_, err := l.db.ExecContext(ctx, `INSERT INTO page_snapshots
	(url, page_hash, blob_uri, outcome, accepted, rejected, captured_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.URL, snap.PageHash, snap.BlobURI, string(snap.Outcome), snap.Accepted, snap.Rejected, snap.CapturedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}
