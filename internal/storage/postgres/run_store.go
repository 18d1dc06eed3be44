package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
)

// RunStore persists refresh runs.
type RunStore struct {
	db querier
}

var _ refresh.RunStore = (*RunStore)(nil)

// NewRunStore wraps an open pool.
func NewRunStore(db querier) (*RunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{db: db}, nil
}

// CreateRun inserts a queued run.
func (s *RunStore) CreateRun(ctx context.Context, run refresh.Run) error {
	_, err := s.db.Exec(ctx, `INSERT INTO refresh_runs (id, status, triggered_by, queued_at)
VALUES ($1, $2, $3, $4)`, run.ID, string(run.Status), string(run.Trigger), run.QueuedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// MarkRunning sets the run running and stamps started_at once.
func (s *RunStore) MarkRunning(ctx context.Context, id string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE refresh_runs
SET status = $2, started_at = COALESCE(started_at, $3)
WHERE id = $1`, id, string(refresh.RunRunning), at)
	if err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return refresh.ErrRunNotFound
	}
	return nil
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
	tag, err := s.db.Exec(ctx, `UPDATE refresh_runs
SET status = $2, finished_at = $3, updated = $4, outcome = $5, message = $6, error = $7
WHERE id = $1`, id, string(status), at, summary.Updated, string(summary.Outcome), message, errText)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return refresh.ErrRunNotFound
	}
	return nil
}

// GetRun fetches a run.
func (s *RunStore) GetRun(ctx context.Context, id string) (refresh.Run, error) {
	var (
		run               refresh.Run
		status, trigger   string
		started, finished sql.NullTime
	)
	err := s.db.QueryRow(ctx, `SELECT id, status, triggered_by, queued_at, started_at, finished_at,
	updated, outcome, message, error
FROM refresh_runs WHERE id = $1`, id).Scan(
		&run.ID, &status, &trigger, &run.QueuedAt, &started, &finished,
		&run.Updated, &run.Outcome, &run.Message, &run.Error,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return refresh.Run{}, refresh.ErrRunNotFound
	}
	if err != nil {
		return refresh.Run{}, fmt.Errorf("get run: %w", err)
	}
	run.Status = refresh.RunStatus(status)
	run.Trigger = refresh.Trigger(trigger)
	if started.Valid {
		run.StartedAt = &started.Time
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return run, nil
}

// SnapshotLog records archived pages in page_snapshots.
type SnapshotLog struct {
	db querier
}

var _ refresh.SnapshotLog = (*SnapshotLog)(nil)

// NewSnapshotLog wraps an open pool.
func NewSnapshotLog(db querier) (*SnapshotLog, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SnapshotLog{db: db}, nil
}

// RecordSnapshot inserts one row.
func (l *SnapshotLog) RecordSnapshot(ctx context.Context, snap refresh.Snapshot) error {
	_, err := l.db.Exec(ctx, `INSERT INTO page_snapshots
	(url, page_hash, blob_uri, outcome, accepted, rejected, captured_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		snap.URL, snap.PageHash, snap.BlobURI, string(snap.Outcome), snap.Accepted, snap.Rejected, snap.CapturedAt)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}
