package refresh

import (
	"context"
	"errors"
	"time"
)

// RunStatus is the lifecycle state of a refresh run.
type RunStatus string

// Run states.
const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed
}

// Trigger names what requested a run.
type Trigger string

// Known triggers.
const (
	TriggerAPI      Trigger = "api"
	TriggerSchedule Trigger = "schedule"
	TriggerCLI      Trigger = "cli"
	TriggerStartup  Trigger = "startup"
)

// ErrRunNotFound is returned when no run matches the id.
var ErrRunNotFound = errors.New("refresh run not found")

// Run records one queued refresh.
type Run struct {
	ID         string     `json:"job_id"`
	Status     RunStatus  `json:"status"`
	Trigger    Trigger    `json:"trigger"`
	QueuedAt   time.Time  `json:"queued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Updated    int        `json:"updated"`
	Outcome    string     `json:"outcome,omitempty"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// RunStore persists run records.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	MarkRunning(ctx context.Context, id string, at time.Time) error
	CompleteRun(ctx context.Context, id string, status RunStatus, summary Summary, errText string, at time.Time) error
	GetRun(ctx context.Context, id string) (Run, error)
}

// Request is the unit of work placed on the queue.
type Request struct {
	RunID      string
	Trigger    Trigger
	EnqueuedAt time.Time
}

// Queue moves requests from producers to workers.
type Queue interface {
	Enqueue(ctx context.Context, req Request) error
	Dequeue(ctx context.Context) (Request, error)
}
