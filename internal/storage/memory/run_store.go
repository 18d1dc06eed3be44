package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
)

// RunStore keeps refresh runs in a map keyed by id.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]refresh.Run
}

var _ refresh.RunStore = (*RunStore)(nil)

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]refresh.Run)}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, run refresh.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[run.ID] = run
	return nil
}

// MarkRunning moves a run to running.
func (s *RunStore) MarkRunning(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return refresh.ErrRunNotFound
	}
	run.Status = refresh.RunRunning
	if run.StartedAt == nil {
		run.StartedAt = pointerTime(at)
	}
	s.runs[id] = run
	return nil
}

// CompleteRun records the terminal state of a run.
func (s *RunStore) CompleteRun(
	_ context.Context,
	id string,
	status refresh.RunStatus,
	summary refresh.Summary,
	errText string,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return refresh.ErrRunNotFound
	}
	run.Status = status
	run.Updated = summary.Updated
	run.Outcome = string(summary.Outcome)
	run.Error = errText
	if status == refresh.RunSucceeded {
		run.Message = summary.Message()
	} else {
		run.Message = refresh.FailureMessage
	}
	if status.Terminal() {
		run.FinishedAt = pointerTime(at)
	}
	s.runs[id] = run
	return nil
}

// GetRun fetches a run by id.
func (s *RunStore) GetRun(_ context.Context, id string) (refresh.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return refresh.Run{}, refresh.ErrRunNotFound
	}
	return run, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
