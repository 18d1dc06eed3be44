package refresh

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// IDGenerator yields unique run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Jobs records refresh runs and hands them to the queue.
type Jobs struct {
	store  RunStore
	queue  Queue
	ids    IDGenerator
	clock  Clock
	logger *zap.Logger
}

// NewJobs builds a Jobs.
func NewJobs(store RunStore, queue Queue, ids IDGenerator, clock Clock, logger *zap.Logger) (*Jobs, error) {
	switch {
	case store == nil:
		return nil, fmt.Errorf("run store is required")
	case queue == nil:
		return nil, fmt.Errorf("queue is required")
	case ids == nil:
		return nil, fmt.Errorf("id generator is required")
	case clock == nil:
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jobs{store: store, queue: queue, ids: ids, clock: clock, logger: logger}, nil
}

// Submit creates a queued run and enqueues it. A run that cannot be enqueued
// is marked failed.
func (j *Jobs) Submit(ctx context.Context, trigger Trigger) (Run, error) {
	id, err := j.ids.NewID()
	if err != nil {
		return Run{}, fmt.Errorf("generate run id: %w", err)
	}
	run := Run{ID: id, Status: RunQueued, Trigger: trigger, QueuedAt: j.clock.Now()}
	if err := j.store.CreateRun(ctx, run); err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}
	req := Request{RunID: id, Trigger: trigger, EnqueuedAt: run.QueuedAt}
	if err := j.queue.Enqueue(ctx, req); err != nil {
		if cerr := j.store.CompleteRun(context.WithoutCancel(ctx), id, RunFailed, Summary{}, err.Error(), j.clock.Now()); cerr != nil {
			j.logger.Error("failed to mark unqueued run", zap.String("run_id", id), zap.Error(cerr))
		}
		return Run{}, fmt.Errorf("enqueue run: %w", err)
	}
	j.logger.Info("refresh queued", zap.String("run_id", id), zap.String("trigger", string(trigger)))
	return run, nil
}

// Get returns a run record.
func (j *Jobs) Get(ctx context.Context, id string) (Run, error) {
	run, err := j.store.GetRun(ctx, id)
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}
