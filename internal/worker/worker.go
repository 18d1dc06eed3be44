// Package worker runs queued refresh requests.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/metrics"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
)

// Refresher executes one refresh.
type Refresher interface {
	Refresh(ctx context.Context) (refresh.Summary, error)
}

// Config controls Worker behavior.
type Config struct {
	// MaxAttempts bounds how often a failed refresh is retried. Zero means one
	// attempt.
	MaxAttempts int
	RetryDelay  time.Duration
	// RunTimeout caps a single attempt. Zero leaves it to the fetch ceilings.
	RunTimeout time.Duration
}

// Worker consumes queue requests and executes refreshes.
type Worker struct {
	queue     refresh.Queue
	runs      refresh.RunStore
	refresher Refresher
	clock     refresh.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue refresh.Queue,
	runs refresh.RunStore,
	refresher Refresher,
	clock refresh.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Worker{
		queue:     queue,
		runs:      runs,
		refresher: refresher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming requests until the context finishes or the queue
// closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			return
		}
		w.logger.Debug("dequeued refresh", zap.String("run_id", req.RunID))
		w.process(ctx, req)
	}
}

func (w *Worker) process(ctx context.Context, req refresh.Request) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if w.refresher == nil {
		w.complete(ctx, req.RunID, refresh.RunFailed, refresh.Summary{}, "no refresher configured")
		return
	}
	if err := w.runs.MarkRunning(ctx, req.RunID, w.clock.Now()); err != nil {
		w.logger.Error("mark run running failed", zap.String("run_id", req.RunID), zap.Error(err))
		return
	}

	summary, err := w.attempt(ctx, req)
	if err != nil {
		w.complete(ctx, req.RunID, refresh.RunFailed, summary, err.Error())
		return
	}
	w.complete(ctx, req.RunID, refresh.RunSucceeded, summary, "")
}

func (w *Worker) attempt(ctx context.Context, req refresh.Request) (refresh.Summary, error) {
	var (
		summary refresh.Summary
		err     error
	)
	for n := 1; n <= w.cfg.MaxAttempts; n++ {
		summary, err = w.refreshOnce(ctx)
		if err == nil {
			return summary, nil
		}
		w.logger.Warn("refresh attempt failed",
			zap.String("run_id", req.RunID),
			zap.Int("attempt", n),
			zap.Error(err),
		)
		if n == w.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return summary, fmt.Errorf("retry canceled: %w", ctx.Err())
		case <-time.After(w.cfg.RetryDelay):
		}
	}
	return summary, err
}

func (w *Worker) refreshOnce(ctx context.Context) (refresh.Summary, error) {
	if w.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.RunTimeout)
		defer cancel()
	}
	summary, err := w.refresher.Refresh(ctx)
	if err != nil {
		return summary, fmt.Errorf("refresh: %w", err)
	}
	return summary, nil
}

func (w *Worker) complete(ctx context.Context, runID string, status refresh.RunStatus, summary refresh.Summary, errText string) {
	metrics.ObserveRefreshJob(string(status))
	if err := w.runs.CompleteRun(context.WithoutCancel(ctx), runID, status, summary, errText, w.clock.Now()); err != nil {
		w.logger.Error("final run status update failed", zap.String("run_id", runID), zap.Error(err))
	}
}
