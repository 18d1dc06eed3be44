package refresh

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Submitter enqueues refresh runs.
type Submitter interface {
	Submit(ctx context.Context, trigger Trigger) (Run, error)
}

// Scheduler submits a refresh every interval until its context ends.
type Scheduler struct {
	jobs       Submitter
	interval   time.Duration
	runOnStart bool
	logger     *zap.Logger
}

// NewScheduler builds a Scheduler. A non-positive interval disables periodic
// runs; runOnStart still submits one refresh at startup.
func NewScheduler(jobs Submitter, interval time.Duration, runOnStart bool, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{jobs: jobs, interval: interval, runOnStart: runOnStart, logger: logger}
}

// Run blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.runOnStart {
		s.submit(ctx, TriggerStartup)
	}
	if s.interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("refresh scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.submit(ctx, TriggerSchedule)
		}
	}
}

func (s *Scheduler) submit(ctx context.Context, trigger Trigger) {
	if _, err := s.jobs.Submit(ctx, trigger); err != nil && ctx.Err() == nil {
		s.logger.Warn("scheduled refresh not queued", zap.String("trigger", string(trigger)), zap.Error(err))
	}
}
