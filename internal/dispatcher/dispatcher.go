// Package dispatcher runs the refresh worker pool and settles the runs still
// waiting on the queue when the service stops.
package dispatcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/metrics"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/worker"
)

// StoppedMessage is recorded on runs that never started before shutdown.
const StoppedMessage = "refresh service stopped before the run started"

// Queue is a refresh queue that can be closed and drained.
type Queue interface {
	refresh.Queue
	Close()
}

// Config sizes the pool.
type Config struct {
	Workers int
	Worker  worker.Config
}

// Dispatcher owns the workers consuming the refresh queue.
type Dispatcher struct {
	queue   Queue
	runs    refresh.RunStore
	clock   refresh.Clock
	workers []*worker.Worker
	logger  *zap.Logger
}

// New builds a pool of cfg.Workers workers. A pool always has at least one.
func New(
	queue Queue,
	runs refresh.RunStore,
	refresher worker.Refresher,
	clock refresh.Clock,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := max(cfg.Workers, 1)
	workers := make([]*worker.Worker, 0, n)
	for i := range n {
		workers = append(workers, worker.New(queue, runs, refresher, clock, cfg.Worker, logger.With(zap.Int("worker", i))))
	}
	return &Dispatcher{queue: queue, runs: runs, clock: clock, workers: workers, logger: logger}
}

// Size reports the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Run starts the workers and blocks until ctx ends and every worker has
// returned. It then closes the queue and fails the runs left on it, so no
// run stays queued after shutdown.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
	d.settlePending()
}

func (d *Dispatcher) settlePending() {
	d.queue.Close()
	ctx := context.Background()
	abandoned := 0
	for {
		req, err := d.queue.Dequeue(ctx)
		if err != nil {
			break
		}
		abandoned++
		metrics.ObserveRefreshJob(string(refresh.RunFailed))
		if err := d.runs.CompleteRun(ctx, req.RunID, refresh.RunFailed, refresh.Summary{}, StoppedMessage, d.clock.Now()); err != nil {
			d.logger.Error("settle pending run failed", zap.String("run_id", req.RunID), zap.Error(err))
		}
	}
	if abandoned > 0 {
		d.logger.Warn("queued refreshes abandoned at shutdown", zap.Int("runs", abandoned))
	}
}
