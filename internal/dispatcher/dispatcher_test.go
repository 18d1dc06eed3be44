package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	queuemem "github.com/JakeFAU/hnx-restricted-tracker/internal/queue/memory"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
	storemem "github.com/JakeFAU/hnx-restricted-tracker/internal/storage/memory"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/worker"
)

var fixedNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return fixedNow }

// blockingRefresher holds every refresh until its context ends.
type blockingRefresher struct {
	started chan struct{}
	once    sync.Once
}

func (r *blockingRefresher) Refresh(ctx context.Context) (refresh.Summary, error) {
	r.once.Do(func() { close(r.started) })
	<-ctx.Done()
	return refresh.Summary{}, ctx.Err()
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRefresher) Refresh(context.Context) (refresh.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return refresh.Summary{Updated: 1}, nil
}

func enqueueRuns(t *testing.T, q *queuemem.Queue, runs *storemem.RunStore, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, runs.CreateRun(context.Background(), refresh.Run{
			ID:       id,
			Status:   refresh.RunQueued,
			Trigger:  refresh.TriggerAPI,
			QueuedAt: fixedNow,
		}))
		require.NoError(t, q.Enqueue(context.Background(), refresh.Request{RunID: id, Trigger: refresh.TriggerAPI}))
	}
}

func TestNewSizesPool(t *testing.T) {
	t.Parallel()

	q := queuemem.NewQueue(1)
	runs := storemem.NewRunStore()
	require.Equal(t, 1, New(q, runs, &countingRefresher{}, fixedClock{}, Config{}, nil).Size())
	require.Equal(t, 3, New(q, runs, &countingRefresher{}, fixedClock{}, Config{Workers: 3}, zap.NewNop()).Size())
}

func TestDispatcherProcessesQueuedRuns(t *testing.T) {
	t.Parallel()

	q := queuemem.NewQueue(4)
	runs := storemem.NewRunStore()
	refresher := &countingRefresher{}
	enqueueRuns(t, q, runs, "run-1", "run-2")

	d := New(q, runs, refresher, fixedClock{}, Config{Workers: 2}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		for _, id := range []string{"run-1", "run-2"} {
			run, err := runs.GetRun(context.Background(), id)
			if err != nil || run.Status != refresh.RunSucceeded {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestDispatcherFailsRunsLeftAtShutdown(t *testing.T) {
	t.Parallel()

	q := queuemem.NewQueue(4)
	runs := storemem.NewRunStore()
	refresher := &blockingRefresher{started: make(chan struct{})}
	enqueueRuns(t, q, runs, "run-1", "run-2", "run-3")

	d := New(q, runs, refresher, fixedClock{}, Config{Workers: 1, Worker: worker.Config{MaxAttempts: 1}}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	select {
	case <-refresher.started:
	case <-time.After(time.Second):
		t.Fatal("worker never started a refresh")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}

	for _, id := range []string{"run-1", "run-2", "run-3"} {
		run, err := runs.GetRun(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, refresh.RunFailed, run.Status, id)
		require.NotNil(t, run.FinishedAt, id)
		if run.StartedAt == nil {
			require.Equal(t, StoppedMessage, run.Error, id)
		}
	}
	require.Zero(t, q.Len())
	require.ErrorIs(t, q.Enqueue(context.Background(), refresh.Request{RunID: "late"}), queuemem.ErrClosed)
}
