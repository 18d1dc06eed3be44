package refresh_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	queuemem "github.com/JakeFAU/hnx-restricted-tracker/internal/queue/memory"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
	storemem "github.com/JakeFAU/hnx-restricted-tracker/internal/storage/memory"
)

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "run-" + strconv.Itoa(s.n), nil
}

func TestJobsSubmitQueuesRun(t *testing.T) {
	t.Parallel()

	runs := storemem.NewRunStore()
	queue := queuemem.NewQueue(4)
	jobs, err := refresh.NewJobs(runs, queue, &seqIDs{}, fixedClock{now: fixedNow}, zap.NewNop())
	require.NoError(t, err)

	run, err := jobs.Submit(context.Background(), refresh.TriggerAPI)
	require.NoError(t, err)
	require.Equal(t, "run-1", run.ID)
	require.Equal(t, refresh.RunQueued, run.Status)
	require.Equal(t, fixedNow, run.QueuedAt)

	req, err := queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, refresh.Request{RunID: "run-1", Trigger: refresh.TriggerAPI, EnqueuedAt: fixedNow}, req)

	stored, err := jobs.Get(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, refresh.RunQueued, stored.Status)

	_, err = jobs.Get(context.Background(), "missing")
	require.ErrorIs(t, err, refresh.ErrRunNotFound)
}

func TestJobsSubmitMarksUnqueuedRunFailed(t *testing.T) {
	t.Parallel()

	runs := storemem.NewRunStore()
	queue := queuemem.NewQueue(1)
	queue.Close()
	jobs, err := refresh.NewJobs(runs, queue, &seqIDs{}, fixedClock{now: fixedNow}, zap.NewNop())
	require.NoError(t, err)

	_, err = jobs.Submit(context.Background(), refresh.TriggerAPI)
	require.ErrorIs(t, err, queuemem.ErrClosed)

	run, err := runs.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, refresh.RunFailed, run.Status)
	require.Equal(t, "queue closed", run.Error)
}

func TestNewJobsValidation(t *testing.T) {
	t.Parallel()

	_, err := refresh.NewJobs(nil, nil, nil, nil, nil)
	require.Error(t, err)
}

type countingSubmitter struct {
	mu       sync.Mutex
	triggers []refresh.Trigger
	err      error
}

func (c *countingSubmitter) Submit(_ context.Context, trigger refresh.Trigger) (refresh.Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.triggers = append(c.triggers, trigger)
	return refresh.Run{}, c.err
}

func (c *countingSubmitter) snapshot() []refresh.Trigger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]refresh.Trigger(nil), c.triggers...)
}

func TestSchedulerSubmitsOnStartAndTick(t *testing.T) {
	t.Parallel()

	sub := &countingSubmitter{err: errors.New("queue full")}
	sched := refresh.NewScheduler(sub, 10*time.Millisecond, true, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(sub.snapshot()) >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	got := sub.snapshot()
	require.Equal(t, refresh.TriggerStartup, got[0])
	require.Equal(t, refresh.TriggerSchedule, got[1])
}

func TestSchedulerDisabledIntervalWaitsForCancel(t *testing.T) {
	t.Parallel()

	sub := &countingSubmitter{}
	sched := refresh.NewScheduler(sub, 0, false, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	sched.Run(ctx)
	require.Empty(t, sub.snapshot())
}
