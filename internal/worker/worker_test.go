package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
)

func TestWorkerProcessSuccess(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := newFakeQueue(refresh.Request{RunID: "run-ok"})
	runs := newFakeRunStore("run-ok")
	ref := &fakeRefresher{summary: refresh.Summary{Updated: 2, Outcome: scraper.OutcomeStructured}}
	w := New(queue, runs, ref, fakeClock{now: time.Unix(100, 0)}, Config{}, zap.NewNop())

	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return runs.status("run-ok") == refresh.RunSucceeded
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []refresh.RunStatus{refresh.RunRunning, refresh.RunSucceeded}, runs.history("run-ok"))
	require.Equal(t, 2, runs.summary("run-ok").Updated)
	require.Equal(t, 1, ref.callCount())
}

func TestWorkerProcessFailureRecordsError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := newFakeQueue(refresh.Request{RunID: "run-bad"})
	runs := newFakeRunStore("run-bad")
	ref := &fakeRefresher{err: scraper.ErrFetchFailed, fails: 10}
	w := New(queue, runs, ref, fakeClock{now: time.Unix(100, 0)}, Config{}, zap.NewNop())

	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return runs.status("run-bad") == refresh.RunFailed
	}, time.Second, 10*time.Millisecond)
	require.Contains(t, runs.errText("run-bad"), "fetch failed")
	require.Equal(t, 1, ref.callCount())
}

func TestWorkerRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := newFakeQueue(refresh.Request{RunID: "run-retry"})
	runs := newFakeRunStore("run-retry")
	ref := &fakeRefresher{err: errors.New("transient"), fails: 2}
	w := New(queue, runs, ref, fakeClock{now: time.Unix(100, 0)},
		Config{MaxAttempts: 3, RetryDelay: time.Millisecond}, zap.NewNop())

	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return runs.status("run-retry") == refresh.RunSucceeded
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, 3, ref.callCount())
}

func TestWorkerWithoutRefresherFailsRun(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := newFakeQueue(refresh.Request{RunID: "run-none"})
	runs := newFakeRunStore("run-none")
	w := New(queue, runs, nil, fakeClock{now: time.Unix(100, 0)}, Config{}, nil)

	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return runs.status("run-none") == refresh.RunFailed
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, "no refresher configured", runs.errText("run-none"))
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	w := New(newFakeQueue(), newFakeRunStore(), &fakeRefresher{}, fakeClock{}, Config{}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

type fakeQueue struct {
	ch chan refresh.Request
}

func newFakeQueue(reqs ...refresh.Request) *fakeQueue {
	q := &fakeQueue{ch: make(chan refresh.Request, len(reqs)+1)}
	for _, r := range reqs {
		q.ch <- r
	}
	return q
}

func (q *fakeQueue) Enqueue(_ context.Context, req refresh.Request) error {
	q.ch <- req
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (refresh.Request, error) {
	select {
	case <-ctx.Done():
		return refresh.Request{}, ctx.Err()
	case r := <-q.ch:
		return r, nil
	}
}

type runState struct {
	statuses []refresh.RunStatus
	summary  refresh.Summary
	errText  string
}

type fakeRunStore struct {
	mu   sync.Mutex
	runs map[string]*runState
}

func newFakeRunStore(ids ...string) *fakeRunStore {
	s := &fakeRunStore{runs: make(map[string]*runState)}
	for _, id := range ids {
		s.runs[id] = &runState{statuses: nil}
	}
	return s
}

func (s *fakeRunStore) CreateRun(_ context.Context, run refresh.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = &runState{}
	return nil
}

func (s *fakeRunStore) MarkRunning(_ context.Context, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.runs[id]
	if !ok {
		return refresh.ErrRunNotFound
	}
	st.statuses = append(st.statuses, refresh.RunRunning)
	return nil
}

func (s *fakeRunStore) CompleteRun(
	_ context.Context,
	id string,
	status refresh.RunStatus,
	summary refresh.Summary,
	errText string,
	_ time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.runs[id]
	if !ok {
		return refresh.ErrRunNotFound
	}
	st.statuses = append(st.statuses, status)
	st.summary = summary
	st.errText = errText
	return nil
}

func (s *fakeRunStore) GetRun(context.Context, string) (refresh.Run, error) {
	return refresh.Run{}, nil
}

func (s *fakeRunStore) status(id string) refresh.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.runs[id]
	if st == nil || len(st.statuses) == 0 {
		return ""
	}
	return st.statuses[len(st.statuses)-1]
}

func (s *fakeRunStore) history(id string) []refresh.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]refresh.RunStatus(nil), s.runs[id].statuses...)
}

func (s *fakeRunStore) summary(id string) refresh.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id].summary
}

func (s *fakeRunStore) errText(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id].errText
}

type fakeRefresher struct {
	mu      sync.Mutex
	calls   int
	fails   int
	err     error
	summary refresh.Summary
}

func (f *fakeRefresher) Refresh(context.Context) (refresh.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil && f.calls <= f.fails {
		return refresh.Summary{}, f.err
	}
	return f.summary, nil
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time {
	return c.now
}
