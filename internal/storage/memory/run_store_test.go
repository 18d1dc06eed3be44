package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	queued := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	run := refresh.Run{ID: "run-1", Status: refresh.RunQueued, Trigger: refresh.TriggerAPI, QueuedAt: queued}

	require.NoError(t, store.CreateRun(ctx, run))
	require.Error(t, store.CreateRun(ctx, run))

	started := queued.Add(time.Second)
	require.NoError(t, store.MarkRunning(ctx, run.ID, started))
	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, refresh.RunRunning, got.Status)
	require.Equal(t, started, *got.StartedAt)

	finished := started.Add(5 * time.Second)
	summary := refresh.Summary{Updated: 3, Outcome: scraper.OutcomeStructured}
	require.NoError(t, store.CompleteRun(ctx, run.ID, refresh.RunSucceeded, summary, "", finished))

	got, err = store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, refresh.RunSucceeded, got.Status)
	require.Equal(t, 3, got.Updated)
	require.Equal(t, "structured", got.Outcome)
	require.Equal(t, "Successfully updated 3 stocks from HNX", got.Message)
	require.Equal(t, finished, *got.FinishedAt)
}

func TestRunStoreFailedRun(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, refresh.Run{ID: "run-2", Status: refresh.RunQueued}))
	require.NoError(t, store.CompleteRun(ctx, "run-2", refresh.RunFailed, refresh.Summary{}, "navigation timeout", time.Now()))

	got, err := store.GetRun(ctx, "run-2")
	require.NoError(t, err)
	require.Equal(t, refresh.FailureMessage, got.Message)
	require.Equal(t, "navigation timeout", got.Error)
	require.Nil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
}

func TestRunStoreUnknownRun(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	_, err := store.GetRun(ctx, "missing")
	require.ErrorIs(t, err, refresh.ErrRunNotFound)
	require.ErrorIs(t, store.MarkRunning(ctx, "missing", time.Now()), refresh.ErrRunNotFound)
	require.ErrorIs(t, store.CompleteRun(ctx, "missing", refresh.RunFailed, refresh.Summary{}, "", time.Now()), refresh.ErrRunNotFound)
}
