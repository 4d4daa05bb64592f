package progress_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/ddbimport/pkg/batch/core/domain/model"
	"github.com/tigerroll/ddbimport/pkg/batch/engine/progress"
	"github.com/tigerroll/ddbimport/pkg/batch/infrastructure/repository/inmemory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func int64p(v int64) *int64 { return &v }

func newTracker(t *testing.T, opts ...progress.Option) (*progress.Tracker, *inmemory.InMemoryProgressRepository, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)}
	repo := inmemory.NewInMemoryProgressRepository()
	opts = append([]progress.Option{progress.WithClock(clock.Now), progress.WithFlushInterval(0)}, opts...)
	return progress.NewTracker(repo, opts...), repo, clock
}

func TestTracker_Lifecycle(t *testing.T) {
	ctx := context.Background()
	tr, repo, clock := newTracker(t)

	require.NoError(t, tr.Prepare(ctx, "job_1", "Reviews", "input.csv"))
	stored, err := repo.Find(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, stored.Status)

	require.NoError(t, tr.Start(ctx, "job_1", "Reviews", int64p(100)))
	snap := tr.Snapshot()
	assert.Equal(t, model.JobStatusRunning, snap.Status)
	assert.Equal(t, model.UnknownCompletion, snap.EstimatedCompletion, "no throughput yet")

	clock.Advance(10 * time.Second)
	tr.RecordSuccess(25)
	tr.RecordFailure(5)

	snap = tr.Snapshot()
	assert.EqualValues(t, 25, snap.ProcessedItems)
	assert.EqualValues(t, 5, snap.FailedItems)
	assert.Equal(t, 25.0, snap.ProgressPercentage)
	assert.Equal(t, 10.0, snap.ElapsedTime)
	assert.Equal(t, 2.5, snap.ItemsPerSecond)
	// 75 remaining at 2.5 items/s is 30s after now.
	assert.Equal(t, clock.Now().Add(30*time.Second).Format(model.CompletionTimeLayout), snap.EstimatedCompletion)

	require.NoError(t, tr.SetCurrentFile("chunk_000002.csv"))
	stored, err = repo.Find(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, "chunk_000002.csv", stored.CurrentFile)
	assert.EqualValues(t, 25, stored.ProcessedItems)

	require.NoError(t, tr.Finish(model.JobStatusCompleted, nil))
	stored, err = repo.Find(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, stored.Status)
	assert.Empty(t, stored.ErrorMessage)

	assert.Error(t, tr.Start(ctx, "job_1", "Reviews", nil), "finished jobs cannot restart")
}

func TestTracker_PercentageIsClampedAndMonotonic(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTracker(t)
	require.NoError(t, tr.Start(ctx, "job_2", "T", int64p(10)))

	tr.RecordSuccess(4)
	assert.Equal(t, 40.0, tr.Snapshot().ProgressPercentage)

	tr.SetTotal(int64p(100))
	assert.Equal(t, 40.0, tr.Snapshot().ProgressPercentage, "a larger total never moves the percentage back")

	tr.RecordSuccess(500)
	assert.Equal(t, 100.0, tr.Snapshot().ProgressPercentage)
}

func TestTracker_UnknownTotal(t *testing.T) {
	ctx := context.Background()
	tr, _, clock := newTracker(t)
	require.NoError(t, tr.Start(ctx, "job_3", "T", nil))

	clock.Advance(time.Second)
	tr.RecordSuccess(10)
	snap := tr.Snapshot()
	assert.Nil(t, snap.TotalItems)
	assert.Zero(t, snap.ProgressPercentage)
	assert.Equal(t, model.UnknownCompletion, snap.EstimatedCompletion)
}

func TestTracker_ZeroTotalCompletesAtHundred(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTracker(t)
	require.NoError(t, tr.Start(ctx, "job_4", "T", int64p(0)))
	assert.Zero(t, tr.Snapshot().ProgressPercentage)

	require.NoError(t, tr.Finish(model.JobStatusCompleted, nil))
	assert.Equal(t, 100.0, tr.Snapshot().ProgressPercentage)
}

func TestTracker_FailureRecordsMessage(t *testing.T) {
	ctx := context.Background()
	tr, repo, _ := newTracker(t)
	require.NoError(t, tr.Prepare(ctx, "job_5", "T", "missing.csv"))
	require.NoError(t, tr.Finish(model.JobStatusFailed, errors.New("cannot open input file")))

	stored, err := repo.Find(ctx, "job_5")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "cannot open input file")

	assert.Error(t, tr.Finish(model.JobStatusRunning, nil), "only terminal statuses finish a job")
}

func TestTracker_ConcurrentCounters(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTracker(t)
	require.NoError(t, tr.Start(ctx, "job_6", "T", int64p(4000)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 250; j++ {
				tr.RecordSuccess(1)
				tr.RecordFailure(1)
				_ = tr.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := tr.Snapshot()
	assert.EqualValues(t, 2000, snap.ProcessedItems)
	assert.EqualValues(t, 2000, snap.FailedItems)
	assert.Equal(t, 50.0, snap.ProgressPercentage)
}

func TestTracker_PeriodicFlush(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryProgressRepository()
	tr := progress.NewTracker(repo, progress.WithFlushInterval(5*time.Millisecond))
	require.NoError(t, tr.Start(ctx, "job_7", "T", int64p(10)))
	defer tr.Close()

	tr.RecordSuccess(3)
	assert.Eventually(t, func() bool {
		stored, err := repo.Find(ctx, "job_7")
		return err == nil && stored.ProcessedItems == 3
	}, time.Second, 5*time.Millisecond)
}
