package inmemory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/ddbimport/pkg/batch/core/domain/model"
	"github.com/tigerroll/ddbimport/pkg/batch/core/domain/repository"
	"github.com/tigerroll/ddbimport/pkg/batch/infrastructure/repository/inmemory"
)

func TestProgressRepository(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryProgressRepository()

	_, err := repo.Find(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrJobNotFound)

	older := &model.JobProgress{JobID: "job_a", Status: model.JobStatusCompleted, StartTime: 100}
	newer := &model.JobProgress{JobID: "job_b", Status: model.JobStatusRunning, StartTime: 200}
	require.NoError(t, repo.Save(ctx, older))
	require.NoError(t, repo.Save(ctx, newer))

	older.Status = model.JobStatusFailed
	got, err := repo.Find(ctx, "job_a")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status, "stored snapshots are copies")

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "job_b", all[0].JobID)
	assert.Equal(t, "job_a", all[1].JobID)
}

func TestLedgerRepository(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryLedgerRepository()

	l, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, l.ProcessedChunks)

	l.SetTotal(3)
	l.MarkProcessed("chunk_000001", time.Now())
	require.NoError(t, repo.Save(ctx, l))

	l.MarkProcessed("chunk_000002", time.Now())
	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk_000001"}, loaded.ProcessedChunks)
	assert.Equal(t, 3, loaded.TotalChunks)
}
