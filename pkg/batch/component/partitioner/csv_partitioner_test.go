package partitioner_test

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/tigerroll/ddbimport/pkg/batch/adapter/storage"
	"github.com/tigerroll/ddbimport/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/ddbimport/pkg/batch/component/partitioner"
	model "github.com/tigerroll/ddbimport/pkg/batch/core/domain/model"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
)

// countingStore records every Create call made through it.
type countingStore struct {
	storageAdapter.StorageConnection
	creates []string
}

func (s *countingStore) Create(ctx context.Context, name string) (storageAdapter.ObjectWriter, error) {
	s.creates = append(s.creates, name)
	return s.StorageConnection.Create(ctx, name)
}

func writeInput(t *testing.T, rows int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("id,name\n")
	for i := 1; i <= rows; i++ {
		fmt.Fprintf(&b, "%d,name-%d\n", i, i)
	}
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func newStore(t *testing.T) (*countingStore, string) {
	t.Helper()
	dir := t.TempDir()
	conn, err := local.NewDir(dir, "chunks")
	require.NoError(t, err)
	return &countingStore{StorageConnection: conn}, dir
}

func readChunk(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestPartition_ContiguousChunksCoverAllRows(t *testing.T) {
	input := writeInput(t, 25)
	store, _ := newStore(t)

	plan, err := partitioner.NewCSVPartitioner(store, partitioner.WithChunkSize(10)).Partition(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, 25, plan.TotalRows)
	assert.Equal(t, 3, plan.TotalChunks)
	assert.Equal(t, 3, plan.Created)
	require.Len(t, plan.Chunks, 3)

	next := 1
	sum := 0
	for i, chunk := range plan.Chunks {
		assert.Equal(t, i+1, chunk.Sequence)
		records := readChunk(t, chunk.Path)
		assert.Equal(t, []string{"id", "name"}, records[0], "every chunk carries the header")
		assert.Len(t, records[1:], chunk.RowCount)
		for _, rec := range records[1:] {
			assert.Equal(t, fmt.Sprint(next), rec[0])
			next++
		}
		sum += chunk.RowCount
	}
	assert.Equal(t, 25, sum)
	assert.Equal(t, 5, plan.Chunks[2].RowCount)
}

func TestPartition_FullyChunkedDirectoryPerformsNoWrites(t *testing.T) {
	input := writeInput(t, 25)
	store, _ := newStore(t)
	p := partitioner.NewCSVPartitioner(store, partitioner.WithChunkSize(10))

	_, err := p.Partition(context.Background(), input)
	require.NoError(t, err)
	store.creates = nil

	plan, err := p.Partition(context.Background(), input)
	require.NoError(t, err)
	assert.Empty(t, store.creates)
	assert.Zero(t, plan.Created)
	assert.Len(t, plan.Chunks, 3)
}

func TestPartition_ExistingChunkIsLeftUntouched(t *testing.T) {
	input := writeInput(t, 25)
	store, dir := newStore(t)

	sentinel := "id,name\nkept,as-is\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, model.ChunkFileName(2)), []byte(sentinel), 0o600))

	plan, err := partitioner.NewCSVPartitioner(store, partitioner.WithChunkSize(10)).Partition(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, []string{model.ChunkFileName(1), model.ChunkFileName(3)}, store.creates)
	assert.Equal(t, 2, plan.Created)

	data, err := os.ReadFile(filepath.Join(dir, model.ChunkFileName(2)))
	require.NoError(t, err)
	assert.Equal(t, sentinel, string(data))

	third := readChunk(t, plan.Chunks[2].Path)
	assert.Equal(t, "21", third[1][0], "rows of the skipped chunk are not shifted into the next one")
}

func TestPartition_IgnoresChunksBeyondThePlan(t *testing.T) {
	input := writeInput(t, 25)
	store, dir := newStore(t)

	for _, seq := range []int{1, 2, 5} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, model.ChunkFileName(seq)), []byte("id,name\nold,row\n"), 0o600))
	}

	plan, err := partitioner.NewCSVPartitioner(store, partitioner.WithChunkSize(10)).Partition(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, []string{model.ChunkFileName(3)}, store.creates)
	assert.Equal(t, 1, plan.Created)
	assert.FileExists(t, plan.Chunks[2].Path)
}

func TestPartition_Preconditions(t *testing.T) {
	store, _ := newStore(t)
	p := partitioner.NewCSVPartitioner(store)

	_, err := p.Partition(context.Background(), writeInput(t, 0))
	require.Error(t, err)
	assert.True(t, exception.IsPrecondition(err))
	assert.True(t, errors.Is(err, exception.ErrNothingToDo))

	_, err = p.Partition(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, exception.IsPrecondition(err))
	assert.Empty(t, store.creates)
}
