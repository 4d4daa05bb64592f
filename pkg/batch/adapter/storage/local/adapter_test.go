package local_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/tigerroll/ddbimport/pkg/batch/adapter/storage"
	"github.com/tigerroll/ddbimport/pkg/batch/adapter/storage/local"
)

func TestLocalAdapter_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested")
	conn, err := local.NewDir(dir, "chunks")
	require.NoError(t, err)
	assert.Equal(t, "local", conn.Type())
	assert.Equal(t, "chunks", conn.Name())

	require.NoError(t, conn.Upload(ctx, "b.csv", strings.NewReader("b")))
	w, err := conn.Create(ctx, "a.csv")
	require.NoError(t, err)

	exists, err := conn.Exists(ctx, "a.csv")
	require.NoError(t, err)
	assert.False(t, exists, "object is invisible until Close")

	_, err = io.WriteString(w, "a")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var names []string
	require.NoError(t, conn.ListObjects(ctx, "", func(name string) error {
		names = append(names, name)
		return nil
	}))
	assert.Equal(t, []string{"a.csv", "b.csv"}, names)

	r, err := conn.Download(ctx, "a.csv")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "a", string(data))
	assert.Equal(t, filepath.Join(dir, "a.csv"), conn.Locate("a.csv"))

	require.NoError(t, conn.DeleteObject(ctx, "a.csv"))
	require.NoError(t, conn.DeleteObject(ctx, "a.csv"))
	_, err = conn.Download(ctx, "a.csv")
	assert.True(t, errors.Is(err, storageAdapter.ErrObjectNotFound))
}

func TestLocalAdapter_ListSkipsTemporaryFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	conn, err := local.NewDir(dir, "chunks")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-chunk_000001.csv-123"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunk_000001.csv"), []byte("x"), 0o600))

	var names []string
	require.NoError(t, conn.ListObjects(ctx, "chunk_", func(name string) error {
		names = append(names, name)
		return nil
	}))
	assert.Equal(t, []string{"chunk_000001.csv"}, names)
}

func TestLocalAdapter_RejectsEscapingNames(t *testing.T) {
	conn, err := local.NewDir(t.TempDir(), "chunks")
	require.NoError(t, err)
	_, err = conn.Create(context.Background(), "../outside.csv")
	assert.Error(t, err)
}

func TestNewLocalAdapter_BaseDirIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err := local.NewDir(file, "chunks")
	assert.Error(t, err)
}
