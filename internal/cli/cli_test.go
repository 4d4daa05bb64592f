package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/ddbimport/internal/cli"
	"github.com/tigerroll/ddbimport/pkg/batch/core/job/runner"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
)

const reviewSchema = `hash_key: ProductId
range_key: ReviewDate
mapping:
  ProductId: product_id
  ReviewDate: review_date
  ReviewDetails:
    Rating: rating:N
    Text: text
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := cli.NewRootCmd(filepath.Join(t.TempDir(), "absent.env"), nil)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidateSchema_Valid(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.yaml", reviewSchema)

	out, err := execute(t, "validate-schema", "--schema", schemaPath)
	require.NoError(t, err)
	assert.Contains(t, out, `hash key "ProductId"`)
	assert.Contains(t, out, `range key "ReviewDate"`)
}

func TestValidateSchema_MapsFirstRow(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.yaml", reviewSchema)
	input := writeFile(t, dir, "reviews.csv", "product_id,review_date,rating,text\nP1,2024-01-01,abc,great\n")

	out, err := execute(t, "validate-schema", "--schema", schemaPath, "--file", input)
	require.NoError(t, err)
	assert.Contains(t, out, `"ProductId"`)
	assert.Contains(t, out, `"great"`)
	assert.NotContains(t, out, `"Rating"`, "an uncoercible number is omitted")
}

func TestValidateSchema_RejectedFirstRow(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.yaml", reviewSchema)
	input := writeFile(t, dir, "reviews.csv", "product_id,review_date,rating,text\n,2024-01-01,5,great\n")

	_, err := execute(t, "validate-schema", "--schema", schemaPath, "--file", input)
	require.Error(t, err)
	assert.True(t, exception.IsPrecondition(err))
}

func TestValidateSchema_KeyOverride(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.yaml", reviewSchema)

	_, err := execute(t, "validate-schema", "--schema", schemaPath, "--hash-key", "Unknown")
	require.Error(t, err)
	assert.Equal(t, runner.ExitPrecondition, runner.ExitCode(err))
}

func TestPlan_WritesChunks(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "big.csv", "id\n1\n2\n3\n4\n5\n")
	chunkDir := filepath.Join(dir, "chunks")

	out, err := execute(t, "plan", "--file", input, "--chunk-size", "2", "--chunk-dir", chunkDir)
	require.NoError(t, err)
	assert.Contains(t, out, "5 rows in 3 chunks")
	for _, name := range []string{"chunk_000001.csv", "chunk_000002.csv", "chunk_000003.csv"} {
		assert.FileExists(t, filepath.Join(chunkDir, name))
	}

	out, err = execute(t, "plan", "--file", input, "--chunk-size", "2", "--chunk-dir", chunkDir)
	require.NoError(t, err)
	assert.Contains(t, out, "(0 created)")
}

func TestPlan_HeaderOnly(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "empty.csv", "id,name\n")

	out, err := execute(t, "plan", "--file", input, "--chunk-dir", filepath.Join(dir, "chunks"))
	require.NoError(t, err)
	assert.Contains(t, out, "no data rows")
}

func TestImport_RequiresTableAndFile(t *testing.T) {
	_, err := execute(t, "import", "--file", "x.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table")
}

func TestImport_MissingConfigFile(t *testing.T) {
	_, err := execute(t, "import", "--table", "T", "--file", "x.csv", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, runner.ExitPrecondition, runner.ExitCode(err))
}
