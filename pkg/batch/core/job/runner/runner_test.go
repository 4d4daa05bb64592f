package runner_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/ddbimport/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/ddbimport/pkg/batch/core/config"
	model "github.com/tigerroll/ddbimport/pkg/batch/core/domain/model"
	"github.com/tigerroll/ddbimport/pkg/batch/core/job/runner"
	"github.com/tigerroll/ddbimport/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.BatchWriteItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.DescribeTableOutput)
	return out, args.Error(1)
}

// written returns every item submitted to table, in call order.
func (m *mockAPI) written(table string) []map[string]types.AttributeValue {
	var items []map[string]types.AttributeValue
	for _, c := range m.Calls {
		if c.Method != "BatchWriteItem" {
			continue
		}
		for _, req := range c.Arguments.Get(1).(*dynamodb.BatchWriteItemInput).RequestItems[table] {
			items = append(items, req.PutRequest.Item)
		}
	}
	return items
}

func tableWithKeys(hash, rng string) *dynamodb.DescribeTableOutput {
	keys := []types.KeySchemaElement{{AttributeName: aws.String(hash), KeyType: types.KeyTypeHash}}
	if rng != "" {
		keys = append(keys, types.KeySchemaElement{AttributeName: aws.String(rng), KeyType: types.KeyTypeRange})
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{TableStatus: types.TableStatusActive, KeySchema: keys}}
}

func newAPI(hash, rng string) *mockAPI {
	api := &mockAPI{}
	api.On("DescribeTable", mock.Anything, mock.Anything).Return(tableWithKeys(hash, rng), nil)
	api.On("BatchWriteItem", mock.Anything, mock.Anything).Return(&dynamodb.BatchWriteItemOutput{}, nil)
	return api
}

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Importer.Batch.Workers = 3
	cfg.Importer.Batch.BatchSize = 4
	cfg.Importer.Batch.ChunkDelayMs = 0
	cfg.Importer.Batch.Retry = config.RetryConfig{MaxAttempts: 3, InitialInterval: 1, MaxInterval: 2, Factor: 2}
	cfg.Importer.Progress.FlushIntervalMs = 0
	return cfg
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const reviewSchema = `{
  "hash_key": "ProductId",
  "range_key": "ReviewDate",
  "mapping": {
    "ProductId": "product_id:S",
    "ReviewDate": "review_date:S",
    "ReviewDetails": {
      "Rating": "rating:N",
      "Comment": "comment"
    }
  }
}`

func TestImportRunner_EndToEnd(t *testing.T) {
	csvPath := writeFile(t, "reviews.csv", "product_id,review_date,rating,comment\n"+
		"P1,2024-01-01,abc,great\n"+
		",2024-01-02,5,no key\n"+
		"P3,2024-01-03,4,\n")
	schemaPath := writeFile(t, "schema.json", reviewSchema)

	api := newAPI("ProductId", "ReviewDate")
	repo := inmemory.NewInMemoryProgressRepository()
	r := runner.NewImportRunner(api, repo, testConfig())

	res, err := r.Run(context.Background(), runner.RunRequest{
		JobID: "job_e2e", Table: "Reviews", File: csvPath, SchemaPath: schemaPath, CountRows: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RunStateCompleted, res.State)
	assert.EqualValues(t, 1, res.Rejected)
	assert.EqualValues(t, 2, res.Write.Written)
	assert.Equal(t, 0, runner.ExitCode(err))

	items := api.written("Reviews")
	require.Len(t, items, 2, "the rejected row is never submitted")
	var p1 map[string]types.AttributeValue
	for _, item := range items {
		if item["ProductId"].(*types.AttributeValueMemberS).Value == "P1" {
			p1 = item
		}
	}
	require.NotNil(t, p1)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "2024-01-01"}, p1["ReviewDate"])
	details := p1["ReviewDetails"].(*types.AttributeValueMemberM).Value
	assert.NotContains(t, details, "Rating", "a non-numeric rating is omitted")
	assert.Equal(t, &types.AttributeValueMemberS{Value: "great"}, details["Comment"])

	stored, err := repo.Find(context.Background(), "job_e2e")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, stored.Status)
	assert.EqualValues(t, 2, stored.ProcessedItems)
	assert.EqualValues(t, 1, stored.FailedItems)
	require.NotNil(t, stored.TotalItems)
	assert.EqualValues(t, 3, *stored.TotalItems)
	assert.Equal(t, 66.67, stored.ProgressPercentage)
	assert.Equal(t, "reviews.csv", stored.CurrentFile)
}

func TestImportRunner_LegacyModeDiscoversKeys(t *testing.T) {
	csvPath := writeFile(t, "plain.csv", "\ufeffid,name\n1,a\n2,b\n")
	api := newAPI("id", "")
	r := runner.NewImportRunner(api, inmemory.NewInMemoryProgressRepository(), testConfig())

	res, err := r.Run(context.Background(), runner.RunRequest{Table: "Plain", File: csvPath})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.JobID, "job_"))
	assert.Nil(t, res.Progress.TotalItems, "rows are not counted unless asked")

	items := api.written("Plain")
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Contains(t, item, "id", "the BOM is stripped from the first column")
		assert.IsType(t, &types.AttributeValueMemberS{}, item["name"])
	}
}

func TestImportRunner_HeaderOnlyCompletes(t *testing.T) {
	csvPath := writeFile(t, "empty.csv", "id,name\n")
	api := newAPI("id", "")
	r := runner.NewImportRunner(api, inmemory.NewInMemoryProgressRepository(), testConfig())

	res, err := r.Run(context.Background(), runner.RunRequest{Table: "T", File: csvPath, CountRows: true})
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Progress.ProgressPercentage)
	api.AssertNotCalled(t, "BatchWriteItem", mock.Anything, mock.Anything)
}

func TestImportRunner_PreconditionFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing input", func(t *testing.T) {
		api := newAPI("id", "")
		repo := inmemory.NewInMemoryProgressRepository()
		res, err := runner.NewImportRunner(api, repo, testConfig()).Run(ctx, runner.RunRequest{
			JobID: "job_missing", Table: "T", File: filepath.Join(t.TempDir(), "nope.csv"),
		})
		require.Error(t, err)
		assert.Equal(t, model.RunStateFailed, res.State)
		assert.Equal(t, runner.ExitPrecondition, runner.ExitCode(err))

		stored, findErr := repo.Find(ctx, "job_missing")
		require.NoError(t, findErr)
		assert.Equal(t, model.JobStatusFailed, stored.Status)
		assert.Contains(t, stored.ErrorMessage, "cannot open input file")
		api.AssertNotCalled(t, "BatchWriteItem", mock.Anything, mock.Anything)
	})

	t.Run("unreachable table", func(t *testing.T) {
		api := &mockAPI{}
		api.On("DescribeTable", mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: connection refused"))
		csvPath := writeFile(t, "a.csv", "id\n1\n")
		_, err := runner.NewImportRunner(api, inmemory.NewInMemoryProgressRepository(), testConfig()).Run(ctx, runner.RunRequest{Table: "T", File: csvPath})
		require.Error(t, err)
		assert.ErrorIs(t, err, exception.ErrStoreUnavailable)
		assert.Equal(t, runner.ExitPrecondition, runner.ExitCode(err))
		api.AssertNotCalled(t, "BatchWriteItem", mock.Anything, mock.Anything)
	})

	t.Run("invalid schema", func(t *testing.T) {
		api := newAPI("ProductId", "")
		csvPath := writeFile(t, "a.csv", "product_id\n1\n")
		schemaPath := writeFile(t, "bad.json", `{"hash_key": "ProductId", "mapping": {"Other": "product_id"}}`)
		_, err := runner.NewImportRunner(api, inmemory.NewInMemoryProgressRepository(), testConfig()).Run(ctx, runner.RunRequest{Table: "T", File: csvPath, SchemaPath: schemaPath})
		require.Error(t, err)
		assert.ErrorIs(t, err, exception.ErrInvalidSchema)
		api.AssertNotCalled(t, "BatchWriteItem", mock.Anything, mock.Anything)
	})
}

func TestImportRunner_AllRowsFailStillCompletes(t *testing.T) {
	csvPath := writeFile(t, "a.csv", "id\n1\n2\n")
	api := &mockAPI{}
	api.On("DescribeTable", mock.Anything, mock.Anything).Return(tableWithKeys("id", ""), nil)
	api.On("BatchWriteItem", mock.Anything, mock.Anything).Return(nil, errors.New("ValidationException: bad item"))
	r := runner.NewImportRunner(api, inmemory.NewInMemoryProgressRepository(), testConfig())

	res, err := r.Run(context.Background(), runner.RunRequest{Table: "T", File: csvPath})
	require.NoError(t, err)
	assert.Equal(t, model.RunStateCompleted, res.State)
	assert.EqualValues(t, 2, res.Progress.FailedItems)
	assert.Zero(t, res.Progress.ProcessedItems)
}

func numberedCSV(rows int) string {
	var b strings.Builder
	b.WriteString("id,value\n")
	for i := 1; i <= rows; i++ {
		fmt.Fprintf(&b, "%d,v%d\n", i, i)
	}
	return b.String()
}

func newChunkRunner(t *testing.T, api *mockAPI, ledger *inmemory.InMemoryLedgerRepository) *runner.ChunkRunner {
	t.Helper()
	cfg := testConfig()
	cfg.Importer.Batch.ChunkSize = 10
	store, err := local.NewDir(t.TempDir(), "chunks")
	require.NoError(t, err)
	importer := runner.NewImportRunner(api, inmemory.NewInMemoryProgressRepository(), cfg)
	return runner.NewChunkRunner(importer, store, ledger)
}

func TestChunkRunner_ResumesAfterLastLedgeredChunk(t *testing.T) {
	ctx := context.Background()
	input := writeFile(t, "big.csv", numberedCSV(25))

	// A previous invocation finished chunks 1 and 2 before it was killed.
	ledgerRepo := inmemory.NewInMemoryLedgerRepository()
	previous := model.NewLedger(3)
	previous.MarkProcessed(model.ChunkID(1), previous.LastUpdated)
	previous.MarkProcessed(model.ChunkID(2), previous.LastUpdated)
	require.NoError(t, ledgerRepo.Save(ctx, previous))

	api := newAPI("id", "")
	cr := newChunkRunner(t, api, ledgerRepo)
	summary, err := cr.Run(ctx, runner.ChunkRunRequest{JobID: "job_big", Table: "T", File: input})
	require.NoError(t, err)

	assert.Equal(t, 25, summary.TotalRows)
	assert.Equal(t, 3, summary.TotalChunks)
	assert.Equal(t, 2, summary.AlreadyProcessed)
	assert.Equal(t, []string{model.ChunkID(3)}, summary.Completed)
	assert.EqualValues(t, 5, summary.ItemsProcessed)

	items := api.written("T")
	require.Len(t, items, 5, "only the rows of chunk 3 are written")
	for _, item := range items {
		assert.Contains(t, []string{"21", "22", "23", "24", "25"}, item["id"].(*types.AttributeValueMemberS).Value)
	}

	ledger, err := ledgerRepo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{model.ChunkID(1), model.ChunkID(2), model.ChunkID(3)}, ledger.ProcessedChunks)
	assert.Equal(t, 100.0, ledger.ProgressPercentage)

	// A further run finds nothing to do.
	again := newAPI("id", "")
	summary, err = newChunkRunner(t, again, ledgerRepo).Run(ctx, runner.ChunkRunRequest{Table: "T", File: input})
	require.NoError(t, err)
	assert.Empty(t, summary.Completed)
	again.AssertNotCalled(t, "BatchWriteItem", mock.Anything, mock.Anything)
}

func TestChunkRunner_FailedChunkStaysPending(t *testing.T) {
	ctx := context.Background()
	input := writeFile(t, "big.csv", numberedCSV(25))

	api := &mockAPI{}
	api.On("DescribeTable", mock.Anything, mock.Anything).Return(nil, errors.New("throttled")).Once()
	api.On("DescribeTable", mock.Anything, mock.Anything).Return(tableWithKeys("id", ""), nil)
	api.On("BatchWriteItem", mock.Anything, mock.Anything).Return(&dynamodb.BatchWriteItemOutput{}, nil)

	ledgerRepo := inmemory.NewInMemoryLedgerRepository()
	summary, err := newChunkRunner(t, api, ledgerRepo).Run(ctx, runner.ChunkRunRequest{JobID: "job_x", Table: "T", File: input})
	require.NoError(t, err)
	assert.Equal(t, []string{model.ChunkID(1)}, summary.Failed)
	assert.Equal(t, []string{model.ChunkID(2), model.ChunkID(3)}, summary.Completed)
	require.NotNil(t, summary.Errors)
	assert.Len(t, summary.Errors.Errors, 1)

	ledger, err := ledgerRepo.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ledger.IsProcessed(model.ChunkID(1)))
	assert.Len(t, api.written("T"), 15)
}

func TestChunkRunner_HeaderOnlyInputIsNothingToDo(t *testing.T) {
	input := writeFile(t, "empty.csv", "id,value\n")
	api := newAPI("id", "")
	summary, err := newChunkRunner(t, api, inmemory.NewInMemoryLedgerRepository()).Run(context.Background(), runner.ChunkRunRequest{Table: "T", File: input})
	require.NoError(t, err)
	assert.Zero(t, summary.TotalChunks)
	api.AssertNotCalled(t, "DescribeTable", mock.Anything, mock.Anything)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, runner.ExitOK, runner.ExitCode(nil))
	assert.Equal(t, runner.ExitPrecondition, runner.ExitCode(exception.NewPreconditionError("test", "bad input", nil)))
	assert.Equal(t, runner.ExitFailed, runner.ExitCode(errors.New("boom")))
	assert.Equal(t, runner.ExitFailed, runner.ExitCode(context.Canceled))
}
