package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	storageAdapter "github.com/tigerroll/ddbimport/pkg/batch/adapter/storage"
	"github.com/tigerroll/ddbimport/pkg/batch/component/partitioner"
	"github.com/tigerroll/ddbimport/pkg/batch/component/schema"
	"github.com/tigerroll/ddbimport/pkg/batch/component/step/reader"
	"github.com/tigerroll/ddbimport/pkg/batch/core/config"
	model "github.com/tigerroll/ddbimport/pkg/batch/core/domain/model"
	"github.com/tigerroll/ddbimport/pkg/batch/core/domain/repository"
	"github.com/tigerroll/ddbimport/pkg/batch/core/metrics"
	"github.com/tigerroll/ddbimport/pkg/batch/engine/step/retry"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

// ChunkRunRequest describes a chunked import of one large CSV input.
type ChunkRunRequest struct {
	// JobID prefixes the job id of every chunk run. Generated when empty.
	JobID      string
	Table      string
	File       string
	SchemaPath string
	HashKey    string
	RangeKey   string
	BatchSize  int
	Workers    int
	Encoding   string
}

// ChunkSummary reports the outcome of a chunked import.
type ChunkSummary struct {
	JobID       string
	TotalRows   int
	TotalChunks int
	// CreatedChunks is the number of chunk files written by this invocation.
	CreatedChunks int
	// AlreadyProcessed counts chunks found in the ledger at startup.
	AlreadyProcessed int
	Completed        []string
	Failed           []string
	ItemsProcessed   int64
	ItemsFailed      int64
	// Errors collects the failures of skipped chunks.
	Errors *multierror.Error
}

// ChunkRunner drives the chunks of one input through an ImportRunner,
// strictly in sequence, and appends every successful chunk to the ledger.
type ChunkRunner struct {
	importer *ImportRunner                   // importer runs each chunk as its own job.
	store    storageAdapter.StorageConnection // store holds the chunk files.
	ledger   repository.LedgerRepository      // ledger records completed chunks.
	batchCfg config.BatchConfig               // batchCfg supplies chunk size, encoding and delay defaults.
	recorder metrics.MetricRecorder           // recorder counts completed chunks.
	tracer   metrics.Tracer                   // tracer opens one span per chunk.
	now      func() time.Time                 // now is the clock.
}

// NewChunkRunner creates a ChunkRunner. The importer's metric recorder and
// tracer are shared.
//
// Parameters:
//
//	importer: The runner each chunk is imported with.
//	store: Where chunk files are materialized.
//	ledger: The record of chunks already imported.
//
// Returns:
//
//	A new [ChunkRunner] instance.
func NewChunkRunner(importer *ImportRunner, store storageAdapter.StorageConnection, ledger repository.LedgerRepository) *ChunkRunner {
	return &ChunkRunner{
		importer: importer,
		store:    store,
		ledger:   ledger,
		batchCfg: importer.cfg.Importer.Batch,
		recorder: importer.recorder,
		tracer:   importer.tracer,
		now:      importer.now,
	}
}

// Run plans the chunks of req.File, then imports every chunk missing from the
// ledger. A failing chunk is logged and left out of the ledger so that the
// next invocation retries it; the remaining chunks still run. Run returns an
// error for precondition failures of the plan, for a ledger that cannot be
// read or written, and when ctx ends.
//
// Parameters:
//
//	ctx: The context for the whole invocation.
//	req: The input, table, chunk size and import settings.
//
// Returns:
//
//	The [ChunkSummary] of this invocation, and an error as described above.
func (c *ChunkRunner) Run(ctx context.Context, req ChunkRunRequest) (*ChunkSummary, error) {
	if req.JobID == "" {
		req.JobID = model.NewJobID(c.now())
	}
	summary := &ChunkSummary{JobID: req.JobID}

	encoding := req.Encoding
	if encoding == "" {
		encoding = c.batchCfg.Encoding
	}
	plan, err := partitioner.NewCSVPartitioner(c.store,
		partitioner.WithChunkSize(c.batchCfg.ChunkSize),
		partitioner.WithEncoding(encoding),
	).Partition(ctx, req.File)
	if errors.Is(err, exception.ErrNothingToDo) {
		logger.Infof("ChunkRunner: %s has no data rows; nothing to import.", req.File)
		return summary, nil
	}
	if err != nil {
		return summary, err
	}
	summary.TotalRows = plan.TotalRows
	summary.TotalChunks = plan.TotalChunks
	summary.CreatedChunks = plan.Created

	var s *schema.Schema
	if req.SchemaPath != "" {
		if s, err = schema.Load(req.SchemaPath); err != nil {
			return summary, err
		}
	}

	ledger, err := c.ledger.Load(ctx)
	if err != nil {
		return summary, exception.NewBatchError(moduleName, "failed to load the chunk ledger", err, false, true)
	}
	ledger.SetTotal(plan.TotalChunks)
	pending := ledger.Pending(plan.Chunks)
	summary.AlreadyProcessed = plan.TotalChunks - len(pending)
	if len(pending) == 0 {
		logger.Infof("ChunkRunner: all %d chunks of %s are already processed.", plan.TotalChunks, req.File)
		return summary, nil
	}
	logger.Infof("ChunkRunner: %d of %d chunks to process.", len(pending), plan.TotalChunks)

	delay := time.Duration(c.batchCfg.ChunkDelayMs) * time.Millisecond
	for i, chunk := range pending {
		if i > 0 {
			if err := retry.Wait(ctx, delay); err != nil {
				return summary, err
			}
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res, err := c.runChunk(ctx, req, s, chunk)
		if res != nil && res.Progress != nil {
			summary.ItemsProcessed += res.Progress.ProcessedItems
			summary.ItemsFailed += res.Progress.FailedItems
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			logger.Errorf("ChunkRunner: chunk %s failed and stays pending: %v", chunk.ID(), err)
			summary.Failed = append(summary.Failed, chunk.ID())
			summary.Errors = multierror.Append(summary.Errors, fmt.Errorf("%s: %w", chunk.ID(), err))
			continue
		}

		ledger.MarkProcessed(chunk.ID(), c.now())
		if err := c.ledger.Save(ctx, ledger); err != nil {
			return summary, exception.NewBatchError(moduleName, fmt.Sprintf("failed to record %s in the chunk ledger", chunk.ID()), err, false, true)
		}
		c.recorder.RecordChunkCompleted(ctx, req.Table)
		summary.Completed = append(summary.Completed, chunk.ID())
		logger.Infof("ChunkRunner: %s done (%.2f%% of chunks processed).", chunk.ID(), ledger.ProgressPercentage)
	}

	if len(summary.Failed) > 0 {
		logger.Warnf("ChunkRunner: %d chunks failed and will be retried on the next run: %v", len(summary.Failed), summary.Failed)
	}
	return summary, nil
}

func (c *ChunkRunner) runChunk(ctx context.Context, req ChunkRunRequest, s *schema.Schema, chunk model.Chunk) (*RunResult, error) {
	ctx, endSpan := c.tracer.StartChunkSpan(ctx, req.Table, chunk.Sequence)
	defer endSpan()

	total := int64(chunk.RowCount)
	return c.importer.Run(ctx, RunRequest{
		JobID:     fmt.Sprintf("%s_chunk_%d", req.JobID, chunk.Sequence),
		Table:     req.Table,
		File:      chunk.Path,
		Schema:    s,
		HashKey:   req.HashKey,
		RangeKey:  req.RangeKey,
		BatchSize: req.BatchSize,
		Workers:   req.Workers,
		// Chunk files are written as UTF-8.
		Encoding: reader.EncodingUTF8,
		Total:    &total,
	})
}
