// Package runner drives imports: ImportRunner moves one CSV file into a table
// and ChunkRunner walks the chunks of a large input through it, recording
// finished chunks in the ledger.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	ddb "github.com/tigerroll/ddbimport/pkg/batch/adapter/dynamodb"
	"github.com/tigerroll/ddbimport/pkg/batch/component/schema"
	"github.com/tigerroll/ddbimport/pkg/batch/component/step/reader"
	"github.com/tigerroll/ddbimport/pkg/batch/component/step/writer"
	"github.com/tigerroll/ddbimport/pkg/batch/core/config"
	model "github.com/tigerroll/ddbimport/pkg/batch/core/domain/model"
	"github.com/tigerroll/ddbimport/pkg/batch/core/domain/repository"
	"github.com/tigerroll/ddbimport/pkg/batch/core/metrics"
	"github.com/tigerroll/ddbimport/pkg/batch/engine/progress"
	"github.com/tigerroll/ddbimport/pkg/batch/engine/step/retry"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

const moduleName = "runner"

// RunRequest describes one import of a single CSV file.
type RunRequest struct {
	// JobID identifies the progress snapshot. A new id is generated when empty.
	JobID string
	Table string
	File  string
	// Schema is used as is when set; otherwise SchemaPath is loaded, and
	// without either every column is copied as a string attribute.
	Schema     *schema.Schema
	SchemaPath string
	// HashKey and RangeKey take precedence over the schema. Keys still
	// missing afterwards are discovered from the table.
	HashKey  string
	RangeKey string
	// BatchSize, Workers and Encoding override the configuration when set.
	BatchSize int
	Workers   int
	Encoding  string
	// Total is the known number of data rows. When nil and CountRows is
	// set, the input is counted before the import starts.
	Total     *int64
	CountRows bool
}

// RunResult reports the outcome of one import.
type RunResult struct {
	JobID    string
	State    model.RunState
	Rejected int64
	Write    writer.Result
	Duration time.Duration
	Progress *model.JobProgress
}

// ImportRunner is the run coordinator of a single file import.
type ImportRunner struct {
	api      ddb.API
	repo     repository.ProgressRepository
	cfg      *config.Config
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
	now      func() time.Time
}

// Option configures an ImportRunner.
type Option func(*ImportRunner)

// WithMetricRecorder sets the metric recorder.
func WithMetricRecorder(r metrics.MetricRecorder) Option {
	return func(ir *ImportRunner) {
		if r != nil {
			ir.recorder = r
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t metrics.Tracer) Option {
	return func(ir *ImportRunner) {
		if t != nil {
			ir.tracer = t
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(ir *ImportRunner) {
		if now != nil {
			ir.now = now
		}
	}
}

// NewImportRunner creates an ImportRunner.
//
// Parameters:
//
//	api: The DynamoDB client used for DescribeTable and BatchWriteItem.
//	repo: The progress store for job snapshots.
//	cfg: The application configuration; batch and progress settings are read from it.
//	opts: Options such as the metric recorder and tracer.
//
// Returns:
//
//	A new [ImportRunner] instance.
func NewImportRunner(api ddb.API, repo repository.ProgressRepository, cfg *config.Config, opts ...Option) *ImportRunner {
	r := &ImportRunner{
		api:      api,
		repo:     repo,
		cfg:      cfg,
		recorder: metrics.NewNoOpMetricRecorder(),
		tracer:   metrics.NewNoOpTracer(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run imports req.File into req.Table. Rows that cannot be mapped and items
// abandoned after retries are counted as failed without failing the run.
//
// Parameters:
//
//	ctx: The context for the run. Cancelling it fails the run.
//	req: The table, input file, schema and per-run overrides.
//
// Returns:
//
//	The [RunResult] with the final counters, and an error exactly when the
//	run ends FAILED. Precondition failures match exception.ErrPrecondition.
func (r *ImportRunner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	start := r.now()
	if req.JobID == "" {
		req.JobID = model.NewJobID(start)
	}
	result := &RunResult{JobID: req.JobID, State: model.RunStateNotStarted}

	tracker := progress.NewTracker(r.repo,
		progress.WithFlushInterval(time.Duration(r.cfg.Importer.Progress.FlushIntervalMs)*time.Millisecond),
		progress.WithClock(r.now),
	)
	defer tracker.Close()
	if err := tracker.Prepare(ctx, req.JobID, req.Table, filepath.Base(req.File)); err != nil {
		logger.Warnf("ImportRunner: job %s: %v", req.JobID, err)
	}

	ctx, endSpan := r.tracer.StartRunSpan(ctx, req.Table, req.File)
	defer endSpan()
	r.recorder.RecordRunStart(ctx, req.Table)
	logger.Infof("ImportRunner: job %s importing %s into table %s.", req.JobID, req.File, req.Table)

	err := r.run(ctx, req, tracker, result)

	status := model.RunStateCompleted
	if err != nil {
		status = model.RunStateFailed
		r.tracer.RecordError(ctx, moduleName, err)
	}
	result.State = status
	if finishErr := tracker.Finish(status.JobStatus(), err); finishErr != nil {
		logger.Warnf("ImportRunner: job %s: final snapshot not saved: %v", req.JobID, finishErr)
	}
	result.Progress = tracker.Snapshot()
	result.Duration = r.now().Sub(start)
	r.recorder.RecordRunEnd(ctx, req.Table, status.JobStatus().String(), result.Duration)

	if err != nil {
		logger.Errorf("ImportRunner: job %s failed: %v", req.JobID, err)
		return result, err
	}
	processed, failed := result.Progress.ProcessedItems, result.Progress.FailedItems
	switch {
	case failed > 0 && processed == 0:
		logger.Warnf("ImportRunner: job %s completed but all %d items failed.", req.JobID, failed)
	case failed > 0:
		logger.Warnf("ImportRunner: job %s completed: %d items imported, %d failed.", req.JobID, processed, failed)
	default:
		logger.Infof("ImportRunner: job %s completed: %d items imported in %s.", req.JobID, processed, result.Duration.Round(time.Millisecond))
	}
	return result, nil
}

func (r *ImportRunner) run(ctx context.Context, req RunRequest, tracker *progress.Tracker, result *RunResult) error {
	s, err := r.ResolveSchema(ctx, req)
	if err != nil {
		return err
	}
	batchCfg := r.cfg.Importer.Batch

	encoding := req.Encoding
	if encoding == "" {
		encoding = batchCfg.Encoding
	}
	total := req.Total
	if total == nil && req.CountRows {
		rows, err := reader.CountRows(ctx, req.File, reader.WithEncoding(encoding))
		if err != nil {
			return err
		}
		n := int64(rows)
		total = &n
		logger.Infof("ImportRunner: %s contains %d data rows.", req.File, rows)
	}

	rd := reader.NewCSVReader(req.File, reader.WithEncoding(encoding))
	if err := rd.Open(ctx); err != nil {
		return err
	}
	defer rd.Close(ctx)

	if err := tracker.Start(ctx, req.JobID, req.Table, total); err != nil {
		logger.Warnf("ImportRunner: job %s: %v", req.JobID, err)
	}
	result.State = model.RunStateRunning

	mapper := schema.NewMapper(s, schema.WithListDelimiter(batchCfg.ListDelimiter))
	w := r.newWriter(req, s)

	var rejected atomic.Int64
	records := make(chan schema.Record, batchCfg.EffectiveBatchSize()*max(batchCfg.Workers, 1))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(records)
		for {
			row, err := rd.Read(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			record, err := mapper.Map(row)
			if errors.Is(err, schema.ErrRowRejected) {
				logger.Warnf("ImportRunner: %s: %v", req.File, err)
				rejected.Add(1)
				tracker.RecordFailure(1)
				r.recorder.RecordRowsRejected(gctx, req.Table, 1)
				continue
			}
			if err != nil {
				return err
			}
			select {
			case records <- record:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	g.Go(func() error {
		res, err := w.Write(gctx, records, tracker)
		result.Write = res
		return err
	})
	err = g.Wait()
	result.Rejected = rejected.Load()
	if err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("import of %s interrupted", req.File), err, false, false)
	}
	return nil
}

// ResolveSchema loads the schema of req, applies key overrides, discovers
// missing keys from the table and validates the result. The table describe
// doubles as the reachability check, so every failure is a precondition error.
func (r *ImportRunner) ResolveSchema(ctx context.Context, req RunRequest) (*schema.Schema, error) {
	var s *schema.Schema
	switch {
	case req.Schema != nil:
		s = req.Schema
	case req.SchemaPath != "":
		loaded, err := schema.Load(req.SchemaPath)
		if err != nil {
			return nil, err
		}
		s = loaded
	default:
		s = schema.Legacy("", "")
	}
	s = s.OverrideKeys(req.HashKey, req.RangeKey)

	keys, err := ddb.DescribeKeys(ctx, r.api, req.Table)
	if err != nil {
		return nil, err
	}
	if s.HashKey == "" {
		logger.Infof("ImportRunner: using hash key %q from table %s.", keys.HashKey, req.Table)
	}
	if s.RangeKey == "" && keys.RangeKey != "" {
		logger.Infof("ImportRunner: using range key %q from table %s.", keys.RangeKey, req.Table)
	}
	s = s.WithKeys(keys.HashKey, keys.RangeKey)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *ImportRunner) newWriter(req RunRequest, s *schema.Schema) *writer.DynamoDBWriter {
	batchCfg := r.cfg.Importer.Batch
	batchSize := batchCfg.BatchSize
	if req.BatchSize > 0 {
		batchSize = req.BatchSize
	}
	workers := batchCfg.Workers
	if req.Workers > 0 {
		workers = req.Workers
	}
	return writer.NewDynamoDBWriter(r.api, req.Table,
		writer.WithBatchSize(batchSize),
		writer.WithWorkers(workers),
		writer.WithQueueSize(batchCfg.QueueSize),
		writer.WithRetryPolicy(retry.NewDefaultRetryPolicyFactory().Create(batchCfg.Retry, ddb.IsRetryable)),
		writer.WithKeys(s.HashKey, s.RangeKey),
		writer.WithWritesPerSecond(batchCfg.WritesPerSecond),
		writer.WithMetricRecorder(r.recorder),
		writer.WithTracer(r.tracer),
	)
}
