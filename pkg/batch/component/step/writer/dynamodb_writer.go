// Package writer provides the concurrent DynamoDB batch writer.
package writer

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	ddb "github.com/tigerroll/ddbimport/pkg/batch/adapter/dynamodb"
	"github.com/tigerroll/ddbimport/pkg/batch/component/schema"
	"github.com/tigerroll/ddbimport/pkg/batch/core/application/port"
	"github.com/tigerroll/ddbimport/pkg/batch/core/config"
	"github.com/tigerroll/ddbimport/pkg/batch/core/metrics"
	"github.com/tigerroll/ddbimport/pkg/batch/engine/step/retry"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

const (
	moduleName = "writer"

	DefaultWorkers   = 20
	DefaultQueueSize = 256

	reasonUnprocessed  = "unprocessed"
	reasonTransport    = "transport"
	reasonNonRetryable = "non_retryable"
	reasonCanceled     = "canceled"
)

// Result summarizes one Write call.
type Result struct {
	// Received is the number of records read from the input channel.
	Received int64
	// Written is the number of items acknowledged by DynamoDB.
	Written int64
	// Failed is the number of items abandoned after retries.
	Failed int64
	// Calls is the number of BatchWriteItem calls made, retries included.
	Calls int64
	// Retries is the number of retry calls among Calls.
	Retries int64
}

// DynamoDBWriter submits records to one table in batches of at most 25
// items using a fixed pool of workers.
type DynamoDBWriter struct {
	api       ddb.API                // api is the DynamoDB client used for BatchWriteItem.
	table     string                 // table is the target table name.
	hashKey   string                 // hashKey names the partition key attribute; empty disables key tracking.
	rangeKey  string                 // rangeKey names the sort key attribute, if the table has one.
	batchSize int                    // batchSize is the number of items per call, at most 25.
	workers   int                    // workers is the number of concurrent submitters.
	queueSize int                    // queueSize bounds the batches waiting for a worker.
	policy    retry.RetryPolicy      // policy decides retries and backoff for a batch.
	limiter   *rate.Limiter          // limiter caps item throughput; nil means unlimited.
	recorder  metrics.MetricRecorder // recorder receives call, item and retry metrics.
	tracer    metrics.Tracer         // tracer opens one span per call.
}

// Option configures a DynamoDBWriter.
type Option func(*DynamoDBWriter)

// WithBatchSize sets the number of items per call. It is bounded to [1, 25].
func WithBatchSize(n int) Option {
	return func(w *DynamoDBWriter) {
		w.batchSize = config.BatchConfig{BatchSize: n}.EffectiveBatchSize()
	}
}

// WithWorkers sets the number of concurrent submitters.
func WithWorkers(n int) Option {
	return func(w *DynamoDBWriter) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithQueueSize bounds the number of batches waiting for a worker.
func WithQueueSize(n int) Option {
	return func(w *DynamoDBWriter) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// WithRetryPolicy replaces the default backoff policy.
func WithRetryPolicy(p retry.RetryPolicy) Option {
	return func(w *DynamoDBWriter) {
		if p != nil {
			w.policy = p
		}
	}
}

// WithKeys names the key attributes. They identify failed items in logs, and a
// row repeating a key already in the open batch replaces the earlier row.
func WithKeys(hashKey, rangeKey string) Option {
	return func(w *DynamoDBWriter) {
		w.hashKey = hashKey
		w.rangeKey = rangeKey
	}
}

// WithWritesPerSecond limits item throughput. Zero or less disables the limit.
func WithWritesPerSecond(perSecond float64) Option {
	return func(w *DynamoDBWriter) {
		if perSecond <= 0 {
			w.limiter = nil
			return
		}
		w.limiter = rate.NewLimiter(rate.Limit(perSecond), max(config.MaxBatchWriteItems, int(math.Ceil(perSecond))))
	}
}

// WithMetricRecorder sets the metric recorder.
func WithMetricRecorder(r metrics.MetricRecorder) Option {
	return func(w *DynamoDBWriter) {
		if r != nil {
			w.recorder = r
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t metrics.Tracer) Option {
	return func(w *DynamoDBWriter) {
		if t != nil {
			w.tracer = t
		}
	}
}

// NewDynamoDBWriter creates a writer for table.
//
// Parameters:
//
//	api: The DynamoDB client.
//	table: The name of the target table.
//	opts: Options overriding the default batch size, workers, retry policy and observers.
//
// Returns:
//
//	A new [DynamoDBWriter] instance.
func NewDynamoDBWriter(api ddb.API, table string, opts ...Option) *DynamoDBWriter {
	w := &DynamoDBWriter{
		api:       api,
		table:     table,
		batchSize: config.MaxBatchWriteItems,
		workers:   DefaultWorkers,
		queueSize: DefaultQueueSize,
		policy:    retry.NewDefaultRetryPolicyFactory().Create(config.NewConfig().Importer.Batch.Retry, ddb.IsRetryable),
		recorder:  metrics.NewNoOpMetricRecorder(),
		tracer:    metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// batch is one unit of work on the queue.
type batch struct {
	records []schema.Record
	// superseded counts, by key, the earlier rows a record replaced. Those
	// rows share the outcome of the record that replaced them.
	superseded map[string]int64
}

// rows returns the number of input rows that records stand for.
func (w *DynamoDBWriter) rows(b batch, records []schema.Record) int64 {
	n := int64(len(records))
	if len(b.superseded) == 0 {
		return n
	}
	for _, rec := range records {
		n += b.superseded[rec.KeyString(w.hashKey, w.rangeKey)]
	}
	return n
}

type counters struct {
	received atomic.Int64
	written  atomic.Int64
	failed   atomic.Int64
	calls    atomic.Int64
	retries  atomic.Int64
}

func (c *counters) result() Result {
	return Result{
		Received: c.received.Load(),
		Written:  c.written.Load(),
		Failed:   c.failed.Load(),
		Calls:    c.calls.Load(),
		Retries:  c.retries.Load(),
	}
}

// Write consumes records until the channel is closed, batching them and
// submitting the batches concurrently. Item outcomes are reported to sink as
// they happen. Batches already being submitted when ctx ends are finished;
// queued ones are dropped uncounted.
//
// Parameters:
//
//	ctx: The context for the operation. Cancelling it stops feeding and waiting.
//	records: The mapped items, closed by the producer at the end of input.
//	sink: Receives per-row success and failure counts.
//
// Returns:
//
//	The [Result] counters, and a non-nil error only if ctx ended first.
func (w *DynamoDBWriter) Write(ctx context.Context, records <-chan schema.Record, sink port.ProgressSink) (Result, error) {
	var c counters
	queue := make(chan batch, w.queueSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		return w.feed(gctx, records, queue, &c)
	})
	for i := 0; i < w.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case b, ok := <-queue:
					if !ok {
						return nil
					}
					if err := w.submit(gctx, b, sink, &c); err != nil {
						return err
					}
				}
			}
		})
	}

	err := g.Wait()
	res := c.result()
	logger.Infof("Writer: table %s finished (received=%d, written=%d, failed=%d, calls=%d, retries=%d).",
		w.table, res.Received, res.Written, res.Failed, res.Calls, res.Retries)
	if err != nil {
		return res, exception.NewBatchError(moduleName, fmt.Sprintf("write to %s interrupted", w.table), err, false, false)
	}
	return res, nil
}

// feed groups records into batches of batchSize and enqueues them. DynamoDB
// rejects a batch that names one key twice, so a record whose key is already
// buffered replaces the buffered one; the last row for a key wins.
func (w *DynamoDBWriter) feed(ctx context.Context, records <-chan schema.Record, queue chan<- batch, c *counters) error {
	buf := make([]schema.Record, 0, w.batchSize)
	var index map[string]int
	var superseded map[string]int64
	enqueue := func() error {
		if len(buf) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case queue <- batch{records: buf, superseded: superseded}:
		}
		buf = make([]schema.Record, 0, w.batchSize)
		index, superseded = nil, nil
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-records:
			if !ok {
				return enqueue()
			}
			c.received.Add(1)
			if w.hashKey != "" {
				key := rec.KeyString(w.hashKey, w.rangeKey)
				if i, dup := index[key]; dup {
					buf[i] = rec
					if superseded == nil {
						superseded = make(map[string]int64)
					}
					superseded[key]++
					logger.Debugf("Writer: item %s repeats within one batch on table %s; the later row replaces the earlier one.", key, w.table)
					continue
				}
				if index == nil {
					index = make(map[string]int, w.batchSize)
				}
				index[key] = len(buf)
			}
			buf = append(buf, rec)
			if len(buf) == w.batchSize {
				if err := enqueue(); err != nil {
					return err
				}
			}
		}
	}
}

// submit writes one batch, re-submitting unprocessed items and transient
// failures until the policy's attempts are used up. The call itself is not
// cancelled by ctx; only the waits between attempts are.
func (w *DynamoDBWriter) submit(ctx context.Context, b batch, sink port.ProgressSink, c *counters) error {
	pending := b.records
	callCtx := context.WithoutCancel(ctx)
	maxAttempts := w.policy.GetMaxAttempts()

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			c.retries.Add(1)
		}
		if w.limiter != nil {
			if err := w.limiter.WaitN(ctx, len(pending)); err != nil {
				w.abandon(ctx, b, pending, reasonCanceled, attempt-1, sink, c)
				return err
			}
		}

		unprocessed, err := w.call(callCtx, pending, attempt, c)
		if err == nil {
			done := w.rows(b, pending) - w.rows(b, unprocessed)
			if done > 0 {
				c.written.Add(done)
				sink.RecordSuccess(done)
				w.recorder.RecordItemsWritten(ctx, w.table, int(done))
			}
			if len(unprocessed) == 0 {
				return nil
			}
			pending = unprocessed
			if attempt >= maxAttempts {
				w.abandon(ctx, b, pending, reasonUnprocessed, attempt, sink, c)
				return nil
			}
			logger.Debugf("Writer: %d unprocessed items on table %s, retrying (attempt %d of %d).", len(pending), w.table, attempt+1, maxAttempts)
			w.recorder.RecordRetry(ctx, w.table, metrics.RetryKindUnprocessed)
		} else {
			if !w.policy.ShouldRetry(err) {
				logger.Errorf("Writer: batch of %d items on table %s failed permanently: %v", len(pending), w.table, err)
				w.abandon(ctx, b, pending, reasonNonRetryable, attempt, sink, c)
				return nil
			}
			if attempt >= maxAttempts {
				logger.Errorf("Writer: batch of %d items on table %s failed after %d attempts: %v", len(pending), w.table, attempt, err)
				w.abandon(ctx, b, pending, reasonTransport, attempt, sink, c)
				return nil
			}
			logger.Warnf("Writer: batch call on table %s failed (attempt %d of %d): %v", w.table, attempt, maxAttempts, err)
			w.recorder.RecordRetry(ctx, w.table, metrics.RetryKindTransport)
		}

		if err := retry.Wait(ctx, w.policy.GetBackoffInterval(attempt)); err != nil {
			w.abandon(ctx, b, pending, reasonCanceled, attempt, sink, c)
			return err
		}
	}
}

// call performs one BatchWriteItem and returns the items DynamoDB left unprocessed.
func (w *DynamoDBWriter) call(ctx context.Context, records []schema.Record, attempt int, c *counters) ([]schema.Record, error) {
	spanCtx, end := w.tracer.StartBatchSpan(ctx, w.table, len(records), attempt)
	defer end()

	requests := make([]types.WriteRequest, len(records))
	for i, rec := range records {
		requests[i] = types.WriteRequest{PutRequest: &types.PutRequest{Item: rec}}
	}

	c.calls.Add(1)
	start := time.Now()
	out, err := w.api.BatchWriteItem(spanCtx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{w.table: requests},
	})
	w.recorder.RecordBatchLatency(ctx, w.table, time.Since(start))
	if err != nil {
		w.recorder.RecordBatchCall(ctx, w.table, metrics.OutcomeError)
		w.tracer.RecordError(spanCtx, moduleName, err)
		return nil, err
	}

	var unprocessed []schema.Record
	if out != nil {
		for _, req := range out.UnprocessedItems[w.table] {
			if req.PutRequest != nil {
				unprocessed = append(unprocessed, schema.Record(req.PutRequest.Item))
			}
		}
	}
	if len(unprocessed) > 0 {
		w.recorder.RecordBatchCall(ctx, w.table, metrics.OutcomePartial)
		w.tracer.RecordEvent(spanCtx, "unprocessed_items", map[string]interface{}{"count": len(unprocessed)})
	} else {
		w.recorder.RecordBatchCall(ctx, w.table, metrics.OutcomeSuccess)
	}
	return unprocessed, nil
}

// abandon counts the rows behind records as failed and logs their keys.
func (w *DynamoDBWriter) abandon(ctx context.Context, b batch, records []schema.Record, reason string, attempts int, sink port.ProgressSink, c *counters) {
	if len(records) == 0 {
		return
	}
	if w.hashKey == "" {
		logger.Errorf("Writer: %d items not written to %s after %d attempts (%s); no key attributes configured to identify them.", len(records), w.table, attempts, reason)
	} else {
		for _, rec := range records {
			logger.Errorf("Writer: item %s not written to %s after %d attempts (%s).", rec.KeyString(w.hashKey, w.rangeKey), w.table, attempts, reason)
		}
	}
	n := w.rows(b, records)
	c.failed.Add(n)
	sink.RecordFailure(n)
	w.recorder.RecordItemsFailed(ctx, w.table, reason, int(n))
}
