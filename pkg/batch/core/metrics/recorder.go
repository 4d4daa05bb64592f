package metrics

import (
	"context"
	"time"
)

// Batch call outcomes passed to RecordBatchCall.
const (
	OutcomeSuccess       = "success"
	OutcomePartial       = "partial"
	OutcomeError         = "error"
	RetryKindUnprocessed = "unprocessed"
	RetryKindTransport   = "transport"
)

// MetricRecorder records import metrics independently of the backend.
type MetricRecorder interface {
	// RecordRunStart records the start of one Run Coordinator invocation.
	RecordRunStart(ctx context.Context, table string)
	// RecordRunEnd records the end of a run with its final status.
	RecordRunEnd(ctx context.Context, table, status string, duration time.Duration)
	// RecordBatchCall records one BatchWriteItem call and its outcome.
	RecordBatchCall(ctx context.Context, table, outcome string)
	// RecordBatchLatency records the latency of one BatchWriteItem call.
	RecordBatchLatency(ctx context.Context, table string, latency time.Duration)
	// RecordItemsWritten records acknowledged items.
	RecordItemsWritten(ctx context.Context, table string, n int)
	// RecordItemsFailed records items abandoned after retries.
	RecordItemsFailed(ctx context.Context, table, reason string, n int)
	// RecordRowsRejected records rows rejected by the schema mapper.
	RecordRowsRejected(ctx context.Context, table string, n int)
	// RecordRetry records a scheduled retry of the given kind.
	RecordRetry(ctx context.Context, table, kind string)
	// RecordChunkCompleted records a chunk added to the ledger.
	RecordChunkCompleted(ctx context.Context, table string)
}
