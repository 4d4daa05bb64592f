package metrics

import (
	"context"
)

// Tracer abstracts distributed tracing of runs, chunks and batch calls.
type Tracer interface {
	// StartRunSpan starts a span for one import of file into table.
	// The returned function ends the span.
	StartRunSpan(ctx context.Context, table, file string) (context.Context, func())

	// StartChunkSpan starts a span for one chunk of a chunked import.
	StartChunkSpan(ctx context.Context, table string, sequence int) (context.Context, func())

	// StartBatchSpan starts a span for one BatchWriteItem attempt.
	StartBatchSpan(ctx context.Context, table string, items, attempt int) (context.Context, func())

	// RecordError records err on the span in ctx.
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records a named event with attributes on the span in ctx.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
