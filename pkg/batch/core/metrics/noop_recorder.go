package metrics

import (
	"context"
	"time"
)

// NoOpMetricRecorder is a MetricRecorder that does nothing.
// It is used when metrics are disabled and in tests.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordRunStart(ctx context.Context, table string) {}
func (r *NoOpMetricRecorder) RecordRunEnd(ctx context.Context, table, status string, duration time.Duration) {}
func (r *NoOpMetricRecorder) RecordBatchCall(ctx context.Context, table, outcome string) {}
func (r *NoOpMetricRecorder) RecordBatchLatency(ctx context.Context, table string, latency time.Duration) {}
func (r *NoOpMetricRecorder) RecordItemsWritten(ctx context.Context, table string, n int) {}
func (r *NoOpMetricRecorder) RecordItemsFailed(ctx context.Context, table, reason string, n int) {}
func (r *NoOpMetricRecorder) RecordRowsRejected(ctx context.Context, table string, n int) {}
func (r *NoOpMetricRecorder) RecordRetry(ctx context.Context, table, kind string) {}
func (r *NoOpMetricRecorder) RecordChunkCompleted(ctx context.Context, table string) {}

// NoOpTracer is a Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartRunSpan(ctx context.Context, table, file string) (context.Context, func()) {
	return ctx, func() {}
}
func (t *NoOpTracer) StartChunkSpan(ctx context.Context, table string, sequence int) (context.Context, func()) {
	return ctx, func() {}
}
func (t *NoOpTracer) StartBatchSpan(ctx context.Context, table string, items, attempt int) (context.Context, func()) {
	return ctx, func() {}
}
func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}
func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {}

var (
	_ MetricRecorder = (*NoOpMetricRecorder)(nil)
	_ Tracer         = (*NoOpTracer)(nil)
)
