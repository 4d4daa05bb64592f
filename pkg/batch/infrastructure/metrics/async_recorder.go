package metrics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"

	config "github.com/tigerroll/ddbimport/pkg/batch/core/config"
	"github.com/tigerroll/ddbimport/pkg/batch/core/metrics"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

// DefaultAsyncBufferSize is the event queue size used when none is configured.
const DefaultAsyncBufferSize = 1024

// MetricEvent is one recorder call queued for the worker goroutine.
type MetricEvent struct {
	Type     string
	Table    string
	Label    string // outcome, failure reason, retry kind or run status
	Count    int
	Duration time.Duration
}

// Metric event type constants
const (
	MetricEventTypeRunStart       = "run_start"
	MetricEventTypeRunEnd         = "run_end"
	MetricEventTypeBatchCall      = "batch_call"
	MetricEventTypeBatchLatency   = "batch_latency"
	MetricEventTypeItemsWritten   = "items_written"
	MetricEventTypeItemsFailed    = "items_failed"
	MetricEventTypeRowsRejected   = "rows_rejected"
	MetricEventTypeRetry          = "retry"
	MetricEventTypeChunkCompleted = "chunk_completed"
)

// AsyncMetricRecorder keeps writer workers off the metrics backend: calls are
// queued and replayed on a synchronous recorder by one goroutine. Events
// arriving while the queue is full are discarded.
type AsyncMetricRecorder struct {
	eventQueue   chan MetricEvent
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	syncRecorder metrics.MetricRecorder
}

// NewAsyncMetricRecorder creates a new asynchronous metric recorder.
// A bufferSize of 0 or less uses DefaultAsyncBufferSize.
func NewAsyncMetricRecorder(bufferSize int, syncRec metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = DefaultAsyncBufferSize
	}
	r := &AsyncMetricRecorder{
		eventQueue:   make(chan MetricEvent, bufferSize),
		stopCh:       make(chan struct{}),
		syncRecorder: syncRec,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncMetricRecorder: Worker goroutine started (buffer size: %d).", bufferSize)
	return r
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.eventQueue:
			r.processEvent(event)
		case <-r.stopCh:
			// Drain what was queued before the stop signal.
			remainingEvents := len(r.eventQueue)
			for i := 0; i < remainingEvents; i++ {
				r.processEvent(<-r.eventQueue)
			}
			logger.Debugf("AsyncMetricRecorder: Worker goroutine stopped. Processed %d remaining events.", remainingEvents)
			return
		}
	}
}

func (r *AsyncMetricRecorder) processEvent(event MetricEvent) {
	// The caller's context is gone by now; the recorder only needs a live one.
	ctx := context.Background()
	switch event.Type {
	case MetricEventTypeRunStart:
		r.syncRecorder.RecordRunStart(ctx, event.Table)
	case MetricEventTypeRunEnd:
		r.syncRecorder.RecordRunEnd(ctx, event.Table, event.Label, event.Duration)
	case MetricEventTypeBatchCall:
		r.syncRecorder.RecordBatchCall(ctx, event.Table, event.Label)
	case MetricEventTypeBatchLatency:
		r.syncRecorder.RecordBatchLatency(ctx, event.Table, event.Duration)
	case MetricEventTypeItemsWritten:
		r.syncRecorder.RecordItemsWritten(ctx, event.Table, event.Count)
	case MetricEventTypeItemsFailed:
		r.syncRecorder.RecordItemsFailed(ctx, event.Table, event.Label, event.Count)
	case MetricEventTypeRowsRejected:
		r.syncRecorder.RecordRowsRejected(ctx, event.Table, event.Count)
	case MetricEventTypeRetry:
		r.syncRecorder.RecordRetry(ctx, event.Table, event.Label)
	case MetricEventTypeChunkCompleted:
		r.syncRecorder.RecordChunkCompleted(ctx, event.Table)
	default:
		logger.Warnf("AsyncMetricRecorder: Unknown metric event type: %s", event.Type)
	}
}

// Close stops the worker after it has replayed every queued event. It is safe
// to call more than once; events sent afterwards are discarded.
func (r *AsyncMetricRecorder) Close() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()
		logger.Debugf("AsyncMetricRecorder: Shutdown complete.")
	})
}

func (r *AsyncMetricRecorder) sendEvent(event MetricEvent) {
	select {
	case <-r.stopCh:
		return
	default:
	}
	select {
	case r.eventQueue <- event:
	default:
		logger.Warnf("AsyncMetricRecorder: Event queue is full (type: %s, table: %s). Event discarded.", event.Type, event.Table)
	}
}

// RecordRunStart implements metrics.MetricRecorder.
func (r *AsyncMetricRecorder) RecordRunStart(ctx context.Context, table string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRunStart, Table: table})
}

// RecordRunEnd implements metrics.MetricRecorder.
func (r *AsyncMetricRecorder) RecordRunEnd(ctx context.Context, table, status string, duration time.Duration) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRunEnd, Table: table, Label: status, Duration: duration})
}

// RecordBatchCall implements metrics.MetricRecorder.
func (r *AsyncMetricRecorder) RecordBatchCall(ctx context.Context, table, outcome string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeBatchCall, Table: table, Label: outcome})
}

// RecordBatchLatency implements metrics.MetricRecorder.
func (r *AsyncMetricRecorder) RecordBatchLatency(ctx context.Context, table string, latency time.Duration) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeBatchLatency, Table: table, Duration: latency})
}

// RecordItemsWritten implements metrics.MetricRecorder.
func (r *AsyncMetricRecorder) RecordItemsWritten(ctx context.Context, table string, n int) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeItemsWritten, Table: table, Count: n})
}

// RecordItemsFailed implements metrics.MetricRecorder.
func (r *AsyncMetricRecorder) RecordItemsFailed(ctx context.Context, table, reason string, n int) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeItemsFailed, Table: table, Label: reason, Count: n})
}

// RecordRowsRejected implements metrics.MetricRecorder.
func (r *AsyncMetricRecorder) RecordRowsRejected(ctx context.Context, table string, n int) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRowsRejected, Table: table, Count: n})
}

// RecordRetry implements metrics.MetricRecorder.
func (r *AsyncMetricRecorder) RecordRetry(ctx context.Context, table, kind string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRetry, Table: table, Label: kind})
}

// RecordChunkCompleted implements metrics.MetricRecorder.
func (r *AsyncMetricRecorder) RecordChunkCompleted(ctx context.Context, table string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeChunkCompleted, Table: table})
}

var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)

// NewAsyncMetricRecorderProvider wraps the Prometheus recorder and drains the
// queue when the application stops.
func NewAsyncMetricRecorderProvider(lc fx.Lifecycle, cfg *config.Config, prom *PrometheusRecorder) metrics.MetricRecorder {
	asyncRecorder := NewAsyncMetricRecorder(cfg.Importer.Metrics.AsyncBufferSize, prom)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			asyncRecorder.Close()
			return nil
		},
	})
	return asyncRecorder
}
