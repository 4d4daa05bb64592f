package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	metrics "github.com/tigerroll/ddbimport/pkg/batch/core/metrics"
	logger "github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Run metrics
	runsStarted     *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	chunksCompleted *prometheus.CounterVec

	// Batch call metrics
	batchCalls   *prometheus.CounterVec
	batchLatency *prometheus.HistogramVec
	retries      *prometheus.CounterVec

	// Item metrics
	itemsWritten *prometheus.CounterVec
	itemsFailed  *prometheus.CounterVec
	rowsRejected *prometheus.CounterVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ddbimport_runs_started_total",
			Help: "Total number of import runs started.",
		}, []string{"table"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ddbimport_run_duration_seconds",
			Help:    "Duration of import runs by final status.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
		}, []string{"table", "status"}),
		chunksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ddbimport_chunks_completed_total",
			Help: "Total chunks recorded as processed in the ledger.",
		}, []string{"table"}),
		batchCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ddbimport_batch_write_calls_total",
			Help: "Total BatchWriteItem calls by outcome.",
		}, []string{"table", "outcome"}),
		batchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ddbimport_batch_write_latency_seconds",
			Help:    "Latency of BatchWriteItem calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"table"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ddbimport_batch_write_retries_total",
			Help: "Total scheduled retries by kind.",
		}, []string{"table", "kind"}), // kind: unprocessed, transport
		itemsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ddbimport_items_written_total",
			Help: "Total items acknowledged by the table.",
		}, []string{"table"}),
		itemsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ddbimport_items_failed_total",
			Help: "Total items abandoned after retries, by reason.",
		}, []string{"table", "reason"}),
		rowsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ddbimport_rows_rejected_total",
			Help: "Total input rows rejected by the schema mapper.",
		}, []string{"table"}),
	}

	registry.MustRegister(
		r.runsStarted,
		r.runDuration,
		r.chunksCompleted,
		r.batchCalls,
		r.batchLatency,
		r.retries,
		r.itemsWritten,
		r.itemsFailed,
		r.rowsRejected,
	)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Handler returns an http.Handler exposing the registry.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *PrometheusRecorder) RecordRunStart(ctx context.Context, table string) {
	r.runsStarted.WithLabelValues(table).Inc()
	logger.Debugf("Metrics: run on table '%s' started.", table)
}

func (r *PrometheusRecorder) RecordRunEnd(ctx context.Context, table, status string, duration time.Duration) {
	r.runDuration.WithLabelValues(table, status).Observe(duration.Seconds())
	logger.Debugf("Metrics: run on table '%s' ended with %s. Duration: %.3fs", table, status, duration.Seconds())
}

func (r *PrometheusRecorder) RecordBatchCall(ctx context.Context, table, outcome string) {
	r.batchCalls.WithLabelValues(table, outcome).Inc()
}

func (r *PrometheusRecorder) RecordBatchLatency(ctx context.Context, table string, latency time.Duration) {
	r.batchLatency.WithLabelValues(table).Observe(latency.Seconds())
}

func (r *PrometheusRecorder) RecordItemsWritten(ctx context.Context, table string, n int) {
	if n > 0 {
		r.itemsWritten.WithLabelValues(table).Add(float64(n))
	}
}

func (r *PrometheusRecorder) RecordItemsFailed(ctx context.Context, table, reason string, n int) {
	if n > 0 {
		r.itemsFailed.WithLabelValues(table, reason).Add(float64(n))
	}
}

func (r *PrometheusRecorder) RecordRowsRejected(ctx context.Context, table string, n int) {
	if n > 0 {
		r.rowsRejected.WithLabelValues(table).Add(float64(n))
	}
}

func (r *PrometheusRecorder) RecordRetry(ctx context.Context, table, kind string) {
	r.retries.WithLabelValues(table, kind).Inc()
}

func (r *PrometheusRecorder) RecordChunkCompleted(ctx context.Context, table string) {
	r.chunksCompleted.WithLabelValues(table).Inc()
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
