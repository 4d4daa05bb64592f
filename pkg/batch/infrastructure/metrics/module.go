package metrics

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/tigerroll/ddbimport/pkg/batch/core/config"
	metrics "github.com/tigerroll/ddbimport/pkg/batch/core/metrics"
)

// MetricsHandlerName tags the http.Handler serving the Prometheus registry.
const MetricsHandlerName = `name:"metricsHandler"`

func newTracerProvider(lc fx.Lifecycle, cfg *config.Config) (trace.TracerProvider, error) {
	tp, shutdown, err := NewTracerProvider(context.Background(), cfg.Importer.Tracing)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: shutdown})
	return tp, nil
}

// RecorderModule provides PrometheusRecorder, its exposition handler and the
// core MetricRecorder that queues onto it.
var RecorderModule = fx.Options(
	fx.Provide(NewPrometheusRecorder),
	// Writers record through the asynchronous wrapper.
	fx.Provide(NewAsyncMetricRecorderProvider),
	fx.Provide(fx.Annotate(
		func(r *PrometheusRecorder) http.Handler { return r.Handler() },
		fx.ResultTags(MetricsHandlerName),
	)),
)

// TracerModule provides the OpenTelemetry TracerProvider and the core Tracer.
var TracerModule = fx.Options(
	fx.Provide(newTracerProvider),
	// Provide OpenTelemetryTracer as a core.Tracer interface.
	fx.Provide(fx.Annotate(
		NewOpenTelemetryTracer,
		fx.As(new(metrics.Tracer)),
	)),
)

// Module is an Fx module that provides PrometheusRecorder and OpenTelemetryTracer.
var Module = fx.Options(
	RecorderModule,
	TracerModule,
)
