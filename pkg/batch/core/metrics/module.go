package metrics

import (
	"go.uber.org/fx"
)

// NoOpRecorderModule provides the no-op MetricRecorder.
var NoOpRecorderModule = fx.Options(
	fx.Provide(NewNoOpMetricRecorder),
)

// NoOpTracerModule provides the no-op Tracer.
var NoOpTracerModule = fx.Options(
	fx.Provide(NewNoOpTracer),
)

// NoOpModule provides the no-op MetricRecorder and Tracer. Applications use it
// when metrics and tracing are disabled.
var NoOpModule = fx.Options(
	NoOpRecorderModule,
	NoOpTracerModule,
)
