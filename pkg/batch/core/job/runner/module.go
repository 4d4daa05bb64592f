package runner

import (
	"go.uber.org/fx"

	ddb "github.com/tigerroll/ddbimport/pkg/batch/adapter/dynamodb"
	"github.com/tigerroll/ddbimport/pkg/batch/core/config"
	"github.com/tigerroll/ddbimport/pkg/batch/core/domain/repository"
	"github.com/tigerroll/ddbimport/pkg/batch/core/metrics"
)

// ImportRunnerParams defines dependencies for ImportRunner.
type ImportRunnerParams struct {
	fx.In
	API      ddb.API
	Repo     repository.ProgressRepository
	Config   *config.Config
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
}

// NewImportRunnerProvider builds the ImportRunner from the container.
func NewImportRunnerProvider(p ImportRunnerParams) *ImportRunner {
	return NewImportRunner(p.API, p.Repo, p.Config, WithMetricRecorder(p.Recorder), WithTracer(p.Tracer))
}

// Module provides the ImportRunner.
var Module = fx.Options(
	fx.Provide(NewImportRunnerProvider),
)
