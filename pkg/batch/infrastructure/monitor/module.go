package monitor

import (
	"net/http"

	"go.uber.org/fx"

	"github.com/tigerroll/ddbimport/pkg/batch/core/config"
	"github.com/tigerroll/ddbimport/pkg/batch/core/domain/repository"
)

// ServerParams defines dependencies for Server.
type ServerParams struct {
	fx.In
	Repo    repository.ProgressRepository
	Config  *config.Config
	Metrics http.Handler `name:"metricsHandler" optional:"true"`
}

// NewServerProvider builds the monitor Server, serving /metrics when a
// metrics handler is present in the container.
func NewServerProvider(p ServerParams) *Server {
	var opts []Option
	if p.Metrics != nil {
		opts = append(opts, WithMetricsHandler(p.Metrics))
	}
	return NewServer(p.Repo, p.Config.Importer.Monitor, opts...)
}

// Module provides the monitor Server.
var Module = fx.Options(
	fx.Provide(NewServerProvider),
)
