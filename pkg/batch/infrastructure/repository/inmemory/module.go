package inmemory

import (
	"go.uber.org/fx"

	"github.com/tigerroll/ddbimport/pkg/batch/core/domain/repository"
)

// Module is an Fx module that provides InMemoryProgressRepository as a repository.ProgressRepository interface.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewInMemoryProgressRepository,
			fx.As(new(repository.ProgressRepository)),
		),
	),
)
