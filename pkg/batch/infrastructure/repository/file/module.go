package file

import (
	"go.uber.org/fx"

	"github.com/tigerroll/ddbimport/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/ddbimport/pkg/batch/core/config"
	"github.com/tigerroll/ddbimport/pkg/batch/core/domain/repository"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
)

// NewProgressRepositoryProvider opens the snapshot directory named by
// importer.progress.dir.
func NewProgressRepositoryProvider(cfg *config.Config) (repository.ProgressRepository, error) {
	store, err := local.NewDir(cfg.Importer.Progress.Dir, "progress")
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to open progress directory", err, false, true)
	}
	return NewProgressRepository(store), nil
}

// Module provides the file-backed ProgressRepository.
var Module = fx.Options(
	fx.Provide(NewProgressRepositoryProvider),
)
