// Package sql stores job progress snapshots in a relational database through
// the database adapter.
package sql

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/ddbimport/pkg/batch/adapter/database"
	"github.com/tigerroll/ddbimport/pkg/batch/core/config"
	model "github.com/tigerroll/ddbimport/pkg/batch/core/domain/model"
	"github.com/tigerroll/ddbimport/pkg/batch/core/domain/repository"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
)

const moduleName = "SQLProgressRepository"

// SQLProgressRepository implements repository.ProgressRepository.
type SQLProgressRepository struct {
	conn database.DBConnection
}

// NewSQLProgressRepository creates the repository and makes sure its table exists.
func NewSQLProgressRepository(ctx context.Context, conn database.DBConnection) (*SQLProgressRepository, error) {
	if err := conn.AutoMigrate(ctx, &JobProgressEntity{}); err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to migrate progress table on '%s'", conn.Name()), err, false, true)
	}
	return &SQLProgressRepository{conn: conn}, nil
}

// Save upserts the snapshot keyed by job id.
func (r *SQLProgressRepository) Save(ctx context.Context, progress *model.JobProgress) error {
	entity := fromDomainJobProgress(progress)
	if _, err := r.conn.ExecuteUpsert(ctx, entity, entity.TableName(), []string{"job_id"}, updateColumns); err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to save progress of %s", progress.JobID), err, true, false)
	}
	return nil
}

// Find returns the snapshot for jobID, or repository.ErrJobNotFound.
func (r *SQLProgressRepository) Find(ctx context.Context, jobID string) (*model.JobProgress, error) {
	var entities []JobProgressEntity
	if err := r.conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_id": jobID}, "", 1); err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to find progress of %s", jobID), err, true, false)
	}
	if len(entities) == 0 {
		return nil, repository.ErrJobNotFound
	}
	return toDomainJobProgress(&entities[0]), nil
}

// FindAll returns every snapshot, newest first.
func (r *SQLProgressRepository) FindAll(ctx context.Context) ([]*model.JobProgress, error) {
	var entities []JobProgressEntity
	if err := r.conn.ExecuteQueryAdvanced(ctx, &entities, nil, "start_time DESC, job_id ASC", 0); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to list progress", err, true, false)
	}
	jobs := make([]*model.JobProgress, 0, len(entities))
	for i := range entities {
		jobs = append(jobs, toDomainJobProgress(&entities[i]))
	}
	return jobs, nil
}

// Close closes the underlying connection.
func (r *SQLProgressRepository) Close() error {
	return r.conn.Close()
}

var _ repository.ProgressRepository = (*SQLProgressRepository)(nil)

// NewSQLProgressRepositoryProvider resolves the connection named by
// importer.progress.database_ref and builds the repository.
func NewSQLProgressRepositoryProvider(lc fx.Lifecycle, cfg *config.Config, provider database.DBProvider) (repository.ProgressRepository, error) {
	conn, err := provider.GetConnection(cfg.Importer.Progress.DatabaseRef)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to open progress database", err, false, true)
	}
	repo, err := NewSQLProgressRepository(context.Background(), conn)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
		return provider.CloseAll()
	}})
	return repo, nil
}

// Module provides the SQL progress repository. A DBProvider must be supplied
// alongside it.
var Module = fx.Options(
	fx.Provide(NewSQLProgressRepositoryProvider),
)
