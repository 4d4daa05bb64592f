// Package database defines the database adapter abstractions used by the SQL
// progress store.
package database

import (
	"context"

	dbconfig "github.com/tigerroll/ddbimport/pkg/batch/adapter/database/config"
	coreAdapter "github.com/tigerroll/ddbimport/pkg/batch/core/adapter"
)

// DBExecutor defines the read and write operations a repository needs.
type DBExecutor interface {
	// ExecuteUpsert inserts model, or updates updateColumns of the row that
	// conflicts on conflictColumns.
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)

	// ExecuteQuery loads the rows matching query into target.
	ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error

	// ExecuteQueryAdvanced executes a read operation with optional sorting and limiting.
	ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error
}

// DBConnection represents an abstraction of a database connection.
// It embeds coreAdapter.ResourceConnection for generic connection management
// and DBExecutor for database-specific operations.
type DBConnection interface {
	coreAdapter.ResourceConnection // Embeds Type(), Name(), Close()
	DBExecutor

	// AutoMigrate creates or updates the tables of the given models.
	AutoMigrate(ctx context.Context, models ...interface{}) error
	// RefreshConnection verifies the connection is usable.
	RefreshConnection(ctx context.Context) error
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
}

// DBProvider is responsible for providing database connections based on configuration.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider (e.g., "sqlite").
	Type() string
}
