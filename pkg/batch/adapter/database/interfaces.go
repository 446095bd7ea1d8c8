// Package database declares the database connection abstraction used by the job repository,
// the table reader and the upsert writer.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/config"
	coreAdapter "github.com/tigerroll/customer-batch/pkg/batch/core/adapter"
)

// DBExecutor defines read and write operations on a connection.
type DBExecutor interface {
	// ExecuteUpdate performs a write (CREATE, UPDATE, DELETE) in auto-commit mode.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteUpsert inserts model, updating updateColumns on a conflict of conflictColumns.
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)

	// ExecuteQuery executes a SELECT with AND-combined equality conditions.
	ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error

	// ExecuteQueryAdvanced executes a SELECT with optional ordering and limit.
	ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error

	// ExecuteKeysetQuery reads the next page of tableName ordered by keyColumn ascending,
	// starting strictly after afterKey. A nil afterKey reads the first page.
	ExecuteKeysetQuery(ctx context.Context, target interface{}, tableName string, keyColumn string, afterKey interface{}, limit int) error

	// Count counts the records matching query.
	Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error)

	// Pluck retrieves the values of one column.
	Pluck(ctx context.Context, model interface{}, column string, target interface{}, query map[string]interface{}) error
}

// DBConnection is a named database connection.
type DBConnection interface {
	coreAdapter.ResourceConnection
	DBExecutor

	// IsTableNotExistError reports whether err means the table does not exist.
	IsTableNotExistError(err error) bool
	// Config returns the configuration the connection was opened with.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver returns a live connection for a configured name, reconnecting if needed.
type DBConnectionResolver interface {
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// ForceReconnect closes and reopens the named connection.
	ForceReconnect(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider.
	Type() string
}

// DBProviderGroup is the fx value group all DBProvider implementations join.
const DBProviderGroup = "db_providers"
