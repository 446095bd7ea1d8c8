// Package migration applies the embedded schema migrations of the batch metadata store and
// of application tables through golang-migrate.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// Tables golang-migrate records applied versions in.
const (
	FrameworkMigrationsTable = "batch_framework_migrations"
	AppMigrationsTable       = "batch_app_migrations"
)

// Migrator applies migrations from an fs.FS to one database connection.
type Migrator interface {
	// Up applies all pending migrations found under path.
	Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
	// Down rolls back all applied migrations found under path.
	Down(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
}

type migratorImpl struct {
	dbConn database.DBConnection
	dbType string
}

// NewMigrator creates a Migrator for dbConn.
func NewMigrator(dbConn database.DBConnection) Migrator {
	return &migratorImpl{dbConn: dbConn, dbType: dbConn.Type()}
}

func (m *migratorImpl) databaseDriver(sqlDB *sql.DB, tableName string) (migratedb.Driver, error) {
	switch m.dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: tableName})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: tableName})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: tableName})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.dbType)
	}
}

func (m *migratorImpl) instance(migrationFS fs.FS, path string, tableName string) (*migrate.Migrate, error) {
	sqlDB, err := m.dbConn.GetSQLDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	dbDriver, err := m.databaseDriver(sqlDB, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
}

func (m *migratorImpl) run(migrationFS fs.FS, path string, up bool, tableName string) error {
	command := "down"
	if up {
		command = "up"
	}
	logger.Infof("Executing migration '%s' on '%s' (Path: %s, Table: %s)", command, m.dbConn.Name(), path, tableName)

	mInstance, err := m.instance(migrationFS, path, tableName)
	if err != nil {
		return fmt.Errorf("failed to get migrate instance: %w", err)
	}
	// The database driver closes the connection pool with it. The resolver reopens
	// the connection on its next use.
	defer func() {
		if srcErr, dbErr := mInstance.Close(); srcErr != nil || dbErr != nil {
			logger.Debugf("Migration instance for '%s' closed with: source=%v, database=%v", m.dbConn.Name(), srcErr, dbErr)
		}
	}()

	if up {
		err = mInstance.Up()
	} else {
		err = mInstance.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration '%s' failed (DB: %s, Path: %s): %w", command, m.dbType, path, err)
	}

	version, dirty, verr := mInstance.Version()
	if verr == nil {
		logger.Infof("Migration '%s' on '%s' completed. Version: %d, Dirty: %t", command, m.dbConn.Name(), version, dirty)
	}
	return nil
}

func (m *migratorImpl) Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	return m.run(migrationFS, path, true, tableName)
}

func (m *migratorImpl) Down(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	return m.run(migrationFS, path, false, tableName)
}
