package customer

import (
	"embed"
	"io/fs"

	"github.com/tigerroll/customer-batch/pkg/batch/infrastructure/migration"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

//go:embed resources
var rawMigrationFS embed.FS

// MigrationsFS returns the customer table migrations, one directory per database type.
func MigrationsFS() fs.FS {
	sub, err := fs.Sub(rawMigrationFS, "resources")
	if err != nil {
		logger.Fatalf("Failed to create subdirectory for customer migration FS: %v", err)
	}
	return sub
}

// NewMigrationTarget returns the target creating the customer table on connection dbRef.
func NewMigrationTarget(dbRef string) migration.Target {
	return migration.Target{
		Name:           "customer",
		ConnectionName: dbRef,
		FS:             MigrationsFS(),
		Table:          migration.AppMigrationsTable,
	}
}
