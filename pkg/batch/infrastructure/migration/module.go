package migration

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"go.uber.org/fx"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

//go:embed resources
var rawFrameworkMigrationFS embed.FS

// FrameworkMigrationsFS returns the metadata store migrations, one directory per database type.
func FrameworkMigrationsFS() fs.FS {
	sub, err := fs.Sub(rawFrameworkMigrationFS, "resources")
	if err != nil {
		logger.Fatalf("Failed to create subdirectory for framework migration FS: %v", err)
	}
	return sub
}

// Target is one set of migrations applied to one named connection. FS holds one
// directory per database type ("sqlite", "postgres", "mysql").
type Target struct {
	Name           string
	ConnectionName string
	FS             fs.FS
	Table          string
	// Skip disables the target, e.g. when the job repository is in memory.
	Skip bool
}

// TargetGroup is the fx value group Targets join.
const TargetGroup = "migration_targets"

// NewFrameworkTarget returns the target creating the batch metadata tables.
func NewFrameworkTarget(cfg *config.Config) Target {
	return Target{
		Name:           "framework",
		ConnectionName: cfg.Surfin.Infrastructure.JobRepositoryDBRef,
		FS:             FrameworkMigrationsFS(),
		Table:          FrameworkMigrationsTable,
		Skip:           cfg.Surfin.Infrastructure.JobRepositoryType != config.JobRepositoryTypeSQL,
	}
}

// Run applies every target in order.
func Run(ctx context.Context, resolver database.DBConnectionResolver, targets []Target) error {
	for _, t := range targets {
		if t.Skip {
			logger.Debugf("Migration target '%s' skipped.", t.Name)
			continue
		}
		conn, err := resolver.ResolveDBConnection(ctx, t.ConnectionName)
		if err != nil {
			return fmt.Errorf("migration target '%s': %w", t.Name, err)
		}
		if err := NewMigrator(conn).Up(ctx, t.FS, conn.Type(), t.Table); err != nil {
			return fmt.Errorf("migration target '%s': %w", t.Name, err)
		}
	}
	return nil
}

// RunnerParams are the fx dependencies of the startup migration hook.
type RunnerParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Cfg       *config.Config
	Resolver  database.DBConnectionResolver
	Targets   []Target `group:"migration_targets"`
}

func registerMigrationHook(p RunnerParams) {
	if !p.Cfg.Surfin.Infrastructure.AutoMigrate {
		logger.Infof("Automatic migration is disabled.")
		return
	}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return Run(ctx, p.Resolver, p.Targets)
		},
	})
}

// Module registers the framework target and applies all targets on start.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewFrameworkTarget, fx.ResultTags(`group:"migration_targets"`))),
	fx.Invoke(registerMigrationHook),
)
