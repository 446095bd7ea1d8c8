// Package app wires the customer batch application: the framework modules, the two
// customer jobs and the HTTP and schedule triggers.
package app

import (
	"go.uber.org/fx"

	gormadapter "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage/s3"
	usecase "github.com/tigerroll/customer-batch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	"github.com/tigerroll/customer-batch/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/customer-batch/pkg/batch/infrastructure/migration"
	"github.com/tigerroll/customer-batch/pkg/batch/infrastructure/repository"
	"github.com/tigerroll/customer-batch/pkg/batch/listener"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"

	"github.com/tigerroll/customer-batch/internal/trigger/schedule"
	"github.com/tigerroll/customer-batch/internal/trigger/web"
)

// JobsModule registers the customer jobs and the customer table migration.
var JobsModule = fx.Options(
	fx.Provide(
		fx.Annotate(NewImportCustomerJob, fx.ResultTags(`group:"jobs"`)),
		fx.Annotate(NewExportCustomerJob, fx.ResultTags(`group:"jobs"`)),
		fx.Annotate(NewCustomerMigrationTarget, fx.ResultTags(`group:"migration_targets"`)),
	),
)

// Module is the whole application. Lifecycle hooks start in this order and stop in reverse:
// migrations run before the triggers accept launches, and in-flight runs are stopped before
// the HTTP server waits for its open requests.
var Module = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,

	gormadapter.Module,
	sqlite.Module,
	postgres.Module,
	mysql.Module,

	storage.Module,
	local.Module,
	gcs.Module,
	s3.Module,

	repository.Module,
	migration.Module,
	listener.Module,

	JobsModule,

	web.Module,
	schedule.Module,
	usecase.Module,
)
