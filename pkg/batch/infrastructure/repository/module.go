// Package repository selects the JobRepository implementation from configuration.
package repository

import (
	"fmt"

	"go.uber.org/fx"

	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	domain "github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/customer-batch/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/customer-batch/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// NewJobRepository returns the JobRepository named by Infrastructure.JobRepositoryType.
func NewJobRepository(p sqlrepo.JobRepositoryParams) (domain.JobRepository, error) {
	switch p.Cfg.Surfin.Infrastructure.JobRepositoryType {
	case config.JobRepositoryTypeSQL, "":
		return sqlrepo.NewJobRepository(p), nil
	case config.JobRepositoryTypeInMemory:
		logger.Warnf("Using the in-memory job repository. Execution history and job locks do not survive a restart.")
		return inmemory.NewInMemoryJobRepository(), nil
	default:
		return nil, fmt.Errorf("unknown job repository type: %s", p.Cfg.Surfin.Infrastructure.JobRepositoryType)
	}
}

// Module provides the configured JobRepository and closes it on stop.
var Module = fx.Options(
	fx.Provide(NewJobRepository),
	fx.Invoke(func(lc fx.Lifecycle, repo domain.JobRepository) {
		lc.Append(fx.StopHook(repo.Close))
	}),
)
