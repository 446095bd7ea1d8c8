package usecase

import (
	"context"

	"go.uber.org/fx"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
)

// JobRegistryParams collects the jobs contributed to the "jobs" value group.
type JobRegistryParams struct {
	fx.In
	Jobs []port.Job `group:"jobs"`
}

// Module is the Fx module for the JobRegistry, JobLauncher, JobOperator and JobExplorer.
var Module = fx.Options(
	fx.Provide(func(p JobRegistryParams) (*JobRegistry, error) {
		return NewJobRegistry(p.Jobs)
	}),
	fx.Provide(fx.Annotate(
		NewSimpleJobExplorer,
		fx.As(new(JobExplorer)),
	)),
	fx.Provide(NewSimpleJobLauncher),
	fx.Provide(func(launcher *SimpleJobLauncher) JobLauncher { return launcher }),
	fx.Provide(fx.Annotate(
		NewSimpleJobOperator,
		fx.As(new(JobOperator)),
	)),
	// Runs still in flight at shutdown are stopped and can be restarted later.
	fx.Invoke(func(lc fx.Lifecycle, launcher *SimpleJobLauncher) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				launcher.StopAll()
				return nil
			},
		})
	}),
)
