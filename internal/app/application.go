package app

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// RunApplication starts the application and blocks until appCtx is cancelled.
// Runs still in progress are cancelled on stop and end STOPPED.
func RunApplication(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig, opts ...fx.Option) error {
	app := fx.New(
		fx.Supply(
			embeddedConfig,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
		),
		Module,
		fx.Options(opts...),
		fx.Invoke(func(lc fx.Lifecycle) {
			lc.Append(fx.StopHook(func() {
				logger.Infof("Application is shutting down.")
			}))
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	logger.Infof("Application started.")

	select {
	case <-appCtx.Done():
	case sig := <-app.Wait():
		logger.Infof("Received %s.", sig.Signal)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	return app.Stop(stopCtx)
}
