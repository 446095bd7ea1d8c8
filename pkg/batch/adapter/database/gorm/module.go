package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
)

// Module provides the resolver and the transaction manager factory. Concrete providers
// come from the driver sub-packages.
var Module = fx.Options(
	fx.Provide(
		NewGormDBConnectionResolver,
		func(r *GormDBConnectionResolver) database.DBConnectionResolver { return r },
		NewGormTransactionManagerFactory,
	),
	fx.Invoke(func(lc fx.Lifecycle, r *GormDBConnectionResolver) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return r.CloseAll()
			},
		})
	}),
)
