// Package mysql provides the GORM DBProvider for MySQL.
package mysql

import (
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"
	"go.uber.org/fx"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/customer-batch/pkg/batch/core/config"
)

func init() {
	gormadapter.RegisterDialector("mysql", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString builds the DSN with the driver's own formatter. parseTime is always on
// because the metadata tables hold DATETIME columns.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	mc := gomysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.DBName = c.Database
	mc.ParseTime = true
	mc.MultiStatements = true
	if len(c.Params) > 0 {
		mc.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN()
}

// MySQLDBProvider implements database.DBProvider for MySQL.
type MySQLDBProvider struct {
	*gormadapter.BaseProvider
}

// NewProvider creates the MySQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return &MySQLDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, "mysql")}
}

// Module joins the MySQL provider to the db_providers group.
var Module = fx.Provide(
	fx.Annotate(
		NewProvider,
		fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
	),
)
