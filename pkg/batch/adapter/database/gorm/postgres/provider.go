// Package postgres provides the GORM DBProvider for PostgreSQL.
package postgres

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/fx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/customer-batch/pkg/batch/core/config"
)

func init() {
	gormadapter.RegisterDialector("postgres", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return postgres.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString returns the key/value DSN expected by gorm.io/driver/postgres.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	sslmode := c.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}
	parts := []string{
		fmt.Sprintf("host=%s", c.Host),
		fmt.Sprintf("port=%d", c.Port),
		fmt.Sprintf("user=%s", c.User),
		fmt.Sprintf("password=%s", c.Password),
		fmt.Sprintf("dbname=%s", c.Database),
		fmt.Sprintf("sslmode=%s", sslmode),
	}
	if c.Schema != "" {
		parts = append(parts, fmt.Sprintf("search_path=%s", c.Schema))
	}
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, c.Params[k]))
	}
	return strings.Join(parts, " ")
}

// PostgresDBProvider implements database.DBProvider for PostgreSQL.
type PostgresDBProvider struct {
	*gormadapter.BaseProvider
}

// NewProvider creates the PostgreSQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return &PostgresDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, "postgres")}
}

// Module joins the PostgreSQL provider to the db_providers group.
var Module = fx.Provide(
	fx.Annotate(
		NewProvider,
		fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
	),
)
