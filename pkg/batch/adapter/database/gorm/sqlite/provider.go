// Package sqlite provides the GORM DBProvider for SQLite.
package sqlite

import (
	"errors"
	"net/url"
	"strings"

	"go.uber.org/fx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/customer-batch/pkg/batch/core/config"
)

func init() {
	gormadapter.RegisterDialector("sqlite", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString returns the sqlite DSN: the database path plus Params as a query string.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	if len(c.Params) == 0 {
		return c.Database
	}
	q := url.Values{}
	for k, v := range c.Params {
		q.Set(k, v)
	}
	sep := "?"
	if strings.Contains(c.Database, "?") {
		sep = "&"
	}
	return c.Database + sep + q.Encode()
}

// SQLiteDBProvider implements database.DBProvider for SQLite.
type SQLiteDBProvider struct {
	*gormadapter.BaseProvider
}

// NewProvider creates the SQLite DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return &SQLiteDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, "sqlite")}
}

// Module joins the SQLite provider to the db_providers group.
var Module = fx.Provide(
	fx.Annotate(
		NewProvider,
		fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
	),
)
