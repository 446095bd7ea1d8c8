package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dbconfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/config"
)

func TestConnectionString(t *testing.T) {
	dsn := ConnectionString(dbconfig.DatabaseConfig{Host: "db", Port: 3306, User: "batch", Password: "pw", Database: "customers"})
	assert.Contains(t, dsn, "batch:pw@tcp(db:3306)/customers?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "multiStatements=true")
}
