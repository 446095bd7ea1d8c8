package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/customer-batch/pkg/batch/core/config"
)

type item struct {
	ID   string `gorm:"column:id;primaryKey"`
	Name string `gorm:"column:name"`
}

func (item) TableName() string { return "item" }

func TestConnectionString(t *testing.T) {
	assert.Equal(t, "batch.db", ConnectionString(dbconfig.DatabaseConfig{Database: "batch.db"}))
	assert.Equal(t, "batch.db?_busy_timeout=5000",
		ConnectionString(dbconfig.DatabaseConfig{Database: "batch.db", Params: map[string]string{"_busy_timeout": "5000"}}))
	assert.Equal(t, "file:x?mode=memory&cache=shared",
		ConnectionString(dbconfig.DatabaseConfig{Database: "file:x?mode=memory", Params: map[string]string{"cache": "shared"}}))
}

func TestProvider_OpensConfiguredConnection(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Surfin.AdapterConfigs["workload"] = map[string]interface{}{
		"type":     "sqlite",
		"database": filepath.Join(t.TempDir(), "workload.db"),
		"pool":     map[string]interface{}{"max_open_conns": "4"},
	}
	cfg.Surfin.AdapterConfigs["other"] = map[string]interface{}{"type": "postgres"}

	provider := NewProvider(cfg)
	t.Cleanup(func() { provider.CloseAll() })

	conn, err := provider.GetConnection("workload")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", conn.Type())
	assert.Equal(t, 4, conn.Config().Pool.MaxOpenConns)

	same, err := provider.GetConnection("workload")
	require.NoError(t, err)
	assert.Same(t, conn, same)

	_, err = provider.GetConnection("other")
	assert.ErrorContains(t, err, "provider type mismatch")
	_, err = provider.GetConnection("missing")
	assert.ErrorContains(t, err, "not found")
}

func TestGormDBAdapter_UpsertAndKeysetAgainstSQLite(t *testing.T) {
	db, err := gormadapter.Open(dbconfig.DatabaseConfig{Type: "sqlite", Database: filepath.Join(t.TempDir(), "items.db")}, "SILENT")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&item{}))
	conn := gormadapter.NewGormDBAdapter(db, dbconfig.DatabaseConfig{Type: "sqlite"}, "workload")
	t.Cleanup(func() { conn.Close() })

	ctx := context.Background()
	_, err = conn.ExecuteUpsert(ctx, []item{{"003", "c"}, {"001", "a"}, {"002", "b"}}, "", []string{"id"}, []string{"name"})
	require.NoError(t, err)
	_, err = conn.ExecuteUpsert(ctx, []item{{"002", "B"}}, "", []string{"id"}, []string{"name"})
	require.NoError(t, err)

	var first []item
	require.NoError(t, conn.ExecuteKeysetQuery(ctx, &first, "item", "id", nil, 2))
	assert.Equal(t, []item{{"001", "a"}, {"002", "B"}}, first)

	var second []item
	require.NoError(t, conn.ExecuteKeysetQuery(ctx, &second, "item", "id", first[len(first)-1].ID, 2))
	assert.Equal(t, []item{{"003", "c"}}, second)

	count, err := conn.Count(ctx, &item{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	_, err = conn.ExecuteUpdate(ctx, map[string]interface{}{"name": "z"}, "UPDATE", "item", map[string]interface{}{"id": "003"})
	require.NoError(t, err)
	var updated []item
	require.NoError(t, conn.ExecuteQuery(ctx, &updated, map[string]interface{}{"id": "003"}))
	require.Len(t, updated, 1)
	assert.Equal(t, "z", updated[0].Name)
}
