package reader_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/customer-batch/pkg/batch/component/step/reader"
	"github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
)

type row struct {
	ID   string `gorm:"column:id;primaryKey"`
	Name string `gorm:"column:name"`
}

func (row) TableName() string { return "people" }

func (r row) Key() string { return r.ID }

func mapRow(tokens []string) (row, error) {
	if len(tokens) < 2 {
		return row{}, errors.New("too few fields")
	}
	return row{ID: tokens[0], Name: tokens[1]}, nil
}

type storageResolver struct {
	conn storage.StorageConnection
}

func (r storageResolver) ResolveStorageConnection(ctx context.Context, name string) (storage.StorageConnection, error) {
	return r.conn, nil
}

func newStorage(t *testing.T, files map[string]string) (storageResolver, string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	conn, err := local.NewLocalAdapter(context.Background(), storageConfig.StorageConfig{Type: "local", BaseDir: dir}, "files")
	require.NoError(t, err)
	return storageResolver{conn: conn}, dir
}

func readAll[T any](t *testing.T, r port.ItemReader[T]) []T {
	t.Helper()
	var out []T
	for {
		item, err := r.Read(context.Background())
		if errors.Is(err, port.ErrNoMoreItems) {
			return out
		}
		require.NoError(t, err)
		out = append(out, item)
	}
}

func fileConfig(t *testing.T, props map[string]interface{}) reader.FlatFileItemReaderConfig {
	t.Helper()
	cfg, err := reader.DecodeFlatFileItemReaderConfig(props)
	require.NoError(t, err)
	return cfg
}

func TestFlatFileItemReader_SkipsHeaderAndKeepsQuotedFields(t *testing.T) {
	resolver, _ := newStorage(t, map[string]string{
		"people.csv": "id,name\r\n1,Ann\r\n2,\"Smith, Bob\"\r\n3, Cy \r\n",
	})
	cfg := fileConfig(t, map[string]interface{}{"storageRef": "files", "object": "people.csv"})
	r := reader.NewFlatFileItemReader("peopleReader", cfg, resolver, mapRow)

	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	defer r.Close(context.Background())

	items := readAll[row](t, r)
	assert.Equal(t, []row{{"1", "Ann"}, {"2", "Smith, Bob"}, {"3", " Cy "}}, items)

	ec, err := r.GetExecutionContext(context.Background())
	require.NoError(t, err)
	n, _ := ec.GetInt("peopleReader.readCount")
	assert.Equal(t, 3, n)
}

func TestFlatFileItemReader_ResumesFromReadCount(t *testing.T) {
	resolver, _ := newStorage(t, map[string]string{
		"people.csv": "id,name\n1,a\n2,b\n3,c\n4,d\n",
	})
	cfg := fileConfig(t, map[string]interface{}{"storageRef": "files", "object": "people.csv"})
	r := reader.NewFlatFileItemReader("peopleReader", cfg, resolver, mapRow)

	ec := model.NewExecutionContext()
	ec.Put("peopleReader.readCount", 2)
	require.NoError(t, r.Open(context.Background(), ec))
	defer r.Close(context.Background())

	items := readAll[row](t, r)
	assert.Equal(t, []row{{"3", "c"}, {"4", "d"}}, items)
}

func TestFlatFileItemReader_CustomDelimiterWithoutHeader(t *testing.T) {
	resolver, _ := newStorage(t, map[string]string{"people.txt": "1|a\n2|b\n"})
	cfg := fileConfig(t, map[string]interface{}{"storageRef": "files", "object": "people.txt", "delimiter": "|", "linesToSkip": 0})
	r := reader.NewFlatFileItemReader("peopleReader", cfg, resolver, mapRow)

	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	defer r.Close(context.Background())
	assert.Len(t, readAll[row](t, r), 2)
}

func TestFlatFileItemReader_Errors(t *testing.T) {
	resolver, _ := newStorage(t, map[string]string{"people.csv": "id,name\n1,a\nonlyone\n"})

	t.Run("missing object", func(t *testing.T) {
		cfg := fileConfig(t, map[string]interface{}{"storageRef": "files", "object": "absent.csv"})
		r := reader.NewFlatFileItemReader("peopleReader", cfg, resolver, mapRow)
		assert.Error(t, r.Open(context.Background(), model.NewExecutionContext()))
		assert.NoError(t, r.Close(context.Background()))
	})

	t.Run("mapping failure", func(t *testing.T) {
		cfg := fileConfig(t, map[string]interface{}{"storageRef": "files", "object": "people.csv"})
		r := reader.NewFlatFileItemReader("peopleReader", cfg, resolver, mapRow)
		require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
		defer r.Close(context.Background())

		_, err := r.Read(context.Background())
		require.NoError(t, err)
		_, err = r.Read(context.Background())
		assert.ErrorContains(t, err, "line 3")
	})

	t.Run("strict field count", func(t *testing.T) {
		cfg := fileConfig(t, map[string]interface{}{"storageRef": "files", "object": "people.csv", "strict": true, "fieldCount": 3})
		r := reader.NewFlatFileItemReader("peopleReader", cfg, resolver, mapRow)
		require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
		defer r.Close(context.Background())

		_, err := r.Read(context.Background())
		assert.ErrorContains(t, err, "expected 3")
	})

	t.Run("bad config", func(t *testing.T) {
		_, err := reader.DecodeFlatFileItemReaderConfig(map[string]interface{}{"object": "x.csv"})
		assert.Error(t, err)
		_, err = reader.DecodeFlatFileItemReaderConfig(map[string]interface{}{"storageRef": "files", "object": "x.csv", "delimiter": ";;"})
		assert.Error(t, err)
	})
}

type dbResolver struct {
	conn database.DBConnection
}

func (r dbResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	return r.conn, nil
}

func newDB(t *testing.T, n int, extra ...row) dbResolver {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&row{}))
	rows := make([]row, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("%03d", i)
		rows = append(rows, row{ID: id, Name: "p" + id})
	}
	rows = append(rows, extra...)
	if len(rows) > 0 {
		require.NoError(t, db.Create(&rows).Error)
	}
	conn := gormadapter.NewGormDBAdapter(db, dbconfig.DatabaseConfig{Type: "sqlite", Database: path}, "workload")
	t.Cleanup(func() { conn.Close() })
	return dbResolver{conn: conn}
}

func TestSQLPagingItemReader_ReadsEveryRowOnceInKeyOrder(t *testing.T) {
	resolver := newDB(t, 25)
	r := reader.NewSQLPagingItemReader[row]("peopleReader", resolver, "workload", "people", "id", 10)

	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	defer r.Close(context.Background())

	items := readAll[row](t, r)
	require.Len(t, items, 25)
	assert.Equal(t, "001", items[0].ID)
	assert.Equal(t, "025", items[24].ID)
	for i := 1; i < len(items); i++ {
		assert.Less(t, items[i-1].ID, items[i].ID)
	}

	ec, err := r.GetExecutionContext(context.Background())
	require.NoError(t, err)
	last, _ := ec.GetString("peopleReader.lastKey")
	assert.Equal(t, "025", last)
}

func TestSQLPagingItemReader_ResumesAfterLastKey(t *testing.T) {
	resolver := newDB(t, 12)
	r := reader.NewSQLPagingItemReader[row]("peopleReader", resolver, "workload", "people", "id", 5)

	ec := model.NewExecutionContext()
	ec.Put("peopleReader.lastKey", "010")
	ec.Put("peopleReader.readCount", 10)
	require.NoError(t, r.Open(context.Background(), ec))
	defer r.Close(context.Background())

	items := readAll[row](t, r)
	assert.Equal(t, []row{{"011", "p011"}, {"012", "p012"}}, items)

	out, err := r.GetExecutionContext(context.Background())
	require.NoError(t, err)
	n, _ := out.GetInt("peopleReader.readCount")
	assert.Equal(t, 12, n)
}

func TestSQLPagingItemReader_EmptyTable(t *testing.T) {
	resolver := newDB(t, 0)
	r := reader.NewSQLPagingItemReader[row]("peopleReader", resolver, "workload", "people", "id", 10)
	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	defer r.Close(context.Background())

	_, err := r.Read(context.Background())
	assert.ErrorIs(t, err, port.ErrNoMoreItems)
}

func TestSQLPagingItemReader_EmptyKeyIsReadOnce(t *testing.T) {
	resolver := newDB(t, 2, row{ID: "", Name: "blank"})
	r := reader.NewSQLPagingItemReader[row]("peopleReader", resolver, "workload", "people", "id", 1)
	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))

	first, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, row{"", "blank"}, first)

	ec, err := r.GetExecutionContext(context.Background())
	require.NoError(t, err)
	last, ok := ec.GetString("peopleReader.lastKey")
	assert.True(t, ok)
	assert.Equal(t, "", last)

	assert.Equal(t, []row{{"001", "p001"}, {"002", "p002"}}, readAll[row](t, r))
	require.NoError(t, r.Close(context.Background()))

	// a restart checkpointed on the empty key continues after it
	restarted := reader.NewSQLPagingItemReader[row]("peopleReader", resolver, "workload", "people", "id", 1)
	require.NoError(t, restarted.Open(context.Background(), ec))
	defer restarted.Close(context.Background())
	assert.Equal(t, []row{{"001", "p001"}, {"002", "p002"}}, readAll[row](t, restarted))
}
