package writer_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pqlocal "github.com/xitongsys/parquet-go-source/local"
	pqreader "github.com/xitongsys/parquet-go/reader"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/customer-batch/pkg/batch/component/step/writer"
	"github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/core/tx"
)

type row struct {
	ID   string `gorm:"column:id;primaryKey" parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Name string `gorm:"column:name" parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func (row) TableName() string { return "people" }

func (r row) Key() string { return r.ID }

func line(r row) []string { return []string{r.ID, r.Name} }

type storageResolver struct {
	conn storage.StorageConnection
}

func (r storageResolver) ResolveStorageConnection(ctx context.Context, name string) (storage.StorageConnection, error) {
	return r.conn, nil
}

func newStorage(t *testing.T) (storageResolver, string) {
	t.Helper()
	dir := t.TempDir()
	conn, err := local.NewLocalAdapter(context.Background(), storageConfig.StorageConfig{Type: "local", BaseDir: dir}, "files")
	require.NoError(t, err)
	return storageResolver{conn: conn}, dir
}

func fileWriter(t *testing.T, resolver storage.StorageConnectionResolver, props map[string]interface{}) *writer.FlatFileItemWriter[row] {
	t.Helper()
	cfg, err := writer.DecodeFlatFileItemWriterConfig(props)
	require.NoError(t, err)
	return writer.NewFlatFileItemWriter("peopleWriter", cfg, resolver, []string{"id", "name"}, line)
}

func TestFlatFileItemWriter_WritesHeaderAndChunks(t *testing.T) {
	ctx := context.Background()
	resolver, dir := newStorage(t)
	w := fileWriter(t, resolver, map[string]interface{}{"storageRef": "files", "object": "out/people.csv"})

	require.NoError(t, w.Open(ctx, model.NewExecutionContext()))
	require.NoError(t, w.Write(ctx, nil, []row{{"1", "Ann"}, {"2", "Smith, Bob"}}))
	require.NoError(t, w.Write(ctx, nil, []row{{"3", "Cy"}}))

	ec, err := w.GetExecutionContext(ctx)
	require.NoError(t, err)
	n, _ := ec.GetInt("peopleWriter.writeCount")
	assert.Equal(t, 3, n)

	require.NoError(t, w.Close(ctx))
	data, err := os.ReadFile(filepath.Join(dir, "out", "people.csv"))
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,Ann\n2,\"Smith, Bob\"\n3,Cy\n", string(data))
}

func TestFlatFileItemWriter_NoHeader(t *testing.T) {
	ctx := context.Background()
	resolver, dir := newStorage(t)
	w := fileWriter(t, resolver, map[string]interface{}{"storageRef": "files", "object": "people.csv", "writeHeader": false, "delimiter": ";"})

	require.NoError(t, w.Open(ctx, model.NewExecutionContext()))
	require.NoError(t, w.Write(ctx, nil, []row{{"1", "Ann"}}))
	require.NoError(t, w.Close(ctx))

	data, err := os.ReadFile(filepath.Join(dir, "people.csv"))
	require.NoError(t, err)
	assert.Equal(t, "1;Ann\n", string(data))
}

func TestFlatFileItemWriter_RestartDropsUncommittedLines(t *testing.T) {
	ctx := context.Background()
	resolver, dir := newStorage(t)
	// two committed lines followed by a line from a chunk that rolled back
	require.NoError(t, os.WriteFile(filepath.Join(dir, "people.csv"), []byte("id,name\n1,a\n2,b\n3,x\n"), 0o644))

	w := fileWriter(t, resolver, map[string]interface{}{"storageRef": "files", "object": "people.csv"})
	ec := model.NewExecutionContext()
	ec.Put("peopleWriter.writeCount", 2)
	require.NoError(t, w.Open(ctx, ec))
	require.NoError(t, w.Write(ctx, nil, []row{{"3", "c"}}))
	require.NoError(t, w.Close(ctx))

	data, err := os.ReadFile(filepath.Join(dir, "people.csv"))
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,a\n2,b\n3,c\n", string(data))
}

func TestFlatFileItemWriter_RestartFailsWhenFileIsShort(t *testing.T) {
	ctx := context.Background()
	resolver, dir := newStorage(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "people.csv"), []byte("id,name\n1,a\n"), 0o644))

	w := fileWriter(t, resolver, map[string]interface{}{"storageRef": "files", "object": "people.csv"})
	ec := model.NewExecutionContext()
	ec.Put("peopleWriter.writeCount", 5)
	assert.ErrorContains(t, w.Open(ctx, ec), "checkpoint expects 6")
	assert.NoError(t, w.Close(ctx))
}

func TestParquetItemWriter_OneFilePerChunk(t *testing.T) {
	ctx := context.Background()
	resolver, dir := newStorage(t)
	cfg, err := writer.DecodeParquetItemWriterConfig(map[string]interface{}{"storageRef": "files", "outputBaseDir": "export"})
	require.NoError(t, err)
	assert.Equal(t, "SNAPPY", cfg.CompressionType)

	w := writer.NewParquetItemWriter("peopleParquet", cfg, resolver, new(row))
	require.NoError(t, w.Open(ctx, model.NewExecutionContext()))
	require.NoError(t, w.Write(ctx, nil, []row{{"1", "a"}, {"2", "b"}}))
	require.NoError(t, w.Write(ctx, nil, []row{{"3", "c"}}))
	require.NoError(t, w.Write(ctx, nil, nil))
	require.NoError(t, w.Close(ctx))

	entries, err := os.ReadDir(filepath.Join(dir, "export"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	assert.Equal(t, []string{"part-00000.parquet", "part-00001.parquet"}, names)

	fr, err := pqlocal.NewLocalFileReader(filepath.Join(dir, "export", "part-00000.parquet"))
	require.NoError(t, err)
	defer fr.Close()
	pr, err := pqreader.NewParquetReader(fr, new(row), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	rows := make([]row, pr.GetNumRows())
	require.NoError(t, pr.Read(&rows))
	assert.Equal(t, []row{{"1", "a"}, {"2", "b"}}, rows)
}

func TestParquetItemWriter_RestartOverwritesUncommittedPart(t *testing.T) {
	ctx := context.Background()
	resolver, dir := newStorage(t)
	cfg, err := writer.DecodeParquetItemWriterConfig(map[string]interface{}{"storageRef": "files", "outputBaseDir": "export", "compressionType": "NONE"})
	require.NoError(t, err)

	w := writer.NewParquetItemWriter("peopleParquet", cfg, resolver, new(row))
	ec := model.NewExecutionContext()
	ec.Put("peopleParquet.partCount", 3)
	require.NoError(t, w.Open(ctx, ec))
	require.NoError(t, w.Write(ctx, nil, []row{{"31", "a"}}))

	_, err = os.Stat(filepath.Join(dir, "export", "part-00003.parquet"))
	assert.NoError(t, err)
	out, err := w.GetExecutionContext(ctx)
	require.NoError(t, err)
	n, _ := out.GetInt("peopleParquet.partCount")
	assert.Equal(t, 4, n)
}

func TestDecodeParquetItemWriterConfig_RejectsUnknownCompression(t *testing.T) {
	_, err := writer.DecodeParquetItemWriterConfig(map[string]interface{}{"storageRef": "files", "outputBaseDir": "x", "compressionType": "LZ4"})
	assert.Error(t, err)
}

type dbResolver struct {
	conn database.DBConnection
}

func (r dbResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	return r.conn, nil
}

func TestSQLUpsertItemWriter_InsertsAndUpdatesInsideTransaction(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "people.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&row{}))
	conn := gormadapter.NewGormDBAdapter(db, dbconfig.DatabaseConfig{Type: "sqlite", Database: path}, "workload")
	defer conn.Close()
	tm := gormadapter.NewGormTransactionManager(dbResolver{conn: conn}, "workload")

	w := writer.NewSQLUpsertItemWriter[row]("peopleWriter", "people", []string{"id"}, []string{"name"})
	require.NoError(t, w.Open(ctx, model.NewExecutionContext()))

	write := func(items []row, commit bool) {
		t.Helper()
		txn, err := tm.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, w.Write(ctx, txn, items))
		if commit {
			require.NoError(t, tm.Commit(txn))
		} else {
			require.NoError(t, tm.Rollback(txn))
		}
	}
	write([]row{{"1", "a"}, {"2", "b"}}, true)
	write([]row{{"2", "B"}, {"3", "c"}}, true)
	write([]row{{"4", "rolled back"}}, false)

	var got []row
	require.NoError(t, db.Order("id").Find(&got).Error)
	assert.Equal(t, []row{{"1", "a"}, {"2", "B"}, {"3", "c"}}, got)

	assert.NoError(t, w.Write(ctx, nil, nil))
	assert.Error(t, w.Write(ctx, nil, []row{{"5", "e"}}))
}

func TestSQLUpsertItemWriter_ResourcelessTransactionFails(t *testing.T) {
	ctx := context.Background()
	w := writer.NewSQLUpsertItemWriter[row]("peopleWriter", "people", []string{"id"}, nil)
	txn, err := tx.NewResourcelessTransactionManager().Begin(ctx)
	require.NoError(t, err)
	err = w.Write(ctx, txn, []row{{"1", "a"}})
	assert.ErrorIs(t, err, tx.ErrNoTransactionalResource)
}

type recordingTx struct {
	tx.Tx
	upserted []row
}

func (r *recordingTx) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	r.upserted = append(r.upserted, *(model.(*[]row))...)
	return int64(len(r.upserted)), nil
}

func TestSQLUpsertItemWriter_DuplicateKeysInChunkKeepLastRow(t *testing.T) {
	ctx := context.Background()
	w := writer.NewSQLUpsertItemWriter[row]("peopleWriter", "people", []string{"id"}, []string{"name"})
	require.NoError(t, w.Open(ctx, model.NewExecutionContext()))

	txn := &recordingTx{}
	require.NoError(t, w.Write(ctx, txn, []row{{"7", "first"}, {"8", "h"}, {"7", "second"}, {"9", "i"}, {"7", "third"}}))
	assert.Equal(t, []row{{"7", "third"}, {"8", "h"}, {"9", "i"}}, txn.upserted)

	ec, err := w.GetExecutionContext(ctx)
	require.NoError(t, err)
	n, _ := ec.GetInt("peopleWriter.writeCount")
	assert.Equal(t, 5, n)
}
