package gorm

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/config"
)

type account struct {
	ID    string `gorm:"column:id;primaryKey"`
	Email string `gorm:"column:email"`
}

func (account) TableName() string { return "account" }

type staticResolver struct{ conn database.DBConnection }

func (r staticResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	return r.conn, nil
}

func newMockAdapter(t *testing.T) (*GormDBAdapter, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 NewGormLogger("SILENT"),
	})
	require.NoError(t, err)
	return NewGormDBAdapter(db, dbconfig.DatabaseConfig{Type: "postgres"}, "workload"), mock
}

func TestGormTxAdapter_UpsertInsideTransaction(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	tm := NewGormTransactionManager(staticResolver{conn: adapter}, "workload")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "account" ("id","email") VALUES ($1,$2),($3,$4) ON CONFLICT ("id") DO UPDATE SET "email"="excluded"."email"`)).
		WithArgs("1", "a@example.com", "2", "b@example.com").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := tm.Begin(ctx)
	require.NoError(t, err)

	rows, err := tx.ExecuteUpsert(ctx, []account{{ID: "1", Email: "a@example.com"}, {ID: "2", Email: "b@example.com"}}, "account", []string{"id"}, []string{"email"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)
	require.NoError(t, tm.Commit(tx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormTxAdapter_UpsertWithoutUpdateColumnsDoesNothing(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT ("id") DO NOTHING`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows, err := adapter.ExecuteUpsert(context.Background(), &account{ID: "1"}, "", []string{"id"}, nil)
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormTransactionManager_Rollback(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	tm := NewGormTransactionManager(staticResolver{conn: adapter}, "workload")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "account"`)).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := tm.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.ExecuteUpsert(ctx, &account{ID: "1"}, "", []string{"id"}, []string{"email"})
	require.Error(t, err)
	require.NoError(t, tm.Rollback(tx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormDBAdapter_KeysetQuery(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "account" WHERE "id" > $1 ORDER BY "id" LIMIT $2`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow("0011", "x@example.com"))

	var page []account
	require.NoError(t, adapter.ExecuteKeysetQuery(context.Background(), &page, "account", "id", "0010", 10))
	require.Len(t, page, 1)
	assert.Equal(t, "0011", page[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsTableNotExistError(t *testing.T) {
	assert.True(t, isTableNotExistError(assertErr(`no such table: customer`)))
	assert.True(t, isTableNotExistError(assertErr(`ERROR: relation "customer" does not exist`)))
	assert.False(t, isTableNotExistError(nil))
	assert.False(t, isTableNotExistError(assertErr("connection refused")))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
