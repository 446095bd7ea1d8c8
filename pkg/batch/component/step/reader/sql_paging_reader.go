package reader

import (
	"context"
	"fmt"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	"github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// SQLPagingItemReader reads a table in ascending key order, one page per query:
// WHERE key > :lastKey ORDER BY key LIMIT :pageSize. Every page starts after the last key
// delivered, so no row is returned twice and none is skipped as long as the table is not
// written concurrently. The last key read is kept under "<name>.lastKey"; an empty key is
// a real key, so whether anything was read is tracked apart from its value.
type SQLPagingItemReader[T port.KeyedItem] struct {
	name      string
	dbName    string
	table     string
	keyColumn string
	pageSize  int
	resolver  database.DBConnectionResolver

	conn      database.DBConnection
	page      []T
	pos       int
	lastKey   string
	started   bool
	exhausted bool
	readCount int
}

// NewSQLPagingItemReader creates a new SQLPagingItemReader on the connection dbName.
func NewSQLPagingItemReader[T port.KeyedItem](name string, resolver database.DBConnectionResolver, dbName, table, keyColumn string, pageSize int) *SQLPagingItemReader[T] {
	if pageSize < 1 {
		pageSize = 10
	}
	return &SQLPagingItemReader[T]{
		name:      name,
		dbName:    dbName,
		table:     table,
		keyColumn: keyColumn,
		pageSize:  pageSize,
		resolver:  resolver,
	}
}

// Open resolves the connection and restores the last key read.
func (r *SQLPagingItemReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	conn, err := r.resolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("Failed to resolve DB connection '%s' for SQLPagingItemReader '%s'", r.dbName, r.name), err, false, true)
	}
	r.conn = conn
	r.page, r.pos, r.exhausted = nil, 0, false
	r.lastKey, r.started = ec.GetString(r.name + ".lastKey")
	r.readCount, _ = ec.GetInt(r.name + ".readCount")
	if r.started {
		logger.Infof("SQLPagingItemReader '%s': Resuming '%s' after %s = %q.", r.name, r.table, r.keyColumn, r.lastKey)
	}
	return nil
}

// Read returns the next row, fetching a new page when the current one is used up.
func (r *SQLPagingItemReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if r.conn == nil {
		return zero, exception.NewBatchErrorf("reader", "SQLPagingItemReader '%s': reader not opened", r.name)
	}
	if r.pos >= len(r.page) {
		if r.exhausted {
			return zero, port.ErrNoMoreItems
		}
		if err := r.fetch(ctx); err != nil {
			return zero, err
		}
		if len(r.page) == 0 {
			return zero, port.ErrNoMoreItems
		}
	}
	item := r.page[r.pos]
	r.pos++
	r.lastKey, r.started = item.Key(), true
	r.readCount++
	return item, nil
}

func (r *SQLPagingItemReader[T]) fetch(ctx context.Context) error {
	var after interface{}
	if r.started {
		after = r.lastKey
	}
	page := make([]T, 0, r.pageSize)
	if err := r.conn.ExecuteKeysetQuery(ctx, &page, r.table, r.keyColumn, after, r.pageSize); err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("Failed to read page of '%s' after %v", r.table, after), err, false, true)
	}
	logger.Debugf("SQLPagingItemReader '%s': fetched %d rows after %v.", r.name, len(page), after)
	r.page, r.pos = page, 0
	r.exhausted = len(page) < r.pageSize
	return nil
}

// Close drops the buffered page. The connection belongs to its provider.
func (r *SQLPagingItemReader[T]) Close(ctx context.Context) error {
	r.conn, r.page = nil, nil
	return nil
}

// GetExecutionContext returns the last key read and the read count.
func (r *SQLPagingItemReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	ec := model.NewExecutionContext()
	ec.Put(r.name+".readCount", r.readCount)
	if r.started {
		ec.Put(r.name+".lastKey", r.lastKey)
	}
	return ec, nil
}

var _ port.ItemReader[port.KeyedItem] = (*SQLPagingItemReader[port.KeyedItem])(nil)
