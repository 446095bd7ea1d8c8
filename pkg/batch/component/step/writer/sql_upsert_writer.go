package writer

import (
	"context"
	"fmt"

	"github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/core/tx"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// SQLUpsertItemWriter writes a chunk as one multi-row upsert inside the chunk transaction.
// A row whose key already exists gets updateColumns overwritten; with no updateColumns
// the existing row is left alone. Re-running a chunk is therefore harmless.
// Items implementing port.KeyedItem that share a key within one chunk collapse to the
// last occurrence, since postgres refuses to touch a row twice in one statement.
type SQLUpsertItemWriter[T any] struct {
	name          string
	table         string
	keyColumns    []string
	updateColumns []string
	writeCount    int
}

// NewSQLUpsertItemWriter creates a new SQLUpsertItemWriter.
func NewSQLUpsertItemWriter[T any](name, table string, keyColumns, updateColumns []string) *SQLUpsertItemWriter[T] {
	return &SQLUpsertItemWriter[T]{
		name:          name,
		table:         table,
		keyColumns:    keyColumns,
		updateColumns: updateColumns,
	}
}

func (w *SQLUpsertItemWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	w.writeCount, _ = ec.GetInt(w.name + ".writeCount")
	return nil
}

// Write upserts items through tx.
func (w *SQLUpsertItemWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	if len(items) == 0 {
		return nil
	}
	if t == nil {
		return exception.NewBatchErrorf("writer", "SQLUpsertItemWriter '%s' requires a transaction", w.name)
	}
	rowsToWrite := lastByKey(items)
	rows, err := t.ExecuteUpsert(ctx, &rowsToWrite, w.table, w.keyColumns, w.updateColumns)
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("Failed to upsert %d items into '%s'", len(items), w.table), err, false, true)
	}
	if dropped := len(items) - len(rowsToWrite); dropped > 0 {
		logger.Debugf("SQLUpsertItemWriter '%s': %d duplicate keys in chunk, last occurrence kept.", w.name, dropped)
	}
	w.writeCount += len(items)
	logger.Debugf("SQLUpsertItemWriter '%s': upserted %d items into '%s' (%d rows affected).", w.name, len(items), w.table, rows)
	return nil
}

// lastByKey keeps the first position of every key with the value of its last occurrence.
// Items without a key are returned as is.
func lastByKey[T any](items []T) []T {
	index := make(map[string]int, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		keyed, ok := any(item).(port.KeyedItem)
		if !ok {
			return items
		}
		key := keyed.Key()
		if i, seen := index[key]; seen {
			out[i] = item
			continue
		}
		index[key] = len(out)
		out = append(out, item)
	}
	return out
}

func (w *SQLUpsertItemWriter[T]) Close(ctx context.Context) error { return nil }

func (w *SQLUpsertItemWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	ec := model.NewExecutionContext()
	ec.Put(w.name+".writeCount", w.writeCount)
	return ec, nil
}

var _ port.ItemWriter[any] = (*SQLUpsertItemWriter[any])(nil)
