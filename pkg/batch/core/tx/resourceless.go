package tx

import (
	"context"
	"database/sql"
)

// ResourcelessTransactionManager is used by steps whose sink is not a database (file exports).
// Begin, Commit and Rollback always succeed; the sink itself decides what a commit means.
type ResourcelessTransactionManager struct{}

// NewResourcelessTransactionManager creates a ResourcelessTransactionManager.
func NewResourcelessTransactionManager() TransactionManager {
	return &ResourcelessTransactionManager{}
}

// Begin returns a Tx that rejects database writes.
func (m *ResourcelessTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error) {
	return resourcelessTx{}, nil
}

// Commit is a no-op.
func (m *ResourcelessTransactionManager) Commit(tx Tx) error { return nil }

// Rollback is a no-op.
func (m *ResourcelessTransactionManager) Rollback(tx Tx) error { return nil }

type resourcelessTx struct{}

func (resourcelessTx) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	return 0, ErrNoTransactionalResource
}

func (resourcelessTx) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	return 0, ErrNoTransactionalResource
}

func (resourcelessTx) Savepoint(name string) error { return nil }

func (resourcelessTx) RollbackToSavepoint(name string) error { return nil }
