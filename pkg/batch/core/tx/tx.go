// Package tx abstracts the transaction that bounds one chunk: every item of a chunk is
// written inside one Tx, which is committed or rolled back as a unit.
package tx

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNoTransactionalResource is returned by a Tx that is not backed by a database.
var ErrNoTransactionalResource = errors.New("transaction has no transactional resource")

// TxExecutor defines the write operations that run inside a transaction.
type TxExecutor interface {
	// ExecuteUpdate performs a write (CREATE, UPDATE, DELETE) on tableName.
	// query holds the AND-combined conditions for UPDATE and DELETE.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteUpsert inserts model, updating updateColumns when conflictColumns collide.
	// An empty updateColumns turns the conflict into DO NOTHING.
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)
}

// Tx represents an ongoing transaction.
type Tx interface {
	TxExecutor

	// Savepoint creates a savepoint within the current transaction.
	Savepoint(name string) error
	// RollbackToSavepoint rolls back to the named savepoint.
	RollbackToSavepoint(name string) error
}

// TransactionManager manages the lifecycle of transactions.
type TransactionManager interface {
	// Begin starts a new transaction.
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	// Commit commits tx.
	Commit(tx Tx) error
	// Rollback rolls back tx.
	Rollback(tx Tx) error
}

// TransactionManagerFactory creates the TransactionManager of a named database connection.
type TransactionManagerFactory interface {
	NewTransactionManager(dbName string) TransactionManager
}
