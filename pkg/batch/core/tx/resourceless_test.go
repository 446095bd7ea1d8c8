package tx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourcelessTransactionManager(t *testing.T) {
	tm := NewResourcelessTransactionManager()

	tx, err := tm.Begin(context.Background())
	require.NoError(t, err)

	_, err = tx.ExecuteUpsert(context.Background(), nil, "customer", []string{"id"}, nil)
	assert.ErrorIs(t, err, ErrNoTransactionalResource)
	_, err = tx.ExecuteUpdate(context.Background(), nil, "CREATE", "customer", nil)
	assert.ErrorIs(t, err, ErrNoTransactionalResource)

	assert.NoError(t, tx.Savepoint("sp"))
	assert.NoError(t, tm.Commit(tx))
	assert.NoError(t, tm.Rollback(tx))
}
