package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlch/cyql/store"
)

func openTestDB(t *testing.T) *store.SQLite {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLite_ExecuteInsertAndSelect(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)

	res, err := db.Execute(ctx, "INSERT INTO nodes(id,label,properties) VALUES(?,?,?)",
		[]any{"n1", `["Person"]`, `{"name":"Alice"}`})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changes)

	res, err = db.Execute(ctx, "SELECT id, label, properties FROM nodes WHERE id = ?", []any{"n1"})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "n1", res.Rows[0].Get("id"))
	assert.Equal(t, `["Person"]`, res.Rows[0].Get("label"))
}

func TestSQLite_TransactionCommit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)

	err := db.Transaction(ctx, func(ctx context.Context, tx store.Storage) error {
		_, err := tx.Execute(ctx, "INSERT INTO nodes(id,label,properties) VALUES(?,?,?)",
			[]any{"n1", `[]`, `{}`})
		return err
	})
	require.NoError(t, err)

	res, err := db.Execute(ctx, "SELECT id FROM nodes", nil)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
}

func TestSQLite_TransactionRollbackOnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)

	wantErr := assert.AnError
	err := db.Transaction(ctx, func(ctx context.Context, tx store.Storage) error {
		if _, err := tx.Execute(ctx, "INSERT INTO nodes(id,label,properties) VALUES(?,?,?)",
			[]any{"n1", `[]`, `{}`}); err != nil {
			return err
		}
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	res, err := db.Execute(ctx, "SELECT id FROM nodes", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

func TestSQLite_NestedTransactionRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)

	err := db.Transaction(ctx, func(ctx context.Context, tx store.Storage) error {
		return tx.Transaction(ctx, func(context.Context, store.Storage) error { return nil })
	})
	require.Error(t, err)
}

func TestSQLite_ForeignKeyEndpointsExist(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.Execute(ctx, "INSERT INTO nodes(id,label,properties) VALUES(?,?,?)", []any{"a", `[]`, `{}`})
	require.NoError(t, err)
	_, err = db.Execute(ctx, "INSERT INTO nodes(id,label,properties) VALUES(?,?,?)", []any{"b", `[]`, `{}`})
	require.NoError(t, err)

	_, err = db.Execute(ctx, "INSERT INTO edges(id,type,source_id,target_id,properties) VALUES(?,?,?,?,?)",
		[]any{"e1", "K", "a", "b", `{}`})
	require.NoError(t, err)

	res, err := db.Execute(ctx, "SELECT id FROM edges WHERE source_id = ? AND target_id = ?", []any{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
}
