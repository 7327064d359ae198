package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/service"
	"github.com/Veraticus/ledgerline/internal/storage/storetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestStorage returns a migrated database in a temporary directory.
func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLiteStorage_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) service.Storage {
		t.Helper()
		store, err := NewSQLiteStorage(":memory:")
		require.NoError(t, err)
		require.NoError(t, store.Migrate(context.Background()))
		return store
	})
}

func TestSQLiteStorage_MigrateIsIdempotent(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))

	var version int
	require.NoError(t, store.db.QueryRow(`SELECT version FROM schema_migrations`).Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)
}

func TestSQLiteStorage_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()
	owner := model.AccountOwner("acct-1")
	occurred := time.Date(2026, time.January, 5, 9, 30, 0, 123456789, time.UTC)

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.InsertTransaction(ctx, &model.Transaction{
		ID:         "t1",
		Owner:      owner,
		Amount:     decimal.RequireFromString("0.10"),
		Category:   "Food",
		Kind:       model.KindExpense,
		OccurredAt: occurred,
		WrittenAt:  occurred,
	}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.Migrate(ctx))

	got, err := reopened.GetTransaction(ctx, owner, "t1")
	require.NoError(t, err)
	assert.True(t, got.OccurredAt.Equal(occurred), "nanosecond precision must survive")
	assert.Equal(t, "0.1", got.Amount.String())
}

func TestSQLiteStorage_MalformedStoredDecimal(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.db.Exec(`
		INSERT INTO transactions (owner_kind, owner_id, id, amount, category, kind, occurred_at, written_at)
		VALUES ('account', 'acct-1', 'bad', 'twelve', 'Food', 'expense', 1, 1)`)
	require.NoError(t, err)

	_, err = store.GetTransaction(ctx, model.AccountOwner("acct-1"), "bad")
	require.ErrorIs(t, err, common.ErrInvalid)
	assert.NotErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestSQLiteStorage_ClosedReportsUnavailable(t *testing.T) {
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.Close())

	_, err = store.GetAccount(context.Background(), "acct-1")
	require.ErrorIs(t, err, common.ErrStoreUnavailable)
	assert.True(t, common.IsRetryable(err))
}

func TestSQLiteStorage_NilContext(t *testing.T) {
	store := createTestStorage(t)

	//nolint:staticcheck // exercising the nil guard
	_, err := store.GetAccount(nil, "acct-1")
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestDBError(t *testing.T) {
	assert.NoError(t, dbError("op", nil))
	assert.ErrorIs(t, dbError("op", common.Invalid("x", "y")), common.ErrInvalid)
	assert.ErrorIs(t, dbError("op", assert.AnError), common.ErrStoreUnavailable)
}
