package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointManager_CreateListDelete(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.PutAccount(ctx, &model.Account{
		ID:      "acct-1",
		Profile: model.Profile{DisplayName: "Ada", Mode: model.ModePersonal},
	}))

	cm, err := NewCheckpointManager(store)
	require.NoError(t, err)

	info, err := cm.Create(ctx, "before-import", "manual")
	require.NoError(t, err)
	assert.Equal(t, 1, info.RowCounts["accounts"])
	assert.Equal(t, ExpectedSchemaVersion, info.SchemaVersion)
	assert.Positive(t, info.FileSize)

	_, err = cm.Create(ctx, "before-import", "again")
	assert.ErrorIs(t, err, ErrCheckpointExists)

	_, err = cm.Create(ctx, "../escape", "")
	assert.ErrorIs(t, err, ErrInvalidCheckpointID)

	list, err := cm.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "before-import", list[0].ID)

	require.NoError(t, cm.Delete(ctx, "before-import"))
	assert.ErrorIs(t, cm.Delete(ctx, "before-import"), ErrCheckpointNotFound)
}

func TestCheckpointManager_Restore(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	owner := model.AccountOwner("acct-1")
	now := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)

	cm, err := NewCheckpointManager(store)
	require.NoError(t, err)
	_, err = cm.Create(ctx, "empty", "")
	require.NoError(t, err)

	require.NoError(t, store.InsertTransaction(ctx, &model.Transaction{
		ID: "t1", Owner: owner, Amount: decimal.NewFromInt(3), Category: "Food",
		Kind: model.KindExpense, OccurredAt: now, WrittenAt: now,
	}))
	require.NoError(t, store.Close())

	require.NoError(t, RestoreCheckpoint(ctx, store.dbPath, "empty"))

	restored, err := NewSQLiteStorage(store.dbPath)
	require.NoError(t, err)
	defer func() { _ = restored.Close() }()

	_, err = restored.GetTransaction(ctx, owner, "t1")
	assert.Error(t, err)
	assert.ErrorIs(t, RestoreCheckpoint(ctx, store.dbPath, "missing"), ErrCheckpointNotFound)
}

func TestCheckpointManager_AutoPrunes(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	cm, err := NewCheckpointManager(store)
	require.NoError(t, err)

	for range maxAutoCheckpoints + 2 {
		_, err := cm.AutoCheckpoint(ctx, "import")
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	list, err := cm.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, maxAutoCheckpoints)
	for _, cp := range list {
		assert.True(t, cp.IsAuto)
	}
}
