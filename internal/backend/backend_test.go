package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/ledgerline/internal/budget"
	"github.com/Veraticus/ledgerline/internal/config"
	"github.com/Veraticus/ledgerline/internal/identity"
	"github.com/Veraticus/ledgerline/internal/ledger"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(backend, path string) *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Backend: backend, Path: path},
		Cache:    config.CacheConfig{Size: 16, TTL: time.Minute},
		Logging:  config.LoggingConfig{Level: "info", Format: "console"},
	}
}

func budgetInput() budget.Input {
	return budget.Input{
		Granularity: model.Monthly,
		Categories:  []budget.CategoryInput{{Name: "Food", Limit: decimal.NewFromInt(500)}},
	}
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()

	store, err := OpenStorage(ctx, config.DatabaseConfig{Backend: config.BackendSQLite, Path: filepath.Join(t.TempDir(), "ledger.db")})
	require.NoError(t, err)
	_, ok := store.(*storage.SQLiteStorage)
	assert.True(t, ok)
	require.NoError(t, store.Close())

	store, err = OpenStorage(ctx, config.DatabaseConfig{Backend: config.BackendMemory})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = OpenStorage(ctx, config.DatabaseConfig{Backend: "postgres"})
	assert.Error(t, err)
}

func TestEngine_RecordAndSummarize(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendMemory} {
		t.Run(backend, func(t *testing.T) {
			e, err := NewEngine(context.Background(), testConfig(backend, filepath.Join(t.TempDir(), "ledger.db")))
			require.NoError(t, err)
			t.Cleanup(func() { _ = e.Close() })

			ctx := identity.WithActor(context.Background(), "alice")
			owner := model.AccountOwner("alice")
			now := time.Now().UTC()
			require.NoError(t, e.Store.PutAccount(ctx, &model.Account{
				ID:      "alice",
				Profile: model.Profile{DisplayName: "Alice", Currency: "USD", Mode: model.ModePersonal},
			}))

			_, err = e.Budgets.CreateBudget(ctx, owner, budgetInput())
			require.NoError(t, err)
			_, err = e.Ledger.Record(ctx, owner, ledger.EntryInput{
				Amount:     decimal.NewFromInt(120),
				Category:   "Food",
				Kind:       model.KindExpense,
				OccurredAt: now,
			})
			require.NoError(t, err)

			summary, err := e.Budgets.Summary(ctx, owner, now)
			require.NoError(t, err)
			assert.True(t, summary.TotalSpent.Equal(decimal.NewFromInt(120)))
			assert.True(t, summary.TotalRemaining.Equal(decimal.NewFromInt(380)))
		})
	}
}

func TestEngine_Checkpoints(t *testing.T) {
	e, err := NewEngine(context.Background(), testConfig(config.BackendMemory, ""))
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.Checkpoints()
	assert.Error(t, err)

	e2, err := NewEngine(context.Background(), testConfig(config.BackendSQLite, filepath.Join(t.TempDir(), "ledger.db")))
	require.NoError(t, err)
	defer func() { _ = e2.Close() }()

	cm, err := e2.Checkpoints()
	require.NoError(t, err)
	assert.NotNil(t, cm)
}
