// Package testutil provides test databases and fixtures for the ledger engine.
// Service tests run against every store returned by Backends so both
// implementations see the same scenarios.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/service"
	"github.com/Veraticus/ledgerline/internal/storage"
	"github.com/Veraticus/ledgerline/internal/storage/memstore"
)

// TestDB wraps a migrated store bound to a test.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// Backend names a store implementation for table-driven tests.
type Backend struct {
	New  func(t *testing.T) *TestDB
	Name string
}

// Backends lists every store implementation.
func Backends() []Backend {
	return []Backend{
		{Name: "sqlite", New: SetupTestDB},
		{Name: "memory", New: SetupMemoryDB},
	}
}

// SetupTestDB creates a new in-memory SQLite database with migrations applied.
// It is closed automatically when the test ends.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// SetupMemoryDB creates an in-process store.
func SetupMemoryDB(t *testing.T) *TestDB {
	t.Helper()

	store := memstore.New()
	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// ForEachBackend runs fn as a subtest against every store implementation.
func ForEachBackend(t *testing.T, fn func(t *testing.T, db *TestDB)) {
	t.Helper()
	for _, b := range Backends() {
		t.Run(b.Name, func(t *testing.T) {
			fn(t, b.New(t))
		})
	}
}

// SeedAccount writes a personal account.
func (db *TestDB) SeedAccount(id string) *model.Account {
	db.t.Helper()
	acct := &model.Account{
		ID: id,
		Profile: model.Profile{
			DisplayName: "User " + id,
			Email:       id + "@example.com",
			Currency:    "USD",
			Mode:        model.ModePersonal,
		},
	}
	if err := db.Storage.PutAccount(context.Background(), acct); err != nil {
		db.t.Fatalf("failed to seed account %s: %v", id, err)
	}
	return acct
}

// SeedWorkspace writes a workspace owned by ownerID plus the given members.
func (db *TestDB) SeedWorkspace(id, ownerID string, members map[string]model.Role) *model.Workspace {
	db.t.Helper()
	ctx := context.Background()

	ws := &model.Workspace{
		ID:              id,
		Name:            "Workspace " + id,
		OwnerID:         ownerID,
		Currency:        "USD",
		Timezone:        "UTC",
		FiscalYearStart: 1,
		CreatedAt:       time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := db.Storage.PutWorkspace(ctx, ws); err != nil {
		db.t.Fatalf("failed to seed workspace %s: %v", id, err)
	}

	joined := ws.CreatedAt
	db.mustPutMember(ctx, id, ownerID, model.RoleOwner, joined)
	for userID, role := range members {
		joined = joined.Add(time.Minute)
		db.mustPutMember(ctx, id, userID, role, joined)
	}
	return ws
}

func (db *TestDB) mustPutMember(ctx context.Context, wsID, userID string, role model.Role, joined time.Time) {
	db.t.Helper()
	err := db.Storage.PutMembership(ctx, &model.Membership{
		WorkspaceID: wsID,
		UserID:      userID,
		Role:        role,
		JoinedAt:    joined,
	})
	if err != nil {
		db.t.Fatalf("failed to seed membership %s/%s: %v", wsID, userID, err)
	}
}

// MustGetBudget returns a budget or fails the test.
func (db *TestDB) MustGetBudget(owner model.Owner, id string) *model.Budget {
	db.t.Helper()
	b, err := db.Storage.GetBudget(context.Background(), owner, id)
	if err != nil {
		db.t.Fatalf("failed to load budget %s: %v", id, err)
	}
	return b
}

// MustGetCategory returns a budget category or fails the test.
func (db *TestDB) MustGetCategory(owner model.Owner, budgetID, name string) model.Category {
	db.t.Helper()
	cat, ok := db.MustGetBudget(owner, budgetID).Category(name)
	if !ok {
		db.t.Fatalf("budget %s has no category %q", budgetID, name)
	}
	return cat
}

// WithTransaction executes fn within a store transaction that is always rolled back.
func (db *TestDB) WithTransaction(fn func(tx service.Transaction) error) error {
	tx, err := db.Storage.BeginTx(context.Background())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}
