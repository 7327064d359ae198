// Package service defines the contracts shared between the engine and its stores.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/shopspring/decimal"
)

// TransactionFilter narrows ListTransactions by occurrence date.
// From is inclusive, To is exclusive; zero values mean unbounded.
type TransactionFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

// Ledger is the data contract of the ledger store. Every implementation
// validates documents at this boundary and reports:
//   - common.ErrNotFound for absent entities,
//   - common.ErrInvalid (as *common.FieldError) for malformed documents,
//   - common.ErrStoreUnavailable for I/O failures.
type Ledger interface {
	// Account operations
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
	PutAccount(ctx context.Context, account *model.Account) error
	SetActiveBudget(ctx context.Context, accountID, budgetID string) error
	AttachWorkspace(ctx context.Context, accountID, workspaceID string) error
	SetPrimaryWorkspace(ctx context.Context, accountID, workspaceID string) error

	// Transaction operations
	InsertTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransaction(ctx context.Context, owner model.Owner, id string) (*model.Transaction, error)
	UpdateTransaction(ctx context.Context, txn *model.Transaction) error
	DeleteTransaction(ctx context.Context, owner model.Owner, id string) error
	ListTransactions(ctx context.Context, owner model.Owner, filter TransactionFilter) ([]model.Transaction, error)

	// Budget operations
	PutBudget(ctx context.Context, budget *model.Budget) error
	GetBudget(ctx context.Context, owner model.Owner, budgetID string) (*model.Budget, error)
	FindBudget(ctx context.Context, owner model.Owner, granularity model.Granularity, periodKey string) (*model.Budget, error)
	ListBudgets(ctx context.Context, owner model.Owner) ([]model.Budget, error)
	AdjustCategorySpent(ctx context.Context, owner model.Owner, budgetID, category string, delta decimal.Decimal) error
	PutCategoryLimit(ctx context.Context, owner model.Owner, budgetID string, category model.Category) error

	// Liability operations
	PutLiability(ctx context.Context, liability *model.Liability) error
	ListLiabilities(ctx context.Context, accountID string) ([]model.Liability, error)
	SetLiabilityStatus(ctx context.Context, accountID, liabilityID string, status model.LiabilityStatus) error

	// Workspace operations
	PutWorkspace(ctx context.Context, workspace *model.Workspace) error
	GetWorkspace(ctx context.Context, workspaceID string) (*model.Workspace, error)
	PutMembership(ctx context.Context, membership *model.Membership) error
	GetMembership(ctx context.Context, workspaceID, userID string) (*model.Membership, error)
	ListMemberships(ctx context.Context, workspaceID string) ([]model.Membership, error)
	SetMembershipRole(ctx context.Context, workspaceID, userID string, role model.Role) error

	// Saga progress
	GetSagaProgress(ctx context.Context, sagaID string) (*model.SagaProgress, error)
	PutSagaProgress(ctx context.Context, progress *model.SagaProgress) error
}

// Storage is a ledger store with lifecycle management.
type Storage interface {
	Ledger

	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction is a ledger store bound to a single atomic unit of work.
type Transaction interface {
	Ledger

	Commit() error
	Rollback() error
}

// RunInTx executes fn inside a store transaction, committing on success.
func RunInTx(ctx context.Context, store Storage, fn func(Ledger) error) error {
	tx, err := store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}
