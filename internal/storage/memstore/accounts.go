package memstore

import (
	"context"
	"slices"

	"github.com/Veraticus/ledgerline/internal/model"
)

func (l memLedger) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	if err := requireString(accountID, "accountId"); err != nil {
		return nil, err
	}
	var out model.Account
	err := l.with(ctx, func(st *state) error {
		a, ok := st.accounts[accountID]
		if !ok {
			return notFound("get account " + accountID)
		}
		out = a
		out.WorkspaceIDs = slices.Clone(a.WorkspaceIDs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (l memLedger) PutAccount(ctx context.Context, account *model.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	return l.with(ctx, func(st *state) error {
		existing, ok := st.accounts[account.ID]
		if !ok {
			existing = model.Account{ID: account.ID}
		}
		existing.Profile = account.Profile
		st.accounts[account.ID] = existing
		return nil
	})
}

func (l memLedger) SetActiveBudget(ctx context.Context, accountID, budgetID string) error {
	if err := requireString(budgetID, "active_budget_ref"); err != nil {
		return err
	}
	return l.updateAccount(ctx, accountID, "set active budget", func(a *model.Account) {
		a.ActiveBudgetRef = budgetID
	})
}

func (l memLedger) SetPrimaryWorkspace(ctx context.Context, accountID, workspaceID string) error {
	if err := requireString(workspaceID, "primary_workspace_id"); err != nil {
		return err
	}
	return l.updateAccount(ctx, accountID, "set primary workspace", func(a *model.Account) {
		a.PrimaryWorkspaceID = workspaceID
	})
}

func (l memLedger) AttachWorkspace(ctx context.Context, accountID, workspaceID string) error {
	if err := requireString(workspaceID, "workspaceId"); err != nil {
		return err
	}
	return l.updateAccount(ctx, accountID, "attach workspace", func(a *model.Account) {
		if !a.HasWorkspace(workspaceID) {
			a.WorkspaceIDs = append(a.WorkspaceIDs, workspaceID)
		}
	})
}

func (l memLedger) updateAccount(ctx context.Context, accountID, op string, fn func(*model.Account)) error {
	if err := requireString(accountID, "accountId"); err != nil {
		return err
	}
	return l.with(ctx, func(st *state) error {
		a, ok := st.accounts[accountID]
		if !ok {
			return notFound(op + " " + accountID)
		}
		fn(&a)
		st.accounts[accountID] = a
		return nil
	})
}
