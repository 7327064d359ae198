package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/Veraticus/ledgerline/internal/model"
)

// GetAccount returns an account with its attached workspaces.
func (l *sqlLedger) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(accountID, "accountId"); err != nil {
		return nil, err
	}

	var (
		acct model.Account
		mode string
	)
	err := l.q.QueryRowContext(ctx, `
		SELECT id, display_name, email, currency, mode, active_budget_ref, primary_workspace_id
		FROM accounts
		WHERE id = ?`, accountID,
	).Scan(&acct.ID, &acct.Profile.DisplayName, &acct.Profile.Email, &acct.Profile.Currency,
		&mode, &acct.ActiveBudgetRef, &acct.PrimaryWorkspaceID)
	if err != nil {
		return nil, dbError("get account "+accountID, err)
	}
	acct.Profile.Mode = model.AccountMode(mode)

	rows, err := l.q.QueryContext(ctx, `
		SELECT workspace_id FROM account_workspaces
		WHERE account_id = ?
		ORDER BY attached_at, workspace_id`, accountID)
	if err != nil {
		return nil, dbError("list account workspaces", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var wsID string
		if err := rows.Scan(&wsID); err != nil {
			return nil, dbError("scan account workspace", err)
		}
		acct.WorkspaceIDs = append(acct.WorkspaceIDs, wsID)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate account workspaces", err)
	}

	if err := acct.Validate(); err != nil {
		return nil, checkStored("account", accountID, err)
	}
	return &acct, nil
}

// PutAccount upserts the account profile. Links (budget, workspaces) are
// managed by their own operations and are left untouched on update.
func (l *sqlLedger) PutAccount(ctx context.Context, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := account.Validate(); err != nil {
		return err
	}

	_, err := l.q.ExecContext(ctx, `
		INSERT INTO accounts (id, display_name, email, currency, mode)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email,
			currency = excluded.currency,
			mode = excluded.mode`,
		account.ID, account.Profile.DisplayName, account.Profile.Email,
		account.Profile.Currency, string(account.Profile.Mode),
	)
	if err != nil {
		return dbError("put account "+account.ID, err)
	}
	return nil
}

// SetActiveBudget links a budget as the account's active budget.
func (l *sqlLedger) SetActiveBudget(ctx context.Context, accountID, budgetID string) error {
	return l.setAccountField(ctx, accountID, "active_budget_ref", budgetID)
}

// SetPrimaryWorkspace writes the legacy single-workspace pointer.
func (l *sqlLedger) SetPrimaryWorkspace(ctx context.Context, accountID, workspaceID string) error {
	return l.setAccountField(ctx, accountID, "primary_workspace_id", workspaceID)
}

func (l *sqlLedger) setAccountField(ctx context.Context, accountID, column, value string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(accountID, "accountId"); err != nil {
		return err
	}
	if err := validateString(value, column); err != nil {
		return err
	}

	// column is one of a fixed set of identifiers chosen by this package.
	result, err := l.q.ExecContext(ctx, `UPDATE accounts SET `+column+` = ? WHERE id = ?`, value, accountID)
	if err != nil {
		return dbError("set account "+column, err)
	}
	return requireAffected(result, "set account "+column)
}

// AttachWorkspace adds a workspace to the account's list; repeated calls are no-ops.
func (l *sqlLedger) AttachWorkspace(ctx context.Context, accountID, workspaceID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(accountID, "accountId"); err != nil {
		return err
	}
	if err := validateString(workspaceID, "workspaceId"); err != nil {
		return err
	}

	return l.atomic(ctx, func(q queryable) error {
		var n int
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE id = ?`, accountID).Scan(&n); err != nil {
			return dbError("check account "+accountID, err)
		}
		if n == 0 {
			return dbError("attach workspace", sql.ErrNoRows)
		}

		_, err := q.ExecContext(ctx, `
			INSERT INTO account_workspaces (account_id, workspace_id, attached_at)
			VALUES (?, ?, ?)
			ON CONFLICT (account_id, workspace_id) DO NOTHING`,
			accountID, workspaceID, toUnix(time.Now()))
		if err != nil {
			return dbError("attach workspace "+workspaceID, err)
		}
		return nil
	})
}
