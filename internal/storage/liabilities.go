package storage

import (
	"context"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/shopspring/decimal"
)

// PutLiability upserts a liability of an account.
func (l *sqlLedger) PutLiability(ctx context.Context, li *model.Liability) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := li.Validate(); err != nil {
		return err
	}

	_, err := l.q.ExecContext(ctx, `
		INSERT INTO liabilities (account_id, id, name, amount, interest_rate, due_date, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, id) DO UPDATE SET
			name = excluded.name,
			amount = excluded.amount,
			interest_rate = excluded.interest_rate,
			due_date = excluded.due_date,
			status = excluded.status`,
		li.AccountID, li.ID, li.Name, li.Amount.String(), li.InterestRate.String(),
		toUnix(li.DueDate), string(li.Status),
	)
	if err != nil {
		return dbError("put liability "+li.ID, err)
	}
	return nil
}

// ListLiabilities returns an account's liabilities by due date.
func (l *sqlLedger) ListLiabilities(ctx context.Context, accountID string) ([]model.Liability, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(accountID, "accountId"); err != nil {
		return nil, err
	}

	rows, err := l.q.QueryContext(ctx, `
		SELECT id, name, amount, interest_rate, due_date, status
		FROM liabilities
		WHERE account_id = ?
		ORDER BY due_date, id`, accountID)
	if err != nil {
		return nil, dbError("list liabilities", err)
	}
	defer func() { _ = rows.Close() }()

	var liabilities []model.Liability
	for rows.Next() {
		var (
			li                 model.Liability
			amount, rate, stat string
			dueDate            int64
		)
		if err := rows.Scan(&li.ID, &li.Name, &amount, &rate, &dueDate, &stat); err != nil {
			return nil, dbError("scan liability", err)
		}
		if li.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, checkStored("liability", li.ID, common.Invalid("amount", "stored value is not a decimal"))
		}
		if li.InterestRate, err = decimal.NewFromString(rate); err != nil {
			return nil, checkStored("liability", li.ID, common.Invalid("interestRate", "stored value is not a decimal"))
		}
		li.AccountID = accountID
		li.DueDate = fromUnix(dueDate)
		li.Status = model.LiabilityStatus(stat)
		if err := li.Validate(); err != nil {
			return nil, checkStored("liability", li.ID, err)
		}
		liabilities = append(liabilities, li)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate liabilities", err)
	}
	return liabilities, nil
}

// SetLiabilityStatus changes a liability's status.
func (l *sqlLedger) SetLiabilityStatus(ctx context.Context, accountID, liabilityID string, status model.LiabilityStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	shape := model.Liability{ID: liabilityID, AccountID: accountID, Name: "-", Amount: decimal.NewFromInt(1), Status: status}
	if err := shape.Validate(); err != nil {
		return err
	}

	result, err := l.q.ExecContext(ctx, `
		UPDATE liabilities SET status = ? WHERE account_id = ? AND id = ?`,
		string(status), accountID, liabilityID)
	if err != nil {
		return dbError("set liability status", err)
	}
	return requireAffected(result, "set liability status "+liabilityID)
}
