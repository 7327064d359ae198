package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/shopspring/decimal"
)

// PutBudget upserts a budget by ID. Categories are merged: limits are updated,
// running spent totals of existing categories are never overwritten.
func (l *sqlLedger) PutBudget(ctx context.Context, budget *model.Budget) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := budget.Validate(); err != nil {
		return err
	}

	return l.atomic(ctx, func(q queryable) error {
		var existingID string
		err := q.QueryRowContext(ctx, `
			SELECT id FROM budgets
			WHERE owner_kind = ? AND owner_id = ? AND granularity = ? AND period_key = ? AND id != ?`,
			string(budget.Owner.Kind), budget.Owner.ID, string(budget.Granularity), budget.PeriodKey, budget.ID,
		).Scan(&existingID)
		switch {
		case err == nil:
			return common.Invalid("periodKey", fmt.Sprintf("budget %s already covers %s", existingID, budget.PeriodKey))
		case !errors.Is(err, sql.ErrNoRows):
			return dbError("check budget period", err)
		}

		createdAt := budget.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		_, err = q.ExecContext(ctx, `
			INSERT INTO budgets (owner_kind, owner_id, id, granularity, period_key, total_limit, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (owner_kind, owner_id, id) DO UPDATE SET
				granularity = excluded.granularity,
				period_key = excluded.period_key,
				total_limit = excluded.total_limit`,
			string(budget.Owner.Kind), budget.Owner.ID, budget.ID,
			string(budget.Granularity), budget.PeriodKey, budget.TotalLimit.String(), toUnix(createdAt),
		)
		if err != nil {
			return dbError("put budget "+budget.ID, err)
		}

		// Categories omitted from the document keep their order after the listed ones.
		_, err = q.ExecContext(ctx, `
			UPDATE budget_categories SET position = position + ?
			WHERE owner_kind = ? AND owner_id = ? AND budget_id = ?`,
			len(budget.Categories), string(budget.Owner.Kind), budget.Owner.ID, budget.ID,
		)
		if err != nil {
			return dbError("reorder budget categories", err)
		}

		for i, cat := range budget.Categories {
			_, err := q.ExecContext(ctx, `
				INSERT INTO budget_categories (owner_kind, owner_id, budget_id, name, limit_amount, spent, position)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (owner_kind, owner_id, budget_id, name) DO UPDATE SET
					limit_amount = excluded.limit_amount,
					position = excluded.position`,
				string(budget.Owner.Kind), budget.Owner.ID, budget.ID,
				cat.Name, cat.Limit.String(), cat.Spent.String(), i,
			)
			if err != nil {
				return dbError("put budget category "+cat.Name, err)
			}
		}
		return nil
	})
}

// GetBudget returns a budget with its categories.
func (l *sqlLedger) GetBudget(ctx context.Context, owner model.Owner, budgetID string) (*model.Budget, error) {
	if err := validateOwner(ctx, owner); err != nil {
		return nil, err
	}
	if err := validateString(budgetID, "budgetId"); err != nil {
		return nil, err
	}

	row := l.q.QueryRowContext(ctx, `
		SELECT id, granularity, period_key, total_limit, created_at
		FROM budgets
		WHERE owner_kind = ? AND owner_id = ? AND id = ?`,
		string(owner.Kind), owner.ID, budgetID)

	return l.loadBudget(ctx, row, owner)
}

// FindBudget returns the owner's budget for a period, or ErrNotFound.
func (l *sqlLedger) FindBudget(ctx context.Context, owner model.Owner, granularity model.Granularity, periodKey string) (*model.Budget, error) {
	if err := validateOwner(ctx, owner); err != nil {
		return nil, err
	}

	row := l.q.QueryRowContext(ctx, `
		SELECT id, granularity, period_key, total_limit, created_at
		FROM budgets
		WHERE owner_kind = ? AND owner_id = ? AND granularity = ? AND period_key = ?`,
		string(owner.Kind), owner.ID, string(granularity), periodKey)

	return l.loadBudget(ctx, row, owner)
}

// ListBudgets returns every budget of the owner ordered by period.
func (l *sqlLedger) ListBudgets(ctx context.Context, owner model.Owner) ([]model.Budget, error) {
	if err := validateOwner(ctx, owner); err != nil {
		return nil, err
	}

	rows, err := l.q.QueryContext(ctx, `
		SELECT id, granularity, period_key, total_limit, created_at
		FROM budgets
		WHERE owner_kind = ? AND owner_id = ?
		ORDER BY period_key, granularity, id`,
		string(owner.Kind), owner.ID)
	if err != nil {
		return nil, dbError("list budgets", err)
	}

	var budgets []model.Budget
	for rows.Next() {
		b, err := scanBudget(rows, owner)
		if err != nil {
			_ = rows.Close()
			return nil, dbError("scan budget", err)
		}
		budgets = append(budgets, *b)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, dbError("iterate budgets", err)
	}
	// Rows must be released before the category queries reuse the connection.
	_ = rows.Close()

	for i := range budgets {
		cats, err := l.loadCategories(ctx, owner, budgets[i].ID)
		if err != nil {
			return nil, err
		}
		budgets[i].Categories = cats
		if err := budgets[i].Validate(); err != nil {
			return nil, checkStored("budget", budgets[i].ID, err)
		}
	}

	return budgets, nil
}

// AdjustCategorySpent applies a relative delta to one category's spent total.
func (l *sqlLedger) AdjustCategorySpent(ctx context.Context, owner model.Owner, budgetID, category string, delta decimal.Decimal) error {
	if err := validateOwner(ctx, owner); err != nil {
		return err
	}
	if err := validateString(budgetID, "budgetId"); err != nil {
		return err
	}
	if err := validateString(category, "category"); err != nil {
		return err
	}

	return l.atomic(ctx, func(q queryable) error {
		var spentText string
		err := q.QueryRowContext(ctx, `
			SELECT spent FROM budget_categories
			WHERE owner_kind = ? AND owner_id = ? AND budget_id = ? AND name = ?`,
			string(owner.Kind), owner.ID, budgetID, category,
		).Scan(&spentText)
		if err != nil {
			return dbError(fmt.Sprintf("read spent of %s/%s", budgetID, category), err)
		}

		spent, err := decimal.NewFromString(spentText)
		if err != nil {
			return checkStored("category", category, common.Invalid("spent", "stored value is not a decimal"))
		}

		_, err = q.ExecContext(ctx, `
			UPDATE budget_categories SET spent = ?
			WHERE owner_kind = ? AND owner_id = ? AND budget_id = ? AND name = ?`,
			spent.Add(delta).String(),
			string(owner.Kind), owner.ID, budgetID, category,
		)
		if err != nil {
			return dbError(fmt.Sprintf("adjust spent of %s/%s", budgetID, category), err)
		}
		return nil
	})
}

// PutCategoryLimit inserts a category or updates its limit, leaving spent untouched
// for existing categories.
func (l *sqlLedger) PutCategoryLimit(ctx context.Context, owner model.Owner, budgetID string, category model.Category) error {
	if err := validateOwner(ctx, owner); err != nil {
		return err
	}
	if err := category.Validate(); err != nil {
		return err
	}

	return l.atomic(ctx, func(q queryable) error {
		var position int
		err := q.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM budgets WHERE owner_kind = ? AND owner_id = ? AND id = ?`,
			string(owner.Kind), owner.ID, budgetID,
		).Scan(&position)
		if err != nil {
			return dbError("check budget "+budgetID, err)
		}
		if position == 0 {
			return dbError("put category limit", sql.ErrNoRows)
		}

		err = q.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(position) + 1, 0) FROM budget_categories
			WHERE owner_kind = ? AND owner_id = ? AND budget_id = ?`,
			string(owner.Kind), owner.ID, budgetID,
		).Scan(&position)
		if err != nil {
			return dbError("next category position", err)
		}

		_, err = q.ExecContext(ctx, `
			INSERT INTO budget_categories (owner_kind, owner_id, budget_id, name, limit_amount, spent, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (owner_kind, owner_id, budget_id, name) DO UPDATE SET
				limit_amount = excluded.limit_amount`,
			string(owner.Kind), owner.ID, budgetID,
			category.Name, category.Limit.String(), category.Spent.String(), position,
		)
		if err != nil {
			return dbError("put category limit "+category.Name, err)
		}
		return nil
	})
}

func (l *sqlLedger) loadBudget(ctx context.Context, row *sql.Row, owner model.Owner) (*model.Budget, error) {
	b, err := scanBudget(row, owner)
	if err != nil {
		return nil, dbError("get budget", err)
	}

	cats, err := l.loadCategories(ctx, owner, b.ID)
	if err != nil {
		return nil, err
	}
	b.Categories = cats

	if err := b.Validate(); err != nil {
		return nil, checkStored("budget", b.ID, err)
	}
	return b, nil
}

func (l *sqlLedger) loadCategories(ctx context.Context, owner model.Owner, budgetID string) ([]model.Category, error) {
	rows, err := l.q.QueryContext(ctx, `
		SELECT name, limit_amount, spent
		FROM budget_categories
		WHERE owner_kind = ? AND owner_id = ? AND budget_id = ?
		ORDER BY position, name`,
		string(owner.Kind), owner.ID, budgetID)
	if err != nil {
		return nil, dbError("list budget categories", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		var name, limitText, spentText string
		if err := rows.Scan(&name, &limitText, &spentText); err != nil {
			return nil, dbError("scan budget category", err)
		}
		limit, err := decimal.NewFromString(limitText)
		if err != nil {
			return nil, checkStored("category", name, common.Invalid("limit", "stored value is not a decimal"))
		}
		spent, err := decimal.NewFromString(spentText)
		if err != nil {
			return nil, checkStored("category", name, common.Invalid("spent", "stored value is not a decimal"))
		}
		categories = append(categories, model.Category{Name: name, Limit: limit, Spent: spent})
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("iterate budget categories", err)
	}
	return categories, nil
}

func scanBudget(row scanner, owner model.Owner) (*model.Budget, error) {
	var (
		b           model.Budget
		granularity string
		totalLimit  string
		createdAt   int64
	)
	if err := row.Scan(&b.ID, &granularity, &b.PeriodKey, &totalLimit, &createdAt); err != nil {
		return nil, err
	}

	limit, err := decimal.NewFromString(totalLimit)
	if err != nil {
		return nil, common.Invalid("totalLimit", "stored value is not a decimal")
	}

	b.Owner = owner
	b.Granularity = model.Granularity(granularity)
	b.TotalLimit = limit
	b.CreatedAt = fromUnix(createdAt)
	return &b, nil
}
