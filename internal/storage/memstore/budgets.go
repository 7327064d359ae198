package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/shopspring/decimal"
)

func (l memLedger) PutBudget(ctx context.Context, budget *model.Budget) error {
	if err := budget.Validate(); err != nil {
		return err
	}
	return l.with(ctx, func(st *state) error {
		budgets := st.budgets[budget.Owner]
		for id, b := range budgets {
			if id != budget.ID && b.Granularity == budget.Granularity && b.PeriodKey == budget.PeriodKey {
				return common.Invalid("periodKey", fmt.Sprintf("budget %s already covers %s", id, budget.PeriodKey))
			}
		}
		if budgets == nil {
			budgets = make(map[string]model.Budget)
			st.budgets[budget.Owner] = budgets
		}

		next := cloneBudget(*budget)
		if next.CreatedAt.IsZero() {
			next.CreatedAt = nowUTC()
		}
		next.CreatedAt = next.CreatedAt.UTC()

		existing, ok := budgets[budget.ID]
		if ok {
			next.CreatedAt = existing.CreatedAt
			for i, c := range next.Categories {
				if prev, found := existing.Category(c.Name); found {
					next.Categories[i].Spent = prev.Spent
				}
			}
			for _, prev := range existing.Categories {
				if _, listed := next.Category(prev.Name); !listed {
					next.Categories = append(next.Categories, prev)
				}
			}
		}
		budgets[budget.ID] = next
		return nil
	})
}

func (l memLedger) GetBudget(ctx context.Context, owner model.Owner, budgetID string) (*model.Budget, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if err := requireString(budgetID, "budgetId"); err != nil {
		return nil, err
	}
	var out model.Budget
	err := l.with(ctx, func(st *state) error {
		b, ok := st.budgets[owner][budgetID]
		if !ok {
			return notFound("get budget " + budgetID)
		}
		out = cloneBudget(b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (l memLedger) FindBudget(ctx context.Context, owner model.Owner, granularity model.Granularity, periodKey string) (*model.Budget, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	var out model.Budget
	err := l.with(ctx, func(st *state) error {
		for _, b := range st.budgets[owner] {
			if b.Granularity == granularity && b.PeriodKey == periodKey {
				out = cloneBudget(b)
				return nil
			}
		}
		return notFound(fmt.Sprintf("find %s budget %s", granularity, periodKey))
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (l memLedger) ListBudgets(ctx context.Context, owner model.Owner) ([]model.Budget, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	var out []model.Budget
	err := l.with(ctx, func(st *state) error {
		for _, b := range st.budgets[owner] {
			out = append(out, cloneBudget(b))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b model.Budget) int {
		return cmp.Or(
			cmp.Compare(a.PeriodKey, b.PeriodKey),
			cmp.Compare(a.Granularity, b.Granularity),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out, nil
}

func (l memLedger) AdjustCategorySpent(ctx context.Context, owner model.Owner, budgetID, category string, delta decimal.Decimal) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	if err := requireString(budgetID, "budgetId"); err != nil {
		return err
	}
	if err := requireString(category, "category"); err != nil {
		return err
	}
	return l.with(ctx, func(st *state) error {
		b, ok := st.budgets[owner][budgetID]
		if !ok {
			return notFound("adjust spent of " + budgetID)
		}
		for i := range b.Categories {
			if b.Categories[i].Name == category {
				b.Categories[i].Spent = b.Categories[i].Spent.Add(delta)
				return nil
			}
		}
		return notFound(fmt.Sprintf("adjust spent of %s/%s", budgetID, category))
	})
}

func (l memLedger) PutCategoryLimit(ctx context.Context, owner model.Owner, budgetID string, category model.Category) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	if err := category.Validate(); err != nil {
		return err
	}
	return l.with(ctx, func(st *state) error {
		b, ok := st.budgets[owner][budgetID]
		if !ok {
			return notFound("put category limit " + budgetID)
		}
		for i := range b.Categories {
			if b.Categories[i].Name == category.Name {
				b.Categories[i].Limit = category.Limit
				return nil
			}
		}
		b.Categories = append(b.Categories, category)
		st.budgets[owner][budgetID] = b
		return nil
	})
}
