package testutil

import (
	"context"
	"time"

	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/shopspring/decimal"
)

// BudgetBuilder provides a fluent interface for seeding budgets.
//
// Example:
//
//	db.NewBudget(owner, "b1").
//		Monthly(now).
//		WithCategory("Food", "2000").
//		Seed()
type BudgetBuilder struct {
	db     *TestDB
	budget model.Budget
}

// NewBudget starts a monthly budget for the current month.
func (db *TestDB) NewBudget(owner model.Owner, id string) *BudgetBuilder {
	now := time.Now().UTC()
	return &BudgetBuilder{
		db: db,
		budget: model.Budget{
			ID:          id,
			Owner:       owner,
			Granularity: model.Monthly,
			PeriodKey:   model.PeriodKey(model.Monthly, now),
			TotalLimit:  decimal.Zero,
			CreatedAt:   now,
		},
	}
}

// For sets the budget period to the one containing t.
func (b *BudgetBuilder) For(g model.Granularity, t time.Time) *BudgetBuilder {
	b.budget.Granularity = g
	b.budget.PeriodKey = model.PeriodKey(g, t)
	return b
}

// Monthly is shorthand for For(model.Monthly, t).
func (b *BudgetBuilder) Monthly(t time.Time) *BudgetBuilder {
	return b.For(model.Monthly, t)
}

// WithCategory appends a category with a zero spent total.
func (b *BudgetBuilder) WithCategory(name, limit string) *BudgetBuilder {
	return b.WithSpentCategory(name, limit, "0")
}

// WithSpentCategory appends a category with a preset spent total.
func (b *BudgetBuilder) WithSpentCategory(name, limit, spent string) *BudgetBuilder {
	b.budget.Categories = append(b.budget.Categories, model.Category{
		Name:  name,
		Limit: decimal.RequireFromString(limit),
		Spent: decimal.RequireFromString(spent),
	})
	b.budget.TotalLimit = b.budget.TotalLimit.Add(decimal.RequireFromString(limit))
	return b
}

// WithTotalLimit overrides the summed total limit.
func (b *BudgetBuilder) WithTotalLimit(limit string) *BudgetBuilder {
	b.budget.TotalLimit = decimal.RequireFromString(limit)
	return b
}

// Seed writes the budget and returns it.
func (b *BudgetBuilder) Seed() *model.Budget {
	b.db.t.Helper()
	budget := b.budget
	if err := b.db.Storage.PutBudget(context.Background(), &budget); err != nil {
		b.db.t.Fatalf("failed to seed budget %s: %v", budget.ID, err)
	}
	return &budget
}
