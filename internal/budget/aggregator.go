// Package budget maintains per-period budgets and their live category totals.
package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/ledgerline/internal/cache"
	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/membership"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregator resolves active budgets and keeps category spent totals in step
// with the ledger.
type Aggregator struct {
	store service.Storage
	ids   *cache.LRUCache[string]
	now   func() time.Time
}

// NewAggregator returns an Aggregator. ids caches resolved budget IDs per
// period; totals are always read from the store.
func NewAggregator(store service.Storage, ids *cache.LRUCache[string]) *Aggregator {
	if ids == nil {
		ids = cache.NewLRUCache[string](cache.DefaultMaxSize, 0)
	}
	return &Aggregator{store: store, ids: ids, now: time.Now}
}

// ActiveBudgetFor returns the budget covering now, or nil when the owner has
// none. An account's linked budget wins when it covers now; otherwise the
// monthly, weekly, and yearly periods are tried in that order.
func (a *Aggregator) ActiveBudgetFor(ctx context.Context, owner model.Owner, now time.Time) (*model.Budget, error) {
	if _, err := membership.AuthorizeOwner(ctx, a.store, owner, membership.Read); err != nil {
		return nil, err
	}
	return a.resolve(ctx, a.store, owner, now)
}

func (a *Aggregator) resolve(ctx context.Context, l service.Ledger, owner model.Owner, now time.Time) (*model.Budget, error) {
	if !owner.IsWorkspace() {
		acct, err := l.GetAccount(ctx, owner.ID)
		switch {
		case err == nil && acct.ActiveBudgetRef != "":
			b, err := l.GetBudget(ctx, owner, acct.ActiveBudgetRef)
			if err == nil && b.Covers(now) {
				return b, nil
			}
			if err != nil && !errors.Is(err, common.ErrNotFound) {
				return nil, err
			}
		case err != nil && !errors.Is(err, common.ErrNotFound):
			return nil, err
		}
	}

	for _, g := range model.Granularities {
		b, err := a.findCached(ctx, l, owner, g, model.PeriodKey(g, now))
		if err != nil {
			return nil, err
		}
		if b != nil {
			return b, nil
		}
	}
	return nil, nil
}

func (a *Aggregator) findCached(ctx context.Context, l service.Ledger, owner model.Owner, g model.Granularity, periodKey string) (*model.Budget, error) {
	key := cacheKey(owner, g, periodKey)
	if id, ok := a.ids.Get(key); ok {
		b, err := l.GetBudget(ctx, owner, id)
		if err == nil && b.PeriodKey == periodKey && b.Granularity == g {
			return b, nil
		}
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		a.ids.Delete(key)
	}

	b, err := l.FindBudget(ctx, owner, g, periodKey)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.ids.Set(key, b.ID)
	return b, nil
}

func cacheKey(owner model.Owner, g model.Granularity, periodKey string) string {
	return owner.String() + "|" + string(g) + "|" + periodKey
}

// OverspentCategories returns the active budget's categories whose spent
// exceeds their limit, in budget order.
func (a *Aggregator) OverspentCategories(ctx context.Context, owner model.Owner, now time.Time) ([]model.Category, error) {
	b, err := a.ActiveBudgetFor(ctx, owner, now)
	if err != nil || b == nil {
		return nil, err
	}

	var over []model.Category
	for _, c := range b.Categories {
		if c.Overspent() {
			over = append(over, c)
		}
	}
	return over, nil
}

// CategoryValue is one slice of a proportional chart.
type CategoryValue struct {
	Name  string
	Value decimal.Decimal
}

// CategoryUsage reports one category of the active budget.
type CategoryUsage struct {
	Name      string
	Limit     decimal.Decimal
	Spent     decimal.Decimal
	Remaining decimal.Decimal
	Percent   decimal.Decimal
	Overspent bool
}

// Summary is the derived view of the active budget. BudgetID is empty when
// the owner has no active budget.
type Summary struct {
	TotalLimit     decimal.Decimal
	TotalSpent     decimal.Decimal
	TotalRemaining decimal.Decimal
	BudgetID       string
	PeriodKey      string
	Granularity    model.Granularity
	Slices         []CategoryValue
	Usage          []CategoryUsage
}

// Summary totals the active budget. Remaining amounts never go below zero;
// overspending shows through OverspentCategories instead.
func (a *Aggregator) Summary(ctx context.Context, owner model.Owner, now time.Time) (*Summary, error) {
	b, err := a.ActiveBudgetFor(ctx, owner, now)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return &Summary{}, nil
	}
	return Summarize(b), nil
}

// Summarize derives the summary of a loaded budget.
func Summarize(b *model.Budget) *Summary {
	s := &Summary{
		BudgetID:    b.ID,
		PeriodKey:   b.PeriodKey,
		Granularity: b.Granularity,
		TotalLimit:  b.TotalLimit,
		TotalSpent:  b.TotalSpent(),
	}
	if !s.TotalLimit.IsPositive() {
		s.TotalLimit = b.CategoryLimitSum()
	}
	s.TotalRemaining = decimal.Max(s.TotalLimit.Sub(s.TotalSpent), decimal.Zero)

	for _, c := range b.Categories {
		if c.Spent.IsPositive() {
			s.Slices = append(s.Slices, CategoryValue{Name: c.Name, Value: c.Spent})
		}
		s.Usage = append(s.Usage, CategoryUsage{
			Name:      c.Name,
			Limit:     c.Limit,
			Spent:     c.Spent,
			Remaining: c.Remaining(),
			Percent:   c.UsagePercent(),
			Overspent: c.Overspent(),
		})
	}
	return s
}

// Post adds an expense to every budget of its owner whose period contains
// the occurrence date and which tracks its category. Income is ignored.
func (a *Aggregator) Post(ctx context.Context, l service.Ledger, txn *model.Transaction) error {
	return a.apply(ctx, l, txn, txn.Amount)
}

// Reverse undoes a previous Post of the same entry.
func (a *Aggregator) Reverse(ctx context.Context, l service.Ledger, txn *model.Transaction) error {
	return a.apply(ctx, l, txn, txn.Amount.Neg())
}

func (a *Aggregator) apply(ctx context.Context, l service.Ledger, txn *model.Transaction, delta decimal.Decimal) error {
	if !txn.IsExpense() {
		return nil
	}

	budgets, err := l.ListBudgets(ctx, txn.Owner)
	if err != nil {
		return err
	}
	for _, b := range budgets {
		if !b.Covers(txn.OccurredAt) {
			continue
		}
		if _, ok := b.Category(txn.Category); !ok {
			continue
		}
		if err := l.AdjustCategorySpent(ctx, txn.Owner, b.ID, txn.Category, delta); err != nil {
			return fmt.Errorf("budget %s: %w", b.ID, err)
		}
		slog.Debug("Adjusted category spent",
			"owner", txn.Owner.String(),
			"budget", b.ID,
			"category", txn.Category,
			"delta", delta.String())
	}
	return nil
}

// CategoryInput declares one category of a new budget.
type CategoryInput struct {
	Name  string
	Limit decimal.Decimal
}

// Input describes a budget to create. PeriodKey defaults to the period
// containing now; ID is allocated when empty.
type Input struct {
	TotalLimit  decimal.Decimal
	ID          string
	PeriodKey   string
	Granularity model.Granularity
	Categories  []CategoryInput
}

// Build validates the input and returns the budget document it describes,
// with every spent total at zero.
func (in Input) Build(owner model.Owner, now time.Time) (*model.Budget, error) {
	if !in.Granularity.Valid() {
		return nil, common.Invalid("granularity", "must be weekly, monthly, or yearly")
	}

	b := &model.Budget{
		ID:          in.ID,
		Owner:       owner,
		Granularity: in.Granularity,
		PeriodKey:   in.PeriodKey,
		TotalLimit:  in.TotalLimit,
		CreatedAt:   now.UTC(),
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.PeriodKey == "" {
		b.PeriodKey = model.PeriodKey(in.Granularity, now)
	}
	for _, c := range in.Categories {
		b.Categories = append(b.Categories, model.Category{Name: strings.TrimSpace(c.Name), Limit: c.Limit, Spent: decimal.Zero})
	}
	if b.TotalLimit.IsZero() {
		b.TotalLimit = b.CategoryLimitSum()
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// CreateBudget writes a new budget. Spent totals start from the expenses
// already recorded in the period so the new budget is reconciled from the
// first read. A second budget for the same period is rejected as invalid.
func (a *Aggregator) CreateBudget(ctx context.Context, owner model.Owner, in Input) (*model.Budget, error) {
	if _, err := membership.AuthorizeOwner(ctx, a.store, owner, membership.Write); err != nil {
		return nil, err
	}
	b, err := in.Build(owner, a.now())
	if err != nil {
		return nil, err
	}

	err = service.RunInTx(ctx, a.store, func(l service.Ledger) error {
		existing, err := l.FindBudget(ctx, owner, b.Granularity, b.PeriodKey)
		switch {
		case err == nil:
			return common.Invalid("periodKey", fmt.Sprintf("budget %s already covers %s", existing.ID, b.PeriodKey))
		case !errors.Is(err, common.ErrNotFound):
			return err
		}

		spent, err := expectedSpent(ctx, l, b)
		if err != nil {
			return err
		}
		for i := range b.Categories {
			b.Categories[i].Spent = spent[b.Categories[i].Name]
		}
		return l.PutBudget(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	a.ids.Set(cacheKey(owner, b.Granularity, b.PeriodKey), b.ID)
	slog.Info("Created budget", "owner", owner.String(), "budget", b.ID, "period", b.PeriodKey)
	return b, nil
}

// SetCategoryLimit changes a category's limit, adding the category when the
// budget does not track it yet. Existing spent totals are never touched.
func (a *Aggregator) SetCategoryLimit(ctx context.Context, owner model.Owner, budgetID, name string, limit decimal.Decimal) error {
	if _, err := membership.AuthorizeOwner(ctx, a.store, owner, membership.Write); err != nil {
		return err
	}
	cat := model.Category{Name: name, Limit: limit}
	if err := cat.Validate(); err != nil {
		return err
	}

	return service.RunInTx(ctx, a.store, func(l service.Ledger) error {
		b, err := l.GetBudget(ctx, owner, budgetID)
		if err != nil {
			return err
		}
		if _, ok := b.Category(name); !ok {
			spent, err := expectedSpent(ctx, l, b)
			if err != nil {
				return err
			}
			cat.Spent = spent[name]
		}
		return l.PutCategoryLimit(ctx, owner, budgetID, cat)
	})
}

// Correction records one category whose stored total drifted from the ledger.
type Correction struct {
	Category string
	Was      decimal.Decimal
	Now      decimal.Decimal
}

// Reconcile recomputes every category's spent total from the ledger and
// applies the difference as a delta.
func (a *Aggregator) Reconcile(ctx context.Context, owner model.Owner, budgetID string) ([]Correction, error) {
	if _, err := membership.AuthorizeOwner(ctx, a.store, owner, membership.Write); err != nil {
		return nil, err
	}

	var corrections []Correction
	err := service.RunInTx(ctx, a.store, func(l service.Ledger) error {
		corrections = nil
		b, err := l.GetBudget(ctx, owner, budgetID)
		if err != nil {
			return err
		}
		spent, err := expectedSpent(ctx, l, b)
		if err != nil {
			return err
		}

		for _, c := range b.Categories {
			want := spent[c.Name]
			if want.Equal(c.Spent) {
				continue
			}
			if err := l.AdjustCategorySpent(ctx, owner, b.ID, c.Name, want.Sub(c.Spent)); err != nil {
				return err
			}
			corrections = append(corrections, Correction{Category: c.Name, Was: c.Spent, Now: want})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, c := range corrections {
		slog.Warn("Corrected category drift",
			"owner", owner.String(),
			"budget", budgetID,
			"category", c.Category,
			"was", c.Was.String(),
			"now", c.Now.String())
	}
	return corrections, nil
}

// expectedSpent sums the period's expenses per category.
func expectedSpent(ctx context.Context, l service.Ledger, b *model.Budget) (map[string]decimal.Decimal, error) {
	from, to, err := b.Bounds()
	if err != nil {
		return nil, err
	}
	txns, err := l.ListTransactions(ctx, b.Owner, service.TransactionFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}

	spent := make(map[string]decimal.Decimal)
	for i := range txns {
		if txns[i].IsExpense() {
			spent[txns[i].Category] = spent[txns[i].Category].Add(txns[i].Amount)
		}
	}
	return spent, nil
}
