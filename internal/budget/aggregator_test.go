package budget

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/identity"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	now   = time.Date(2026, time.March, 18, 12, 0, 0, 0, time.UTC)
	alice = model.AccountOwner("alice")
)

func as(user string) context.Context {
	return identity.WithActor(context.Background(), user)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newAggregator(db *testutil.TestDB) *Aggregator {
	db.SeedAccount("alice")
	a := NewAggregator(db.Storage, nil)
	a.now = func() time.Time { return now }
	return a
}

func insert(t *testing.T, db *testutil.TestDB, owner model.Owner, id, amount, category string, kind model.Kind, at time.Time) *model.Transaction {
	t.Helper()
	txn := &model.Transaction{
		ID:         id,
		Owner:      owner,
		Amount:     dec(amount),
		Category:   category,
		Kind:       kind,
		OccurredAt: at,
		WrittenAt:  at,
	}
	require.NoError(t, db.Storage.InsertTransaction(context.Background(), txn))
	return txn
}

func names(cats []model.Category) []string {
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		out = append(out, c.Name)
	}
	return out
}

func TestAggregator_OverspentCategories(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		db.NewBudget(alice, "b1").Monthly(now).
			WithSpentCategory("Food", "1000", "1200").
			WithSpentCategory("Travel", "500", "300").
			Seed()

		over, err := newAggregator(db).OverspentCategories(as("alice"), alice, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"Food"}, names(over))
	})
}

func TestAggregator_OverspentWithoutBudget(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		over, err := newAggregator(db).OverspentCategories(as("alice"), alice, now)
		require.NoError(t, err)
		assert.Empty(t, over)
	})
}

func TestAggregator_Summary(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		db.NewBudget(alice, "b1").Monthly(now).
			WithSpentCategory("Food", "1000", "1200").
			WithSpentCategory("Gifts", "0", "50").
			WithSpentCategory("Travel", "500", "0").
			Seed()

		s, err := newAggregator(db).Summary(as("alice"), alice, now)
		require.NoError(t, err)

		assert.Equal(t, "b1", s.BudgetID)
		assert.True(t, s.TotalLimit.Equal(dec("1500")))
		assert.True(t, s.TotalSpent.Equal(dec("1250")))
		assert.True(t, s.TotalRemaining.Equal(dec("250")))

		require.Len(t, s.Slices, 2)
		assert.Equal(t, "Food", s.Slices[0].Name)
		assert.Equal(t, "Gifts", s.Slices[1].Name)

		require.Len(t, s.Usage, 3)
		assert.True(t, s.Usage[0].Remaining.IsZero(), "remaining is clamped")
		assert.True(t, s.Usage[0].Overspent)
		assert.True(t, s.Usage[1].Percent.IsZero(), "zero limit reads as zero percent")
		assert.True(t, s.Usage[2].Remaining.Equal(dec("500")))
	})
}

func TestSummarize_RemainingNeverNegative(t *testing.T) {
	b := &model.Budget{
		ID:          "b1",
		Owner:       alice,
		Granularity: model.Monthly,
		PeriodKey:   "2026-03",
		TotalLimit:  dec("100"),
		Categories:  []model.Category{{Name: "Food", Limit: dec("100"), Spent: dec("350")}},
	}
	s := Summarize(b)
	assert.True(t, s.TotalRemaining.IsZero())
	assert.True(t, s.TotalSpent.Equal(dec("350")))
}

func TestAggregator_SummaryWithoutBudget(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		s, err := newAggregator(db).Summary(as("alice"), alice, now)
		require.NoError(t, err)
		assert.Empty(t, s.BudgetID)
		assert.True(t, s.TotalRemaining.IsZero())
	})
}

func TestAggregator_ActiveBudgetFor(t *testing.T) {
	t.Run("no budget is not an error", func(t *testing.T) {
		testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
			b, err := newAggregator(db).ActiveBudgetFor(as("alice"), alice, now)
			require.NoError(t, err)
			assert.Nil(t, b)
		})
	})

	t.Run("monthly before weekly", func(t *testing.T) {
		testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
			db.NewBudget(alice, "week").For(model.Weekly, now).WithCategory("Food", "100").Seed()
			db.NewBudget(alice, "month").Monthly(now).WithCategory("Food", "400").Seed()

			b, err := newAggregator(db).ActiveBudgetFor(as("alice"), alice, now)
			require.NoError(t, err)
			require.NotNil(t, b)
			assert.Equal(t, "month", b.ID)
		})
	})

	t.Run("falls back to weekly", func(t *testing.T) {
		testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
			db.NewBudget(alice, "old").Monthly(now.AddDate(0, -1, 0)).WithCategory("Food", "400").Seed()
			db.NewBudget(alice, "week").For(model.Weekly, now).WithCategory("Food", "100").Seed()

			b, err := newAggregator(db).ActiveBudgetFor(as("alice"), alice, now)
			require.NoError(t, err)
			require.NotNil(t, b)
			assert.Equal(t, "week", b.ID)
		})
	})

	t.Run("linked budget wins while it covers now", func(t *testing.T) {
		testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
			db.SeedAccount("alice")
			db.NewBudget(alice, "month").Monthly(now).WithCategory("Food", "400").Seed()
			db.NewBudget(alice, "year").For(model.Yearly, now).WithCategory("Food", "5000").Seed()
			require.NoError(t, db.Storage.SetActiveBudget(context.Background(), "alice", "year"))

			a := newAggregator(db)
			b, err := a.ActiveBudgetFor(as("alice"), alice, now)
			require.NoError(t, err)
			assert.Equal(t, "year", b.ID)

			b, err = a.ActiveBudgetFor(as("alice"), alice, now.AddDate(1, 0, 0))
			require.NoError(t, err)
			assert.Nil(t, b)
		})
	})

	t.Run("cached ids still return current totals", func(t *testing.T) {
		testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
			db.NewBudget(alice, "month").Monthly(now).WithCategory("Food", "400").Seed()
			a := newAggregator(db)

			_, err := a.ActiveBudgetFor(as("alice"), alice, now)
			require.NoError(t, err)
			require.NoError(t, db.Storage.AdjustCategorySpent(context.Background(), alice, "month", "Food", dec("25")))

			b, err := a.ActiveBudgetFor(as("alice"), alice, now)
			require.NoError(t, err)
			assert.True(t, b.Categories[0].Spent.Equal(dec("25")))
		})
	})

	t.Run("other accounts are not found", func(t *testing.T) {
		testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
			_, err := newAggregator(db).ActiveBudgetFor(as("mallory"), alice, now)
			assert.ErrorIs(t, err, common.ErrNotFound)
		})
	})
}

func TestAggregator_PostAndReverse(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		ctx := context.Background()
		db.NewBudget(alice, "month").Monthly(now).WithCategory("Food", "2000").Seed()
		db.NewBudget(alice, "week").For(model.Weekly, now).WithCategory("Food", "500").Seed()
		db.NewBudget(alice, "april").Monthly(now.AddDate(0, 1, 0)).WithCategory("Food", "2000").Seed()
		a := newAggregator(db)

		expense := &model.Transaction{Owner: alice, Amount: dec("120.50"), Category: "Food", Kind: model.KindExpense, OccurredAt: now}
		require.NoError(t, a.Post(ctx, db.Storage, expense))

		assert.True(t, db.MustGetCategory(alice, "month", "Food").Spent.Equal(dec("120.50")))
		assert.True(t, db.MustGetCategory(alice, "week", "Food").Spent.Equal(dec("120.50")))
		assert.True(t, db.MustGetCategory(alice, "april", "Food").Spent.IsZero())

		income := &model.Transaction{Owner: alice, Amount: dec("900"), Category: "Food", Kind: model.KindIncome, OccurredAt: now}
		require.NoError(t, a.Post(ctx, db.Storage, income))
		assert.True(t, db.MustGetCategory(alice, "month", "Food").Spent.Equal(dec("120.50")))

		untracked := &model.Transaction{Owner: alice, Amount: dec("10"), Category: "Rent", Kind: model.KindExpense, OccurredAt: now}
		require.NoError(t, a.Post(ctx, db.Storage, untracked))

		require.NoError(t, a.Reverse(ctx, db.Storage, expense))
		assert.True(t, db.MustGetCategory(alice, "month", "Food").Spent.IsZero())
		assert.True(t, db.MustGetCategory(alice, "week", "Food").Spent.IsZero())
	})
}

func TestAggregator_CreateBudget(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		insert(t, db, alice, "t1", "40", "Food", model.KindExpense, now.AddDate(0, 0, -3))
		insert(t, db, alice, "t2", "60", "Food", model.KindExpense, now)
		insert(t, db, alice, "t3", "999", "Food", model.KindIncome, now)
		insert(t, db, alice, "t4", "70", "Food", model.KindExpense, now.AddDate(0, -1, 0))
		a := newAggregator(db)

		b, err := a.CreateBudget(as("alice"), alice, Input{
			Granularity: model.Monthly,
			Categories: []CategoryInput{
				{Name: "Food", Limit: dec("300")},
				{Name: "Travel", Limit: dec("200")},
			},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, b.ID)
		assert.Equal(t, "2026-03", b.PeriodKey)
		assert.True(t, b.TotalLimit.Equal(dec("500")))

		assert.True(t, db.MustGetCategory(alice, b.ID, "Food").Spent.Equal(dec("100")))
		assert.True(t, db.MustGetCategory(alice, b.ID, "Travel").Spent.IsZero())

		_, err = a.CreateBudget(as("alice"), alice, Input{Granularity: model.Monthly})
		field, ok := common.InvalidField(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, "periodKey", field)

		active, err := a.ActiveBudgetFor(as("alice"), alice, now)
		require.NoError(t, err)
		assert.Equal(t, b.ID, active.ID)
	})
}

func TestAggregator_CreateBudgetTrimsCategoryNames(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		insert(t, db, alice, "t1", "25", "Food", model.KindExpense, now)
		a := newAggregator(db)

		b, err := a.CreateBudget(as("alice"), alice, Input{
			Granularity: model.Monthly,
			Categories:  []CategoryInput{{Name: " Food ", Limit: dec("300")}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Food"}, names(b.Categories))
		assert.True(t, db.MustGetCategory(alice, b.ID, "Food").Spent.Equal(dec("25")))

		expense := &model.Transaction{Owner: alice, Amount: dec("5"), Category: "Food", Kind: model.KindExpense, OccurredAt: now}
		require.NoError(t, a.Post(context.Background(), db.Storage, expense))
		assert.True(t, db.MustGetCategory(alice, b.ID, "Food").Spent.Equal(dec("30")))
	})
}

func TestAggregator_CreateBudgetRejectsInvalidInput(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		a := newAggregator(db)
		tests := []struct {
			name  string
			in    Input
			field string
		}{
			{name: "unknown granularity", in: Input{Granularity: "daily"}, field: "granularity"},
			{name: "bad period key", in: Input{Granularity: model.Monthly, PeriodKey: "March"}, field: "periodKey"},
			{name: "negative limit", in: Input{Granularity: model.Monthly, Categories: []CategoryInput{{Name: "Food", Limit: dec("-1")}}}, field: "limit"},
			{name: "duplicate category", in: Input{Granularity: model.Monthly, Categories: []CategoryInput{{Name: "Food"}, {Name: "Food"}}}, field: "category"},
			{name: "duplicate after trimming", in: Input{Granularity: model.Monthly, Categories: []CategoryInput{{Name: "Food"}, {Name: " Food"}}}, field: "category"},
			{name: "negative limit beside a positive one", in: Input{Granularity: model.Monthly, Categories: []CategoryInput{{Name: "Rent", Limit: dec("900")}, {Name: "Food", Limit: dec("-1000")}}}, field: "limit"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := a.CreateBudget(as("alice"), alice, tt.in)
				field, ok := common.InvalidField(err)
				require.True(t, ok, "got %v", err)
				assert.Equal(t, tt.field, field)
			})
		}

		budgets, err := db.Storage.ListBudgets(context.Background(), alice)
		require.NoError(t, err)
		assert.Empty(t, budgets)
	})
}

func TestAggregator_WorkspaceAuthorization(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		db.SeedWorkspace("ws-1", "owner", map[string]model.Role{"viewer": model.RoleViewer})
		ws := model.WorkspaceOwner("ws-1")
		a := newAggregator(db)
		in := Input{Granularity: model.Monthly, Categories: []CategoryInput{{Name: "Payroll", Limit: dec("10000")}}}

		_, err := a.CreateBudget(as("viewer"), ws, in)
		assert.ErrorIs(t, err, common.ErrForbidden)
		_, err = a.CreateBudget(as("stranger"), ws, in)
		assert.ErrorIs(t, err, common.ErrNotFound)
		_, err = a.CreateBudget(context.Background(), ws, in)
		assert.ErrorIs(t, err, common.ErrUnauthenticated)

		b, err := a.CreateBudget(as("owner"), ws, in)
		require.NoError(t, err)

		got, err := a.ActiveBudgetFor(as("viewer"), ws, now)
		require.NoError(t, err)
		assert.Equal(t, b.ID, got.ID)
	})
}

func TestAggregator_SetCategoryLimit(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		db.NewBudget(alice, "b1").Monthly(now).WithSpentCategory("Food", "1000", "250").Seed()
		insert(t, db, alice, "t1", "80", "Travel", model.KindExpense, now)
		a := newAggregator(db)

		require.NoError(t, a.SetCategoryLimit(as("alice"), alice, "b1", "Food", dec("1500")))
		food := db.MustGetCategory(alice, "b1", "Food")
		assert.True(t, food.Limit.Equal(dec("1500")))
		assert.True(t, food.Spent.Equal(dec("250")), "spent is never overwritten")

		require.NoError(t, a.SetCategoryLimit(as("alice"), alice, "b1", "Travel", dec("300")))
		travel := db.MustGetCategory(alice, "b1", "Travel")
		assert.True(t, travel.Spent.Equal(dec("80")), "new categories start reconciled")

		err := a.SetCategoryLimit(as("alice"), alice, "b1", "Food", dec("-5"))
		assert.ErrorIs(t, err, common.ErrInvalid)
		err = a.SetCategoryLimit(as("alice"), alice, "missing", "Food", dec("5"))
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestAggregator_Reconcile(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		db.NewBudget(alice, "b1").Monthly(now).
			WithSpentCategory("Food", "1000", "999").
			WithSpentCategory("Travel", "500", "30").
			Seed()
		insert(t, db, alice, "t1", "30", "Travel", model.KindExpense, now)
		insert(t, db, alice, "t2", "45.25", "Food", model.KindExpense, now)
		a := newAggregator(db)

		corrections, err := a.Reconcile(as("alice"), alice, "b1")
		require.NoError(t, err)
		require.Len(t, corrections, 1)
		assert.Equal(t, "Food", corrections[0].Category)
		assert.True(t, corrections[0].Was.Equal(dec("999")))
		assert.True(t, corrections[0].Now.Equal(dec("45.25")))
		assert.True(t, db.MustGetCategory(alice, "b1", "Food").Spent.Equal(dec("45.25")))

		corrections, err = a.Reconcile(as("alice"), alice, "b1")
		require.NoError(t, err)
		assert.Empty(t, corrections)
	})
}
