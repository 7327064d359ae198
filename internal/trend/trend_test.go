package trend

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

var alice = model.AccountOwner("alice")

func as(user string) context.Context {
	return identity.WithActor(context.Background(), user)
}

func seedTxn(t *testing.T, db *testutil.TestDB, id, amount string, kind model.Kind, at time.Time) {
	t.Helper()
	require.NoError(t, db.Storage.InsertTransaction(context.Background(), &model.Transaction{
		ID:         id,
		Owner:      alice,
		Amount:     decimal.RequireFromString(amount),
		Category:   "General",
		Kind:       kind,
		OccurredAt: at,
		WrittenAt:  at,
	}))
}

func labels(buckets []Bucket) []string {
	out := make([]string, len(buckets))
	for i, b := range buckets {
		out[i] = b.Label
	}
	return out
}

func TestTrend_MonthlyAlwaysTwelveBuckets(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		db.SeedAccount("alice")
		seedTxn(t, db, "t1", "100", model.KindExpense, time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC))
		seedTxn(t, db, "t2", "250", model.KindIncome, time.Date(2026, time.November, 20, 9, 0, 0, 0, time.UTC))

		buckets, err := NewAggregator(db.Storage).Trend(as("alice"), alice, model.Monthly, Range{})
		require.NoError(t, err)

		assert.Equal(t, []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}, labels(buckets))
		assert.True(t, buckets[2].Expense.Equal(decimal.NewFromInt(100)))
		assert.True(t, buckets[2].Net.Equal(decimal.NewFromInt(-100)))
		assert.True(t, buckets[10].Income.Equal(decimal.NewFromInt(250)))
		for _, i := range []int{0, 1, 3, 4, 5, 6, 7, 8, 9, 11} {
			assert.True(t, buckets[i].Income.IsZero() && buckets[i].Expense.IsZero(), buckets[i].Label)
		}
	})
}

func TestTrend_WeeklyStartsOnMonday(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		db.SeedAccount("alice")
		// 2026-03-15 is a Sunday, 2026-03-16 a Monday.
		seedTxn(t, db, "sun", "10", model.KindExpense, time.Date(2026, time.March, 15, 23, 0, 0, 0, time.UTC))
		seedTxn(t, db, "mon", "30", model.KindIncome, time.Date(2026, time.March, 16, 1, 0, 0, 0, time.UTC))

		buckets, err := NewAggregator(db.Storage).Trend(as("alice"), alice, model.Weekly, Range{})
		require.NoError(t, err)

		assert.Equal(t, []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}, labels(buckets))
		assert.True(t, buckets[0].Income.Equal(decimal.NewFromInt(30)))
		assert.True(t, buckets[6].Expense.Equal(decimal.NewFromInt(10)))
	})
}

func TestTrend_IgnoresYear(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		db.SeedAccount("alice")
		seedTxn(t, db, "a", "5", model.KindExpense, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))
		seedTxn(t, db, "b", "7", model.KindExpense, time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC))

		buckets, err := NewAggregator(db.Storage).Trend(as("alice"), alice, model.Monthly, Range{})
		require.NoError(t, err)
		assert.True(t, buckets[5].Expense.Equal(decimal.NewFromInt(12)))

		buckets, err = NewAggregator(db.Storage).Trend(as("alice"), alice, model.Monthly, Range{
			From: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		assert.True(t, buckets[5].Expense.Equal(decimal.NewFromInt(7)))
	})
}

func TestTrend_Errors(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		db.SeedAccount("alice")
		a := NewAggregator(db.Storage)

		_, err := a.Trend(as("alice"), alice, model.Yearly, Range{})
		field, ok := common.InvalidField(err)
		require.True(t, ok)
		assert.Equal(t, "granularity", field)

		_, err = a.Trend(as("bob"), alice, model.Monthly, Range{})
		assert.ErrorIs(t, err, common.ErrNotFound)

		_, err = a.Trend(context.Background(), alice, model.Monthly, Range{})
		assert.ErrorIs(t, err, common.ErrUnauthenticated)
	})
}
