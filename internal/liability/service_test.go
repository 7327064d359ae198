package liability

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

var now = time.Date(2026, time.March, 18, 12, 0, 0, 0, time.UTC)

func as(user string) context.Context {
	return identity.WithActor(context.Background(), user)
}

func TestService_Lifecycle(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		s := NewService(db.Storage)
		s.now = func() time.Time { return now }
		ctx := as("alice")

		car, err := s.Add(ctx, Input{
			Name:         "Car loan",
			Amount:       decimal.RequireFromString("12000"),
			InterestRate: decimal.RequireFromString("7.5"),
			DueDate:      now.AddDate(0, 0, -1),
		})
		require.NoError(t, err)
		home, err := s.Add(ctx, Input{
			Name:    "Home EMI",
			Amount:  decimal.RequireFromString("900"),
			DueDate: now.AddDate(0, 1, 0),
		})
		require.NoError(t, err)

		items, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, car, items[0].ID)
		assert.Equal(t, model.LiabilityOverdue, items[0].Status)
		assert.Equal(t, home, items[1].ID)
		assert.Equal(t, model.LiabilityActive, items[1].Status)

		require.NoError(t, s.Close(ctx, car))
		items, err = s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.LiabilityClosed, items[0].Status)

		others, err := s.List(as("bob"))
		require.NoError(t, err)
		assert.Empty(t, others)
		assert.ErrorIs(t, s.Close(as("bob"), home), common.ErrNotFound)
	})
}

func TestService_AddValidates(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		s := NewService(db.Storage)

		_, err := s.Add(as("alice"), Input{Name: "Loan", Amount: decimal.Zero})
		field, ok := common.InvalidField(err)
		require.True(t, ok)
		assert.Equal(t, "amount", field)

		_, err = s.Add(as("alice"), Input{Name: " ", Amount: decimal.NewFromInt(1)})
		field, ok = common.InvalidField(err)
		require.True(t, ok)
		assert.Equal(t, "name", field)

		_, err = s.Add(context.Background(), Input{Name: "Loan", Amount: decimal.NewFromInt(1)})
		assert.ErrorIs(t, err, common.ErrUnauthenticated)
	})
}
