// Package storetest holds the conformance suite every ledger store must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, migrated store. The suite closes it.
type Factory func(t *testing.T) service.Storage

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, s service.Storage)
	}{
		{"Accounts", testAccounts},
		{"TransactionsCRUD", testTransactionsCRUD},
		{"TransactionsOrderingAndFilter", testTransactionsOrdering},
		{"TransactionsOwnerScoped", testTransactionsOwnerScoped},
		{"BudgetMergeKeepsSpent", testBudgetMerge},
		{"BudgetPeriodConflict", testBudgetPeriodConflict},
		{"AdjustCategorySpent", testAdjustCategorySpent},
		{"PutCategoryLimit", testPutCategoryLimit},
		{"Liabilities", testLiabilities},
		{"WorkspacesAndMemberships", testMemberships},
		{"SagaProgress", testSagaProgress},
		{"TransactionRollback", testRollback},
		{"TransactionCommit", testCommit},
		{"InvalidDocuments", testInvalidDocuments},
		{"DateRange", testDateRange},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

var (
	personal = model.AccountOwner("acct-1")
	baseTime = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTxn(id, amount, category string, occurred time.Time) *model.Transaction {
	return &model.Transaction{
		ID:         id,
		Owner:      personal,
		Amount:     dec(amount),
		Category:   category,
		Kind:       model.KindExpense,
		OccurredAt: occurred,
		WrittenAt:  occurred.Add(time.Minute),
	}
}

func newBudget(id, key string, cats ...model.Category) *model.Budget {
	return &model.Budget{
		ID:          id,
		Owner:       personal,
		Granularity: model.Monthly,
		PeriodKey:   key,
		TotalLimit:  dec("1000"),
		Categories:  cats,
		CreatedAt:   baseTime,
	}
}

func seedAccount(t *testing.T, s service.Storage, id string) {
	t.Helper()
	require.NoError(t, s.PutAccount(context.Background(), &model.Account{
		ID:      id,
		Profile: model.Profile{DisplayName: "Test " + id, Email: id + "@example.com", Mode: model.ModePersonal, Currency: "USD"},
	}))
}

func testAccounts(t *testing.T, s service.Storage) {
	ctx := context.Background()

	_, err := s.GetAccount(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)

	seedAccount(t, s, "acct-1")
	require.NoError(t, s.SetActiveBudget(ctx, "acct-1", "budget-1"))
	require.NoError(t, s.SetPrimaryWorkspace(ctx, "acct-1", "ws-1"))
	require.NoError(t, s.AttachWorkspace(ctx, "acct-1", "ws-1"))
	require.NoError(t, s.AttachWorkspace(ctx, "acct-1", "ws-1"))
	require.NoError(t, s.AttachWorkspace(ctx, "acct-1", "ws-2"))

	// A profile update must not clear links.
	require.NoError(t, s.PutAccount(ctx, &model.Account{
		ID:      "acct-1",
		Profile: model.Profile{DisplayName: "Renamed", Mode: model.ModeBusiness},
	}))

	got, err := s.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Profile.DisplayName)
	assert.Equal(t, model.ModeBusiness, got.Profile.Mode)
	assert.Equal(t, "budget-1", got.ActiveBudgetRef)
	assert.Equal(t, "ws-1", got.PrimaryWorkspaceID)
	assert.ElementsMatch(t, []string{"ws-1", "ws-2"}, got.WorkspaceIDs)

	assert.ErrorIs(t, s.AttachWorkspace(ctx, "missing", "ws-1"), common.ErrNotFound)
	assert.ErrorIs(t, s.SetActiveBudget(ctx, "missing", "b"), common.ErrNotFound)
}

func testTransactionsCRUD(t *testing.T, s service.Storage) {
	ctx := context.Background()

	txn := newTxn("t1", "12.50", "Food", baseTime)
	txn.Description = "lunch"
	require.NoError(t, s.InsertTransaction(ctx, txn))

	dup := newTxn("t1", "1", "Food", baseTime)
	require.ErrorIs(t, s.InsertTransaction(ctx, dup), common.ErrInvalid)

	got, err := s.GetTransaction(ctx, personal, "t1")
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(dec("12.5")))
	assert.Equal(t, "Food", got.Category)
	assert.Equal(t, "lunch", got.Description)
	assert.Equal(t, model.KindExpense, got.Kind)
	assert.True(t, got.OccurredAt.Equal(baseTime))
	assert.True(t, got.WrittenAt.Equal(baseTime.Add(time.Minute)))

	got.Amount = dec("20")
	got.Category = "Travel"
	got.Kind = model.KindIncome
	require.NoError(t, s.UpdateTransaction(ctx, got))

	updated, err := s.GetTransaction(ctx, personal, "t1")
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(dec("20")))
	assert.Equal(t, "Travel", updated.Category)
	assert.Equal(t, model.KindIncome, updated.Kind)

	require.NoError(t, s.DeleteTransaction(ctx, personal, "t1"))
	_, err = s.GetTransaction(ctx, personal, "t1")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, s.DeleteTransaction(ctx, personal, "t1"), common.ErrNotFound)
	assert.ErrorIs(t, s.UpdateTransaction(ctx, newTxn("t9", "1", "Food", baseTime)), common.ErrNotFound)
}

func testTransactionsOrdering(t *testing.T, s service.Storage) {
	ctx := context.Background()

	day := 24 * time.Hour
	require.NoError(t, s.InsertTransaction(ctx, newTxn("a", "1", "Food", baseTime)))
	require.NoError(t, s.InsertTransaction(ctx, newTxn("b", "2", "Food", baseTime.Add(day))))
	require.NoError(t, s.InsertTransaction(ctx, newTxn("c", "3", "Food", baseTime.Add(-day))))

	same := newTxn("d", "4", "Food", baseTime)
	same.WrittenAt = baseTime.Add(time.Hour)
	require.NoError(t, s.InsertTransaction(ctx, same))

	all, err := s.ListTransactions(ctx, personal, service.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids(all))

	window, err := s.ListTransactions(ctx, personal, service.TransactionFilter{
		From: baseTime,
		To:   baseTime.Add(day),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "a"}, ids(window))

	limited, err := s.ListTransactions(ctx, personal, service.TransactionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d"}, ids(limited))
}

func testTransactionsOwnerScoped(t *testing.T, s service.Storage) {
	ctx := context.Background()
	other := model.AccountOwner("acct-2")
	ws := model.WorkspaceOwner("acct-1")

	require.NoError(t, s.InsertTransaction(ctx, newTxn("t1", "5", "Food", baseTime)))

	_, err := s.GetTransaction(ctx, other, "t1")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = s.GetTransaction(ctx, ws, "t1")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, s.DeleteTransaction(ctx, other, "t1"), common.ErrNotFound)

	list, err := s.ListTransactions(ctx, other, service.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testBudgetMerge(t *testing.T, s service.Storage) {
	ctx := context.Background()

	b := newBudget("b1", "2026-03",
		model.Category{Name: "Food", Limit: dec("500")},
		model.Category{Name: "Rent", Limit: dec("900")},
	)
	require.NoError(t, s.PutBudget(ctx, b))
	require.NoError(t, s.AdjustCategorySpent(ctx, personal, "b1", "Food", dec("120")))

	// Re-put with a new limit, a stale spent value, and one category omitted.
	b.Categories = []model.Category{
		{Name: "Food", Limit: dec("600"), Spent: dec("0")},
		{Name: "Fun", Limit: dec("50")},
	}
	require.NoError(t, s.PutBudget(ctx, b))

	got, err := s.GetBudget(ctx, personal, "b1")
	require.NoError(t, err)
	require.Len(t, got.Categories, 3)
	assert.Equal(t, "Food", got.Categories[0].Name)
	assert.True(t, got.Categories[0].Limit.Equal(dec("600")))
	assert.True(t, got.Categories[0].Spent.Equal(dec("120")), "spent must survive a budget re-put")
	assert.Equal(t, "Fun", got.Categories[1].Name)
	assert.Equal(t, "Rent", got.Categories[2].Name)

	found, err := s.FindBudget(ctx, personal, model.Monthly, "2026-03")
	require.NoError(t, err)
	assert.Equal(t, "b1", found.ID)

	_, err = s.FindBudget(ctx, personal, model.Weekly, "2026-W11")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = s.GetBudget(ctx, model.AccountOwner("acct-2"), "b1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func testBudgetPeriodConflict(t *testing.T, s service.Storage) {
	ctx := context.Background()

	require.NoError(t, s.PutBudget(ctx, newBudget("b1", "2026-03")))
	require.NoError(t, s.PutBudget(ctx, newBudget("b2", "2026-04")))

	err := s.PutBudget(ctx, newBudget("b3", "2026-03"))
	require.ErrorIs(t, err, common.ErrInvalid)
	field, ok := common.InvalidField(err)
	require.True(t, ok)
	assert.Equal(t, "periodKey", field)

	list, err := s.ListBudgets(ctx, personal)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b1", list[0].ID)
	assert.Equal(t, "b2", list[1].ID)
}

func testAdjustCategorySpent(t *testing.T, s service.Storage) {
	ctx := context.Background()

	require.NoError(t, s.PutBudget(ctx, newBudget("b1", "2026-03",
		model.Category{Name: "Food", Limit: dec("500")},
	)))

	require.NoError(t, s.AdjustCategorySpent(ctx, personal, "b1", "Food", dec("500")))
	require.NoError(t, s.AdjustCategorySpent(ctx, personal, "b1", "Food", dec("300")))
	require.NoError(t, s.AdjustCategorySpent(ctx, personal, "b1", "Food", dec("-800")))

	got, err := s.GetBudget(ctx, personal, "b1")
	require.NoError(t, err)
	assert.True(t, got.Categories[0].Spent.IsZero())

	assert.ErrorIs(t, s.AdjustCategorySpent(ctx, personal, "b1", "Travel", dec("1")), common.ErrNotFound)
	assert.ErrorIs(t, s.AdjustCategorySpent(ctx, personal, "nope", "Food", dec("1")), common.ErrNotFound)
}

func testPutCategoryLimit(t *testing.T, s service.Storage) {
	ctx := context.Background()

	require.NoError(t, s.PutBudget(ctx, newBudget("b1", "2026-03",
		model.Category{Name: "Food", Limit: dec("500")},
	)))
	require.NoError(t, s.AdjustCategorySpent(ctx, personal, "b1", "Food", dec("75")))

	require.NoError(t, s.PutCategoryLimit(ctx, personal, "b1", model.Category{Name: "Food", Limit: dec("650")}))
	require.NoError(t, s.PutCategoryLimit(ctx, personal, "b1", model.Category{Name: "Travel", Limit: dec("0"), Spent: dec("10")}))

	got, err := s.GetBudget(ctx, personal, "b1")
	require.NoError(t, err)
	require.Len(t, got.Categories, 2)
	assert.True(t, got.Categories[0].Limit.Equal(dec("650")))
	assert.True(t, got.Categories[0].Spent.Equal(dec("75")))
	assert.Equal(t, "Travel", got.Categories[1].Name)
	assert.True(t, got.Categories[1].Spent.Equal(dec("10")))

	err = s.PutCategoryLimit(ctx, personal, "missing", model.Category{Name: "Food", Limit: dec("1")})
	assert.ErrorIs(t, err, common.ErrNotFound)
	err = s.PutCategoryLimit(ctx, personal, "b1", model.Category{Name: "Food", Limit: dec("-1")})
	assert.ErrorIs(t, err, common.ErrInvalid)
}

func testLiabilities(t *testing.T, s service.Storage) {
	ctx := context.Background()

	loan := &model.Liability{
		ID:           "l1",
		AccountID:    "acct-1",
		Name:         "Car loan",
		Amount:       dec("12000"),
		InterestRate: dec("6.5"),
		DueDate:      baseTime.AddDate(0, 6, 0),
		Status:       model.LiabilityActive,
	}
	emi := *loan
	emi.ID = "l2"
	emi.Name = "Phone EMI"
	emi.DueDate = baseTime.AddDate(0, 1, 0)

	require.NoError(t, s.PutLiability(ctx, loan))
	require.NoError(t, s.PutLiability(ctx, &emi))

	list, err := s.ListLiabilities(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "l2", list[0].ID)
	assert.True(t, list[1].InterestRate.Equal(dec("6.5")))

	require.NoError(t, s.SetLiabilityStatus(ctx, "acct-1", "l1", model.LiabilityClosed))
	assert.ErrorIs(t, s.SetLiabilityStatus(ctx, "acct-1", "nope", model.LiabilityClosed), common.ErrNotFound)
	assert.ErrorIs(t, s.SetLiabilityStatus(ctx, "acct-1", "l1", "paused"), common.ErrInvalid)

	list, err = s.ListLiabilities(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, model.LiabilityClosed, list[1].Status)
}

func testMemberships(t *testing.T, s service.Storage) {
	ctx := context.Background()

	ws := &model.Workspace{
		ID:              "ws-1",
		Name:            "Acme",
		OwnerID:         "u-owner",
		Currency:        "EUR",
		Timezone:        "Europe/Berlin",
		FiscalYearStart: 4,
	}
	require.NoError(t, s.PutWorkspace(ctx, ws))

	got, err := s.GetWorkspace(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, 4, got.FiscalYearStart)

	first := baseTime
	require.NoError(t, s.PutMembership(ctx, &model.Membership{WorkspaceID: "ws-1", UserID: "u-owner", Role: model.RoleOwner, JoinedAt: first}))
	require.NoError(t, s.PutMembership(ctx, &model.Membership{WorkspaceID: "ws-1", UserID: "u-view", Role: model.RoleViewer, JoinedAt: first.Add(time.Hour)}))

	// A replayed write keeps the original join time.
	require.NoError(t, s.PutMembership(ctx, &model.Membership{WorkspaceID: "ws-1", UserID: "u-owner", Role: model.RoleOwner, JoinedAt: first.Add(48 * time.Hour)}))

	m, err := s.GetMembership(ctx, "ws-1", "u-owner")
	require.NoError(t, err)
	assert.True(t, m.JoinedAt.Equal(first))

	require.NoError(t, s.SetMembershipRole(ctx, "ws-1", "u-view", model.RoleAccountant))
	assert.ErrorIs(t, s.SetMembershipRole(ctx, "ws-1", "u-none", model.RoleAdmin), common.ErrNotFound)
	assert.ErrorIs(t, s.SetMembershipRole(ctx, "ws-1", "u-view", "superuser"), common.ErrInvalid)

	members, err := s.ListMemberships(ctx, "ws-1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "u-owner", members[0].UserID)
	assert.Equal(t, model.RoleAccountant, members[1].Role)

	_, err = s.GetMembership(ctx, "ws-1", "u-none")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = s.GetWorkspace(ctx, "ws-9")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func testSagaProgress(t *testing.T, s service.Storage) {
	ctx := context.Background()

	_, err := s.GetSagaProgress(ctx, "personal:acct-1")
	require.ErrorIs(t, err, common.ErrNotFound)

	p := &model.SagaProgress{ID: "personal:acct-1", Kind: model.SagaPersonal, Plan: []byte(`{"a":1}`), Step: 1}
	require.NoError(t, s.PutSagaProgress(ctx, p))
	p.Step = 3
	p.Done = true
	require.NoError(t, s.PutSagaProgress(ctx, p))

	got, err := s.GetSagaProgress(ctx, "personal:acct-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Step)
	assert.True(t, got.Done)
	assert.JSONEq(t, `{"a":1}`, string(got.Plan))
	assert.Equal(t, model.SagaPersonal, got.Kind)
}

func testRollback(t *testing.T, s service.Storage) {
	ctx := context.Background()

	require.NoError(t, s.PutBudget(ctx, newBudget("b1", "2026-03",
		model.Category{Name: "Food", Limit: dec("500")},
	)))

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertTransaction(ctx, newTxn("t1", "40", "Food", baseTime)))
	require.NoError(t, tx.AdjustCategorySpent(ctx, personal, "b1", "Food", dec("40")))
	require.NoError(t, tx.Rollback())

	_, err = s.GetTransaction(ctx, personal, "t1")
	assert.ErrorIs(t, err, common.ErrNotFound)
	b, err := s.GetBudget(ctx, personal, "b1")
	require.NoError(t, err)
	assert.True(t, b.Categories[0].Spent.IsZero())

	// A failing callback rolls back everything RunInTx wrote.
	err = service.RunInTx(ctx, s, func(l service.Ledger) error {
		if err := l.InsertTransaction(ctx, newTxn("t2", "1", "Food", baseTime)); err != nil {
			return err
		}
		return l.AdjustCategorySpent(ctx, personal, "b1", "Missing", dec("1"))
	})
	require.ErrorIs(t, err, common.ErrNotFound)
	_, err = s.GetTransaction(ctx, personal, "t2")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func testCommit(t *testing.T, s service.Storage) {
	ctx := context.Background()

	require.NoError(t, s.PutBudget(ctx, newBudget("b1", "2026-03",
		model.Category{Name: "Food", Limit: dec("500")},
	)))

	err := service.RunInTx(ctx, s, func(l service.Ledger) error {
		if err := l.InsertTransaction(ctx, newTxn("t1", "40", "Food", baseTime)); err != nil {
			return err
		}
		if err := l.AdjustCategorySpent(ctx, personal, "b1", "Food", dec("40")); err != nil {
			return err
		}
		// Reads inside the transaction see its own writes.
		b, err := l.GetBudget(ctx, personal, "b1")
		if err != nil {
			return err
		}
		assert.True(t, b.Categories[0].Spent.Equal(dec("40")))
		return nil
	})
	require.NoError(t, err)

	b, err := s.GetBudget(ctx, personal, "b1")
	require.NoError(t, err)
	assert.True(t, b.Categories[0].Spent.Equal(dec("40")))
}

func testInvalidDocuments(t *testing.T, s service.Storage) {
	ctx := context.Background()

	tests := []struct {
		name  string
		err   error
		field string
	}{
		{"zero amount", s.InsertTransaction(ctx, newTxn("t1", "0", "Food", baseTime)), "amount"},
		{"empty category", s.InsertTransaction(ctx, newTxn("t1", "1", " ", baseTime)), "category"},
		{"bad owner", s.InsertTransaction(ctx, &model.Transaction{ID: "t1", Owner: model.Owner{Kind: "team", ID: "x"}}), "owner"},
		{"bad period key", s.PutBudget(ctx, newBudget("b1", "2026-3")), "periodKey"},
		{"negative limit", s.PutBudget(ctx, newBudget("b1", "2026-03", model.Category{Name: "Food", Limit: dec("-5")})), "limit"},
		{"bad currency", s.PutWorkspace(ctx, &model.Workspace{ID: "w", Name: "n", OwnerID: "o", Currency: "XXQ", Timezone: "UTC", FiscalYearStart: 1}), "currency"},
		{"bad fiscal month", s.PutWorkspace(ctx, &model.Workspace{ID: "w", Name: "n", OwnerID: "o", Currency: "USD", Timezone: "UTC", FiscalYearStart: 13}), "fiscalYearStart"},
		{"far future date", s.InsertTransaction(ctx, newTxn("t1", "1", "Food", time.Date(2300, time.January, 15, 0, 0, 0, 0, time.UTC))), "occurredAt"},
		{"far past date", s.InsertTransaction(ctx, newTxn("t1", "1", "Food", time.Date(1600, time.January, 15, 0, 0, 0, 0, time.UTC))), "occurredAt"},
		{"far future period", s.PutBudget(ctx, newBudget("b1", "2300-01")), "periodKey"},
		{"far future due date", s.PutLiability(ctx, &model.Liability{
			ID: "l1", AccountID: "acct-1", Name: "Loan", Amount: dec("1"), Status: model.LiabilityActive,
			DueDate: time.Date(2300, time.January, 15, 0, 0, 0, 0, time.UTC),
		}), "dueDate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.err, common.ErrInvalid)
			field, ok := common.InvalidField(tt.err)
			require.True(t, ok)
			assert.Equal(t, tt.field, field)
		})
	}
}

// Every accepted date must read back unchanged from either store.
func testDateRange(t *testing.T, s service.Storage) {
	ctx := context.Background()

	dates := map[string]time.Time{
		"first": model.MinDate,
		"last":  model.MaxDate.Add(-time.Hour),
		"late":  time.Date(2199, time.December, 31, 23, 59, 59, 0, time.UTC),
	}
	for id, at := range dates {
		require.NoError(t, s.InsertTransaction(ctx, newTxn(id, "1", "Food", at)))
		got, err := s.GetTransaction(ctx, personal, id)
		require.NoError(t, err)
		assert.True(t, got.OccurredAt.Equal(at), "%s: got %s, want %s", id, got.OccurredAt, at)
	}

	err := s.InsertTransaction(ctx, newTxn("edge", "1", "Food", model.MaxDate))
	assert.ErrorIs(t, err, common.ErrInvalid)
	_, err = s.GetTransaction(ctx, personal, "edge")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func ids(txns []model.Transaction) []string {
	out := make([]string, len(txns))
	for i, t := range txns {
		out[i] = t.ID
	}
	return out
}
