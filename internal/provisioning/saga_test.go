package provisioning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/ledgerline/internal/budget"
	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/identity"
	"github.com/Veraticus/ledgerline/internal/ledger"
	"github.com/Veraticus/ledgerline/internal/liability"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/service"
	"github.com/Veraticus/ledgerline/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, time.March, 18, 12, 0, 0, 0, time.UTC)

func as(user string) context.Context {
	return identity.WithActor(context.Background(), user)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// faultyStore fails the nth call of one operation with a store outage,
// simulating a crash between saga steps.
type faultyStore struct {
	service.Storage
	op    string
	calls map[string]int
	nth   int
	mu    sync.Mutex
}

func newFaultyStore(inner service.Storage, op string, nth int) *faultyStore {
	return &faultyStore{Storage: inner, op: op, nth: nth, calls: make(map[string]int)}
}

func (f *faultyStore) fault(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if op == f.op && f.calls[op] == f.nth {
		return common.Unavailable(op, errors.New("connection reset by peer"))
	}
	return nil
}

func (f *faultyStore) PutAccount(ctx context.Context, a *model.Account) error {
	if err := f.fault("PutAccount"); err != nil {
		return err
	}
	return f.Storage.PutAccount(ctx, a)
}

func (f *faultyStore) PutBudget(ctx context.Context, b *model.Budget) error {
	if err := f.fault("PutBudget"); err != nil {
		return err
	}
	return f.Storage.PutBudget(ctx, b)
}

func (f *faultyStore) SetActiveBudget(ctx context.Context, accountID, budgetID string) error {
	if err := f.fault("SetActiveBudget"); err != nil {
		return err
	}
	return f.Storage.SetActiveBudget(ctx, accountID, budgetID)
}

func (f *faultyStore) PutLiability(ctx context.Context, l *model.Liability) error {
	if err := f.fault("PutLiability"); err != nil {
		return err
	}
	return f.Storage.PutLiability(ctx, l)
}

func (f *faultyStore) PutWorkspace(ctx context.Context, ws *model.Workspace) error {
	if err := f.fault("PutWorkspace"); err != nil {
		return err
	}
	return f.Storage.PutWorkspace(ctx, ws)
}

func (f *faultyStore) PutMembership(ctx context.Context, m *model.Membership) error {
	if err := f.fault("PutMembership"); err != nil {
		return err
	}
	return f.Storage.PutMembership(ctx, m)
}

func (f *faultyStore) AttachWorkspace(ctx context.Context, accountID, workspaceID string) error {
	if err := f.fault("AttachWorkspace"); err != nil {
		return err
	}
	return f.Storage.AttachWorkspace(ctx, accountID, workspaceID)
}

func (f *faultyStore) SetPrimaryWorkspace(ctx context.Context, accountID, workspaceID string) error {
	if err := f.fault("SetPrimaryWorkspace"); err != nil {
		return err
	}
	return f.Storage.SetPrimaryWorkspace(ctx, accountID, workspaceID)
}

func (f *faultyStore) PutSagaProgress(ctx context.Context, p *model.SagaProgress) error {
	if err := f.fault("PutSagaProgress"); err != nil {
		return err
	}
	return f.Storage.PutSagaProgress(ctx, p)
}

func newSaga(store service.Storage) *Saga {
	s := NewSaga(store)
	s.now = func() time.Time { return now }
	return s
}

func personalRequest() PersonalRequest {
	return PersonalRequest{
		Profile: model.Profile{DisplayName: "Alice", Email: "alice@example.com", Currency: "USD"},
		Categories: []budget.CategoryInput{
			{Name: "Food", Limit: dec("2000")},
			{Name: "Travel", Limit: dec("500")},
		},
	}
}

func businessRequest() BusinessRequest {
	return BusinessRequest{
		Name:            "Acme Ltd",
		Currency:        "eur",
		Timezone:        "UTC",
		FiscalYearStart: 4,
		SeedBudgets: []budget.Input{
			{Granularity: model.Monthly, Categories: []budget.CategoryInput{{Name: "Payroll", Limit: dec("50000")}}},
			{Granularity: model.Yearly, Categories: []budget.CategoryInput{{Name: "Equipment", Limit: dec("12000")}}},
		},
	}
}

func TestSaga_Personal(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		s := newSaga(db.Storage)
		req := personalRequest()
		req.Loan = &liability.Input{Name: "Car loan", Amount: dec("9000"), InterestRate: dec("6.1")}

		plan, err := s.PreparePersonal("alice", req)
		require.NoError(t, err)
		assert.Equal(t, "2026-03", plan.Budget.PeriodKey)
		assert.NotEmpty(t, plan.Budget.ID)
		assert.NotEmpty(t, plan.Loan.ID)

		got, err := s.RunPersonal(as("alice"), plan)
		require.NoError(t, err)
		assert.Equal(t, plan.Budget.ID, got.Budget.ID)

		ctx := context.Background()
		acct, err := db.Storage.GetAccount(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, model.ModePersonal, acct.Profile.Mode)
		assert.Equal(t, plan.Budget.ID, acct.ActiveBudgetRef)

		b := db.MustGetBudget(model.AccountOwner("alice"), plan.Budget.ID)
		require.Len(t, b.Categories, 2)
		assert.True(t, b.Categories[0].Spent.IsZero())
		assert.True(t, b.TotalLimit.Equal(dec("2500")))

		loans, err := db.Storage.ListLiabilities(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, loans, 1)
		assert.Equal(t, plan.Loan.ID, loans[0].ID)

		progress, err := db.Storage.GetSagaProgress(ctx, "personal:alice")
		require.NoError(t, err)
		assert.True(t, progress.Done)
		assert.Equal(t, 4, progress.Step)
	})
}

func TestSaga_PersonalWithoutLoan(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		s := newSaga(db.Storage)
		plan, err := s.PreparePersonal("alice", personalRequest())
		require.NoError(t, err)
		assert.Nil(t, plan.Loan)

		_, err = s.RunPersonal(as("alice"), plan)
		require.NoError(t, err)

		loans, err := db.Storage.ListLiabilities(context.Background(), "alice")
		require.NoError(t, err)
		assert.Empty(t, loans)
	})
}

func TestSaga_PreparePersonalValidates(t *testing.T) {
	s := newSaga(nil)
	tests := []struct {
		mutate func(*PersonalRequest)
		name   string
		field  string
	}{
		{name: "missing name", mutate: func(r *PersonalRequest) { r.Profile.DisplayName = " " }, field: "displayName"},
		{name: "bad currency", mutate: func(r *PersonalRequest) { r.Profile.Currency = "XYZ" }, field: "currency"},
		{name: "no categories", mutate: func(r *PersonalRequest) { r.Categories = nil }, field: "categories"},
		{name: "negative limit", mutate: func(r *PersonalRequest) { r.Categories[0].Limit = dec("-1") }, field: "limit"},
		{name: "bad loan", mutate: func(r *PersonalRequest) { r.Loan = &liability.Input{Name: "Loan"} }, field: "amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := personalRequest()
			tt.mutate(&req)
			_, err := s.PreparePersonal("alice", req)
			field, ok := common.InvalidField(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.field, field)
		})
	}
}

func TestSaga_StoredPlanWins(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		faulty := newFaultyStore(db.Storage, "SetActiveBudget", 1)
		s := newSaga(faulty)

		first, err := s.PreparePersonal("alice", personalRequest())
		require.NoError(t, err)
		_, err = s.RunPersonal(as("alice"), first)
		var resumable *ResumableError
		require.ErrorAs(t, err, &resumable)
		assert.Equal(t, "activate", resumable.Step)
		assert.True(t, common.IsRetryable(err))

		second, err := s.PreparePersonal("alice", personalRequest())
		require.NoError(t, err)
		require.NotEqual(t, first.Budget.ID, second.Budget.ID)

		got, err := s.RunPersonal(as("alice"), second)
		require.NoError(t, err)
		assert.Equal(t, first.Budget.ID, got.Budget.ID)

		budgets, err := db.Storage.ListBudgets(context.Background(), model.AccountOwner("alice"))
		require.NoError(t, err)
		require.Len(t, budgets, 1)
		assert.Equal(t, first.Budget.ID, budgets[0].ID)
	})
}

func TestSaga_Business(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		db.SeedAccount("alice")
		s := newSaga(db.Storage)

		plan, err := s.PrepareBusiness("alice", businessRequest())
		require.NoError(t, err)
		require.Len(t, plan.SeedBudgets, 2)

		_, err = s.RunBusiness(as("alice"), plan)
		require.NoError(t, err)
		assertProvisioned(t, db, plan)
	})
}

func TestSaga_BusinessCreatesAccount(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		faulty := newFaultyStore(db.Storage, "PutAccount", 1)
		s := newSaga(faulty)
		req := businessRequest()
		req.Profile = &model.Profile{DisplayName: " Alice ", Email: "alice@acme.test", Mode: model.ModePersonal}

		plan, err := s.PrepareBusiness("alice", req)
		require.NoError(t, err)
		require.NotNil(t, plan.Profile)
		assert.Equal(t, model.ModeBusiness, plan.Profile.Mode)
		assert.Equal(t, "EUR", plan.Profile.Currency)

		_, err = s.RunBusiness(as("alice"), plan)
		var resumable *ResumableError
		require.ErrorAs(t, err, &resumable)
		assert.Equal(t, "profile", resumable.Step)

		_, err = s.RunBusiness(as("alice"), plan)
		require.NoError(t, err)
		assertProvisioned(t, db, plan)

		acct, err := db.Storage.GetAccount(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, "Alice", acct.Profile.DisplayName)
		assert.Equal(t, model.ModeBusiness, acct.Profile.Mode)
		assert.Empty(t, acct.ActiveBudgetRef)
	})
}

func TestSaga_BusinessKeepsExistingProfile(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		db.SeedAccount("alice")
		s := newSaga(db.Storage)
		req := businessRequest()
		req.Profile = &model.Profile{DisplayName: "Acme Owner"}

		plan, err := s.PrepareBusiness("alice", req)
		require.NoError(t, err)
		_, err = s.RunBusiness(as("alice"), plan)
		require.NoError(t, err)
		assertProvisioned(t, db, plan)

		acct, err := db.Storage.GetAccount(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, "User alice", acct.Profile.DisplayName)
		assert.Equal(t, model.ModePersonal, acct.Profile.Mode)
	})
}

// Entries cannot land under an account that has not been onboarded, so the
// first budget never starts out of step with the ledger.
func TestSaga_EntriesWaitForOnboarding(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		owner := model.AccountOwner("carol")
		agg := budget.NewAggregator(db.Storage, nil)
		entries := ledger.NewService(db.Storage, agg, nil)
		ctx := as("carol")
		food := ledger.EntryInput{Amount: dec("300"), Category: "Food", Kind: model.KindExpense, OccurredAt: now}

		_, err := entries.Record(ctx, owner, food)
		assert.ErrorIs(t, err, common.ErrNotFound)
		txns, err := db.Storage.ListTransactions(context.Background(), owner, service.TransactionFilter{})
		require.NoError(t, err)
		assert.Empty(t, txns)

		s := newSaga(db.Storage)
		plan, err := s.PreparePersonal("carol", personalRequest())
		require.NoError(t, err)
		_, err = s.RunPersonal(ctx, plan)
		require.NoError(t, err)

		_, err = entries.Record(ctx, owner, food)
		require.NoError(t, err)

		corrections, err := agg.Reconcile(ctx, owner, plan.Budget.ID)
		require.NoError(t, err)
		assert.Empty(t, corrections)
		assert.True(t, db.MustGetCategory(owner, plan.Budget.ID, "Food").Spent.Equal(dec("300")))
	})
}

func TestSaga_BusinessRequiresAccount(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		s := newSaga(db.Storage)
		plan, err := s.PrepareBusiness("alice", businessRequest())
		require.NoError(t, err)

		_, err = s.RunBusiness(as("alice"), plan)
		assert.ErrorIs(t, err, common.ErrNotFound)
		_, err = db.Storage.GetWorkspace(context.Background(), plan.Workspace.ID)
		assert.ErrorIs(t, err, common.ErrNotFound)

		_, err = s.RunBusiness(as("mallory"), plan)
		assert.ErrorIs(t, err, common.ErrNotFound)
		_, err = s.RunBusiness(context.Background(), plan)
		assert.ErrorIs(t, err, common.ErrUnauthenticated)
	})
}

func TestSaga_PrepareBusinessValidates(t *testing.T) {
	s := newSaga(nil)
	tests := []struct {
		mutate func(*BusinessRequest)
		name   string
		field  string
	}{
		{name: "missing name", mutate: func(r *BusinessRequest) { r.Name = "" }, field: "name"},
		{name: "unknown currency", mutate: func(r *BusinessRequest) { r.Currency = "ABC" }, field: "currency"},
		{name: "unknown timezone", mutate: func(r *BusinessRequest) { r.Timezone = "Mars/Olympus" }, field: "timezone"},
		{name: "fiscal month", mutate: func(r *BusinessRequest) { r.FiscalYearStart = 13 }, field: "fiscalYearStart"},
		{name: "profile without name", mutate: func(r *BusinessRequest) { r.Profile = &model.Profile{Email: "ops@acme.test"} }, field: "displayName"},
		{name: "two budgets for one period", mutate: func(r *BusinessRequest) {
			r.SeedBudgets = append(r.SeedBudgets, budget.Input{Granularity: model.Monthly})
		}, field: "periodKey"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := businessRequest()
			tt.mutate(&req)
			_, err := s.PrepareBusiness("alice", req)
			field, ok := common.InvalidField(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.field, field)
		})
	}
}

// A crash anywhere between writing the workspace and attaching it must be
// replayable into exactly one workspace, one owner membership, and one
// attachment.
func TestSaga_BusinessReplayAfterCrash(t *testing.T) {
	faults := []struct {
		op  string
		nth int
	}{
		{op: "PutWorkspace", nth: 1},
		{op: "PutMembership", nth: 1},
		{op: "PutBudget", nth: 2},
		{op: "AttachWorkspace", nth: 1},
		{op: "SetPrimaryWorkspace", nth: 1},
		// Step written but marker not advanced: the step runs again.
		{op: "PutSagaProgress", nth: 2},
		{op: "PutSagaProgress", nth: 3},
		{op: "PutSagaProgress", nth: 4},
		{op: "PutSagaProgress", nth: 5},
		{op: "PutSagaProgress", nth: 6},
	}

	for _, backend := range testutil.Backends() {
		t.Run(backend.Name, func(t *testing.T) {
			for _, fault := range faults {
				t.Run(fault.op, func(t *testing.T) {
					db := backend.New(t)
					db.SeedAccount("alice")
					faulty := newFaultyStore(db.Storage, fault.op, fault.nth)
					s := newSaga(faulty)

					plan, err := s.PrepareBusiness("alice", businessRequest())
					require.NoError(t, err)

					_, err = s.RunBusiness(as("alice"), plan)
					var resumable *ResumableError
					require.ErrorAs(t, err, &resumable)
					assert.ErrorIs(t, err, common.ErrStoreUnavailable)

					if fault.op != "SetPrimaryWorkspace" && fault.op != "PutSagaProgress" {
						acct, err := db.Storage.GetAccount(context.Background(), "alice")
						require.NoError(t, err)
						assert.Empty(t, acct.WorkspaceIDs, "workspace is invisible before the attach")
					}

					_, err = s.RunBusiness(as("alice"), plan)
					require.NoError(t, err)
					assertProvisioned(t, db, plan)

					// Replaying a finished saga changes nothing.
					_, err = s.RunBusiness(as("alice"), plan)
					require.NoError(t, err)
					assertProvisioned(t, db, plan)
				})
			}
		})
	}
}

func TestSaga_Resume(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		db.SeedAccount("alice")
		faulty := newFaultyStore(db.Storage, "PutMembership", 1)
		s := newSaga(faulty)

		plan, err := s.PrepareBusiness("alice", businessRequest())
		require.NoError(t, err)
		_, err = s.RunBusiness(as("alice"), plan)
		require.Error(t, err)

		require.NoError(t, s.Resume(as("alice"), plan.SagaID()))
		assertProvisioned(t, db, plan)

		assert.ErrorIs(t, s.Resume(as("alice"), "business:missing"), common.ErrNotFound)
	})
}

func assertProvisioned(t *testing.T, db *testutil.TestDB, plan BusinessPlan) {
	t.Helper()
	ctx := context.Background()
	wsID := plan.Workspace.ID

	ws, err := db.Storage.GetWorkspace(ctx, wsID)
	require.NoError(t, err)
	assert.Equal(t, "alice", ws.OwnerID)
	assert.Equal(t, "EUR", ws.Currency)

	members, err := db.Storage.ListMemberships(ctx, wsID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].UserID)
	assert.Equal(t, model.RoleOwner, members[0].Role)

	acct, err := db.Storage.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{wsID}, acct.WorkspaceIDs)
	assert.Equal(t, wsID, acct.PrimaryWorkspaceID)

	budgets, err := db.Storage.ListBudgets(ctx, model.WorkspaceOwner(wsID))
	require.NoError(t, err)
	assert.Len(t, budgets, len(plan.SeedBudgets))

	progress, err := db.Storage.GetSagaProgress(ctx, plan.SagaID())
	require.NoError(t, err)
	assert.True(t, progress.Done)
}
