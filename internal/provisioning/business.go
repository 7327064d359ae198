package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/ledgerline/internal/budget"
	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BusinessRequest is the onboarding payload of a business workspace.
type BusinessRequest struct {
	// Profile creates the account in business mode when it does not exist
	// yet. Without it the account must already be onboarded.
	Profile         *model.Profile
	Name            string
	Currency        string
	Timezone        string
	TaxID           string
	Address         string
	SeedBudgets     []budget.Input
	FiscalYearStart int
}

// BusinessPlan is a validated request with the workspace and seed budget
// identifiers allocated.
type BusinessPlan struct {
	CreatedAt   time.Time       `json:"createdAt"`
	Profile     *model.Profile  `json:"profile,omitempty"`
	AccountID   string          `json:"accountId"`
	Workspace   model.Workspace `json:"workspace"`
	SeedBudgets []budget.Input  `json:"seedBudgets,omitempty"`
}

// SagaID is the key of the plan's progress marker.
func (p BusinessPlan) SagaID() string {
	return "business:" + p.Workspace.ID
}

// PrepareBusiness validates the request and allocates the workspace and seed
// budget identifiers. Nothing is written.
func (s *Saga) PrepareBusiness(accountID string, req BusinessRequest) (BusinessPlan, error) {
	now := s.now().UTC()
	if strings.TrimSpace(accountID) == "" {
		return BusinessPlan{}, common.Invalid("accountId", "missing identifier")
	}

	ws := model.Workspace{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(req.Name),
		OwnerID:         accountID,
		Currency:        strings.ToUpper(strings.TrimSpace(req.Currency)),
		Timezone:        req.Timezone,
		TaxID:           req.TaxID,
		Address:         req.Address,
		FiscalYearStart: req.FiscalYearStart,
		CreatedAt:       now,
	}
	if ws.Timezone == "" {
		ws.Timezone = "UTC"
	}
	if ws.FiscalYearStart == 0 {
		ws.FiscalYearStart = 1
	}
	if err := ws.Validate(); err != nil {
		return BusinessPlan{}, err
	}

	plan := BusinessPlan{CreatedAt: now, AccountID: accountID, Workspace: ws}
	if req.Profile != nil {
		p := *req.Profile
		p.Mode = model.ModeBusiness
		p.DisplayName = strings.TrimSpace(p.DisplayName)
		p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
		if p.Currency == "" {
			p.Currency = ws.Currency
		}
		acct := model.Account{ID: accountID, Profile: p}
		if err := acct.Validate(); err != nil {
			return BusinessPlan{}, err
		}
		plan.Profile = &p
	}
	owner := model.WorkspaceOwner(ws.ID)
	periods := make(map[string]bool, len(req.SeedBudgets))
	for _, in := range req.SeedBudgets {
		in.ID = uuid.NewString()
		if in.PeriodKey == "" && in.Granularity.Valid() {
			in.PeriodKey = model.PeriodKey(in.Granularity, now)
		}
		if _, err := in.Build(owner, now); err != nil {
			return BusinessPlan{}, err
		}
		period := string(in.Granularity) + "|" + in.PeriodKey
		if periods[period] {
			return BusinessPlan{}, common.Invalid("periodKey", fmt.Sprintf("two seed budgets cover %s", in.PeriodKey))
		}
		periods[period] = true
		plan.SeedBudgets = append(plan.SeedBudgets, in)
	}
	return plan, nil
}

// RunBusiness creates the account when the plan carries a profile, writes
// the workspace, the owner membership, and the seed budgets, then attaches
// the workspace to the account. The attach is the commit point: until it
// succeeds the workspace is invisible to the user. A plan already stored for
// the workspace takes precedence over plan.
func (s *Saga) RunBusiness(ctx context.Context, plan BusinessPlan) (BusinessPlan, error) {
	if err := requireActor(ctx, plan.AccountID); err != nil {
		return BusinessPlan{}, err
	}
	if plan.Profile == nil {
		if _, err := s.store.GetAccount(ctx, plan.AccountID); err != nil {
			return BusinessPlan{}, resumable(plan.SagaID(), "start", err)
		}
	}

	progress, err := s.begin(ctx, plan.SagaID(), model.SagaBusiness, &plan)
	if err != nil {
		return BusinessPlan{}, err
	}
	owner := model.WorkspaceOwner(plan.Workspace.ID)

	steps := []step{
		{name: "profile", run: func(ctx context.Context) error {
			if plan.Profile == nil {
				return nil
			}
			_, err := s.store.GetAccount(ctx, plan.AccountID)
			if !errors.Is(err, common.ErrNotFound) {
				return err
			}
			return s.store.PutAccount(ctx, &model.Account{ID: plan.AccountID, Profile: *plan.Profile})
		}},
		{name: "workspace", run: func(ctx context.Context) error {
			ws := plan.Workspace
			return s.store.PutWorkspace(ctx, &ws)
		}},
		{name: "membership", run: func(ctx context.Context) error {
			return s.store.PutMembership(ctx, &model.Membership{
				WorkspaceID: plan.Workspace.ID,
				UserID:      plan.AccountID,
				Role:        model.RoleOwner,
				JoinedAt:    plan.CreatedAt,
			})
		}},
		{name: "budgets", run: func(ctx context.Context) error {
			g, gctx := errgroup.WithContext(ctx)
			for _, in := range plan.SeedBudgets {
				g.Go(func() error {
					b, err := in.Build(owner, plan.CreatedAt)
					if err != nil {
						return err
					}
					return s.store.PutBudget(gctx, b)
				})
			}
			return g.Wait()
		}},
		{name: "attach", run: func(ctx context.Context) error {
			return s.store.AttachWorkspace(ctx, plan.AccountID, plan.Workspace.ID)
		}},
		{name: "pointer", run: func(ctx context.Context) error {
			acct, err := s.store.GetAccount(ctx, plan.AccountID)
			if err != nil {
				return err
			}
			if acct.PrimaryWorkspaceID != "" {
				return nil
			}
			return s.store.SetPrimaryWorkspace(ctx, plan.AccountID, plan.Workspace.ID)
		}},
	}

	if err := s.run(ctx, progress, steps); err != nil {
		return BusinessPlan{}, err
	}
	return plan, nil
}
