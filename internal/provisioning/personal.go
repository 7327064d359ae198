package provisioning

import (
	"context"
	"strings"
	"time"

	"github.com/Veraticus/ledgerline/internal/budget"
	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/liability"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/google/uuid"
)

// PersonalRequest is the onboarding payload of a personal account.
type PersonalRequest struct {
	// Loan is an existing liability declared at signup.
	Loan       *liability.Input
	Profile    model.Profile
	Categories []budget.CategoryInput
}

// PersonalPlan is a validated request with every identifier allocated.
type PersonalPlan struct {
	CreatedAt time.Time        `json:"createdAt"`
	Loan      *liability.Input `json:"loan,omitempty"`
	Profile   model.Profile    `json:"profile"`
	AccountID string           `json:"accountId"`
	Budget    budget.Input     `json:"budget"`
}

// SagaID is the key of the plan's progress marker.
func (p PersonalPlan) SagaID() string {
	return "personal:" + p.AccountID
}

// PreparePersonal validates the request and allocates the budget and loan
// identifiers. Nothing is written.
func (s *Saga) PreparePersonal(accountID string, req PersonalRequest) (PersonalPlan, error) {
	now := s.now().UTC()
	req.Profile.Mode = model.ModePersonal
	req.Profile.DisplayName = strings.TrimSpace(req.Profile.DisplayName)

	acct := model.Account{ID: accountID, Profile: req.Profile}
	if err := acct.Validate(); err != nil {
		return PersonalPlan{}, err
	}
	if len(req.Categories) == 0 {
		return PersonalPlan{}, common.Invalid("categories", "declare at least one category budget")
	}

	plan := PersonalPlan{
		CreatedAt: now,
		AccountID: accountID,
		Profile:   req.Profile,
		Budget: budget.Input{
			ID:          uuid.NewString(),
			Granularity: model.Monthly,
			PeriodKey:   model.PeriodKey(model.Monthly, now),
			Categories:  req.Categories,
		},
	}
	if _, err := plan.Budget.Build(model.AccountOwner(accountID), now); err != nil {
		return PersonalPlan{}, err
	}

	if req.Loan != nil {
		loan := *req.Loan
		loan.ID = uuid.NewString()
		if _, err := loan.Build(accountID); err != nil {
			return PersonalPlan{}, err
		}
		plan.Loan = &loan
	}
	return plan, nil
}

// RunPersonal writes the profile, the first monthly budget, the active
// budget link, and the declared loan. A plan already stored for the account
// takes precedence over plan and is returned.
func (s *Saga) RunPersonal(ctx context.Context, plan PersonalPlan) (PersonalPlan, error) {
	if err := requireActor(ctx, plan.AccountID); err != nil {
		return PersonalPlan{}, err
	}

	id := plan.SagaID()
	progress, err := s.begin(ctx, id, model.SagaPersonal, &plan)
	if err != nil {
		return PersonalPlan{}, err
	}
	owner := model.AccountOwner(plan.AccountID)

	steps := []step{
		{name: "profile", run: func(ctx context.Context) error {
			return s.store.PutAccount(ctx, &model.Account{ID: plan.AccountID, Profile: plan.Profile})
		}},
		{name: "budget", run: func(ctx context.Context) error {
			b, err := plan.Budget.Build(owner, plan.CreatedAt)
			if err != nil {
				return err
			}
			return s.store.PutBudget(ctx, b)
		}},
		{name: "activate", run: func(ctx context.Context) error {
			return s.store.SetActiveBudget(ctx, plan.AccountID, plan.Budget.ID)
		}},
	}
	if plan.Loan != nil {
		steps = append(steps, step{name: "loan", run: func(ctx context.Context) error {
			l, err := plan.Loan.Build(plan.AccountID)
			if err != nil {
				return err
			}
			return s.store.PutLiability(ctx, l)
		}})
	}

	if err := s.run(ctx, progress, steps); err != nil {
		return PersonalPlan{}, err
	}
	return plan, nil
}
