// Package liability tracks loans and EMIs owed by personal accounts.
package liability

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/ledgerline/internal/identity"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Input declares a liability. ID is allocated when empty.
type Input struct {
	DueDate      time.Time
	Amount       decimal.Decimal
	InterestRate decimal.Decimal
	ID           string
	Name         string
}

// Build returns the validated active liability described by in.
func (in Input) Build(accountID string) (*model.Liability, error) {
	l := &model.Liability{
		ID:           in.ID,
		AccountID:    accountID,
		Name:         strings.TrimSpace(in.Name),
		Amount:       in.Amount,
		InterestRate: in.InterestRate,
		Status:       model.LiabilityActive,
	}
	if !in.DueDate.IsZero() {
		l.DueDate = in.DueDate.UTC()
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Service manages the acting account's liabilities.
type Service struct {
	store service.Ledger
	now   func() time.Time
}

// NewService returns a Service backed by store.
func NewService(store service.Ledger) *Service {
	return &Service{store: store, now: time.Now}
}

// Add records a new active liability and returns its ID.
func (s *Service) Add(ctx context.Context, in Input) (string, error) {
	actor, err := identity.Actor(ctx)
	if err != nil {
		return "", err
	}
	l, err := in.Build(actor)
	if err != nil {
		return "", err
	}
	if err := s.store.PutLiability(ctx, l); err != nil {
		return "", err
	}

	slog.Info("Added liability", "account", actor, "id", l.ID, "name", l.Name)
	return l.ID, nil
}

// List returns the acting account's liabilities by due date. Active
// liabilities past their due date are reported as overdue.
func (s *Service) List(ctx context.Context) ([]model.Liability, error) {
	actor, err := identity.Actor(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListLiabilities(ctx, actor)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for i := range items {
		items[i].Status = items[i].EffectiveStatus(now)
	}
	return items, nil
}

// Close marks a liability as paid off.
func (s *Service) Close(ctx context.Context, id string) error {
	actor, err := identity.Actor(ctx)
	if err != nil {
		return err
	}
	if err := s.store.SetLiabilityStatus(ctx, actor, id, model.LiabilityClosed); err != nil {
		return err
	}
	slog.Info("Closed liability", "account", actor, "id", id)
	return nil
}
