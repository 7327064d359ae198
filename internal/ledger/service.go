// Package ledger records, corrects, and streams an owner's transactions while
// keeping budget category totals reconciled.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/ledgerline/internal/budget"
	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/feed"
	"github.com/Veraticus/ledgerline/internal/membership"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryInput is a new ledger entry. OccurredAt defaults to now and ID is
// allocated when empty.
type EntryInput struct {
	OccurredAt  time.Time
	Amount      decimal.Decimal
	ID          string
	Category    string
	Description string
	Kind        model.Kind
}

// EntryPatch changes a subset of an entry's fields; nil fields are kept.
type EntryPatch struct {
	Amount      *decimal.Decimal
	Category    *string
	Kind        *model.Kind
	Description *string
	OccurredAt  *time.Time
}

// Filter narrows List by occurrence date.
type Filter = service.TransactionFilter

// Service is the entry point for ledger reads and writes.
type Service struct {
	store   service.Storage
	budgets *budget.Aggregator
	hub     *feed.Hub
	now     func() time.Time
}

// NewService wires a ledger service. A nil hub gets an in-process hub
// loading from store.
func NewService(store service.Storage, budgets *budget.Aggregator, hub *feed.Hub) *Service {
	if hub == nil {
		hub = feed.NewHub(Loader(store))
	}
	return &Service{store: store, budgets: budgets, hub: hub, now: time.Now}
}

// Loader reads an owner's full entry list for change feeds.
func Loader(l service.Ledger) feed.Loader {
	return func(ctx context.Context, owner model.Owner) ([]model.Transaction, error) {
		return l.ListTransactions(ctx, owner, service.TransactionFilter{})
	}
}

// Hub returns the change feed the service notifies.
func (s *Service) Hub() *feed.Hub {
	return s.hub
}

// Record stores a new entry and posts an expense to the matching budget
// categories in the same store transaction. It returns the entry's ID.
func (s *Service) Record(ctx context.Context, owner model.Owner, in EntryInput) (string, error) {
	if _, err := membership.AuthorizeOwner(ctx, s.store, owner, membership.Write); err != nil {
		return "", err
	}
	txn, err := s.build(owner, in)
	if err != nil {
		return "", err
	}

	err = service.RunInTx(ctx, s.store, func(l service.Ledger) error {
		return s.insert(ctx, l, txn)
	})
	if err != nil {
		return "", err
	}

	slog.Info("Recorded transaction",
		"owner", owner.String(),
		"id", txn.ID,
		"kind", txn.Kind,
		"category", txn.Category)
	s.hub.Notify(ctx, owner)
	return txn.ID, nil
}

func (s *Service) build(owner model.Owner, in EntryInput) (*model.Transaction, error) {
	now := s.now().UTC()
	txn := &model.Transaction{
		ID:          in.ID,
		Owner:       owner,
		Amount:      in.Amount,
		Category:    strings.TrimSpace(in.Category),
		Kind:        in.Kind,
		Description: strings.TrimSpace(in.Description),
		OccurredAt:  in.OccurredAt.UTC(),
		WrittenAt:   now,
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if in.OccurredAt.IsZero() {
		txn.OccurredAt = now
	}
	if err := txn.Validate(); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *Service) insert(ctx context.Context, l service.Ledger, txn *model.Transaction) error {
	if err := l.InsertTransaction(ctx, txn); err != nil {
		return err
	}
	return s.budgets.Post(ctx, l, txn)
}

// Amend applies a patch to an existing entry. When a change affects budget
// totals the old contribution is reversed before the new one is applied.
func (s *Service) Amend(ctx context.Context, owner model.Owner, id string, patch EntryPatch) error {
	if _, err := membership.AuthorizeOwner(ctx, s.store, owner, membership.Write); err != nil {
		return err
	}
	if err := patch.validate(); err != nil {
		return err
	}

	err := service.RunInTx(ctx, s.store, func(l service.Ledger) error {
		old, err := l.GetTransaction(ctx, owner, id)
		if err != nil {
			return err
		}

		updated := patch.apply(*old)
		if err := updated.Validate(); err != nil {
			return err
		}

		if !affectsBudgets(old, &updated) {
			return l.UpdateTransaction(ctx, &updated)
		}
		if err := s.budgets.Reverse(ctx, l, old); err != nil {
			return err
		}
		if err := l.UpdateTransaction(ctx, &updated); err != nil {
			return err
		}
		return s.budgets.Post(ctx, l, &updated)
	})
	if err != nil {
		return err
	}

	slog.Info("Amended transaction", "owner", owner.String(), "id", id)
	s.hub.Notify(ctx, owner)
	return nil
}

func (p EntryPatch) validate() error {
	if p.Amount != nil {
		if err := model.ValidateAmount("amount", *p.Amount); err != nil {
			return err
		}
	}
	if p.Category != nil && strings.TrimSpace(*p.Category) == "" {
		return common.Invalid("category", "must not be empty")
	}
	if p.Kind != nil && !p.Kind.Valid() {
		return common.Invalid("kind", "must be income or expense")
	}
	if p.OccurredAt != nil && p.OccurredAt.IsZero() {
		return common.Invalid("occurredAt", "missing date")
	}
	return nil
}

func (p EntryPatch) apply(txn model.Transaction) model.Transaction {
	if p.Amount != nil {
		txn.Amount = *p.Amount
	}
	if p.Category != nil {
		txn.Category = strings.TrimSpace(*p.Category)
	}
	if p.Kind != nil {
		txn.Kind = *p.Kind
	}
	if p.Description != nil {
		txn.Description = strings.TrimSpace(*p.Description)
	}
	if p.OccurredAt != nil {
		txn.OccurredAt = p.OccurredAt.UTC()
	}
	return txn
}

func affectsBudgets(old, updated *model.Transaction) bool {
	return !old.Amount.Equal(updated.Amount) ||
		old.Category != updated.Category ||
		old.Kind != updated.Kind ||
		!old.OccurredAt.Equal(updated.OccurredAt)
}

// Remove deletes an entry and reverses its budget contribution.
func (s *Service) Remove(ctx context.Context, owner model.Owner, id string) error {
	if _, err := membership.AuthorizeOwner(ctx, s.store, owner, membership.Write); err != nil {
		return err
	}

	err := service.RunInTx(ctx, s.store, func(l service.Ledger) error {
		txn, err := l.GetTransaction(ctx, owner, id)
		if err != nil {
			return err
		}
		if err := l.DeleteTransaction(ctx, owner, id); err != nil {
			return err
		}
		return s.budgets.Reverse(ctx, l, txn)
	})
	if err != nil {
		return err
	}

	slog.Info("Removed transaction", "owner", owner.String(), "id", id)
	s.hub.Notify(ctx, owner)
	return nil
}

// List returns the owner's entries, newest occurrence first with write time
// breaking ties.
func (s *Service) List(ctx context.Context, owner model.Owner, filter Filter) ([]model.Transaction, error) {
	if _, err := membership.AuthorizeOwner(ctx, s.store, owner, membership.Read); err != nil {
		return nil, err
	}
	if filter.Limit < 0 {
		return nil, common.Invalid("limit", "must not be negative")
	}
	return s.store.ListTransactions(ctx, owner, filter)
}

// Subscribe delivers the owner's full entry list now and after every
// committed write. Listeners may write to the same owner; the resulting
// list is delivered after the current one. The returned function stops
// further deliveries.
func (s *Service) Subscribe(ctx context.Context, owner model.Owner, onChange feed.Listener) (func(), error) {
	if onChange == nil {
		return nil, common.Invalid("listener", "missing")
	}
	if _, err := membership.AuthorizeOwner(ctx, s.store, owner, membership.Read); err != nil {
		return nil, err
	}
	unsubscribe, err := s.hub.Subscribe(ctx, owner, onChange)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", owner, err)
	}
	return unsubscribe, nil
}
