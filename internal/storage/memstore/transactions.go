package memstore

import (
	"cmp"
	"context"
	"slices"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/service"
)

func (l memLedger) InsertTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := txn.Validate(); err != nil {
		return err
	}
	return l.with(ctx, func(st *state) error {
		txns := st.transactions[txn.Owner]
		if txns == nil {
			txns = make(map[string]model.Transaction)
			st.transactions[txn.Owner] = txns
		}
		if _, exists := txns[txn.ID]; exists {
			return common.Invalid("id", "conflicts with an existing record")
		}
		txns[txn.ID] = normalize(*txn)
		return nil
	})
}

func (l memLedger) GetTransaction(ctx context.Context, owner model.Owner, id string) (*model.Transaction, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if err := requireString(id, "id"); err != nil {
		return nil, err
	}
	var out model.Transaction
	err := l.with(ctx, func(st *state) error {
		t, ok := st.transactions[owner][id]
		if !ok {
			return notFound("get transaction " + id)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (l memLedger) UpdateTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := txn.Validate(); err != nil {
		return err
	}
	return l.with(ctx, func(st *state) error {
		existing, ok := st.transactions[txn.Owner][txn.ID]
		if !ok {
			return notFound("update transaction " + txn.ID)
		}
		updated := normalize(*txn)
		updated.WrittenAt = existing.WrittenAt
		st.transactions[txn.Owner][txn.ID] = updated
		return nil
	})
}

func (l memLedger) DeleteTransaction(ctx context.Context, owner model.Owner, id string) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	if err := requireString(id, "id"); err != nil {
		return err
	}
	return l.with(ctx, func(st *state) error {
		if _, ok := st.transactions[owner][id]; !ok {
			return notFound("delete transaction " + id)
		}
		delete(st.transactions[owner], id)
		return nil
	})
}

func (l memLedger) ListTransactions(ctx context.Context, owner model.Owner, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	var out []model.Transaction
	err := l.with(ctx, func(st *state) error {
		for _, t := range st.transactions[owner] {
			if !filter.From.IsZero() && t.OccurredAt.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && !t.OccurredAt.Before(filter.To) {
				continue
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b model.Transaction) int {
		if c := b.OccurredAt.Compare(a.OccurredAt); c != 0 {
			return c
		}
		if c := b.WrittenAt.Compare(a.WrittenAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// normalize matches the precision the SQLite store round-trips.
func normalize(t model.Transaction) model.Transaction {
	t.OccurredAt = t.OccurredAt.UTC()
	t.WrittenAt = t.WrittenAt.UTC()
	return t
}
