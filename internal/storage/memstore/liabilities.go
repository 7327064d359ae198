package memstore

import (
	"cmp"
	"context"
	"slices"

	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/shopspring/decimal"
)

func (l memLedger) PutLiability(ctx context.Context, li *model.Liability) error {
	if err := li.Validate(); err != nil {
		return err
	}
	return l.with(ctx, func(st *state) error {
		ls := st.liabilities[li.AccountID]
		if ls == nil {
			ls = make(map[string]model.Liability)
			st.liabilities[li.AccountID] = ls
		}
		next := *li
		next.DueDate = next.DueDate.UTC()
		ls[li.ID] = next
		return nil
	})
}

func (l memLedger) ListLiabilities(ctx context.Context, accountID string) ([]model.Liability, error) {
	if err := requireString(accountID, "accountId"); err != nil {
		return nil, err
	}
	var out []model.Liability
	err := l.with(ctx, func(st *state) error {
		for _, li := range st.liabilities[accountID] {
			out = append(out, li)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b model.Liability) int {
		return cmp.Or(a.DueDate.Compare(b.DueDate), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (l memLedger) SetLiabilityStatus(ctx context.Context, accountID, liabilityID string, status model.LiabilityStatus) error {
	shape := model.Liability{ID: liabilityID, AccountID: accountID, Name: "-", Amount: decimal.NewFromInt(1), Status: status}
	if err := shape.Validate(); err != nil {
		return err
	}
	return l.with(ctx, func(st *state) error {
		li, ok := st.liabilities[accountID][liabilityID]
		if !ok {
			return notFound("set liability status " + liabilityID)
		}
		li.Status = status
		st.liabilities[accountID][liabilityID] = li
		return nil
	})
}
