package memstore

import (
	"context"
	"slices"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/model"
)

func (l memLedger) GetSagaProgress(ctx context.Context, sagaID string) (*model.SagaProgress, error) {
	if err := requireString(sagaID, "sagaId"); err != nil {
		return nil, err
	}
	var out model.SagaProgress
	err := l.with(ctx, func(st *state) error {
		p, ok := st.sagas[sagaID]
		if !ok {
			return notFound("get saga progress " + sagaID)
		}
		out = p
		out.Plan = slices.Clone(p.Plan)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (l memLedger) PutSagaProgress(ctx context.Context, p *model.SagaProgress) error {
	if err := requireString(p.ID, "sagaId"); err != nil {
		return err
	}
	if p.Kind != model.SagaPersonal && p.Kind != model.SagaBusiness {
		return common.Invalid("kind", "unknown saga kind "+string(p.Kind))
	}
	return l.with(ctx, func(st *state) error {
		next := *p
		next.Plan = slices.Clone(p.Plan)
		if next.UpdatedAt.IsZero() {
			next.UpdatedAt = nowUTC()
		}
		next.UpdatedAt = next.UpdatedAt.UTC()
		st.sagas[p.ID] = next
		return nil
	})
}
