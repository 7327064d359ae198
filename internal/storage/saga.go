package storage

import (
	"context"
	"time"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/model"
)

// GetSagaProgress returns the persisted marker of a provisioning run.
func (l *sqlLedger) GetSagaProgress(ctx context.Context, sagaID string) (*model.SagaProgress, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sagaID, "sagaId"); err != nil {
		return nil, err
	}

	var (
		p         model.SagaProgress
		kind      string
		updatedAt int64
	)
	err := l.q.QueryRowContext(ctx, `
		SELECT id, kind, step, done, plan, updated_at
		FROM saga_progress WHERE id = ?`, sagaID,
	).Scan(&p.ID, &kind, &p.Step, &p.Done, &p.Plan, &updatedAt)
	if err != nil {
		return nil, dbError("get saga progress "+sagaID, err)
	}
	p.Kind = model.SagaKind(kind)
	p.UpdatedAt = fromUnix(updatedAt)
	return &p, nil
}

// PutSagaProgress upserts a provisioning progress marker.
func (l *sqlLedger) PutSagaProgress(ctx context.Context, p *model.SagaProgress) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(p.ID, "sagaId"); err != nil {
		return err
	}
	if p.Kind != model.SagaPersonal && p.Kind != model.SagaBusiness {
		return common.Invalid("kind", "unknown saga kind "+string(p.Kind))
	}

	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := l.q.ExecContext(ctx, `
		INSERT INTO saga_progress (id, kind, step, done, plan, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			step = excluded.step,
			done = excluded.done,
			plan = excluded.plan,
			updated_at = excluded.updated_at`,
		p.ID, string(p.Kind), p.Step, p.Done, p.Plan, toUnix(updatedAt),
	)
	if err != nil {
		return dbError("put saga progress "+p.ID, err)
	}
	return nil
}
