// Package provisioning turns an onboarding request into a consistent set of
// records. Each run is a saga: identifiers are allocated before any write,
// every step is an upsert, and a persisted progress marker lets an
// interrupted run resume where it stopped.
package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/identity"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/service"
)

// ResumableError reports a saga that stopped on a store failure. Running the
// same plan again continues from the failed step.
type ResumableError struct {
	Err    error
	SagaID string
	Step   string
}

func (e *ResumableError) Error() string {
	return fmt.Sprintf("saga %s stopped at %s: %v", e.SagaID, e.Step, e.Err)
}

func (e *ResumableError) Unwrap() error {
	return e.Err
}

// Saga runs onboarding plans against a store.
type Saga struct {
	store service.Storage
	now   func() time.Time
}

// NewSaga returns a Saga writing to store.
func NewSaga(store service.Storage) *Saga {
	return &Saga{store: store, now: time.Now}
}

type step struct {
	run  func(ctx context.Context) error
	name string
}

// begin loads the progress marker for id, storing plan when the saga is new.
// When a marker exists its stored plan is decoded into plan and wins.
func (s *Saga) begin(ctx context.Context, id string, kind model.SagaKind, plan any) (*model.SagaProgress, error) {
	progress, err := s.store.GetSagaProgress(ctx, id)
	switch {
	case err == nil:
		if progress.Kind != kind {
			return nil, common.Invalid("kind", fmt.Sprintf("saga %s is a %s saga", id, progress.Kind))
		}
		if err := json.Unmarshal(progress.Plan, plan); err != nil {
			return nil, fmt.Errorf("decode stored plan of %s: %w", id, common.Invalid("plan", err.Error()))
		}
		slog.Info("Resuming provisioning saga", "saga", id, "step", progress.Step, "done", progress.Done)
		return progress, nil
	case !errors.Is(err, common.ErrNotFound):
		return nil, resumable(id, "start", err)
	}

	raw, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("encode plan of %s: %w", id, err)
	}
	progress = &model.SagaProgress{ID: id, Kind: kind, Plan: raw, UpdatedAt: s.now().UTC()}
	if err := s.store.PutSagaProgress(ctx, progress); err != nil {
		return nil, resumable(id, "start", err)
	}
	slog.Info("Starting provisioning saga", "saga", id)
	return progress, nil
}

// run executes the steps not yet recorded as complete, advancing the marker
// after each one.
func (s *Saga) run(ctx context.Context, progress *model.SagaProgress, steps []step) error {
	for i := progress.Step; i < len(steps); i++ {
		if err := steps[i].run(ctx); err != nil {
			return resumable(progress.ID, steps[i].name, err)
		}

		progress.Step = i + 1
		progress.Done = progress.Step == len(steps)
		progress.UpdatedAt = s.now().UTC()
		if err := s.store.PutSagaProgress(ctx, progress); err != nil {
			return resumable(progress.ID, steps[i].name, err)
		}
		slog.Debug("Saga step complete", "saga", progress.ID, "step", steps[i].name)
	}

	if !progress.Done {
		progress.Done = true
		progress.UpdatedAt = s.now().UTC()
		if err := s.store.PutSagaProgress(ctx, progress); err != nil {
			return resumable(progress.ID, "finish", err)
		}
	}
	slog.Info("Provisioning saga complete", "saga", progress.ID)
	return nil
}

// resumable wraps store outages; every other failure is terminal.
func resumable(sagaID, stepName string, err error) error {
	if errors.Is(err, common.ErrStoreUnavailable) {
		return &ResumableError{SagaID: sagaID, Step: stepName, Err: err}
	}
	return fmt.Errorf("saga %s at %s: %w", sagaID, stepName, err)
}

func requireActor(ctx context.Context, accountID string) error {
	actor, err := identity.Actor(ctx)
	if err != nil {
		return err
	}
	if actor != accountID {
		return fmt.Errorf("account %s: %w", accountID, common.ErrNotFound)
	}
	return nil
}

// Resume continues a stored saga using its persisted plan.
func (s *Saga) Resume(ctx context.Context, sagaID string) error {
	progress, err := s.store.GetSagaProgress(ctx, sagaID)
	if err != nil {
		return err
	}

	switch progress.Kind {
	case model.SagaPersonal:
		var plan PersonalPlan
		if err := json.Unmarshal(progress.Plan, &plan); err != nil {
			return common.Invalid("plan", err.Error())
		}
		_, err = s.RunPersonal(ctx, plan)
	case model.SagaBusiness:
		var plan BusinessPlan
		if err := json.Unmarshal(progress.Plan, &plan); err != nil {
			return common.Invalid("plan", err.Error())
		}
		_, err = s.RunBusiness(ctx, plan)
	default:
		err = common.Invalid("kind", "unknown saga kind "+string(progress.Kind))
	}
	return err
}
