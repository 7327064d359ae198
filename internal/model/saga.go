package model

import (
	"time"
)

// SagaKind names the onboarding path a progress marker belongs to.
type SagaKind string

const (
	// SagaPersonal provisions a personal account and its first budget.
	SagaPersonal SagaKind = "personal"
	// SagaBusiness provisions a business workspace for an account.
	SagaBusiness SagaKind = "business"
)

// SagaProgress is the persisted marker of a provisioning run.
// Step counts completed steps; Plan is the serialized pre-allocated plan.
type SagaProgress struct {
	UpdatedAt time.Time
	ID        string
	Kind      SagaKind
	Plan      []byte
	Step      int
	Done      bool
}
