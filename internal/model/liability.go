package model

import (
	"strings"
	"time"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/shopspring/decimal"
)

// LiabilityStatus tracks a loan's lifecycle.
type LiabilityStatus string

const (
	LiabilityActive  LiabilityStatus = "active"
	LiabilityOverdue LiabilityStatus = "overdue"
	LiabilityClosed  LiabilityStatus = "closed"
)

// Liability is a loan or EMI owed by an account.
type Liability struct {
	DueDate      time.Time
	Amount       decimal.Decimal
	InterestRate decimal.Decimal // annual percentage
	ID           string
	AccountID    string
	Name         string
	Status       LiabilityStatus
}

// EffectiveStatus reports overdue for active liabilities past their due date.
func (l *Liability) EffectiveStatus(now time.Time) LiabilityStatus {
	if l.Status == LiabilityActive && !l.DueDate.IsZero() && now.After(l.DueDate) {
		return LiabilityOverdue
	}
	return l.Status
}

// Validate checks the liability document.
func (l *Liability) Validate() error {
	if l == nil {
		return common.Invalid("liability", "missing")
	}
	if strings.TrimSpace(l.ID) == "" {
		return common.Invalid("id", "missing identifier")
	}
	if strings.TrimSpace(l.AccountID) == "" {
		return common.Invalid("accountId", "missing identifier")
	}
	if strings.TrimSpace(l.Name) == "" {
		return common.Invalid("name", "must not be empty")
	}
	if err := ValidateAmount("amount", l.Amount); err != nil {
		return err
	}
	if l.InterestRate.IsNegative() {
		return common.Invalid("interestRate", "must not be negative")
	}
	if !l.DueDate.IsZero() {
		if err := ValidateDate("dueDate", l.DueDate); err != nil {
			return err
		}
	}
	switch l.Status {
	case LiabilityActive, LiabilityOverdue, LiabilityClosed:
	default:
		return common.Invalid("status", "must be active, overdue, or closed")
	}
	return nil
}
