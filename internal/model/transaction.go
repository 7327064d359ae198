package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/shopspring/decimal"
)

// Kind tells whether money came in or went out.
type Kind string

const (
	// KindIncome is money received.
	KindIncome Kind = "income"
	// KindExpense is money spent; only expenses count against budgets.
	KindExpense Kind = "expense"
)

// MaxDescriptionLength bounds free-form descriptions.
const MaxDescriptionLength = 200

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// Transaction is a single ledger entry owned by one account or workspace.
type Transaction struct {
	OccurredAt  time.Time // user-chosen date
	WrittenAt   time.Time // system write time
	Amount      decimal.Decimal
	Owner       Owner
	ID          string
	Category    string
	Description string
	Kind        Kind
}

// IsExpense reports whether the entry counts against budget categories.
func (t *Transaction) IsExpense() bool {
	return t.Kind == KindExpense
}

// Validate checks every field the store persists.
func (t *Transaction) Validate() error {
	if t == nil {
		return common.Invalid("transaction", "missing")
	}
	if err := t.Owner.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.ID) == "" {
		return common.Invalid("id", "missing identifier")
	}
	if err := ValidateAmount("amount", t.Amount); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return common.Invalid("category", "must not be empty")
	}
	if !t.Kind.Valid() {
		return common.Invalid("kind", "must be income or expense")
	}
	if len(t.Description) > MaxDescriptionLength {
		return common.Invalid("description", "too long (max 200 characters)")
	}
	if t.OccurredAt.IsZero() {
		return common.Invalid("occurredAt", "missing date")
	}
	if err := ValidateDate("occurredAt", t.OccurredAt); err != nil {
		return err
	}
	if t.WrittenAt.IsZero() {
		return common.Invalid("writtenAt", "missing timestamp")
	}
	return ValidateDate("writtenAt", t.WrittenAt)
}

// Stored times keep nanosecond precision, which only spans these years.
var (
	MinDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
	MaxDate = time.Date(2200, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// ValidateDate rejects times before MinDate or from MaxDate on.
func ValidateDate(field string, t time.Time) error {
	if t.Before(MinDate) || !t.Before(MaxDate) {
		return common.Invalid(field, fmt.Sprintf("must fall between %d and %d", MinDate.Year(), MaxDate.Year()-1))
	}
	return nil
}

// ValidateAmount rejects zero and negative amounts.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return common.Invalid(field, "must be greater than zero")
	}
	return nil
}

// ValidateLimit accepts zero but rejects negative limits.
func ValidateLimit(field string, limit decimal.Decimal) error {
	if limit.IsNegative() {
		return common.Invalid(field, "must not be negative")
	}
	return nil
}
