package model

import (
	"strings"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/shopspring/decimal"
)

// Category is a named spending limit embedded in a Budget.
// Spent is a running total maintained by relative deltas.
type Category struct {
	Name  string
	Limit decimal.Decimal
	Spent decimal.Decimal
}

// Remaining returns limit minus spent, clamped at zero.
func (c Category) Remaining() decimal.Decimal {
	r := c.Limit.Sub(c.Spent)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Overspent reports whether spending exceeds the limit.
func (c Category) Overspent() bool {
	return c.Spent.GreaterThan(c.Limit)
}

// UsagePercent returns spent as a percentage of limit; a zero limit reads as 0%.
func (c Category) UsagePercent() decimal.Decimal {
	if !c.Limit.IsPositive() {
		return decimal.Zero
	}
	return c.Spent.Div(c.Limit).Mul(decimal.NewFromInt(100)).Round(2)
}

// Validate checks the category name and limit.
func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return common.Invalid("category", "must not be empty")
	}
	if err := ValidateLimit("limit", c.Limit); err != nil {
		return err
	}
	return nil
}
