package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/shopspring/decimal"
)

// Granularity is the period a budget's limits apply to.
type Granularity string

const (
	// Weekly budgets use ISO weeks, keyed "2026-W07".
	Weekly Granularity = "weekly"
	// Monthly budgets are keyed "2026-02".
	Monthly Granularity = "monthly"
	// Yearly budgets are keyed "2026".
	Yearly Granularity = "yearly"
)

// Granularities lists every budget period in resolution order.
var Granularities = []Granularity{Monthly, Weekly, Yearly}

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	switch g {
	case Weekly, Monthly, Yearly:
		return true
	default:
		return false
	}
}

// PeriodKey returns the key of the period containing t, computed in UTC.
func PeriodKey(g Granularity, t time.Time) string {
	t = t.UTC()
	switch g {
	case Weekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case Yearly:
		return fmt.Sprintf("%04d", t.Year())
	default:
		return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
	}
}

// PeriodBounds returns the half-open [start, end) range a period key covers.
func PeriodBounds(g Granularity, key string) (time.Time, time.Time, error) {
	switch g {
	case Monthly:
		start, err := time.Parse("2006-01", key)
		if err != nil {
			return time.Time{}, time.Time{}, common.Invalid("periodKey", "expected YYYY-MM")
		}
		return start, start.AddDate(0, 1, 0), nil
	case Yearly:
		start, err := time.Parse("2006", key)
		if err != nil {
			return time.Time{}, time.Time{}, common.Invalid("periodKey", "expected YYYY")
		}
		return start, start.AddDate(1, 0, 0), nil
	case Weekly:
		year, week, ok := parseISOWeek(key)
		if !ok {
			return time.Time{}, time.Time{}, common.Invalid("periodKey", "expected YYYY-Www")
		}
		// ISO week 1 is the week containing January 4th.
		jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
		offset := (int(jan4.Weekday()) + 6) % 7
		start := jan4.AddDate(0, 0, -offset+(week-1)*7)
		return start, start.AddDate(0, 0, 7), nil
	default:
		return time.Time{}, time.Time{}, common.Invalid("granularity", "must be weekly, monthly, or yearly")
	}
}

func parseISOWeek(key string) (int, int, bool) {
	yearPart, weekPart, found := strings.Cut(key, "-W")
	if !found || len(yearPart) != 4 || len(weekPart) != 2 {
		return 0, 0, false
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return 0, 0, false
	}
	week, err := strconv.Atoi(weekPart)
	if err != nil || week < 1 || week > 53 {
		return 0, 0, false
	}
	// Reject week 53 in years that only have 52.
	if _, last := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek(); week > last {
		return 0, 0, false
	}
	return year, week, true
}

// Budget holds per-period category limits for one owner.
type Budget struct {
	CreatedAt   time.Time
	TotalLimit  decimal.Decimal
	Owner       Owner
	ID          string
	PeriodKey   string
	Granularity Granularity
	Categories  []Category
}

// Covers reports whether t falls inside the budget's period.
func (b *Budget) Covers(t time.Time) bool {
	return PeriodKey(b.Granularity, t) == b.PeriodKey
}

// Bounds returns the budget's period range.
func (b *Budget) Bounds() (time.Time, time.Time, error) {
	return PeriodBounds(b.Granularity, b.PeriodKey)
}

// Category returns the named category, if present.
func (b *Budget) Category(name string) (Category, bool) {
	for _, c := range b.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// TotalSpent sums spent across categories.
func (b *Budget) TotalSpent() decimal.Decimal {
	total := decimal.Zero
	for _, c := range b.Categories {
		total = total.Add(c.Spent)
	}
	return total
}

// CategoryLimitSum sums every category limit.
func (b *Budget) CategoryLimitSum() decimal.Decimal {
	total := decimal.Zero
	for _, c := range b.Categories {
		total = total.Add(c.Limit)
	}
	return total
}

// Validate checks the budget document, including category name uniqueness.
func (b *Budget) Validate() error {
	if b == nil {
		return common.Invalid("budget", "missing")
	}
	if err := b.Owner.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(b.ID) == "" {
		return common.Invalid("id", "missing identifier")
	}
	if !b.Granularity.Valid() {
		return common.Invalid("granularity", "must be weekly, monthly, or yearly")
	}
	start, _, err := PeriodBounds(b.Granularity, b.PeriodKey)
	if err != nil {
		return err
	}
	if err := ValidateDate("periodKey", start); err != nil {
		return err
	}
	// Categories first: a derived total inherits their errors.
	seen := make(map[string]bool, len(b.Categories))
	for _, c := range b.Categories {
		if err := c.Validate(); err != nil {
			return err
		}
		if seen[c.Name] {
			return common.Invalid("category", "duplicate name "+c.Name)
		}
		seen[c.Name] = true
	}
	return ValidateLimit("totalLimit", b.TotalLimit)
}
