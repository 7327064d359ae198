// Package trend buckets an owner's ledger into fixed weekday or month axes.
package trend

import (
	"context"
	"time"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/membership"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/service"
	"github.com/shopspring/decimal"
)

// KnownLimitations is shown to callers that chart trends across years.
const KnownLimitations = "Buckets are keyed by weekday or month name only; " +
	"entries from different years that share a weekday or month are summed together."

// Range narrows the entries considered. From is inclusive, To exclusive;
// zero values are unbounded.
type Range struct {
	From time.Time
	To   time.Time
}

// Bucket totals one weekday or month.
type Bucket struct {
	Label   string
	Income  decimal.Decimal
	Expense decimal.Decimal
	Net     decimal.Decimal
}

// Aggregator computes trend views from the ledger.
type Aggregator struct {
	store service.Ledger
}

// NewAggregator returns an Aggregator reading from store.
func NewAggregator(store service.Ledger) *Aggregator {
	return &Aggregator{store: store}
}

// Trend returns 7 buckets Monday through Sunday for weekly granularity or
// 12 buckets January through December for monthly, always in that order and
// including empty buckets.
func (a *Aggregator) Trend(ctx context.Context, owner model.Owner, granularity model.Granularity, r Range) ([]Bucket, error) {
	labels, index, err := axis(granularity)
	if err != nil {
		return nil, err
	}
	if _, err := membership.AuthorizeOwner(ctx, a.store, owner, membership.Read); err != nil {
		return nil, err
	}

	txns, err := a.store.ListTransactions(ctx, owner, service.TransactionFilter{From: r.From, To: r.To})
	if err != nil {
		return nil, err
	}
	return Bucketize(txns, labels, index), nil
}

// Bucketize sums entries into the given axis.
func Bucketize(txns []model.Transaction, labels []string, index func(time.Time) int) []Bucket {
	buckets := make([]Bucket, len(labels))
	for i, label := range labels {
		buckets[i] = Bucket{Label: label, Income: decimal.Zero, Expense: decimal.Zero}
	}

	for i := range txns {
		b := &buckets[index(txns[i].OccurredAt.UTC())]
		if txns[i].IsExpense() {
			b.Expense = b.Expense.Add(txns[i].Amount)
		} else {
			b.Income = b.Income.Add(txns[i].Amount)
		}
	}

	for i := range buckets {
		buckets[i].Net = buckets[i].Income.Sub(buckets[i].Expense)
	}
	return buckets
}

var (
	weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	months   = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
)

func axis(g model.Granularity) ([]string, func(time.Time) int, error) {
	switch g {
	case model.Weekly:
		// time.Weekday starts on Sunday.
		return weekdays, func(t time.Time) int { return (int(t.Weekday()) + 6) % 7 }, nil
	case model.Monthly:
		return months, func(t time.Time) int { return int(t.Month()) - 1 }, nil
	default:
		return nil, nil, common.Invalid("granularity", "must be weekly or monthly")
	}
}
