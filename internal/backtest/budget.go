package backtest

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthKeyLayout formats budget ledger keys as YYYY-MM.
const MonthKeyLayout = "2006-01"

// budget tracks spend per calendar month across all sessions.
type budget struct {
	limit decimal.Decimal
	spent map[string]decimal.Decimal
}

func newBudget(limit float64) *budget {
	return &budget{
		limit: decimal.NewFromFloat(limit),
		spent: make(map[string]decimal.Decimal),
	}
}

func monthKey(date time.Time) string {
	return date.Format(MonthKeyLayout)
}

// Remaining returns the unspent budget for date's month.
func (b *budget) Remaining(date time.Time) decimal.Decimal {
	return b.limit.Sub(b.spent[monthKey(date)])
}

// Exhausted reports whether less than 1% of the limit is left.
func (b *budget) Exhausted(date time.Time) bool {
	return b.Remaining(date).LessThan(b.limit.Div(decimal.NewFromInt(100)))
}

// Spend books amount against date's month.
func (b *budget) Spend(date time.Time, amount decimal.Decimal) {
	key := monthKey(date)
	b.spent[key] = b.spent[key].Add(amount)
}

// Spent returns the amount booked for date's month.
func (b *budget) Spent(date time.Time) decimal.Decimal {
	return b.spent[monthKey(date)]
}
