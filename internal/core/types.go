package core

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// SharesTolerance is the allowed drift between shares and amount/price.
const SharesTolerance = 1e-4

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a UTC calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// PricePoint is a single daily close
type PricePoint struct {
	Date  time.Time
	Close float64
}

// Series is a chronologically ordered list of closes. Gaps for weekends and
// holidays are expected.
type Series []PricePoint

// Sorted returns a copy ordered by date with dates normalized to UTC days.
func (s Series) Sorted() Series {
	out := make(Series, len(s))
	for i, p := range s {
		out[i] = PricePoint{Date: Day(p.Date), Close: p.Close}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// Latest returns the last point of the series
func (s Series) Latest() (PricePoint, bool) {
	if len(s) == 0 {
		return PricePoint{}, false
	}
	return s[len(s)-1], true
}

// At returns the observation dated exactly on day.
func (s Series) At(day time.Time) (PricePoint, bool) {
	day = Day(day)
	i := sort.Search(len(s), func(i int) bool { return !s[i].Date.Before(day) })
	if i < len(s) && s[i].Date.Equal(day) {
		return s[i], true
	}
	return PricePoint{}, false
}

// Before returns the most recent observation strictly before day.
func (s Series) Before(day time.Time) (PricePoint, bool) {
	day = Day(day)
	i := sort.Search(len(s), func(i int) bool { return !s[i].Date.Before(day) })
	if i == 0 {
		return PricePoint{}, false
	}
	return s[i-1], true
}

// Through returns the prefix of the series dated on or before day.
func (s Series) Through(day time.Time) Series {
	day = Day(day)
	i := sort.Search(len(s), func(i int) bool { return s[i].Date.After(day) })
	return s[:i]
}

// Investment is an executed purchase. It is created once and never mutated.
type Investment struct {
	Date   time.Time
	Ticker string
	Price  float64 // Closing price on investment date
	Amount float64 // Dollars invested
	Shares float64 // Amount / Price
}

// NewInvestment builds an investment with shares derived from amount and price.
func NewInvestment(date time.Time, ticker string, price, amount float64) Investment {
	return Investment{
		Date:   Day(date),
		Ticker: ticker,
		Price:  price,
		Amount: amount,
		Shares: amount / price,
	}
}

// SharesDrift returns |shares - amount/price|.
func (i Investment) SharesDrift() float64 {
	if i.Price == 0 {
		return math.Inf(1)
	}
	return math.Abs(i.Shares - i.Amount/i.Price)
}

// Validate checks the fields a persisted investment must carry.
func (i Investment) Validate() error {
	switch {
	case i.Date.IsZero():
		return fmt.Errorf("investment date is required")
	case i.Ticker == "":
		return fmt.Errorf("investment ticker is required")
	case !(i.Price > 0):
		return fmt.Errorf("investment price must be positive, got %f", i.Price)
	case !(i.Amount > 0):
		return fmt.Errorf("investment amount must be positive, got %f", i.Amount)
	case !(i.Shares > 0):
		return fmt.Errorf("investment shares must be positive, got %f", i.Shares)
	}
	return nil
}

type investmentJSON struct {
	Date   string  `json:"date"`
	Ticker string  `json:"ticker"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Shares float64 `json:"shares"`
}

// MarshalJSON writes the date as YYYY-MM-DD.
func (i Investment) MarshalJSON() ([]byte, error) {
	return json.Marshal(investmentJSON{
		Date:   i.Date.Format(DateLayout),
		Ticker: i.Ticker,
		Price:  i.Price,
		Amount: i.Amount,
		Shares: i.Shares,
	})
}

// UnmarshalJSON accepts YYYY-MM-DD or RFC3339 dates.
func (i *Investment) UnmarshalJSON(data []byte) error {
	var raw investmentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d, err := ParseDate(raw.Date)
	if err != nil {
		return err
	}
	*i = Investment{
		Date:   d,
		Ticker: raw.Ticker,
		Price:  raw.Price,
		Amount: raw.Amount,
		Shares: raw.Shares,
	}
	return nil
}

// ParseDate parses a calendar date in YYYY-MM-DD or RFC3339 form.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", s)
	}
	return Day(t), nil
}

// InvestmentDates extracts the dates of a set of investments.
func InvestmentDates(investments []Investment) []time.Time {
	dates := make([]time.Time, len(investments))
	for i, inv := range investments {
		dates[i] = inv.Date
	}
	return dates
}
