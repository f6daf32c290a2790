package portfolio

import (
	"sync"
	"time"

	"github.com/newthinker/dipper/internal/core"
	"go.uber.org/zap"
)

// SpacingChecker answers whether a date is too close to prior investments.
type SpacingChecker interface {
	HasRecentInvestment(checkDate time.Time, dates []time.Time) bool
}

// Tracker owns the investment history. All mutation goes through it so that
// a single owner serializes writes.
type Tracker struct {
	mu          sync.RWMutex
	investments []core.Investment
	logger      *zap.Logger
}

// NewTracker creates an empty tracker
func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{logger: logger}
}

// Add appends an investment. A shares value that drifts from amount/price is
// logged but still recorded.
func (t *Tracker) Add(inv core.Investment) {
	if drift := inv.SharesDrift(); drift > core.SharesTolerance {
		t.logger.Warn("investment shares mismatch",
			zap.Time("date", inv.Date),
			zap.Float64("expected", inv.Amount/inv.Price),
			zap.Float64("got", inv.Shares),
		)
	}

	t.mu.Lock()
	t.investments = append(t.investments, inv)
	t.mu.Unlock()

	t.logger.Info("investment added",
		zap.String("ticker", inv.Ticker),
		zap.String("date", inv.Date.Format(core.DateLayout)),
		zap.Float64("amount", inv.Amount),
		zap.Float64("price", inv.Price),
	)
}

// All returns a copy of every recorded investment.
func (t *Tracker) All() []core.Investment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]core.Investment, len(t.investments))
	copy(out, t.investments)
	return out
}

// Len returns the number of recorded investments.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.investments)
}

// HasRecentInvestment applies guard to the recorded investment dates.
func (t *Tracker) HasRecentInvestment(checkDate time.Time, guard SpacingChecker) bool {
	t.mu.RLock()
	dates := core.InvestmentDates(t.investments)
	t.mu.RUnlock()

	recent := guard.HasRecentInvestment(checkDate, dates)
	if recent {
		t.logger.Debug("recent investment blocks date",
			zap.String("date", core.Day(checkDate).Format(core.DateLayout)))
	}
	return recent
}

// HasInvestmentOn reports whether an investment is already dated date.
func (t *Tracker) HasInvestmentOn(date time.Time) bool {
	day := core.Day(date)
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, inv := range t.investments {
		if core.Day(inv.Date).Equal(day) {
			return true
		}
	}
	return false
}

// InPeriod returns investments dated within [start, end] inclusive.
func (t *Tracker) InPeriod(start, end time.Time) []core.Investment {
	start, end = core.Day(start), core.Day(end)
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []core.Investment
	for _, inv := range t.investments {
		if !inv.Date.Before(start) && !inv.Date.After(end) {
			out = append(out, inv)
		}
	}
	return out
}

// TotalInvestedInPeriod sums amounts invested within [start, end].
func (t *Tracker) TotalInvestedInPeriod(start, end time.Time) float64 {
	var total float64
	for _, inv := range t.InPeriod(start, end) {
		total += inv.Amount
	}
	return total
}

// Metrics values the whole history at price.
func (t *Tracker) Metrics(price float64) Metrics {
	return Calculate(t.All(), price)
}

// Replace discards the in-memory history and installs investments.
// Saved files are not affected.
func (t *Tracker) Replace(investments []core.Investment) {
	t.Swap(investments)
}

// Swap installs investments and returns the previous history.
func (t *Tracker) Swap(investments []core.Investment) []core.Investment {
	next := make([]core.Investment, len(investments))
	copy(next, investments)

	t.mu.Lock()
	prev := t.investments
	t.investments = next
	t.mu.Unlock()
	return prev
}

// Clear removes every investment from memory.
func (t *Tracker) Clear() {
	t.Swap(nil)
	t.logger.Info("cleared all investments from memory")
}
