package backtest

import (
	"fmt"
	"time"

	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/portfolio"
)

// Mode selects the simulation semantics
type Mode string

const (
	// ModeSessions tracks concurrent dip sessions under a monthly budget.
	ModeSessions Mode = "sessions"
	// ModeDaily replays the daily evaluator one trading day at a time.
	ModeDaily Mode = "daily"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSessions, ModeDaily:
		return Mode(s), nil
	}
	return "", core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown backtest mode: %q", s))
}

// Transaction is a simulated purchase
type Transaction struct {
	ID        string
	SessionID string // Empty in daily mode
	Date      time.Time
	Price     float64
	Shares    float64
	Amount    float64
}

// Investment converts the transaction into an investment record.
func (t Transaction) Investment(ticker string) core.Investment {
	return core.Investment{
		Date:   t.Date,
		Ticker: ticker,
		Price:  t.Price,
		Amount: t.Amount,
		Shares: t.Shares,
	}
}

// Stats holds the simulation counters
type Stats struct {
	TotalEvaluations     int
	TriggerConditionsMet int
	InvestmentsExecuted  int
	BlockedByConstraint  int // Spacing guard in daily mode, exhausted budget in sessions mode
	SkippedRecovered     int // Sessions mode only: price back above the refreshed trigger
}

// ExecutionRate is the share of trigger days that produced an investment.
func (s Stats) ExecutionRate() float64 {
	if s.TriggerConditionsMet == 0 {
		return 0
	}
	return float64(s.InvestmentsExecuted) / float64(s.TriggerConditionsMet)
}

// Result holds the complete backtest output
type Result struct {
	Mode         Mode
	Ticker       string
	StartDate    time.Time
	EndDate      time.Time
	Transactions []Transaction
	Sessions     []Session // Sessions mode only
	Stats        Stats
	Summary      portfolio.Summary
	FinalPrice   float64
	Final        portfolio.Metrics
}

// Investments returns the transactions as investment records.
func (r *Result) Investments() []core.Investment {
	out := make([]core.Investment, len(r.Transactions))
	for i, t := range r.Transactions {
		out[i] = t.Investment(r.Ticker)
	}
	return out
}
