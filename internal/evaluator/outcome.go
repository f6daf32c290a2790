package evaluator

import (
	"time"

	"github.com/newthinker/dipper/internal/core"
)

// Reason explains why an evaluation did not invest.
type Reason string

const (
	ReasonTriggerNotMet    Reason = "trigger_not_met"
	ReasonRecentInvestment Reason = "recent_investment_exists"
)

// Outcome is the terminal state of one evaluation: Invested or Skipped.
type Outcome interface {
	Label() string
	isOutcome()
}

// Invested carries the investment executed by an evaluation.
type Invested struct {
	Investment core.Investment
}

func (Invested) Label() string { return "invested" }
func (Invested) isOutcome()    {}

// Skipped records why no investment was made.
type Skipped struct {
	Reason Reason
}

func (s Skipped) Label() string { return string(s.Reason) }
func (Skipped) isOutcome()      {}

// Result is the full record of a single-day evaluation.
type Result struct {
	Date           time.Time
	Ticker         string
	YesterdayPrice float64
	TodayPrice     float64
	RollingMax     float64
	TriggerPrice   float64
	TriggerMet     bool
	Blocked        bool
	Outcome        Outcome

	// Persisted is false when the investment could not be saved. It is
	// always false for skipped evaluations.
	Persisted bool
}

// Investment returns the executed investment, if any.
func (r Result) Investment() (core.Investment, bool) {
	inv, ok := r.Outcome.(Invested)
	return inv.Investment, ok
}
