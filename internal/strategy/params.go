package strategy

import (
	"fmt"

	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/indicator"
)

// MaxWindowDays bounds the rolling window length.
const MaxWindowDays = 365

// Params are the inputs shared by the daily evaluator and the simulators.
type Params struct {
	Ticker            string
	WindowDays        int
	Fraction          float64
	Amount            float64
	MinSpacingDays    int
	UseTradingDays    bool
	HistoryBufferDays int
}

// DefaultParams mirrors the configuration defaults.
func DefaultParams() Params {
	return Params{
		Ticker:            "SPY",
		WindowDays:        90,
		Fraction:          0.90,
		Amount:            2000,
		MinSpacingDays:    DefaultMinSpacingDays,
		HistoryBufferDays: 30,
	}
}

// Mode returns the rolling window mode selected by UseTradingDays.
func (p Params) Mode() indicator.WindowMode {
	return indicator.ModeFor(p.UseTradingDays)
}

// Validate checks every field and returns the first problem found.
func (p Params) Validate() error {
	if p.Ticker == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("ticker"))
	}
	if p.WindowDays < 1 || p.WindowDays > MaxWindowDays {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("rolling window must be within 1..%d days, got %d", MaxWindowDays, p.WindowDays))
	}
	if _, err := NewTrigger(p.Fraction); err != nil {
		return err
	}
	if !(p.Amount > 0) {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("investment amount must be positive, got %f", p.Amount))
	}
	if _, err := NewSpacingGuard(p.MinSpacingDays); err != nil {
		return err
	}
	if p.HistoryBufferDays < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("history buffer must not be negative, got %d", p.HistoryBufferDays))
	}
	return nil
}

// Build validates p and constructs its trigger and spacing guard.
func (p Params) Build() (*Trigger, *SpacingGuard, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	trigger, err := NewTrigger(p.Fraction)
	if err != nil {
		return nil, nil, err
	}
	guard, err := NewSpacingGuard(p.MinSpacingDays)
	if err != nil {
		return nil, nil, err
	}
	return trigger, guard, nil
}
