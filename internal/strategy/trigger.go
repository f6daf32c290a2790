package strategy

import (
	"fmt"

	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/indicator"
)

// Trigger derives the buy threshold from a rolling maximum.
type Trigger struct {
	fraction float64
}

// Level is a freshly computed rolling maximum and its trigger price
type Level struct {
	RollingMax   float64
	TriggerPrice float64
}

// NewTrigger creates a Trigger for a fraction in (0, 1].
func NewTrigger(fraction float64) (*Trigger, error) {
	if !(fraction > 0 && fraction <= 1) {
		return nil, core.WrapError(core.ErrInvalidTriggerConfig,
			fmt.Errorf("got %f", fraction))
	}
	return &Trigger{fraction: fraction}, nil
}

// Fraction returns the configured trigger fraction.
func (t *Trigger) Fraction() float64 {
	return t.fraction
}

// Price returns rollingMax * fraction.
func (t *Trigger) Price(rollingMax float64) float64 {
	return rollingMax * t.fraction
}

// ShouldBuy reports whether price is at or below the trigger price.
func (t *Trigger) ShouldBuy(price, triggerPrice float64) bool {
	return price <= triggerPrice
}

// Evaluate computes the rolling maximum of series and the resulting trigger
// price. Nothing is remembered between calls.
func (t *Trigger) Evaluate(series core.Series, windowDays int, mode indicator.WindowMode) (Level, error) {
	rollingMax, err := indicator.RollingMax(series, windowDays, mode)
	if err != nil {
		return Level{}, err
	}
	return Level{
		RollingMax:   rollingMax,
		TriggerPrice: t.Price(rollingMax),
	}, nil
}
