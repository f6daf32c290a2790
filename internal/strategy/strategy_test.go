package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/indicator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrigger_Validation(t *testing.T) {
	tests := []struct {
		fraction float64
		wantErr  bool
	}{
		{0.9, false},
		{1.0, false},
		{0.0001, false},
		{0, true},
		{-0.5, true},
		{1.01, true},
	}
	for _, tt := range tests {
		_, err := NewTrigger(tt.fraction)
		if tt.wantErr {
			assert.ErrorIs(t, err, core.ErrInvalidTriggerConfig, "fraction %v", tt.fraction)
		} else {
			assert.NoError(t, err, "fraction %v", tt.fraction)
		}
	}
}

func TestTrigger_ShouldBuyInclusive(t *testing.T) {
	tr, err := NewTrigger(0.9)
	require.NoError(t, err)

	triggerPrice := tr.Price(200)
	assert.InDelta(t, 180.0, triggerPrice, 1e-9)
	assert.True(t, tr.ShouldBuy(triggerPrice, triggerPrice), "equality is a buy signal")
	assert.True(t, tr.ShouldBuy(179.99, triggerPrice))
	assert.False(t, tr.ShouldBuy(180.01, triggerPrice))
}

func TestTrigger_EvaluateIsStateless(t *testing.T) {
	tr, _ := NewTrigger(0.5)
	high := core.Series{{Date: core.Date(2024, 1, 2), Close: 100}}
	low := core.Series{{Date: core.Date(2024, 1, 2), Close: 10}}

	first, err := tr.Evaluate(high, 30, indicator.CalendarDays)
	require.NoError(t, err)
	second, err := tr.Evaluate(low, 30, indicator.CalendarDays)
	require.NoError(t, err)

	assert.Equal(t, 50.0, first.TriggerPrice)
	assert.Equal(t, 5.0, second.TriggerPrice, "no memory of the previous rolling max")
}

func TestTrigger_EvaluateEmpty(t *testing.T) {
	tr, _ := NewTrigger(0.9)
	_, err := tr.Evaluate(nil, 30, indicator.CalendarDays)
	assert.True(t, errors.Is(err, core.ErrEmptyPriceSeries))
}

func TestNewSpacingGuard_RejectsNonPositive(t *testing.T) {
	for _, days := range []int{0, -1, -28} {
		_, err := NewSpacingGuard(days)
		assert.ErrorIs(t, err, core.ErrInvalidSpacingConfig, "days %d", days)
	}
}

func TestSpacingGuard_ExactBoundaries(t *testing.T) {
	g, err := NewSpacingGuard(28)
	require.NoError(t, err)

	d := core.Date(2024, 1, 10)
	history := []time.Time{d}

	assert.True(t, g.HasRecentInvestment(d.AddDate(0, 0, 1), history), "D+1 is recent")
	assert.True(t, g.HasRecentInvestment(d.AddDate(0, 0, 27), history), "D+27 is recent")
	assert.False(t, g.HasRecentInvestment(d.AddDate(0, 0, 28), history), "D+28 is not recent")
	assert.False(t, g.HasRecentInvestment(d, history), "same day is not recent")
	assert.False(t, g.HasRecentInvestment(d.AddDate(0, 0, -1), history), "future investments do not count")
}

func TestSpacingGuard_EmptyHistory(t *testing.T) {
	g, _ := NewSpacingGuard(DefaultMinSpacingDays)
	assert.False(t, g.HasRecentInvestment(core.Date(2024, 1, 1), nil))
}

func TestSpacingGuard_IgnoresTimeOfDay(t *testing.T) {
	g, _ := NewSpacingGuard(28)
	inv := time.Date(2024, 1, 10, 23, 59, 0, 0, time.UTC)
	check := time.Date(2024, 2, 7, 0, 1, 0, 0, time.UTC) // 28 days later
	assert.False(t, g.HasRecentInvestment(check, []time.Time{inv}))
}

func TestSpacingGuard_NextEligibleDate(t *testing.T) {
	g, _ := NewSpacingGuard(28)
	d := core.Date(2024, 1, 10)

	assert.Equal(t, d.AddDate(0, 0, 28), g.NextEligibleDate(d.AddDate(0, 0, 5), []time.Time{d}))
	assert.Equal(t, d.AddDate(0, 0, 40), g.NextEligibleDate(d.AddDate(0, 0, 40), []time.Time{d}))
	assert.Equal(t, d, g.NextEligibleDate(d, nil))

	// Chained history pushes eligibility past each blocker
	chained := []time.Time{d, d.AddDate(0, 0, 28)}
	next := g.NextEligibleDate(d.AddDate(0, 0, 29), chained)
	assert.Equal(t, d.AddDate(0, 0, 56), next)
	assert.False(t, g.HasRecentInvestment(next, chained))
}

func TestAssess_Recommendations(t *testing.T) {
	level := Level{RollingMax: 100, TriggerPrice: 90}
	tests := []struct {
		name  string
		price float64
		rec   Recommendation
		conf  Confidence
	}{
		{"deep dip", 80, RecommendBuy, ConfidenceHigh},
		{"moderate dip", 88, RecommendBuy, ConfidenceMedium},
		{"at trigger", 90, RecommendBuy, ConfidenceMedium},
		{"close to trigger", 91, RecommendMonitor, ConfidenceHigh},
		{"near trigger", 94, RecommendMonitor, ConfidenceMedium},
		{"far from trigger", 99, RecommendHold, ConfidenceLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Assess("SPY", tt.price, level)
			assert.Equal(t, tt.rec, st.Recommendation)
			assert.Equal(t, tt.conf, st.Confidence)
			assert.NotEmpty(t, st.Message)
		})
	}
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr error
	}{
		{"defaults", func(*Params) {}, nil},
		{"missing ticker", func(p *Params) { p.Ticker = "" }, core.ErrConfigMissing},
		{"zero window", func(p *Params) { p.WindowDays = 0 }, core.ErrConfigInvalid},
		{"window too long", func(p *Params) { p.WindowDays = 366 }, core.ErrConfigInvalid},
		{"fraction above one", func(p *Params) { p.Fraction = 1.1 }, core.ErrInvalidTriggerConfig},
		{"zero amount", func(p *Params) { p.Amount = 0 }, core.ErrConfigInvalid},
		{"zero spacing", func(p *Params) { p.MinSpacingDays = 0 }, core.ErrInvalidSpacingConfig},
		{"negative buffer", func(p *Params) { p.HistoryBufferDays = -1 }, core.ErrConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParams_Build(t *testing.T) {
	p := DefaultParams()
	p.UseTradingDays = true
	trigger, guard, err := p.Build()
	require.NoError(t, err)
	assert.Equal(t, 0.90, trigger.Fraction())
	assert.Equal(t, 28, guard.MinDays())
	assert.Equal(t, indicator.TradingDays, p.Mode())
}
