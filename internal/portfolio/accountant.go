package portfolio

import (
	"time"

	"github.com/newthinker/dipper/internal/core"
)

// Metrics summarizes a set of investments valued at a single price.
// Metrics are always derived from the investments and never stored.
type Metrics struct {
	TotalInvested    float64
	TotalShares      float64
	CurrentValue     float64
	TotalReturn      float64
	PercentageReturn float64 // Fraction, 0.05 == 5%
}

// Calculate folds investments into Metrics valued at price. An empty set
// yields zero metrics.
func Calculate(investments []core.Investment, price float64) Metrics {
	var m Metrics
	for _, inv := range investments {
		m.TotalInvested += inv.Amount
		m.TotalShares += inv.Shares
	}
	return m.valuedAt(price)
}

// PriceOnly values investments at a plain closing price.
func PriceOnly(investments []core.Investment, close float64) Metrics {
	return Calculate(investments, close)
}

// TotalReturn values investments at a dividend-adjusted price supplied by
// the caller.
func TotalReturn(investments []core.Investment, adjustedClose float64) Metrics {
	return Calculate(investments, adjustedClose)
}

// Add combines two metric sets valued at the same price.
func (m Metrics) Add(o Metrics) Metrics {
	sum := Metrics{
		TotalInvested: m.TotalInvested + o.TotalInvested,
		TotalShares:   m.TotalShares + o.TotalShares,
		CurrentValue:  m.CurrentValue + o.CurrentValue,
		TotalReturn:   m.TotalReturn + o.TotalReturn,
	}
	if sum.TotalInvested > 0 {
		sum.PercentageReturn = sum.TotalReturn / sum.TotalInvested
	}
	return sum
}

func (m Metrics) valuedAt(price float64) Metrics {
	m.CurrentValue = m.TotalShares * price
	m.TotalReturn = m.CurrentValue - m.TotalInvested
	m.PercentageReturn = 0
	if m.TotalInvested > 0 {
		m.PercentageReturn = m.TotalReturn / m.TotalInvested
	}
	return m
}

// Summary describes an investment history independent of price.
type Summary struct {
	Count           int
	TotalInvested   float64
	TotalShares     float64
	AveragePrice    float64
	FirstInvestment time.Time
	LastInvestment  time.Time
}

// Summarize computes count, totals, average cost and first/last dates.
func Summarize(investments []core.Investment) Summary {
	var s Summary
	for _, inv := range investments {
		s.Count++
		s.TotalInvested += inv.Amount
		s.TotalShares += inv.Shares
		if s.FirstInvestment.IsZero() || inv.Date.Before(s.FirstInvestment) {
			s.FirstInvestment = inv.Date
		}
		if inv.Date.After(s.LastInvestment) {
			s.LastInvestment = inv.Date
		}
	}
	if s.TotalShares > 0 {
		s.AveragePrice = s.TotalInvested / s.TotalShares
	}
	return s
}
