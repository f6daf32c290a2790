package app

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/portfolio"
	"github.com/newthinker/dipper/internal/strategy"
	"go.uber.org/zap"
)

// portfolioLookbackDays covers long weekends and holidays when looking up
// the latest close.
const portfolioLookbackDays = 10

// StatusReport is the market status plus spacing state as of a date.
type StatusReport struct {
	strategy.Status
	Date           time.Time `json:"date"`
	PriceDate      time.Time `json:"price_date"`
	Investments    int       `json:"investments"`
	Blocked        bool      `json:"blocked"`
	NextEligible   time.Time `json:"next_eligible"`
	MinSpacingDays int       `json:"min_spacing_days"`
}

// PortfolioReport values the recorded history for the configured ticker.
type PortfolioReport struct {
	Ticker        string             `json:"ticker"`
	Date          time.Time          `json:"date"`
	Price         float64            `json:"price"`
	AdjustedPrice float64            `json:"adjusted_price,omitempty"`
	PriceOnly     portfolio.Metrics  `json:"price_only"`
	TotalReturn   *portfolio.Metrics `json:"total_return,omitempty"`
	Summary       portfolio.Summary  `json:"summary"`
}

// Status grades the latest close on or before date against the current
// trigger level.
func (a *App) Status(ctx context.Context, date time.Time) (*StatusReport, error) {
	date = core.Day(date)
	start := date.AddDate(0, 0, -(a.params.WindowDays + a.params.HistoryBufferDays))

	series, err := a.provider.FetchCloses(ctx, a.params.Ticker, start, date)
	if err != nil {
		return nil, err
	}
	series = series.Sorted()
	latest, ok := series.Latest()
	if !ok {
		return nil, core.WrapError(core.ErrNoPriceData,
			fmt.Errorf("%s %s..%s", a.params.Ticker, start.Format(core.DateLayout), date.Format(core.DateLayout)))
	}

	level, err := a.trigger.Evaluate(series, a.params.WindowDays, a.params.Mode())
	if err != nil {
		return nil, err
	}

	dates := core.InvestmentDates(a.tracker.All())
	blocked := a.tracker.HasRecentInvestment(date, a.guard)
	next := a.guard.NextEligibleDate(date, dates)
	if a.tracker.HasInvestmentOn(date) {
		blocked = true
		next = a.guard.NextEligibleDate(date.AddDate(0, 0, 1), dates)
	}
	return &StatusReport{
		Status:         strategy.Assess(a.params.Ticker, latest.Close, level),
		Date:           date,
		PriceDate:      latest.Date,
		Investments:    len(dates),
		Blocked:        blocked,
		NextEligible:   next,
		MinSpacingDays: a.guard.MinDays(),
	}, nil
}

// Portfolio values the history at the latest close on or before date. A
// total-return view is added when the provider serves adjusted closes.
func (a *App) Portfolio(ctx context.Context, date time.Time) (*PortfolioReport, error) {
	date = core.Day(date)
	var investments []core.Investment
	for _, inv := range a.tracker.All() {
		if inv.Ticker == a.params.Ticker {
			investments = append(investments, inv)
		}
	}

	report := &PortfolioReport{
		Ticker:  a.params.Ticker,
		Date:    date,
		Summary: portfolio.Summarize(investments),
	}
	if len(investments) == 0 {
		return report, nil
	}

	start := date.AddDate(0, 0, -portfolioLookbackDays)
	series, err := a.provider.FetchCloses(ctx, a.params.Ticker, start, date)
	if err != nil {
		return nil, err
	}
	latest, ok := series.Sorted().Latest()
	if !ok {
		return nil, core.WrapError(core.ErrNoPriceData,
			fmt.Errorf("%s %s..%s", a.params.Ticker, start.Format(core.DateLayout), date.Format(core.DateLayout)))
	}
	report.Price = latest.Close
	report.PriceOnly = portfolio.PriceOnly(investments, latest.Close)

	adjusted, err := a.provider.FetchAdjustedCloses(ctx, a.params.Ticker, start, date)
	if err != nil {
		a.logger.Debug("adjusted closes unavailable", zap.Error(err))
		return report, nil
	}
	if p, ok := adjusted.Sorted().Latest(); ok {
		m := portfolio.TotalReturn(investments, p.Close)
		report.AdjustedPrice = p.Close
		report.TotalReturn = &m
	}
	return report, nil
}
