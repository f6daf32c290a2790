package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/dipper/internal/collector"
	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/evaluator"
	"github.com/newthinker/dipper/internal/indicator"
	"github.com/newthinker/dipper/internal/logger"
	"github.com/newthinker/dipper/internal/portfolio"
	"github.com/newthinker/dipper/internal/strategy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// sessionTolerance is the trigger distance under which two sessions are
	// considered the same dip.
	sessionTolerance = 0.01

	// Later session investments are allowed from 5 days before to 10 days
	// after the monthly anniversary of the previous one.
	windowEarlyDays = 5
	windowLateDays  = 10
)

// Recorder receives backtest metrics.
type Recorder interface {
	RecordBacktest(mode, status string, elapsed time.Duration)
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Simulator) { s.recorder = r }
}

// WithIDGenerator replaces the random session and transaction IDs.
func WithIDGenerator(newID func() string) Option {
	return func(s *Simulator) { s.newID = newID }
}

// Simulator replays the strategy over historical prices
type Simulator struct {
	provider collector.PriceProvider
	tracker  *portfolio.Tracker
	recorder Recorder
	newID    func() string
	logger   *zap.Logger
}

// New creates a Simulator. tracker is the live investment tracker that daily
// mode borrows and restores.
func New(provider collector.PriceProvider, tracker *portfolio.Tracker, logger *zap.Logger, opts ...Option) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = portfolio.NewTracker(logger)
	}
	s := &Simulator{
		provider: provider,
		tracker:  tracker,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run dispatches to the simulator for mode.
func (s *Simulator) Run(ctx context.Context, mode Mode, params strategy.Params, start, end time.Time) (*Result, error) {
	began := time.Now()
	var (
		res *Result
		err error
	)
	switch mode {
	case ModeDaily:
		res, err = s.RunDaily(ctx, params, start, end)
	case ModeSessions:
		res, err = s.RunSessions(ctx, params, start, end)
	default:
		_, err = ParseMode(string(mode))
	}

	if s.recorder != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.recorder.RecordBacktest(string(mode), status, time.Since(began))
	}
	return res, err
}

// lookback is how many calendar days before start to fetch so the first
// evaluated day already has a full window.
func lookback(params strategy.Params) int {
	days := params.WindowDays + params.HistoryBufferDays
	if params.Mode() == indicator.TradingDays {
		// ~5 trading days per 7 calendar days
		days = params.WindowDays*7/5 + params.HistoryBufferDays + 7
	}
	return days
}

func (s *Simulator) fetch(ctx context.Context, params strategy.Params, start, end time.Time) (core.Series, error) {
	from := start.AddDate(0, 0, -lookback(params))
	series, err := s.provider.FetchCloses(ctx, params.Ticker, from, end)
	if err != nil {
		return nil, err
	}
	series = series.Sorted()
	if last, ok := series.Latest(); !ok || last.Date.Before(start) {
		return nil, core.WrapError(core.ErrNoPriceData,
			fmt.Errorf("%s %s..%s", params.Ticker, start.Format(core.DateLayout), end.Format(core.DateLayout)))
	}
	return series, nil
}

// RunSessions simulates concurrent dip sessions. Each day the rolling
// maximum includes that day's own close. Sessions are never completed.
func (s *Simulator) RunSessions(ctx context.Context, params strategy.Params, start, end time.Time) (*Result, error) {
	trigger, _, err := params.Build()
	if err != nil {
		return nil, err
	}
	start, end = core.Day(start), core.Day(end)

	series, err := s.fetch(ctx, params, start, end)
	if err != nil {
		return nil, err
	}
	maxes, err := indicator.RollingMaxSeries(series, params.WindowDays, params.Mode())
	if err != nil {
		return nil, err
	}

	log := s.logger.With(zap.String("ticker", params.Ticker), zap.String("mode", string(ModeSessions)))
	log.Info("starting backtest",
		zap.String("start", start.Format(core.DateLayout)),
		zap.String("end", end.Format(core.DateLayout)),
	)

	book := NewBook(s.newID)
	ledger := newBudget(params.Amount)
	amount := decimal.NewFromFloat(params.Amount)
	// Bookkeeping date per session, advanced on skips as well as purchases
	lastChecked := make(map[string]time.Time)
	var stats Stats

	for i, point := range series {
		if point.Date.Before(start) || point.Date.After(end) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		day, price := point.Date, point.Close
		triggerPrice := trigger.Price(maxes[i])
		stats.TotalEvaluations++

		if trigger.ShouldBuy(price, triggerPrice) {
			stats.TriggerConditionsMet++
			if !book.HasActiveAt(triggerPrice, sessionTolerance) {
				sess := book.Open(triggerPrice, day)
				log.Info("session opened",
					zap.String("session", sess.ID),
					zap.String("date", day.Format(core.DateLayout)),
					zap.Float64("price", price),
					zap.Float64("trigger_price", triggerPrice),
				)
			}
		}

		for _, sess := range book.Active() {
			last, invested := lastChecked[sess.ID]
			if invested && !inInvestmentWindow(last, day) {
				continue
			}

			if ledger.Exhausted(day) {
				lastChecked[sess.ID] = day
				stats.BlockedByConstraint++
				log.Debug("monthly budget exhausted",
					zap.String("session", sess.ID),
					zap.String("date", day.Format(core.DateLayout)),
					zap.String("spent", ledger.Spent(day).StringFixed(2)),
				)
				continue
			}

			// The rolling max may have drifted since the session opened
			if !trigger.ShouldBuy(price, triggerPrice) {
				lastChecked[sess.ID] = day
				stats.SkippedRecovered++
				log.Debug("price recovered above trigger",
					zap.String("session", sess.ID),
					zap.String("date", day.Format(core.DateLayout)),
					zap.Float64("price", price),
					zap.Float64("trigger_price", triggerPrice),
				)
				continue
			}

			spend := decimal.Min(ledger.Remaining(day), amount)
			tx, err := book.Record(sess.ID, day, price, spend.InexactFloat64())
			if err != nil {
				log.Warn("session investment rejected", zap.String("session", sess.ID), zap.Error(err))
				continue
			}
			ledger.Spend(day, spend)
			lastChecked[sess.ID] = day
			stats.InvestmentsExecuted++
			log.Info("session investment",
				zap.String("session", sess.ID),
				zap.String("date", day.Format(core.DateLayout)),
				zap.Float64("price", price),
				zap.Float64("amount", tx.Amount),
				zap.Float64("shares", tx.Shares),
				zap.String("month_spent", ledger.Spent(day).StringFixed(2)),
			)
		}
	}

	res := s.result(ModeSessions, params.Ticker, start, end, series, book.Transactions(), stats)
	res.Sessions = book.Sessions()
	log.Info("backtest completed",
		zap.Int("transactions", len(res.Transactions)),
		zap.Int("sessions", len(res.Sessions)),
	)
	return res, nil
}

// inInvestmentWindow reports whether day falls within [-5, +10] days of one
// calendar month after last.
func inInvestmentWindow(last, day time.Time) bool {
	diff := core.DaysBetween(addMonth(last), day)
	return diff >= -windowEarlyDays && diff <= windowLateDays
}

// addMonth adds one calendar month, clamping to the last day of the target
// month (Jan 31 -> Feb 29 in a leap year).
func addMonth(t time.Time) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC)
	lastDay := first.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// RunDaily replays the daily evaluator over every trading day in
// [start, end] using prices fetched once. The live tracker is swapped for an
// empty one for the duration of the run and always restored. Nothing is
// persisted.
func (s *Simulator) RunDaily(ctx context.Context, params strategy.Params, start, end time.Time) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	start, end = core.Day(start), core.Day(end)

	series, err := s.fetch(ctx, params, start, end)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(zap.String("ticker", params.Ticker), zap.String("mode", string(ModeDaily)))

	live := s.tracker.Swap(nil)
	defer func() {
		s.tracker.Replace(live)
		log.Debug("restored live investment history", zap.Int("investments", len(live)))
	}()

	replay := collector.NewStatic()
	replay.Set(params.Ticker, series)
	// Per-day evaluation logs are too noisy for a replay
	ev, err := evaluator.New(params, replay, s.tracker, nil, logger.Quiet(s.logger))
	if err != nil {
		return nil, err
	}

	log.Info("starting backtest",
		zap.String("start", start.Format(core.DateLayout)),
		zap.String("end", end.Format(core.DateLayout)),
	)

	var (
		stats        Stats
		transactions []Transaction
	)
	for _, point := range series {
		if point.Date.Before(start) || point.Date.After(end) {
			continue
		}

		r, err := ev.Evaluate(ctx, point.Date)
		if err != nil {
			if errors.Is(err, core.ErrNoPriorPriceData) {
				log.Debug("skipping day without prior close", zap.String("date", point.Date.Format(core.DateLayout)))
				continue
			}
			return nil, err
		}

		stats.TotalEvaluations++
		if r.TriggerMet {
			stats.TriggerConditionsMet++
		}
		if inv, ok := r.Investment(); ok {
			stats.InvestmentsExecuted++
			transactions = append(transactions, Transaction{
				ID:     s.id(),
				Date:   inv.Date,
				Price:  inv.Price,
				Shares: inv.Shares,
				Amount: inv.Amount,
			})
		} else if r.TriggerMet && r.Blocked {
			stats.BlockedByConstraint++
		}
	}

	res := s.result(ModeDaily, params.Ticker, start, end, series, transactions, stats)
	log.Info("backtest completed",
		zap.Int("evaluations", stats.TotalEvaluations),
		zap.Int("transactions", len(transactions)),
	)
	return res, nil
}

func (s *Simulator) id() string {
	if s.newID != nil {
		return s.newID()
	}
	return uuid.NewString()
}

func (s *Simulator) result(mode Mode, ticker string, start, end time.Time, series core.Series, txs []Transaction, stats Stats) *Result {
	res := &Result{
		Mode:         mode,
		Ticker:       ticker,
		StartDate:    start,
		EndDate:      end,
		Transactions: txs,
		Stats:        stats,
	}
	res.Summary = portfolio.Summarize(res.Investments())
	if last, ok := series.Through(end).Latest(); ok {
		res.FinalPrice = last.Close
		res.Final = portfolio.Calculate(res.Investments(), last.Close)
	}
	return res
}
