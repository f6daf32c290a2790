package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/dipper/internal/collector"
	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/portfolio"
	"github.com/newthinker/dipper/internal/strategy"
	"go.uber.org/zap"
)

// Saver persists the full investment history after every execution.
type Saver interface {
	SaveInvestments(investments []core.Investment) bool
}

// Recorder receives evaluation metrics.
type Recorder interface {
	RecordEvaluation(outcome string)
	RecordInvestment(amount float64)
	SetLevels(rollingMax, triggerPrice float64)
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Evaluator) { e.recorder = r }
}

// Evaluator decides, for one day at a time, whether to invest.
type Evaluator struct {
	params   strategy.Params
	trigger  *strategy.Trigger
	guard    *strategy.SpacingGuard
	provider collector.PriceProvider
	tracker  *portfolio.Tracker
	saver    Saver
	recorder Recorder
	logger   *zap.Logger
}

// New builds an evaluator. A nil saver disables persistence.
func New(params strategy.Params, provider collector.PriceProvider, tracker *portfolio.Tracker, saver Saver, logger *zap.Logger, opts ...Option) (*Evaluator, error) {
	trigger, guard, err := params.Build()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = portfolio.NewTracker(logger)
	}
	e := &Evaluator{
		params:   params,
		trigger:  trigger,
		guard:    guard,
		provider: provider,
		tracker:  tracker,
		saver:    saver,
		logger:   logger.With(zap.String("ticker", params.Ticker)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate runs the decision for date. Trigger levels use closes strictly
// before date; an executed investment is priced at date's own close.
func (e *Evaluator) Evaluate(ctx context.Context, date time.Time) (Result, error) {
	day := core.Day(date)
	res := Result{Date: day, Ticker: e.params.Ticker}

	from := day.AddDate(0, 0, -(e.params.WindowDays + e.params.HistoryBufferDays))
	series, err := e.provider.FetchCloses(ctx, e.params.Ticker, from, day)
	if err != nil {
		return res, err
	}
	if len(series) == 0 {
		return res, core.WrapError(core.ErrNoPriceData,
			fmt.Errorf("%s %s..%s", e.params.Ticker, from.Format(core.DateLayout), day.Format(core.DateLayout)))
	}
	series = series.Sorted()

	yesterday, ok := series.Before(day)
	if !ok {
		return res, core.WrapError(core.ErrNoPriorPriceData, fmt.Errorf("%s before %s", e.params.Ticker, day.Format(core.DateLayout)))
	}
	today, ok := series.At(day)
	if !ok {
		return res, core.WrapError(core.ErrNoPriceForEvaluationDate, fmt.Errorf("%s on %s", e.params.Ticker, day.Format(core.DateLayout)))
	}
	res.YesterdayPrice = yesterday.Close
	res.TodayPrice = today.Close

	level, err := e.trigger.Evaluate(series.Through(yesterday.Date), e.params.WindowDays, e.params.Mode())
	if err != nil {
		return res, err
	}
	res.RollingMax = level.RollingMax
	res.TriggerPrice = level.TriggerPrice
	if e.recorder != nil {
		e.recorder.SetLevels(level.RollingMax, level.TriggerPrice)
	}

	res.TriggerMet = e.trigger.ShouldBuy(yesterday.Close, level.TriggerPrice)
	// The guard never counts the date itself, so a repeat run on an
	// invested date is caught here.
	res.Blocked = e.tracker.HasInvestmentOn(day) || e.tracker.HasRecentInvestment(day, e.guard)

	switch {
	case !res.TriggerMet:
		res.Outcome = Skipped{Reason: ReasonTriggerNotMet}
	case res.Blocked:
		res.Outcome = Skipped{Reason: ReasonRecentInvestment}
	default:
		inv := core.NewInvestment(day, e.params.Ticker, today.Close, e.params.Amount)
		e.tracker.Add(inv)
		res.Outcome = Invested{Investment: inv}
		if e.saver != nil {
			res.Persisted = e.saver.SaveInvestments(e.tracker.All())
			if !res.Persisted {
				e.logger.Error("investment recorded but not persisted",
					zap.String("date", day.Format(core.DateLayout)))
			}
		}
		if e.recorder != nil {
			e.recorder.RecordInvestment(inv.Amount)
		}
	}

	if e.recorder != nil {
		e.recorder.RecordEvaluation(res.Outcome.Label())
	}
	e.logger.Info("evaluation complete",
		zap.String("date", day.Format(core.DateLayout)),
		zap.Float64("yesterday_price", res.YesterdayPrice),
		zap.Float64("rolling_max", res.RollingMax),
		zap.Float64("trigger_price", res.TriggerPrice),
		zap.Bool("trigger_met", res.TriggerMet),
		zap.Bool("blocked", res.Blocked),
		zap.String("outcome", res.Outcome.Label()),
	)
	return res, nil
}
