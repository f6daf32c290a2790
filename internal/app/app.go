package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newthinker/dipper/internal/backtest"
	"github.com/newthinker/dipper/internal/collector"
	"github.com/newthinker/dipper/internal/collector/yahoo"
	"github.com/newthinker/dipper/internal/config"
	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/evaluator"
	"github.com/newthinker/dipper/internal/metrics"
	"github.com/newthinker/dipper/internal/notifier"
	"github.com/newthinker/dipper/internal/portfolio"
	"github.com/newthinker/dipper/internal/storage/archive"
	"github.com/newthinker/dipper/internal/storage/state"
	"github.com/newthinker/dipper/internal/strategy"
	"go.uber.org/zap"
)

// App is the main application orchestrator
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *metrics.Registry
	providers *collector.Registry
	provider  *collector.Cached
	tracker   *portfolio.Tracker
	store     *state.Store
	evaluator *evaluator.Evaluator
	simulator *backtest.Simulator
	notifiers *notifier.Registry

	params         strategy.Params
	trigger        *strategy.Trigger
	guard          *strategy.SpacingGuard
	extraNotifiers []notifier.Notifier
	now            func() time.Time
}

// Option configures an App.
type Option func(*App)

// WithProvider registers an extra price provider. It is selected when its
// name matches provider.name in the config.
func WithProvider(p collector.PriceProvider) Option {
	return func(a *App) { a.providers.Register(p) }
}

// WithMetrics uses reg instead of a fresh registry.
func WithMetrics(reg *metrics.Registry) Option {
	return func(a *App) { a.metrics = reg }
}

// New validates cfg, loads persisted state and wires every component.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var err error
	a := &App{
		cfg:       cfg,
		logger:    logger,
		providers: collector.NewRegistry(),
		params:    cfg.Params(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = metrics.NewRegistry()
	}

	if _, ok := a.providers.Get(yahoo.Name); !ok {
		a.providers.Register(yahoo.New(cfg.CollectorConfig(),
			yahoo.WithObserver(a.metrics),
			yahoo.WithLogger(logger),
		))
	}
	source, ok := a.providers.Get(cfg.Provider.Name)
	if !ok {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown provider %q, have %v", cfg.Provider.Name, a.providers.Names()))
	}
	a.provider = collector.NewCached(source, cfg.Provider.CacheTTL)

	a.notifiers, err = buildNotifiers(cfg.Notify, a.extraNotifiers)
	if err != nil {
		return nil, err
	}

	a.trigger, a.guard, err = a.params.Build()
	if err != nil {
		return nil, err
	}

	arch, err := archive.New(cfg.ArchiveConfig())
	if err != nil {
		return nil, err
	}
	a.store, err = state.NewStore(cfg.DataDir(), cfg.Storage.StateFile, logger,
		state.WithArchive(arch, cfg.Storage.Archive.Keep),
		state.WithRecorder(a.metrics),
	)
	if err != nil {
		return nil, err
	}

	doc, ok := a.store.Load()
	if !ok {
		logger.Warn("no usable state found, starting with an empty history", zap.String("path", a.store.Path()))
	}
	a.checkSnapshot(doc.Config)

	a.tracker = portfolio.NewTracker(logger)
	a.tracker.Replace(doc.Investments)

	a.evaluator, err = evaluator.New(a.params, a.provider, a.tracker, a.store, logger,
		evaluator.WithRecorder(a.metrics))
	if err != nil {
		return nil, err
	}
	a.simulator = backtest.New(a.provider, a.tracker, logger, backtest.WithRecorder(a.metrics))

	logger.Info("dipper ready",
		zap.String("ticker", a.params.Ticker),
		zap.String("provider", source.Name()),
		zap.Strings("notifiers", a.notifiers.Names()),
		zap.Int("investments", a.tracker.Len()),
		zap.String("state", a.store.Path()),
	)
	return a, nil
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config { return a.cfg }

// Metrics returns the metrics registry.
func (a *App) Metrics() *metrics.Registry { return a.metrics }

// Tracker returns the live investment tracker.
func (a *App) Tracker() *portfolio.Tracker { return a.tracker }

// Store returns the state store.
func (a *App) Store() *state.Store { return a.store }

// EvaluateDay runs the daily rule for date and persists any investment.
func (a *App) EvaluateDay(ctx context.Context, date time.Time) (evaluator.Result, error) {
	return a.evaluator.Evaluate(ctx, date)
}

// Backtest simulates the strategy over [start, end]. The live history is
// never modified.
func (a *App) Backtest(ctx context.Context, mode backtest.Mode, start, end time.Time) (*backtest.Result, error) {
	if core.Day(end).Before(core.Day(start)) {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("end date %s is before start date %s", end.Format(core.DateLayout), start.Format(core.DateLayout)))
	}
	return a.simulator.Run(ctx, mode, a.params, start, end)
}

// SaveSessions persists backtest sessions together with the current
// strategy parameters.
func (a *App) SaveSessions(sessions []backtest.Session) bool {
	records := make([]state.SessionRecord, 0, len(sessions))
	for _, s := range sessions {
		records = append(records, sessionRecord(s))
	}
	doc := a.store.Current()
	doc.Config = a.snapshot()
	doc.Sessions = records
	return a.store.Save(doc)
}

// Snapshot archives the current state file.
func (a *App) Snapshot(ctx context.Context) bool {
	return a.store.Snapshot(ctx)
}

// Snapshots lists archived snapshots, oldest first.
func (a *App) Snapshots(ctx context.Context) ([]string, error) {
	return a.store.Snapshots(ctx)
}

// Restore replaces the state with an archived snapshot and reloads the
// tracker from it.
func (a *App) Restore(ctx context.Context, name string) bool {
	if !a.store.Restore(ctx, name) {
		return false
	}
	a.tracker.Replace(a.store.Current().Investments)
	a.provider.Invalidate("")
	a.logger.Info("restored state from snapshot",
		zap.String("snapshot", name),
		zap.Int("investments", a.tracker.Len()),
	)
	return true
}

// RunScheduled is the monitor job. A missing close for the date is a market
// holiday, not a failure.
func (a *App) RunScheduled(ctx context.Context, date time.Time) error {
	res, err := a.EvaluateDay(ctx, date)
	if errors.Is(err, core.ErrNoPriceForEvaluationDate) {
		a.logger.Info("no close for date, market closed",
			zap.String("date", date.Format(core.DateLayout)))
		return nil
	}
	if err != nil {
		a.notify(ctx, notifier.Event{
			Kind:   notifier.KindFailed,
			Ticker: a.params.Ticker,
			Date:   core.Day(date),
			Reason: err.Error(),
		})
		return err
	}

	_, invested := res.Investment()
	if invested && !res.Persisted {
		a.logger.Error("investment executed but not persisted",
			zap.String("date", date.Format(core.DateLayout)))
	}
	if invested || a.cfg.Notify.Skipped {
		a.notify(ctx, eventFor(res))
	}
	return nil
}

func (a *App) snapshot() *state.StrategySnapshot {
	return &state.StrategySnapshot{
		Ticker:            a.params.Ticker,
		RollingWindowDays: a.params.WindowDays,
		PercentageTrigger: a.params.Fraction,
		MonthlyDCAAmount:  a.params.Amount,
		MinSpacingDays:    a.params.MinSpacingDays,
		UseTradingDays:    a.params.UseTradingDays,
	}
}

// checkSnapshot warns when the saved history was produced with different
// strategy parameters.
func (a *App) checkSnapshot(saved *state.StrategySnapshot) {
	if saved == nil {
		return
	}
	if *saved != *a.snapshot() {
		a.logger.Warn("saved state was produced with different strategy parameters",
			zap.Any("saved", saved),
			zap.Any("current", a.snapshot()),
		)
	}
}

func sessionRecord(s backtest.Session) state.SessionRecord {
	rec := state.SessionRecord{
		ID:              s.ID,
		TriggerPrice:    s.TriggerPrice,
		StartDate:       s.StartDate.Format(core.DateLayout),
		State:           string(s.State),
		TotalInvested:   s.TotalInvested,
		SharesPurchased: s.SharesPurchased,
	}
	if !s.LastInvestmentDate.IsZero() {
		rec.LastInvestmentDate = s.LastInvestmentDate.Format(core.DateLayout)
	}
	return rec
}
