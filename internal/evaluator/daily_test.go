package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/newthinker/dipper/internal/collector"
	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/portfolio"
	"github.com/newthinker/dipper/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-03-15 is a Friday.
var evalDay = core.Date(2024, 3, 15)

type fakeSaver struct {
	calls int
	last  []core.Investment
	ok    bool
}

func (s *fakeSaver) SaveInvestments(investments []core.Investment) bool {
	s.calls++
	s.last = investments
	return s.ok
}

type fakeRecorder struct {
	outcomes []string
	invested float64
	trigger  float64
}

func (r *fakeRecorder) RecordEvaluation(outcome string) { r.outcomes = append(r.outcomes, outcome) }
func (r *fakeRecorder) RecordInvestment(amount float64) { r.invested += amount }
func (r *fakeRecorder) SetLevels(rollingMax, trigger float64) {
	r.trigger = trigger
}

// flatSeries returns weekday closes of 100 for the 60 days before evalDay,
// followed by yesterday and today closes.
func flatSeries(yesterday, today float64) core.Series {
	var s core.Series
	for back := 60; back >= 2; back-- {
		d := evalDay.AddDate(0, 0, -back)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		s = append(s, core.PricePoint{Date: d, Close: 100})
	}
	s = append(s,
		core.PricePoint{Date: evalDay.AddDate(0, 0, -1), Close: yesterday},
		core.PricePoint{Date: evalDay, Close: today},
	)
	return s
}

// choppySeries returns weekday closes from 60 days before evalDay to 60 days
// after it: 85 on Tuesdays and Thursdays, 100 otherwise. The 30 day high stays
// at 100, so every Wednesday and Friday meets the 90 trigger.
func choppySeries() core.Series {
	var s core.Series
	for off := -60; off <= 60; off++ {
		d := evalDay.AddDate(0, 0, off)
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		case time.Tuesday, time.Thursday:
			s = append(s, core.PricePoint{Date: d, Close: 85})
		default:
			s = append(s, core.PricePoint{Date: d, Close: 100})
		}
	}
	return s
}

func params() strategy.Params {
	p := strategy.DefaultParams()
	p.WindowDays = 30
	p.Amount = 1000
	return p
}

func newEvaluator(t *testing.T, series core.Series, tracker *portfolio.Tracker, saver Saver, opts ...Option) *Evaluator {
	t.Helper()
	provider := collector.NewStatic()
	provider.Set("SPY", series)
	e, err := New(params(), provider, tracker, saver, nil, opts...)
	require.NoError(t, err)
	return e
}

func TestEvaluate_Invests(t *testing.T) {
	saver := &fakeSaver{ok: true}
	tracker := portfolio.NewTracker(nil)
	e := newEvaluator(t, flatSeries(85, 86), tracker, saver)

	res, err := e.Evaluate(context.Background(), evalDay)
	require.NoError(t, err)

	assert.True(t, res.TriggerMet)
	assert.False(t, res.Blocked)
	assert.InDelta(t, 100.0, res.RollingMax, 1e-9)
	assert.InDelta(t, 90.0, res.TriggerPrice, 1e-9)

	inv, ok := res.Investment()
	require.True(t, ok)
	assert.Equal(t, 86.0, inv.Price, "execution uses today's close")
	assert.Equal(t, 1000.0, inv.Amount)
	assert.InDelta(t, 1000.0/86, inv.Shares, core.SharesTolerance)

	assert.True(t, res.Persisted)
	assert.Equal(t, 1, saver.calls)
	assert.Len(t, saver.last, 1)
	assert.Equal(t, 1, tracker.Len())
}

func TestEvaluate_TriggerInclusive(t *testing.T) {
	e := newEvaluator(t, flatSeries(90, 91), nil, nil)
	res, err := e.Evaluate(context.Background(), evalDay)
	require.NoError(t, err)
	assert.IsType(t, Invested{}, res.Outcome)
	assert.False(t, res.Persisted)
}

func TestEvaluate_TriggerNotMet(t *testing.T) {
	saver := &fakeSaver{ok: true}
	e := newEvaluator(t, flatSeries(95, 80), nil, saver)

	res, err := e.Evaluate(context.Background(), evalDay)
	require.NoError(t, err)
	assert.Equal(t, Skipped{Reason: ReasonTriggerNotMet}, res.Outcome)
	assert.Equal(t, 0, saver.calls, "a low close today must not trigger the same day")
}

func TestEvaluate_TodayExcludedFromWindow(t *testing.T) {
	e := newEvaluator(t, flatSeries(89, 500), nil, nil)
	res, err := e.Evaluate(context.Background(), evalDay)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, res.RollingMax, 1e-9)
	assert.True(t, res.TriggerMet)
}

func TestEvaluate_BlockedByRecentInvestment(t *testing.T) {
	saver := &fakeSaver{ok: true}
	tracker := portfolio.NewTracker(nil)
	tracker.Add(core.NewInvestment(evalDay.AddDate(0, 0, -27), "SPY", 100, 1000))
	e := newEvaluator(t, flatSeries(85, 86), tracker, saver)

	res, err := e.Evaluate(context.Background(), evalDay)
	require.NoError(t, err)
	assert.True(t, res.TriggerMet)
	assert.True(t, res.Blocked)
	assert.Equal(t, Skipped{Reason: ReasonRecentInvestment}, res.Outcome)
	assert.Equal(t, 0, saver.calls)
	assert.Equal(t, 1, tracker.Len())
}

func TestEvaluate_SameDayRepeatSkipped(t *testing.T) {
	saver := &fakeSaver{ok: true}
	tracker := portfolio.NewTracker(nil)
	e := newEvaluator(t, flatSeries(85, 86), tracker, saver)

	first, err := e.Evaluate(context.Background(), evalDay)
	require.NoError(t, err)
	require.IsType(t, Invested{}, first.Outcome)

	second, err := e.Evaluate(context.Background(), evalDay)
	require.NoError(t, err)
	assert.True(t, second.TriggerMet)
	assert.True(t, second.Blocked)
	assert.Equal(t, Skipped{Reason: ReasonRecentInvestment}, second.Outcome)
	assert.False(t, second.Persisted)

	assert.Equal(t, 1, tracker.Len())
	assert.Equal(t, 1, saver.calls, "a repeat run must not write again")
}

func TestEvaluate_DailyRunsKeepSpacing(t *testing.T) {
	saver := &fakeSaver{ok: true}
	tracker := portfolio.NewTracker(nil)
	e := newEvaluator(t, choppySeries(), tracker, saver)
	ctx := context.Background()

	// Every calendar day from evalDay through evalDay+59, each run twice
	// the way a manual run and the scheduled run can land on one date.
	for off := 0; off < 60; off++ {
		day := evalDay.AddDate(0, 0, off)
		for run := 0; run < 2; run++ {
			_, err := e.Evaluate(ctx, day)
			if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
				require.ErrorIs(t, err, core.ErrNoPriceForEvaluationDate)
				continue
			}
			require.NoError(t, err, day.Format(core.DateLayout))
		}
	}

	dates := core.InvestmentDates(tracker.All())
	assert.Equal(t, []time.Time{evalDay, evalDay.AddDate(0, 0, 28), evalDay.AddDate(0, 0, 56)}, dates)
	for i := range dates {
		for j := i + 1; j < len(dates); j++ {
			gap := core.DaysBetween(dates[i], dates[j])
			if gap < 0 {
				gap = -gap
			}
			assert.GreaterOrEqual(t, gap, params().MinSpacingDays,
				"%s and %s", dates[i].Format(core.DateLayout), dates[j].Format(core.DateLayout))
		}
	}
	assert.Equal(t, len(dates), saver.calls)
}

func TestEvaluate_SpacingBoundaryAllows(t *testing.T) {
	tracker := portfolio.NewTracker(nil)
	tracker.Add(core.NewInvestment(evalDay.AddDate(0, 0, -28), "SPY", 100, 1000))
	e := newEvaluator(t, flatSeries(85, 86), tracker, nil)

	res, err := e.Evaluate(context.Background(), evalDay)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.Equal(t, 2, tracker.Len())
}

func TestEvaluate_PersistFailureStillRecorded(t *testing.T) {
	saver := &fakeSaver{ok: false}
	tracker := portfolio.NewTracker(nil)
	e := newEvaluator(t, flatSeries(85, 86), tracker, saver)

	res, err := e.Evaluate(context.Background(), evalDay)
	require.NoError(t, err)
	assert.False(t, res.Persisted)
	assert.Equal(t, 1, tracker.Len())
}

func TestEvaluate_DataErrors(t *testing.T) {
	tests := []struct {
		name    string
		series  core.Series
		date    time.Time
		wantErr error
	}{
		{"no data", nil, evalDay, core.ErrNoPriceData},
		{"no prior", core.Series{{Date: evalDay, Close: 100}}, evalDay, core.ErrNoPriorPriceData},
		{"no price on date", flatSeries(85, 86), evalDay.AddDate(0, 0, 1), core.ErrNoPriceForEvaluationDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saver := &fakeSaver{ok: true}
			e := newEvaluator(t, tt.series, nil, saver)
			_, err := e.Evaluate(context.Background(), tt.date)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, saver.calls)
		})
	}
}

func TestEvaluate_Recorder(t *testing.T) {
	rec := &fakeRecorder{}
	e := newEvaluator(t, flatSeries(85, 86), nil, nil, WithRecorder(rec))

	_, err := e.Evaluate(context.Background(), evalDay)
	require.NoError(t, err)

	assert.Equal(t, []string{"invested"}, rec.outcomes)
	assert.Equal(t, 1000.0, rec.invested)
	assert.InDelta(t, 90.0, rec.trigger, 1e-9)
}

func TestNew_RejectsInvalidParams(t *testing.T) {
	p := params()
	p.MinSpacingDays = 0
	_, err := New(p, collector.NewStatic(), nil, nil, nil)
	assert.ErrorIs(t, err, core.ErrInvalidSpacingConfig)
}
