package backtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/newthinker/dipper/internal/collector"
	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/portfolio"
	"github.com/newthinker/dipper/internal/strategy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var origin = core.Date(2024, 1, 1)

func day(i int) time.Time {
	return origin.AddDate(0, 0, i)
}

// dailySeries builds one close per calendar day for days 0..n-1.
func dailySeries(n int, price func(i int) float64) core.Series {
	s := make(core.Series, n)
	for i := range s {
		s[i] = core.PricePoint{Date: day(i), Close: price(i)}
	}
	return s
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newSimulator(series core.Series, tracker *portfolio.Tracker) *Simulator {
	provider := collector.NewStatic()
	provider.Set("SPY", series)
	return New(provider, tracker, nil, WithIDGenerator(sequentialIDs()))
}

func testParams(window int) strategy.Params {
	p := strategy.DefaultParams()
	p.WindowDays = window
	p.Fraction = 0.90
	p.Amount = 1000
	return p
}

func TestAddMonth(t *testing.T) {
	tests := []struct {
		in, want time.Time
	}{
		{core.Date(2024, 1, 31), core.Date(2024, 2, 29)},
		{core.Date(2023, 1, 31), core.Date(2023, 2, 28)},
		{core.Date(2024, 3, 15), core.Date(2024, 4, 15)},
		{core.Date(2024, 12, 10), core.Date(2025, 1, 10)},
		{core.Date(2024, 8, 31), core.Date(2024, 9, 30)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, addMonth(tt.in), "addMonth(%s)", tt.in.Format(core.DateLayout))
	}
}

func TestInInvestmentWindow(t *testing.T) {
	last := core.Date(2024, 1, 15) // target 2024-02-15
	assert.False(t, inInvestmentWindow(last, core.Date(2024, 2, 9)))
	assert.True(t, inInvestmentWindow(last, core.Date(2024, 2, 10)))
	assert.True(t, inInvestmentWindow(last, core.Date(2024, 2, 15)))
	assert.True(t, inInvestmentWindow(last, core.Date(2024, 2, 25)))
	assert.False(t, inInvestmentWindow(last, core.Date(2024, 2, 26)))
}

func TestBudget(t *testing.T) {
	b := newBudget(1000)
	feb := core.Date(2024, 2, 10)
	assert.False(t, b.Exhausted(feb))

	b.Spend(feb, decimal.NewFromInt(989))
	assert.False(t, b.Exhausted(feb), "11 left is above 1% of the limit")
	assert.Equal(t, "11", b.Remaining(feb).String())

	b.Spend(core.Date(2024, 2, 28), decimal.NewFromInt(2))
	assert.True(t, b.Exhausted(feb), "9 left is below 1% of the limit")
	assert.False(t, b.Exhausted(core.Date(2024, 3, 1)), "months are independent")
}

func TestBook_Lifecycle(t *testing.T) {
	b := NewBook(sequentialIDs())
	s := b.Open(90, day(0))
	assert.Equal(t, StateActive, s.State)
	assert.True(t, b.HasActiveAt(90.005, sessionTolerance))
	assert.False(t, b.HasActiveAt(90.02, sessionTolerance))

	tx, err := b.Record(s.ID, day(1), 80, 1000)
	require.NoError(t, err)
	assert.Equal(t, s.ID, tx.SessionID)
	assert.InDelta(t, 12.5, tx.Shares, 1e-9)
	assert.Equal(t, day(1), b.Sessions()[0].LastInvestmentDate)

	assert.False(t, b.Complete(s.ID, 89.99))
	assert.True(t, b.Complete(s.ID, 90))
	assert.Empty(t, b.Active())

	_, err = b.Record(s.ID, day(2), 80, 1000)
	assert.Error(t, err, "completed sessions accept no investments")
	_, err = b.Record("missing", day(2), 80, 1000)
	assert.Error(t, err)
	assert.Len(t, b.Transactions(), 1)
}

func TestResult_Summary(t *testing.T) {
	sim := newSimulator(nil, nil)
	txs := []Transaction{
		{Date: day(30), Price: 50, Amount: 500, Shares: 10},
		{Date: day(0), Price: 100, Amount: 1000, Shares: 10},
	}
	res := sim.result(ModeDaily, "SPY", day(0), day(30), nil, txs, Stats{})
	assert.Equal(t, portfolio.Summarize(res.Investments()), res.Summary)
	assert.Equal(t, 2, res.Summary.Count)
	assert.Equal(t, day(0), res.Summary.FirstInvestment)
	assert.Equal(t, day(30), res.Summary.LastInvestment)
	assert.InDelta(t, 75.0, res.Summary.AveragePrice, 1e-9)

	empty := sim.result(ModeDaily, "SPY", day(0), day(30), nil, nil, Stats{})
	assert.Zero(t, empty.Summary.Count)
	assert.Zero(t, empty.FinalPrice)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("daily")
	require.NoError(t, err)
	assert.Equal(t, ModeDaily, m)
	_, err = ParseMode("weekly")
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

// bearMarket declines from 100 to 60 over 45 days and recovers to 100.
func bearMarket() core.Series {
	return dailySeries(90, func(i int) float64 {
		if i < 45 {
			return 100 - 40*float64(i)/44
		}
		return 60 + 40*float64(i-45)/44
	})
}

func TestBearMarketScenario(t *testing.T) {
	for _, mode := range []Mode{ModeSessions, ModeDaily} {
		t.Run(string(mode), func(t *testing.T) {
			sim := newSimulator(bearMarket(), nil)
			res, err := sim.Run(context.Background(), mode, testParams(30), day(0), day(89))
			require.NoError(t, err)

			assert.Greater(t, res.Stats.InvestmentsExecuted, 0)
			assert.GreaterOrEqual(t, res.Stats.TriggerConditionsMet, res.Stats.InvestmentsExecuted)
			assert.Len(t, res.Transactions, res.Stats.InvestmentsExecuted)

			perMonth := make(map[string]float64)
			for _, tx := range res.Transactions {
				assert.Greater(t, tx.Shares, 0.0)
				perMonth[monthKey(tx.Date)] += tx.Amount
			}
			if mode == ModeSessions {
				for month, spent := range perMonth {
					assert.LessOrEqual(t, spent, 1000.0+1e-9, "budget exceeded in %s", month)
				}
			}
			assert.InDelta(t, res.Summary.TotalInvested, res.Final.TotalInvested, 1e-6)
			assert.Equal(t, 100.0, res.FinalPrice)
		})
	}
}

func TestRunSessions_Deterministic(t *testing.T) {
	a, err := newSimulator(bearMarket(), nil).RunSessions(context.Background(), testParams(30), day(0), day(89))
	require.NoError(t, err)
	b, err := newSimulator(bearMarket(), nil).RunSessions(context.Background(), testParams(30), day(0), day(89))
	require.NoError(t, err)
	assert.Equal(t, a.Transactions, b.Transactions)
	assert.Equal(t, a.Stats, b.Stats)
}

func TestRunSessions_RecoveredSkipsAdvanceBookkeeping(t *testing.T) {
	series := dailySeries(101, func(i int) float64 {
		switch {
		case i < 40:
			return 100
		case i == 40:
			return 85
		default:
			return 95
		}
	})
	res, err := newSimulator(series, nil).RunSessions(context.Background(), testParams(60), day(0), day(100))
	require.NoError(t, err)

	require.Len(t, res.Transactions, 1)
	assert.Equal(t, day(40), res.Transactions[0].Date, "first investment happens when the session opens")
	assert.Equal(t, 1000.0, res.Transactions[0].Amount)
	assert.Equal(t, 101, res.Stats.TotalEvaluations)
	assert.Equal(t, 1, res.Stats.TriggerConditionsMet)
	assert.Equal(t, 2, res.Stats.SkippedRecovered)

	require.Len(t, res.Sessions, 1)
	assert.Equal(t, StateActive, res.Sessions[0].State, "sessions are never completed")
	assert.InDelta(t, 90.0, res.Sessions[0].TriggerPrice, 1e-9)
}

func TestRunSessions_MonthlyBudgetAcrossSessions(t *testing.T) {
	series := dailySeries(67, func(i int) float64 {
		switch {
		case i < 40:
			return 100
		case i == 40:
			return 85
		case i == 41:
			return 110
		default:
			return 95
		}
	})
	res, err := newSimulator(series, nil).RunSessions(context.Background(), testParams(60), day(0), day(66))
	require.NoError(t, err)

	require.Len(t, res.Sessions, 2)
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, day(40), res.Transactions[0].Date)
	assert.Equal(t, core.Date(2024, 3, 5), res.Transactions[1].Date)
	assert.Equal(t, res.Sessions[0].ID, res.Transactions[1].SessionID)
	assert.Equal(t, 2, res.Stats.BlockedByConstraint)
	assert.Equal(t, 26, res.Stats.TriggerConditionsMet)
	assert.Zero(t, res.Sessions[1].TotalInvested)
}

func TestRunSessions_NoData(t *testing.T) {
	_, err := newSimulator(nil, nil).RunSessions(context.Background(), testParams(30), day(0), day(10))
	assert.ErrorIs(t, err, core.ErrNoPriceData)
}

func TestRunSessions_InvalidParams(t *testing.T) {
	p := testParams(30)
	p.MinSpacingDays = 0
	_, err := newSimulator(bearMarket(), nil).RunSessions(context.Background(), p, day(0), day(10))
	assert.ErrorIs(t, err, core.ErrInvalidSpacingConfig)
}

func TestRunDaily_SpacingCounters(t *testing.T) {
	series := dailySeries(100, func(i int) float64 {
		if i < 40 {
			return 100
		}
		return 85
	})
	res, err := newSimulator(series, nil).RunDaily(context.Background(), testParams(30), day(0), day(99))
	require.NoError(t, err)

	assert.Equal(t, 99, res.Stats.TotalEvaluations, "the first day has no prior close")
	assert.Equal(t, 30, res.Stats.TriggerConditionsMet)
	assert.Equal(t, 2, res.Stats.InvestmentsExecuted)
	assert.Equal(t, 28, res.Stats.BlockedByConstraint)
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, day(41), res.Transactions[0].Date)
	assert.Equal(t, day(69), res.Transactions[1].Date)
	assert.Equal(t, 85.0, res.Transactions[0].Price)
}

func TestRunDaily_RestoresLiveHistory(t *testing.T) {
	tracker := portfolio.NewTracker(nil)
	live := []core.Investment{
		core.NewInvestment(core.Date(2023, 6, 1), "SPY", 400, 1000),
		core.NewInvestment(core.Date(2023, 7, 3), "SPY", 410, 1000),
	}
	tracker.Replace(live)

	res, err := newSimulator(bearMarket(), tracker).RunDaily(context.Background(), testParams(30), day(0), day(89))
	require.NoError(t, err)
	assert.NotEmpty(t, res.Transactions)
	assert.Equal(t, live, tracker.All())
}

// cancellingProvider serves data once, then cancels the run.
type cancellingProvider struct {
	*collector.Static
	cancel context.CancelFunc
}

func (p *cancellingProvider) FetchCloses(ctx context.Context, ticker string, start, end time.Time) (core.Series, error) {
	series, err := p.Static.FetchCloses(ctx, ticker, start, end)
	p.cancel()
	return series, err
}

func TestRunDaily_RestoresOnFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	static := collector.NewStatic()
	static.Set("SPY", bearMarket())
	tracker := portfolio.NewTracker(nil)
	live := []core.Investment{core.NewInvestment(core.Date(2023, 6, 1), "SPY", 400, 1000)}
	tracker.Replace(live)

	sim := New(&cancellingProvider{Static: static, cancel: cancel}, tracker, nil)
	_, err := sim.RunDaily(ctx, testParams(30), day(0), day(89))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, live, tracker.All())
}

type fakeRecorder struct {
	calls []string
}

func (r *fakeRecorder) RecordBacktest(mode, status string, elapsed time.Duration) {
	r.calls = append(r.calls, mode+":"+status)
}

func TestRun_RecordsOutcome(t *testing.T) {
	rec := &fakeRecorder{}
	provider := collector.NewStatic()
	provider.Set("SPY", bearMarket())
	sim := New(provider, nil, nil, WithRecorder(rec))

	_, err := sim.Run(context.Background(), ModeDaily, testParams(30), day(0), day(89))
	require.NoError(t, err)
	_, err = sim.Run(context.Background(), Mode("weekly"), testParams(30), day(0), day(89))
	require.Error(t, err)

	assert.Equal(t, []string{"daily:ok", "weekly:error"}, rec.calls)
}
