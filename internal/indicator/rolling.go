package indicator

import (
	"fmt"

	"github.com/newthinker/dipper/internal/core"
)

// WindowMode selects how a rolling window is measured
type WindowMode int

const (
	// CalendarDays measures the window in calendar days back from the latest date.
	CalendarDays WindowMode = iota
	// TradingDays measures the window as the last N observations.
	TradingDays
)

func (m WindowMode) String() string {
	if m == TradingDays {
		return "trading"
	}
	return "calendar"
}

// ModeFor maps the use_trading_days flag to a WindowMode.
func ModeFor(useTradingDays bool) WindowMode {
	if useTradingDays {
		return TradingDays
	}
	return CalendarDays
}

// RollingMax returns the highest close within the trailing window that ends
// at the latest observation of series.
//
// In CalendarDays mode the window is [latest-windowDays, latest] inclusive.
// In TradingDays mode it is the last windowDays observations. A series
// shorter than the window uses all available data.
func RollingMax(series core.Series, windowDays int, mode WindowMode) (float64, error) {
	if len(series) == 0 {
		return 0, core.ErrEmptyPriceSeries
	}
	if windowDays <= 0 {
		return 0, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("window days must be positive, got %d", windowDays))
	}

	start := windowStart(series, len(series)-1, windowDays, mode)
	high := series[start].Close
	for i := start + 1; i < len(series); i++ {
		if series[i].Close > high {
			high = series[i].Close
		}
	}
	return high, nil
}

// RollingMaxSeries returns, for every observation, the rolling maximum of the
// window ending at that observation (inclusive). It is equivalent to calling
// RollingMax on each prefix of series but runs in linear time.
func RollingMaxSeries(series core.Series, windowDays int, mode WindowMode) ([]float64, error) {
	if len(series) == 0 {
		return nil, core.ErrEmptyPriceSeries
	}
	if windowDays <= 0 {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("window days must be positive, got %d", windowDays))
	}

	result := make([]float64, len(series))
	// Monotonic deque of indices with decreasing closes
	deque := make([]int, 0, len(series))
	start := 0
	for i := range series {
		for len(deque) > 0 && series[deque[len(deque)-1]].Close <= series[i].Close {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, i)

		if mode == TradingDays {
			start = max(0, i-windowDays+1)
		} else {
			cutoff := core.Day(series[i].Date).AddDate(0, 0, -windowDays)
			for core.Day(series[start].Date).Before(cutoff) {
				start++
			}
		}
		for deque[0] < start {
			deque = deque[1:]
		}
		result[i] = series[deque[0]].Close
	}
	return result, nil
}

// windowStart returns the index of the first observation inside the window
// ending at index end.
func windowStart(series core.Series, end, windowDays int, mode WindowMode) int {
	if mode == TradingDays {
		start := end - windowDays + 1
		if start < 0 {
			start = 0
		}
		return start
	}

	cutoff := core.Day(series[end].Date).AddDate(0, 0, -windowDays)
	start := end
	for start > 0 && !core.Day(series[start-1].Date).Before(cutoff) {
		start--
	}
	return start
}
