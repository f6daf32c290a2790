package collector

import (
	"context"
	"sync"
	"time"

	"github.com/newthinker/dipper/internal/core"
)

// Static serves closes from memory. It backs offline replays and tests.
type Static struct {
	mu       sync.RWMutex
	series   map[string]core.Series
	adjusted map[string]core.Series
	calls    int
}

// NewStatic creates an empty in-memory provider
func NewStatic() *Static {
	return &Static{
		series:   make(map[string]core.Series),
		adjusted: make(map[string]core.Series),
	}
}

func (s *Static) Name() string {
	return "static"
}

// Set installs the close series for ticker.
func (s *Static) Set(ticker string, series core.Series) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[ticker] = series.Sorted()
}

// SetAdjusted installs the dividend-adjusted series for ticker.
func (s *Static) SetAdjusted(ticker string, series core.Series) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjusted[ticker] = series.Sorted()
}

// Calls returns how many fetches were served.
func (s *Static) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *Static) FetchCloses(ctx context.Context, ticker string, start, end time.Time) (core.Series, error) {
	return s.fetch(ctx, s.series, ticker, start, end)
}

func (s *Static) FetchAdjustedCloses(ctx context.Context, ticker string, start, end time.Time) (core.Series, error) {
	return s.fetch(ctx, s.adjusted, ticker, start, end)
}

func (s *Static) fetch(ctx context.Context, src map[string]core.Series, ticker string, start, end time.Time) (core.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	start, end = core.Day(start), core.Day(end)
	var out core.Series
	for _, p := range src[ticker] {
		if p.Date.Before(start) || p.Date.After(end) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
