package collector

import (
	"context"
	"time"

	"github.com/newthinker/dipper/internal/core"
)

// Config holds provider configuration
type Config struct {
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	MaxFailures       uint32
	OpenTimeout       time.Duration
	BaseURL           string
}

// PriceProvider supplies daily closes for a ticker.
//
// FetchCloses returns observations dated within [start, end] in chronological
// order. Ranges containing only weekends or holidays yield an empty series
// and a nil error.
type PriceProvider interface {
	Name() string
	FetchCloses(ctx context.Context, ticker string, start, end time.Time) (core.Series, error)
}

// AdjustedPriceProvider additionally supplies closes adjusted for
// reinvested distributions, used for total-return valuation.
type AdjustedPriceProvider interface {
	PriceProvider
	FetchAdjustedCloses(ctx context.Context, ticker string, start, end time.Time) (core.Series, error)
}

// RequestObserver is notified once per upstream request with its outcome.
type RequestObserver interface {
	ProviderRequest(provider, status string)
}
