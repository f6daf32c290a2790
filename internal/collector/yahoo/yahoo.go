package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/newthinker/dipper/internal/collector"
	"github.com/newthinker/dipper/internal/core"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL = "https://query1.finance.yahoo.com/v8/finance/chart"
)

// validSymbol matches symbols like SPY, BRK.B, 600519.SH, 0700.HK, ^GSPC
var validSymbol = regexp.MustCompile(`^\^?[A-Za-z0-9-]{1,10}(\.[A-Za-z]{1,4})?$`)

// validateSymbol checks if a symbol has valid format
func validateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 20 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	if !validSymbol.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}

// Yahoo implements the Yahoo Finance chart provider
type Yahoo struct {
	client   *http.Client
	baseURL  string
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	observer collector.RequestObserver
	logger   *zap.Logger
}

// Option configures a Yahoo provider.
type Option func(*Yahoo)

// WithObserver reports every upstream request outcome to o.
func WithObserver(o collector.RequestObserver) Option {
	return func(y *Yahoo) { y.observer = o }
}

// WithLogger sets the provider logger.
func WithLogger(l *zap.Logger) Option {
	return func(y *Yahoo) {
		if l != nil {
			y.logger = l
		}
	}
}

// New creates a new Yahoo provider. Zero config values fall back to
// conservative defaults.
func New(cfg collector.Config, opts ...Option) *Yahoo {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = baseURL
	}

	y := &Yahoo{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  zap.NewNop(),
	}

	maxFailures := cfg.MaxFailures
	y.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			y.logger.Warn("circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	for _, opt := range opts {
		opt(y)
	}
	return y
}

// Name is the registry name of the Yahoo provider.
const Name = "yahoo"

func (y *Yahoo) Name() string {
	return Name
}

// toYahooSymbol converts internal symbol format to Yahoo format
func (y *Yahoo) toYahooSymbol(symbol string) string {
	// Shanghai stocks: 600519.SH -> 600519.SS
	if strings.HasSuffix(symbol, ".SH") {
		return strings.TrimSuffix(symbol, ".SH") + ".SS"
	}
	return symbol
}

// FetchCloses fetches daily closes within [start, end]
func (y *Yahoo) FetchCloses(ctx context.Context, ticker string, start, end time.Time) (core.Series, error) {
	r, err := y.fetchChart(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}
	if len(r.Indicators.Quote) == 0 {
		return nil, nil
	}
	return toSeries(r.Timestamp, r.Meta.GmtOffset, r.Indicators.Quote[0].Close, start, end), nil
}

// FetchAdjustedCloses fetches dividend-adjusted daily closes within [start, end]
func (y *Yahoo) FetchAdjustedCloses(ctx context.Context, ticker string, start, end time.Time) (core.Series, error) {
	r, err := y.fetchChart(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}
	if len(r.Indicators.AdjClose) == 0 {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("no adjusted closes for %s", ticker))
	}
	return toSeries(r.Timestamp, r.Meta.GmtOffset, r.Indicators.AdjClose[0].AdjClose, start, end), nil
}

func (y *Yahoo) fetchChart(ctx context.Context, ticker string, start, end time.Time) (*chartResult, error) {
	if err := validateSymbol(ticker); err != nil {
		return nil, err
	}
	start, end = core.Day(start), core.Day(end)

	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("period1", fmt.Sprintf("%d", start.Unix()))
	// period2 is exclusive
	q.Set("period2", fmt.Sprintf("%d", end.AddDate(0, 0, 1).Unix()))
	reqURL := fmt.Sprintf("%s/%s?%s", y.baseURL, url.PathEscape(y.toYahooSymbol(ticker)), q.Encode())

	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	out, err := y.breaker.Execute(func() (interface{}, error) {
		return y.get(ctx, reqURL, ticker)
	})
	if err != nil {
		status := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			status = "rejected"
		}
		y.observe(status)
		return nil, core.WrapError(core.ErrCollectorFailed, err)
	}
	y.observe("ok")
	return out.(*chartResult), nil
}

func (y *Yahoo) get(ctx context.Context, reqURL, ticker string) (*chartResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; dipper)")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if result.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo error: %s", result.Chart.Error.Description)
	}

	if len(result.Chart.Result) == 0 {
		return nil, fmt.Errorf("no data for symbol: %s", ticker)
	}

	y.logger.Debug("fetched chart",
		zap.String("ticker", ticker),
		zap.Int("points", len(result.Chart.Result[0].Timestamp)),
	)
	return &result.Chart.Result[0], nil
}

func (y *Yahoo) observe(status string) {
	if y.observer != nil {
		y.observer.ProviderRequest(y.Name(), status)
	}
}

// toSeries pairs timestamps with values, skipping nulls and anything outside
// [start, end] once shifted to exchange-local dates.
func toSeries(timestamps []int64, gmtOffset int64, values []*float64, start, end time.Time) core.Series {
	start, end = core.Day(start), core.Day(end)
	out := make(core.Series, 0, len(timestamps))
	for i, ts := range timestamps {
		if i >= len(values) || values[i] == nil {
			continue // Skip missing data
		}
		day := core.Day(time.Unix(ts+gmtOffset, 0).UTC())
		if day.Before(start) || day.After(end) {
			continue
		}
		// Intraday rows can repeat the last session's date
		if n := len(out); n > 0 && out[n-1].Date.Equal(day) {
			out[n-1].Close = *values[i]
			continue
		}
		out = append(out, core.PricePoint{Date: day, Close: *values[i]})
	}
	return out
}

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta       chartMeta  `json:"meta"`
	Timestamp  []int64    `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type chartMeta struct {
	Symbol             string  `json:"symbol"`
	Currency           string  `json:"currency"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
	GmtOffset          int64   `json:"gmtoffset"`
}

type indicators struct {
	Quote    []quoteIndicator    `json:"quote"`
	AdjClose []adjCloseIndicator `json:"adjclose"`
}

type quoteIndicator struct {
	Close []*float64 `json:"close"`
}

type adjCloseIndicator struct {
	AdjClose []*float64 `json:"adjclose"`
}
