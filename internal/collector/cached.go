package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/dipper/internal/core"
)

// Cached wraps a provider with an in-memory cache. The cache lives exactly as
// long as the Cached value; construct one per process or per test.
type Cached struct {
	next PriceProvider
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	series    core.Series
	fetchedAt time.Time
}

// NewCached wraps next. A non-positive ttl keeps entries until Invalidate.
func NewCached(next PriceProvider, ttl time.Duration) *Cached {
	return &Cached{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cached) Name() string {
	return c.next.Name()
}

func (c *Cached) FetchCloses(ctx context.Context, ticker string, start, end time.Time) (core.Series, error) {
	key := fmt.Sprintf("%s|%s|%s", ticker, core.Day(start).Format(core.DateLayout), core.Day(end).Format(core.DateLayout))

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && (c.ttl <= 0 || c.now().Sub(entry.fetchedAt) < c.ttl) {
		c.mu.Unlock()
		return clone(entry.series), nil
	}
	c.mu.Unlock()

	series, err := c.next.FetchCloses(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{series: clone(series), fetchedAt: c.now()}
	c.mu.Unlock()
	return series, nil
}

// FetchAdjustedCloses passes through to the wrapped provider when it
// supports adjusted prices.
func (c *Cached) FetchAdjustedCloses(ctx context.Context, ticker string, start, end time.Time) (core.Series, error) {
	adj, ok := c.next.(AdjustedPriceProvider)
	if !ok {
		return nil, core.WrapError(core.ErrCollectorFailed,
			fmt.Errorf("provider %s has no adjusted prices", c.next.Name()))
	}
	return adj.FetchAdjustedCloses(ctx, ticker, start, end)
}

// Invalidate drops cached entries for ticker, or all entries when ticker is empty.
func (c *Cached) Invalidate(ticker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ticker == "" {
		c.entries = make(map[string]cacheEntry)
		return
	}
	prefix := ticker + "|"
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
}

func clone(s core.Series) core.Series {
	if s == nil {
		return nil
	}
	out := make(core.Series, len(s))
	copy(out, s)
	return out
}
