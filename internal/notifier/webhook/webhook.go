// Package webhook posts evaluation events as JSON to an HTTP endpoint
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/notifier"
)

const defaultTimeout = 30 * time.Second

// Webhook implements the Notifier interface for HTTP webhooks
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// New creates a new Webhook notifier
func New(url string, headers map[string]string) (*Webhook, error) {
	if url == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("webhook: url is required"))
	}
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: defaultTimeout},
	}, nil
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Notify(ctx context.Context, ev notifier.Event) error {
	return w.post(ctx, payload(ev))
}

func payload(ev notifier.Event) map[string]any {
	p := map[string]any{
		"type":      "evaluation",
		"kind":      ev.Kind,
		"ticker":    ev.Ticker,
		"date":      ev.Date.Format(core.DateLayout),
		"persisted": ev.Persisted,
	}
	if ev.Price > 0 {
		p["price"] = ev.Price
	}
	if ev.Kind == notifier.KindInvested {
		p["amount"] = ev.Amount
		p["shares"] = ev.Shares
	}
	if ev.TriggerPrice > 0 {
		p["rolling_max"] = ev.RollingMax
		p["trigger_price"] = ev.TriggerPrice
	}
	if ev.Reason != "" {
		p["reason"] = ev.Reason
	}
	return p
}

func (w *Webhook) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: server returned %d", resp.StatusCode)
	}

	return nil
}
