// Package telegram sends evaluation events through the Telegram Bot API
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/notifier"
)

const defaultBaseURL = "https://api.telegram.org"

// Telegram implements the Notifier interface for Telegram Bot API
type Telegram struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// Option configures a Telegram notifier
type Option func(*Telegram)

// WithBaseURL points the notifier at another Bot API host.
func WithBaseURL(u string) Option {
	return func(t *Telegram) { t.baseURL = strings.TrimRight(u, "/") }
}

// New creates a new Telegram notifier
func New(botToken, chatID string, opts ...Option) (*Telegram, error) {
	if botToken == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("telegram: bot_token is required"))
	}
	if chatID == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("telegram: chat_id is required"))
	}

	t := &Telegram{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  defaultBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) Notify(ctx context.Context, ev notifier.Event) error {
	return t.sendMessage(ctx, formatEvent(ev))
}

func formatEvent(ev notifier.Event) string {
	var sb strings.Builder
	date := ev.Date.Format(core.DateLayout)

	switch ev.Kind {
	case notifier.KindInvested:
		sb.WriteString(fmt.Sprintf("📉 *%s* dip bought on %s\n", ev.Ticker, date))
		sb.WriteString(fmt.Sprintf("💰 $%.2f at $%.2f (%.4f shares)\n", ev.Amount, ev.Price, ev.Shares))
	case notifier.KindSkipped:
		sb.WriteString(fmt.Sprintf("⏸️ *%s* no investment on %s\n", ev.Ticker, date))
		if ev.Price > 0 {
			sb.WriteString(fmt.Sprintf("💲 Close: $%.2f\n", ev.Price))
		}
	default:
		sb.WriteString(fmt.Sprintf("⚠️ *%s* evaluation failed on %s\n", ev.Ticker, date))
	}

	if ev.TriggerPrice > 0 {
		sb.WriteString(fmt.Sprintf("📊 Max $%.2f, trigger $%.2f\n", ev.RollingMax, ev.TriggerPrice))
	}
	if ev.Reason != "" {
		sb.WriteString(fmt.Sprintf("💡 %s\n", ev.Reason))
	}
	if ev.Kind == notifier.KindInvested && !ev.Persisted {
		sb.WriteString("❗ investment was not saved\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)

	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("telegram: API error (status %d): %v", resp.StatusCode, result)
	}

	return nil
}
