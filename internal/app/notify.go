package app

import (
	"context"

	"github.com/newthinker/dipper/internal/config"
	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/evaluator"
	"github.com/newthinker/dipper/internal/notifier"
	"github.com/newthinker/dipper/internal/notifier/telegram"
	"github.com/newthinker/dipper/internal/notifier/webhook"
	"go.uber.org/zap"
)

// WithNotifier registers an extra notification channel.
func WithNotifier(n notifier.Notifier) Option {
	return func(a *App) { a.extraNotifiers = append(a.extraNotifiers, n) }
}

// buildNotifiers registers the configured channels followed by any passed
// through WithNotifier.
func buildNotifiers(cfg config.NotifyConfig, extra []notifier.Notifier) (*notifier.Registry, error) {
	reg := notifier.NewRegistry()

	if cfg.Webhook.URL != "" {
		w, err := webhook.New(cfg.Webhook.URL, cfg.Webhook.Headers)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(w); err != nil {
			return nil, err
		}
	}
	if cfg.Telegram.BotToken != "" {
		tg, err := telegram.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(tg); err != nil {
			return nil, err
		}
	}
	for _, n := range extra {
		if err := reg.Register(n); err != nil {
			return nil, core.WrapError(core.ErrConfigInvalid, err)
		}
	}
	return reg, nil
}

// notify delivers ev on every channel. Delivery failures are logged and
// counted but never fail the evaluation.
func (a *App) notify(ctx context.Context, ev notifier.Event) {
	if a.notifiers.Len() == 0 {
		return
	}
	errs := a.notifiers.NotifyAll(ctx, ev)
	for _, name := range a.notifiers.Names() {
		if err, failed := errs[name]; failed {
			a.metrics.Notification(name, "error")
			a.logger.Warn("notification failed",
				zap.String("notifier", name),
				zap.String("kind", string(ev.Kind)),
				zap.Error(err),
			)
			continue
		}
		a.metrics.Notification(name, "ok")
	}
}

func eventFor(res evaluator.Result) notifier.Event {
	ev := notifier.Event{
		Kind:         notifier.KindSkipped,
		Ticker:       res.Ticker,
		Date:         res.Date,
		Price:        res.TodayPrice,
		RollingMax:   res.RollingMax,
		TriggerPrice: res.TriggerPrice,
		Persisted:    res.Persisted,
	}
	switch o := res.Outcome.(type) {
	case evaluator.Invested:
		ev.Kind = notifier.KindInvested
		ev.Price = o.Investment.Price
		ev.Amount = o.Investment.Amount
		ev.Shares = o.Investment.Shares
	case evaluator.Skipped:
		ev.Reason = string(o.Reason)
	}
	return ev
}
