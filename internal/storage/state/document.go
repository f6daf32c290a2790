package state

import (
	"fmt"
	"time"

	"github.com/newthinker/dipper/internal/core"
)

// StrategySnapshot records the parameters the history was produced with.
type StrategySnapshot struct {
	Ticker            string  `json:"ticker"`
	RollingWindowDays int     `json:"rolling_window_days"`
	PercentageTrigger float64 `json:"percentage_trigger"`
	MonthlyDCAAmount  float64 `json:"monthly_dca_amount"`
	MinSpacingDays    int     `json:"min_spacing_days"`
	UseTradingDays    bool    `json:"use_trading_days"`
}

// SessionRecord is the persisted form of a dip session.
type SessionRecord struct {
	ID                 string  `json:"session_id"`
	TriggerPrice       float64 `json:"trigger_price"`
	StartDate          string  `json:"start_date"`
	State              string  `json:"state"`
	TotalInvested      float64 `json:"total_invested"`
	SharesPurchased    float64 `json:"shares_purchased"`
	LastInvestmentDate string  `json:"last_investment_date,omitempty"`
}

// Document is the whole persisted state. Investment order carries no meaning.
type Document struct {
	Config      *StrategySnapshot `json:"config,omitempty"`
	Investments []core.Investment `json:"investments"`
	Sessions    []SessionRecord   `json:"sessions,omitempty"`
	LastUpdated time.Time         `json:"last_updated"`
}

// Validate rejects documents that parse but hold impossible values.
func (d Document) Validate() error {
	for i, inv := range d.Investments {
		if err := inv.Validate(); err != nil {
			return fmt.Errorf("investment %d: %w", i, err)
		}
	}
	for i, s := range d.Sessions {
		if s.ID == "" {
			return fmt.Errorf("session %d: missing id", i)
		}
		if !(s.TriggerPrice > 0) {
			return fmt.Errorf("session %s: trigger price must be positive", s.ID)
		}
		if _, err := core.ParseDate(s.StartDate); err != nil {
			return fmt.Errorf("session %s: %w", s.ID, err)
		}
		if s.TotalInvested < 0 || s.SharesPurchased < 0 {
			return fmt.Errorf("session %s: negative totals", s.ID)
		}
	}
	return nil
}

// clone returns a copy that shares no slices with d.
func (d Document) clone() Document {
	out := d
	if d.Config != nil {
		cfg := *d.Config
		out.Config = &cfg
	}
	out.Investments = append([]core.Investment{}, d.Investments...)
	if d.Sessions != nil {
		out.Sessions = append([]SessionRecord{}, d.Sessions...)
	}
	return out
}
