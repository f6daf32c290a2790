package notifier

import (
	"context"
	"time"
)

// Kind classifies an evaluation event
type Kind string

const (
	KindInvested Kind = "invested"
	KindSkipped  Kind = "skipped"
	KindFailed   Kind = "failed"
)

// Event describes the outcome of one scheduled evaluation.
type Event struct {
	Kind         Kind      `json:"kind"`
	Ticker       string    `json:"ticker"`
	Date         time.Time `json:"date"`
	Price        float64   `json:"price,omitempty"`
	Amount       float64   `json:"amount,omitempty"`
	Shares       float64   `json:"shares,omitempty"`
	RollingMax   float64   `json:"rolling_max,omitempty"`
	TriggerPrice float64   `json:"trigger_price,omitempty"`
	Reason       string    `json:"reason,omitempty"` // Skip reason or error text
	Persisted    bool      `json:"persisted"`
}

// Notifier delivers evaluation events to an external channel
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Notify delivers a single event
	Notify(ctx context.Context, ev Event) error
}
