package backtest

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/dipper/internal/core"
)

// State is a dip session's lifecycle state
type State string

const (
	StateMonitoring State = "monitoring"
	StateActive     State = "active"
	StateCompleted  State = "completed"
)

// Session is one dip episode. Its trigger price is fixed when it opens.
type Session struct {
	ID                 string
	TriggerPrice       float64
	StartDate          time.Time
	State              State
	TotalInvested      float64
	SharesPurchased    float64
	LastInvestmentDate time.Time // Zero until the first investment
}

// Book owns the sessions and transactions of one simulation run.
type Book struct {
	sessions     []*Session
	byID         map[string]*Session
	transactions []Transaction
	newID        func() string
}

// NewBook creates an empty book. A nil newID uses random UUIDs.
func NewBook(newID func() string) *Book {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Book{
		byID:  make(map[string]*Session),
		newID: newID,
	}
}

// Open starts an Active session at triggerPrice.
func (b *Book) Open(triggerPrice float64, date time.Time) *Session {
	s := &Session{
		ID:           b.newID(),
		TriggerPrice: triggerPrice,
		StartDate:    core.Day(date),
		State:        StateActive,
	}
	b.sessions = append(b.sessions, s)
	b.byID[s.ID] = s
	return s
}

// Record invests amount at price into an Active session.
func (b *Book) Record(sessionID string, date time.Time, price, amount float64) (Transaction, error) {
	s, ok := b.byID[sessionID]
	if !ok {
		return Transaction{}, fmt.Errorf("session %s not found", sessionID)
	}
	if s.State != StateActive {
		return Transaction{}, fmt.Errorf("session %s is %s", sessionID, s.State)
	}
	if !(price > 0) || !(amount > 0) {
		return Transaction{}, fmt.Errorf("invalid purchase: price %f amount %f", price, amount)
	}

	tx := Transaction{
		ID:        b.newID(),
		SessionID: sessionID,
		Date:      core.Day(date),
		Price:     price,
		Shares:    amount / price,
		Amount:    amount,
	}
	s.TotalInvested += amount
	s.SharesPurchased += tx.Shares
	s.LastInvestmentDate = tx.Date
	b.transactions = append(b.transactions, tx)
	return tx, nil
}

// Complete closes an Active session once price is at or above its trigger.
// Simulations leave sessions open; this serves single-session tracking.
func (b *Book) Complete(sessionID string, price float64) bool {
	s, ok := b.byID[sessionID]
	if !ok || s.State != StateActive {
		return false
	}
	if price >= s.TriggerPrice {
		s.State = StateCompleted
		return true
	}
	return false
}

// HasActiveAt reports whether an Active session sits within tolerance of
// triggerPrice.
func (b *Book) HasActiveAt(triggerPrice, tolerance float64) bool {
	for _, s := range b.sessions {
		if s.State != StateActive {
			continue
		}
		d := s.TriggerPrice - triggerPrice
		if d < 0 {
			d = -d
		}
		if d < tolerance {
			return true
		}
	}
	return false
}

// Active returns the Active sessions in opening order.
func (b *Book) Active() []*Session {
	var out []*Session
	for _, s := range b.sessions {
		if s.State == StateActive {
			out = append(out, s)
		}
	}
	return out
}

// Sessions returns copies of every session in opening order.
func (b *Book) Sessions() []Session {
	out := make([]Session, len(b.sessions))
	for i, s := range b.sessions {
		out[i] = *s
	}
	return out
}

// Transactions returns a copy of every recorded transaction.
func (b *Book) Transactions() []Transaction {
	out := make([]Transaction, len(b.transactions))
	copy(out, b.transactions)
	return out
}
