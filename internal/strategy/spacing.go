package strategy

import (
	"fmt"
	"time"

	"github.com/newthinker/dipper/internal/core"
)

// DefaultMinSpacingDays is the default minimum gap between investments.
const DefaultMinSpacingDays = 28

// SpacingGuard enforces a minimum number of calendar days between investments.
type SpacingGuard struct {
	minDays int
}

// NewSpacingGuard creates a guard. Zero or negative spacing is rejected.
func NewSpacingGuard(minDays int) (*SpacingGuard, error) {
	if minDays <= 0 {
		return nil, core.WrapError(core.ErrInvalidSpacingConfig,
			fmt.Errorf("got %d", minDays))
	}
	return &SpacingGuard{minDays: minDays}, nil
}

// MinDays returns the configured spacing.
func (g *SpacingGuard) MinDays() int {
	return g.minDays
}

// HasRecentInvestment reports whether any date d satisfies
// checkDate-minDays < d < checkDate. Both bounds are exclusive: an investment
// exactly minDays earlier does not block, and neither does one on checkDate.
func (g *SpacingGuard) HasRecentInvestment(checkDate time.Time, dates []time.Time) bool {
	day := core.Day(checkDate)
	cutoff := day.AddDate(0, 0, -g.minDays)
	for _, d := range dates {
		d = core.Day(d)
		if d.After(cutoff) && d.Before(day) {
			return true
		}
	}
	return false
}

// NextEligibleDate returns the earliest date on or after checkDate on which
// HasRecentInvestment is false.
func (g *SpacingGuard) NextEligibleDate(checkDate time.Time, dates []time.Time) time.Time {
	candidate := core.Day(checkDate)
	for {
		cutoff := candidate.AddDate(0, 0, -g.minDays)
		var blocker time.Time
		for _, d := range dates {
			d = core.Day(d)
			if d.After(cutoff) && d.Before(candidate) && d.After(blocker) {
				blocker = d
			}
		}
		if blocker.IsZero() {
			return candidate
		}
		candidate = blocker.AddDate(0, 0, g.minDays)
	}
}
