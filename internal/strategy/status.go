package strategy

import (
	"fmt"
	"math"
)

// Recommendation is the headline call for the current market state
type Recommendation string

const (
	RecommendBuy     Recommendation = "BUY"
	RecommendMonitor Recommendation = "MONITOR"
	RecommendHold    Recommendation = "HOLD"
)

// Confidence grades a recommendation
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Status describes where the current price sits relative to the trigger.
type Status struct {
	Ticker            string         `json:"ticker"`
	CurrentPrice      float64        `json:"current_price"`
	RollingMax        float64        `json:"rolling_max"`
	TriggerPrice      float64        `json:"trigger_price"`
	PercentFromMax    float64        `json:"percent_from_max"`    // Negative when below the rolling max
	DistanceToTrigger float64        `json:"distance_to_trigger"` // Percent above the trigger, relative to current price
	IsDip             bool           `json:"is_dip"`
	Recommendation    Recommendation `json:"recommendation"`
	Confidence        Confidence     `json:"confidence"`
	Message           string         `json:"message"`
}

// Assess grades the current price against a trigger level.
func Assess(ticker string, currentPrice float64, level Level) Status {
	st := Status{
		Ticker:       ticker,
		CurrentPrice: currentPrice,
		RollingMax:   level.RollingMax,
		TriggerPrice: level.TriggerPrice,
		IsDip:        currentPrice <= level.TriggerPrice,
	}
	if level.RollingMax > 0 {
		st.PercentFromMax = (currentPrice - level.RollingMax) / level.RollingMax * 100
	}
	if currentPrice > 0 {
		st.DistanceToTrigger = (currentPrice - level.TriggerPrice) / currentPrice * 100
	}

	if st.IsDip {
		dip := math.Abs(st.PercentFromMax)
		st.Recommendation = RecommendBuy
		switch {
		case dip >= 15:
			st.Confidence = ConfidenceHigh
			st.Message = fmt.Sprintf("strong buy signal, price is %.1f%% below recent high", dip)
		case dip >= 10:
			st.Confidence = ConfidenceMedium
			st.Message = fmt.Sprintf("buy signal, price is %.1f%% below recent high", dip)
		default:
			st.Confidence = ConfidenceMedium
			st.Message = "buy signal, price just crossed the trigger threshold"
		}
		return st
	}

	switch {
	case st.DistanceToTrigger <= 2:
		st.Recommendation, st.Confidence = RecommendMonitor, ConfidenceHigh
		st.Message = fmt.Sprintf("watch closely, price is only %.1f%% above trigger", st.DistanceToTrigger)
	case st.DistanceToTrigger <= 5:
		st.Recommendation, st.Confidence = RecommendMonitor, ConfidenceMedium
		st.Message = fmt.Sprintf("price is %.1f%% above trigger", st.DistanceToTrigger)
	default:
		st.Recommendation, st.Confidence = RecommendHold, ConfidenceLow
		st.Message = fmt.Sprintf("price is %.1f%% above trigger, market looks stable", st.DistanceToTrigger)
	}
	return st
}
