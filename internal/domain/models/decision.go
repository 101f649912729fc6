package models

import "time"

type Action string

const (
	ActionBuy     Action = "BUY"
	ActionNoTrade Action = "NO_TRADE"
)

// Reason is a machine-readable explanation attached to every decision.
type Reason string

const (
	ReasonSubmitted Reason = "submitted"

	ReasonTooEarly       Reason = "too_early"
	ReasonRolling        Reason = "window_rolling"
	ReasonTickInFlight   Reason = "tick_in_flight"
	ReasonBelowThreshold Reason = "below_threshold"
	ReasonSignalDecay    Reason = "signal_decay"
	ReasonWeakSignal     Reason = "weak_signal_persistence"
	ReasonReversal       Reason = "signal_reversal"
	ReasonEntryReversal  Reason = "entry_reversal"
	ReasonNoAsk          Reason = "no_ask"
	ReasonEdgeTooSmall   Reason = "edge_below_minimum"
	ReasonNoVolatility   Reason = "no_volatility"

	ReasonWithinCap         Reason = "within_cap"
	ReasonHedgeBeyondCap    Reason = "hedge_beyond_cap"
	ReasonRiskIncrease      Reason = "risk_increase_beyond_cap"
	ReasonCorrelationRisk   Reason = "correlation_risk"
	ReasonCorrelationWithin Reason = "correlation_within_limit"
)

// Decision is the outcome of one tick for one asset.
type Decision struct {
	ID             string    `json:"id"`
	Asset          string    `json:"asset"`
	WindowKey      string    `json:"window_key"`
	WindowID       string    `json:"window_id,omitempty"`
	Timestamp      time.Time `json:"ts"`
	Action         Action    `json:"action"`
	Reason         Reason    `json:"reason"`
	Side           Side      `json:"side,omitempty"`
	Z              float64   `json:"z"`
	Probability    float64   `json:"probability"`
	Threshold      float64   `json:"threshold"`
	Sigma          float64   `json:"sigma"`
	RegimeRatio    float64   `json:"regime_ratio"`
	Drift          float64   `json:"drift"`
	MinutesLeft    float64   `json:"minutes_left"`
	CurrentPrice   float64   `json:"current_price"`
	ReferencePrice float64   `json:"reference_price"`
	Ask            float64   `json:"ask,omitempty"`
	Edge           float64   `json:"edge,omitempty"`
	Size           float64   `json:"size,omitempty"`
	Band           string    `json:"band,omitempty"`
	Extreme        bool      `json:"extreme,omitempty"`
	PortfolioRisk  float64   `json:"portfolio_risk,omitempty"`
	OrderID        string    `json:"order_id,omitempty"`
}

func (d Decision) Traded() bool { return d.Action == ActionBuy }

// RiskCheck is the verdict of a risk rule.
type RiskCheck struct {
	OK     bool
	Reason Reason
}

// CorrelationCheck reports the portfolio standard-deviation proxy against its limit.
type CorrelationCheck struct {
	OK            bool
	PortfolioRisk float64
	Limit         float64
}
