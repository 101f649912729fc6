package models

import "time"

// AssetStatus is a point-in-time view of one asset's window state.
// Note: no transport (json/http) concerns beyond tags.
type AssetStatus struct {
	Asset         string         `json:"asset"`
	Phase         string         `json:"phase"`
	Window        *MarketWindow  `json:"window,omitempty"`
	Ledger        PositionLedger `json:"ledger"`
	EntryZ        *float64       `json:"entry_z,omitempty"`
	LastDecision  *Decision      `json:"last_decision,omitempty"`
	Samples       int            `json:"volatility_samples"`
	LastPrice     *PricePoint    `json:"last_price,omitempty"`
	PendingOrders int            `json:"pending_orders"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Requests for status HTTP endpoints.

type DecisionsRequest struct {
	Asset  string `query:"asset" json:"asset"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
	Trades bool   `query:"trades" json:"trades"`
}

type VolatilityRequest struct {
	Asset string `query:"asset" json:"asset" validate:"required"`
}

// VolatilityReport summarizes the estimator's view of one asset.
type VolatilityReport struct {
	Asset       string    `json:"asset"`
	Samples     int       `json:"samples"`
	Sigma       float64   `json:"sigma"`
	Floor       float64   `json:"floor"`
	RegimeRatio float64   `json:"regime_ratio"`
	Drift       float64   `json:"drift_per_min"`
	LastPrice   float64   `json:"last_price"`
	At          time.Time `json:"at"`
}
