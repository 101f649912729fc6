package models

import "time"

type OrderStatus string

const (
	OrderOpen      OrderStatus = "OPEN"
	OrderPartial   OrderStatus = "PARTIAL"
	OrderFilled    OrderStatus = "FILLED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderFailed    OrderStatus = "FAILED"
	OrderTimeout   OrderStatus = "TIMEOUT"
)

// Terminal reports whether the venue will not change the order any further.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderCancelled || s == OrderFailed
}

// OrderRequest is a buy of Size shares of Token at Price, expiring at Expiry.
type OrderRequest struct {
	Token  string    `json:"token"`
	Side   Side      `json:"side"`
	Price  float64   `json:"price"`
	Size   float64   `json:"size"`
	Expiry time.Time `json:"expiry"`
}

type OrderState struct {
	FilledSize float64     `json:"filled_size"`
	Status     OrderStatus `json:"status"`
}

// PendingOrder is a submitted order still under fill monitoring.
type PendingOrder struct {
	ID          string    `json:"id"`
	Asset       string    `json:"asset"`
	WindowID    string    `json:"window_id"`
	Side        Side      `json:"side"`
	Token       string    `json:"token"`
	Price       float64   `json:"price"`
	Size        float64   `json:"size"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// OrderOutcome is the final state recorded when monitoring stops.
type OrderOutcome struct {
	Order       PendingOrder `json:"order"`
	Status      OrderStatus  `json:"status"`
	FilledSize  float64      `json:"filled_size"`
	CompletedAt time.Time    `json:"completed_at"`
	Error       string       `json:"error,omitempty"`
}
