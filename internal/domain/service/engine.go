package service

import (
	"context"
	"time"

	"WindowEdge/internal/domain/models"
)

// VolatilityEstimator maintains rolling price history and derives volatility from it.
type VolatilityEstimator interface {
	Record(ctx context.Context, asset string, price float64, ts time.Time) (bool, error)
	Estimate(asset string, currentPrice float64) float64
	RegimeRatio(asset string, sigma float64) float64
	Drift(asset string, currentPrice float64) float64
	History(asset string) []models.PricePoint
}

// OrderSubmitter hands approved orders to execution and tracks them until done.
type OrderSubmitter interface {
	Submit(ctx context.Context, asset, windowID string, req models.OrderRequest) (models.PendingOrder, error)
	PendingCount(asset string) int
}
