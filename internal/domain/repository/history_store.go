package repository

import (
	"context"

	"WindowEdge/internal/domain/models"
)

// HistoryStore persists rolling volatility history per asset.
// Save replaces the stored history of one asset; Load returns every asset.
type HistoryStore interface {
	Load(ctx context.Context) (map[string][]models.PricePoint, error)
	Save(ctx context.Context, asset string, history []models.PricePoint) error
	Close() error
}
