package venue

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"WindowEdge/internal/domain/models"
	drepo "WindowEdge/internal/domain/repository"
)

// BookClient reads order books.
type BookClient struct {
	*HTTPServiceBase
}

func NewBookClient(base *HTTPServiceBase) *BookClient {
	return &BookClient{HTTPServiceBase: base}
}

type levelDTO struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

type bookDTO struct {
	Bids []levelDTO `json:"bids"`
	Asks []levelDTO `json:"asks"`
}

// BestAsk returns the lowest ask with positive size. An unknown token or an
// empty ask side yields ok=false without error.
func (c *BookClient) BestAsk(ctx context.Context, token string) (float64, bool, error) {
	if token == "" {
		return 0, false, fmt.Errorf("%w: empty token", models.ErrDataUnavailable)
	}
	var b bookDTO
	if err := c.GetJSON(ctx, "/book", map[string][]string{"token_id": {token}}, &b); err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return bestAsk(b.Asks)
}

func bestAsk(levels []levelDTO) (float64, bool, error) {
	var best decimal.Decimal
	found := false
	for _, l := range levels {
		if !l.Size.IsPositive() || !l.Price.IsPositive() {
			continue
		}
		if !found || l.Price.LessThan(best) {
			best, found = l.Price, true
		}
	}
	if !found {
		return 0, false, nil
	}
	p, _ := best.Float64()
	return p, true, nil
}

var _ drepo.OrderBookProvider = (*BookClient)(nil)
