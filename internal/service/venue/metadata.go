package venue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"WindowEdge/internal/domain/models"
	drepo "WindowEdge/internal/domain/repository"
)

// MetadataClient resolves window identifiers and reference prices over REST.
type MetadataClient struct {
	*HTTPServiceBase
}

func NewMetadataClient(base *HTTPServiceBase) *MetadataClient {
	return &MetadataClient{HTTPServiceBase: base}
}

type marketDTO struct {
	Slug    string     `json:"slug"`
	EndDate time.Time  `json:"end_date"`
	Closed  bool       `json:"closed"`
	Tokens  []tokenDTO `json:"tokens"`
}

type tokenDTO struct {
	Outcome string `json:"outcome"`
	TokenID string `json:"token_id"`
}

// WindowMetadata fetches the market for windowID. A missing market or one
// lacking either outcome token is reported as ErrDataUnavailable.
func (c *MetadataClient) WindowMetadata(ctx context.Context, windowID string) (models.WindowMetadata, error) {
	var m marketDTO
	if err := c.GetJSONWithRetry(ctx, "/markets/"+url.PathEscape(windowID), nil, &m, 2); err != nil {
		return models.WindowMetadata{}, fmt.Errorf("%w: market %s: %w", models.ErrDataUnavailable, windowID, err)
	}
	md := models.WindowMetadata{ID: windowID, End: m.EndDate.UTC()}
	for _, t := range m.Tokens {
		switch strings.ToLower(t.Outcome) {
		case "up", "yes":
			md.Tokens.Up = t.TokenID
		case "down", "no":
			md.Tokens.Down = t.TokenID
		}
	}
	if md.Tokens.Up == "" || md.Tokens.Down == "" {
		return models.WindowMetadata{}, fmt.Errorf("%w: market %s lacks outcome tokens", models.ErrDataUnavailable, windowID)
	}
	if m.Closed {
		return models.WindowMetadata{}, fmt.Errorf("%w: market %s is closed", models.ErrDataUnavailable, windowID)
	}
	return md, nil
}

type openPriceDTO struct {
	Price decimal.Decimal `json:"price"`
}

// ReferencePrice returns the oracle price of asset at the window start.
func (c *MetadataClient) ReferencePrice(ctx context.Context, asset string, start time.Time) (float64, error) {
	var out openPriceDTO
	q := map[string][]string{
		"asset": {strings.ToUpper(asset)},
		"ts":    {strconv.FormatInt(start.Unix(), 10)},
	}
	if err := c.GetJSONWithRetry(ctx, "/prices/open", q, &out, 2); err != nil {
		return 0, fmt.Errorf("%w: reference %s: %w", models.ErrDataUnavailable, asset, err)
	}
	p, _ := out.Price.Float64()
	if p <= 0 {
		return 0, fmt.Errorf("%w: reference %s is %v", models.ErrInvalidReference, asset, out.Price)
	}
	return p, nil
}

var _ drepo.MarketMetadataProvider = (*MetadataClient)(nil)
