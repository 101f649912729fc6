package venue

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"WindowEdge/internal/domain/models"
	drepo "WindowEdge/internal/domain/repository"
)

// Executor places limit orders through the signing gateway.
type Executor struct {
	*HTTPServiceBase
}

func NewExecutor(base *HTTPServiceBase) *Executor {
	return &Executor{HTTPServiceBase: base}
}

type orderDTO struct {
	TokenID    string          `json:"token_id"`
	Side       string          `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	Expiration int64           `json:"expiration"`
	Type       string          `json:"order_type"`
}

type orderAckDTO struct {
	OrderID  string `json:"order_id"`
	Success  bool   `json:"success"`
	ErrorMsg string `json:"error_msg"`
}

type orderStatusDTO struct {
	Status      string          `json:"status"`
	SizeMatched decimal.Decimal `json:"size_matched"`
}

// Submit places a good-till-date buy at the limit price, truncated to the
// cent tick so it never exceeds the ask the order was sized against.
func (e *Executor) Submit(ctx context.Context, req models.OrderRequest) (string, error) {
	body := orderDTO{
		TokenID: req.Token,
		Side:    "BUY",
		Price:   decimal.NewFromFloat(req.Price).RoundDown(2),
		Size:    decimal.NewFromFloat(req.Size),
		Type:    "GTD",
	}
	if !req.Expiry.IsZero() {
		body.Expiration = req.Expiry.Unix()
	}
	var ack orderAckDTO
	if err := e.PostJSON(ctx, "/orders", body, &ack); err != nil {
		return "", err
	}
	if ack.OrderID == "" {
		msg := ack.ErrorMsg
		if msg == "" {
			msg = "no order id returned"
		}
		return "", fmt.Errorf("order rejected: %s", msg)
	}
	return ack.OrderID, nil
}

func (e *Executor) Status(ctx context.Context, id string) (models.OrderState, error) {
	var st orderStatusDTO
	if err := e.GetJSONWithRetry(ctx, "/orders/"+url.PathEscape(id), nil, &st, 2); err != nil {
		return models.OrderState{}, err
	}
	filled, _ := st.SizeMatched.Float64()
	return models.OrderState{FilledSize: filled, Status: mapStatus(st.Status, filled)}, nil
}

func (e *Executor) Cancel(ctx context.Context, id string) error {
	err := e.Delete(ctx, "/orders/"+url.PathEscape(id))
	if isNotFound(err) {
		return nil
	}
	return err
}

func mapStatus(s string, filled float64) models.OrderStatus {
	switch strings.ToLower(s) {
	case "matched", "filled":
		return models.OrderFilled
	case "canceled", "cancelled", "expired":
		return models.OrderCancelled
	case "failed", "rejected":
		return models.OrderFailed
	}
	if filled > 0 {
		return models.OrderPartial
	}
	return models.OrderOpen
}

var _ drepo.OrderExecutor = (*Executor)(nil)
