package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"WindowEdge/internal/domain/models"
	drepo "WindowEdge/internal/domain/repository"
	"WindowEdge/pkg/logger"
)

// Executor simulates order placement for dry runs. Orders fill completely
// after fillDelay; a zero delay fills on the first status poll.
type Executor struct {
	fillDelay time.Duration
	log       *logger.Logger
	now       func() time.Time

	mu     sync.Mutex
	orders map[string]*order
}

type order struct {
	req       models.OrderRequest
	placedAt  time.Time
	cancelled bool
}

func New(fillDelay time.Duration, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Executor{
		fillDelay: fillDelay,
		log:       log.With(logger.String("component", "paper_executor")),
		now:       time.Now,
		orders:    make(map[string]*order),
	}
}

func (e *Executor) Submit(_ context.Context, req models.OrderRequest) (string, error) {
	if req.Size <= 0 || req.Price <= 0 || req.Price >= 1 {
		return "", fmt.Errorf("invalid paper order: price %v size %v", req.Price, req.Size)
	}
	id := "paper-" + uuid.NewString()
	e.mu.Lock()
	e.orders[id] = &order{req: req, placedAt: e.now()}
	e.mu.Unlock()
	e.log.Info("paper order placed",
		logger.String("order_id", id),
		logger.String("token", req.Token),
		logger.String("side", string(req.Side)),
		logger.Float64("price", req.Price),
		logger.Float64("size", req.Size),
	)
	return id, nil
}

func (e *Executor) Status(_ context.Context, id string) (models.OrderState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	if !ok {
		return models.OrderState{}, fmt.Errorf("%w: paper order %s", models.ErrNotFound, id)
	}
	switch {
	case o.cancelled:
		return models.OrderState{Status: models.OrderCancelled}, nil
	case e.now().Sub(o.placedAt) >= e.fillDelay:
		return models.OrderState{Status: models.OrderFilled, FilledSize: o.req.Size}, nil
	default:
		return models.OrderState{Status: models.OrderOpen}, nil
	}
}

func (e *Executor) Cancel(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o, ok := e.orders[id]; ok {
		o.cancelled = true
	}
	return nil
}

var _ drepo.OrderExecutor = (*Executor)(nil)
