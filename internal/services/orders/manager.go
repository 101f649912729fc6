package orders

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"WindowEdge/internal/domain/models"
	"WindowEdge/internal/domain/repository"
	domsvc "WindowEdge/internal/domain/service"
	"WindowEdge/pkg/config"
	"WindowEdge/pkg/logger"
)

const cancelTimeout = 5 * time.Second

// OutcomeHandler receives every final order outcome exactly once.
type OutcomeHandler func(models.OrderOutcome)

// Manager submits orders and runs one background monitor per order until it
// fills, is cancelled or failed by the venue, or times out and is cancelled.
type Manager struct {
	cfg     config.OrdersConfig
	exec    repository.OrderExecutor
	log     *logger.Logger
	metrics repository.Metrics
	handler OutcomeHandler

	mu      sync.Mutex
	pending map[string]models.PendingOrder
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Manager)

func WithLogger(l *logger.Logger) Option { return func(m *Manager) { m.log = l } }

func WithMetrics(r repository.Metrics) Option { return func(m *Manager) { m.metrics = r } }

func WithOutcomeHandler(h OutcomeHandler) Option { return func(m *Manager) { m.handler = h } }

func New(cfg config.OrdersConfig, exec repository.OrderExecutor, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:     cfg,
		exec:    exec,
		log:     logger.NewNop(),
		pending: make(map[string]models.PendingOrder),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit places the order and starts monitoring it. On error nothing is registered.
func (m *Manager) Submit(ctx context.Context, asset, windowID string, req models.OrderRequest) (models.PendingOrder, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return models.PendingOrder{}, fmt.Errorf("%w: order manager closed", models.ErrExecution)
	}

	id, err := m.exec.Submit(ctx, req)
	if err != nil {
		return models.PendingOrder{}, fmt.Errorf("%w: submit %s %s: %w", models.ErrExecution, asset, req.Side, err)
	}
	if id == "" {
		return models.PendingOrder{}, fmt.Errorf("%w: submit %s %s: empty order id", models.ErrExecution, asset, req.Side)
	}

	po := models.PendingOrder{
		ID:          id,
		Asset:       strings.ToUpper(asset),
		WindowID:    windowID,
		Side:        req.Side,
		Token:       req.Token,
		Price:       req.Price,
		Size:        req.Size,
		SubmittedAt: time.Now(),
	}

	m.mu.Lock()
	if m.closed {
		// Close raced the venue call
		m.mu.Unlock()
		cctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
		defer cancel()
		_ = m.exec.Cancel(cctx, id)
		return models.PendingOrder{}, fmt.Errorf("%w: order manager closed", models.ErrExecution)
	}
	m.pending[id] = po
	m.wg.Add(1)
	m.mu.Unlock()

	m.log.Info("order submitted",
		logger.String("order_id", id),
		logger.String("asset", po.Asset),
		logger.String("side", string(po.Side)),
		logger.Float64("price", po.Price),
		logger.Float64("size", po.Size),
	)

	go m.monitor(po)
	return po, nil
}

func (m *Manager) monitor(po models.PendingOrder) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	timeout := time.NewTimer(m.cfg.FillTimeout)
	defer timeout.Stop()

	var lastFilled float64
	for {
		select {
		case <-m.ctx.Done():
			m.cancelOrder(po, models.OrderCancelled, lastFilled, "shutdown")
			return
		case <-timeout.C:
			m.cancelOrder(po, models.OrderTimeout, lastFilled, "")
			return
		case <-ticker.C:
			pollCtx, cancel := context.WithTimeout(m.ctx, m.cfg.PollInterval)
			st, err := m.exec.Status(pollCtx, po.ID)
			cancel()
			if err != nil {
				m.log.Warn("order status poll failed",
					logger.String("order_id", po.ID),
					logger.Error(err),
				)
				continue
			}
			lastFilled = st.FilledSize
			switch {
			case st.Status == models.OrderFilled || st.FilledSize >= m.cfg.FillRatio*po.Size:
				m.finish(po, models.OrderFilled, st.FilledSize, "")
				return
			case st.Status == models.OrderCancelled || st.Status == models.OrderFailed:
				m.finish(po, st.Status, st.FilledSize, "")
				return
			}
		}
	}
}

func (m *Manager) cancelOrder(po models.PendingOrder, status models.OrderStatus, filled float64, note string) {
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	msg := note
	if err := m.exec.Cancel(ctx, po.ID); err != nil {
		m.log.Error("order cancel failed",
			logger.String("order_id", po.ID),
			logger.Error(err),
		)
		if m.metrics != nil {
			m.metrics.RecordError("order_cancel")
		}
		msg = strings.TrimSpace(note + " " + fmt.Errorf("%w: cancel: %w", models.ErrExecution, err).Error())
	}
	m.finish(po, status, filled, msg)
}

func (m *Manager) finish(po models.PendingOrder, status models.OrderStatus, filled float64, errMsg string) {
	m.mu.Lock()
	delete(m.pending, po.ID)
	h := m.handler
	m.mu.Unlock()

	out := models.OrderOutcome{
		Order:       po,
		Status:      status,
		FilledSize:  filled,
		CompletedAt: time.Now(),
		Error:       errMsg,
	}
	m.log.Info("order finished",
		logger.String("order_id", po.ID),
		logger.String("asset", po.Asset),
		logger.String("status", string(status)),
		logger.Float64("filled", filled),
		logger.Duration("elapsed", out.CompletedAt.Sub(po.SubmittedAt)),
	)
	if m.metrics != nil {
		m.metrics.RecordOrderOutcome(status)
	}
	if h != nil {
		h(out)
	}
}

// PendingCount returns the number of orders still monitored for asset, or all when empty.
func (m *Manager) PendingCount(asset string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if asset == "" {
		return len(m.pending)
	}
	n := 0
	for _, po := range m.pending {
		if strings.EqualFold(po.Asset, asset) {
			n++
		}
	}
	return n
}

// Pending lists monitored orders by submission time.
func (m *Manager) Pending() []models.PendingOrder {
	m.mu.Lock()
	out := make([]models.PendingOrder, 0, len(m.pending))
	for _, po := range m.pending {
		out = append(out, po)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

// Close stops all monitors, cancelling their orders, and waits for them.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
	return nil
}

var _ domsvc.OrderSubmitter = (*Manager)(nil)
