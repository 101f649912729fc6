package usecase

import (
	"context"
	"time"

	"WindowEdge/internal/domain/models"
	drepo "WindowEdge/internal/domain/repository"
	mid "WindowEdge/internal/middleware"
	"WindowEdge/internal/services/pricefeed"
	"WindowEdge/pkg/logger"
)

// PriceIngest is the pipeline's downstream: it stores ticks in the price cache.
type PriceIngest struct {
	cache   *pricefeed.Cache
	metrics drepo.Metrics
}

func NewPriceIngest(cache *pricefeed.Cache, metrics drepo.Metrics) *PriceIngest {
	return &PriceIngest{cache: cache, metrics: metrics}
}

// Process never fails; out-of-order ticks are counted and dropped.
func (p *PriceIngest) Process(_ context.Context, t *models.PriceTick) error {
	if !p.cache.Update(*t) {
		p.metrics.RecordError("tick_out_of_order")
		return nil
	}
	p.metrics.RecordLastPrice(t.Asset, t.Price)
	return nil
}

var _ mid.Proc = (*PriceIngest)(nil)

// PriceCollector reads ticks from a market stream and pushes them through the pipeline.
type PriceCollector struct {
	stream  drepo.MarketStream
	pipe    *mid.RealtimePipeline
	metrics drepo.Metrics
	log     *logger.Logger
	delay   time.Duration
}

// NewPriceCollector creates a new PriceCollector instance.
func NewPriceCollector(stream drepo.MarketStream, pipe *mid.RealtimePipeline, metrics drepo.Metrics, log *logger.Logger, reconnectDelay time.Duration) *PriceCollector {
	if log == nil {
		log = logger.NewNop()
	}
	return &PriceCollector{stream: stream, pipe: pipe, metrics: metrics, log: log, delay: reconnectDelay}
}

// IsConnected returns true if the market stream is connected.
func (c *PriceCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *PriceCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	tickCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tickCh, errCh)
	return nil
}

func (c *PriceCollector) consume(ctx context.Context, tickCh <-chan *models.PriceTick, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err == nil {
				continue
			}
			c.metrics.RecordError("stream")
			c.log.Warn("price stream error", logger.Error(err))
			c.reconnect(ctx)
		case t, ok := <-tickCh:
			if !ok {
				tickCh = nil
				continue
			}
			if t == nil {
				continue
			}
			if err := c.pipe.Process(ctx, t); err != nil {
				c.log.Debug("tick rejected", logger.String("asset", t.Asset), logger.Error(err))
			}
		}
	}
}

func (c *PriceCollector) reconnect(ctx context.Context) {
	for ctx.Err() == nil {
		err := c.stream.Reconnect(ctx)
		if err == nil {
			c.log.Info("price stream reconnected")
			return
		}
		c.metrics.RecordError("stream_reconnect")
		c.log.Warn("price stream reconnect failed", logger.Error(err), logger.Duration("retry_in", c.delay))
		select {
		case <-ctx.Done():
		case <-time.After(c.delay):
		}
	}
}

// Shutdown stops pipeline and closes stream.
func (c *PriceCollector) Shutdown(_ context.Context) error {
	c.pipe.Stop()
	return c.stream.Close()
}
