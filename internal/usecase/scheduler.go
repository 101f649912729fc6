package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"WindowEdge/internal/domain/models"
	drepo "WindowEdge/internal/domain/repository"
	domsvc "WindowEdge/internal/domain/service"
	"WindowEdge/pkg/logger"
)

// Ticker produces one decision per call.
type Ticker interface {
	Tick(ctx context.Context, asset string) (models.Decision, error)
}

// Scheduler drives one tick loop per asset and a volatility sampling loop.
// A tick that fires while the previous one for the same asset is still
// running is skipped, not queued. Ticks for different assets run in parallel.
type Scheduler struct {
	engine   Ticker
	vol      domsvc.VolatilityEstimator
	feed     drepo.PriceFeed
	metrics  drepo.Metrics
	log      *logger.Logger
	assets   []string
	interval time.Duration
	sampling time.Duration

	locks    map[string]*sync.Mutex
	inflight sync.WaitGroup
}

func NewScheduler(
	engine Ticker,
	vol domsvc.VolatilityEstimator,
	feed drepo.PriceFeed,
	metrics drepo.Metrics,
	log *logger.Logger,
	assets []string,
	interval, sampling time.Duration,
) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Scheduler{
		engine:   engine,
		vol:      vol,
		feed:     feed,
		metrics:  metrics,
		log:      log,
		interval: interval,
		sampling: sampling,
		locks:    make(map[string]*sync.Mutex, len(assets)),
	}
	for _, a := range assets {
		a = strings.ToUpper(a)
		s.assets = append(s.assets, a)
		s.locks[a] = &sync.Mutex{}
	}
	return s
}

// Run blocks until ctx is cancelled, then waits for in-flight ticks to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range s.assets {
		asset := a
		g.Go(func() error {
			s.tickLoop(gctx, asset)
			return nil
		})
	}
	g.Go(func() error {
		s.sampleLoop(gctx)
		return nil
	})
	err := g.Wait()
	s.inflight.Wait()
	return err
}

func (s *Scheduler) tickLoop(ctx context.Context, asset string) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	s.TryTick(ctx, asset)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.TryTick(ctx, asset)
		}
	}
}

// TryTick starts a tick for asset unless one is already in flight. It reports
// whether a tick was started.
func (s *Scheduler) TryTick(ctx context.Context, asset string) bool {
	mu, ok := s.locks[asset]
	if !ok {
		return false
	}
	if !mu.TryLock() {
		s.metrics.RecordDecision(asset, models.ActionNoTrade, models.ReasonTickInFlight)
		s.log.Debug("tick skipped", logger.String("asset", asset))
		return false
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				s.metrics.RecordError("tick_panic")
				s.log.Error("tick panicked", logger.String("asset", asset), logger.Any("panic", r))
			}
		}()
		// a started tick runs to completion even during shutdown
		_, _ = s.engine.Tick(context.WithoutCancel(ctx), asset)
	}()
	return true
}

func (s *Scheduler) sampleLoop(ctx context.Context) {
	t := time.NewTicker(s.sampling)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, a := range s.assets {
				s.sample(ctx, a)
			}
		}
	}
}

func (s *Scheduler) sample(ctx context.Context, asset string) {
	p, err := s.feed.CurrentPrice(ctx, asset)
	if err != nil {
		return
	}
	recorded, err := s.vol.Record(ctx, asset, p.Price, p.Timestamp)
	if err != nil {
		s.metrics.RecordError("history_persist")
		s.log.Warn("persist volatility history failed", logger.String("asset", asset), logger.Error(err))
	}
	if recorded {
		s.log.Debug("volatility sample", logger.String("asset", asset), logger.Float64("price", p.Price))
	}
}
