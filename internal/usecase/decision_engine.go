package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"WindowEdge/internal/domain/models"
	drepo "WindowEdge/internal/domain/repository"
	domsvc "WindowEdge/internal/domain/service"
	"WindowEdge/internal/services/risk"
	"WindowEdge/internal/services/signal"
	"WindowEdge/internal/services/sizing"
	"WindowEdge/internal/services/window"
	"WindowEdge/pkg/config"
	"WindowEdge/pkg/logger"
)

// DecisionEngine runs the per-asset tick pipeline: window, price, volatility,
// signal, sizing, risk, submission. It holds no per-asset locks itself; the
// Scheduler guarantees at most one tick in flight per asset.
type DecisionEngine struct {
	cfg     config.EngineConfig
	tracker *window.Tracker
	vol     domsvc.VolatilityEstimator
	signals *signal.Engine
	sizer   *sizing.Sizer
	risk    *risk.Manager
	orders  domsvc.OrderSubmitter
	feed    drepo.PriceFeed
	book    drepo.OrderBookProvider
	journal *Journal
	metrics drepo.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewDecisionEngine(
	cfg config.EngineConfig,
	tracker *window.Tracker,
	vol domsvc.VolatilityEstimator,
	signals *signal.Engine,
	sizer *sizing.Sizer,
	riskMgr *risk.Manager,
	orders domsvc.OrderSubmitter,
	feed drepo.PriceFeed,
	book drepo.OrderBookProvider,
	journal *Journal,
	metrics drepo.Metrics,
	log *logger.Logger,
) *DecisionEngine {
	if log == nil {
		log = logger.NewNop()
	}
	return &DecisionEngine{
		cfg:     cfg,
		tracker: tracker,
		vol:     vol,
		signals: signals,
		sizer:   sizer,
		risk:    riskMgr,
		orders:  orders,
		feed:    feed,
		book:    book,
		journal: journal,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// Tick produces one decision for asset. Expected no-trade outcomes return a
// nil error; data, sanity and execution failures return an error and leave
// window state untouched.
func (e *DecisionEngine) Tick(ctx context.Context, asset string) (models.Decision, error) {
	start := time.Now()
	now := e.now()
	asset = strings.ToUpper(asset)
	d := models.Decision{
		ID:        uuid.NewString(),
		Asset:     asset,
		WindowKey: e.tracker.Key(),
		Timestamp: now,
		Action:    models.ActionNoTrade,
	}
	defer func() { e.metrics.RecordLatency("tick", time.Since(start).Seconds()) }()

	view, reason, err := e.tracker.Prepare(ctx, asset, now)
	if err != nil {
		return e.fail(d, "window", err)
	}
	if reason != "" {
		d.Reason = reason
		e.metrics.RecordDecision(asset, d.Action, d.Reason)
		return d, nil
	}
	w := view.Window
	d.WindowID = w.ID
	d.ReferencePrice = w.ReferencePrice
	d.MinutesLeft = w.MinutesRemaining(now)

	price, err := e.currentPrice(ctx, asset, now)
	if err != nil {
		return e.fail(d, "price", err)
	}
	d.CurrentPrice = price
	e.metrics.RecordLastPrice(asset, price)

	if div := math.Abs(price-w.ReferencePrice) / w.ReferencePrice; div > e.cfg.MaxPriceDivergence {
		return e.fail(d, "sanity", fmt.Errorf("%w: %s live %.6g vs reference %.6g (%.2f%%)",
			models.ErrSanityCheck, asset, price, w.ReferencePrice, div*100))
	}

	d.Sigma = e.vol.Estimate(asset, price)
	d.RegimeRatio = e.vol.RegimeRatio(asset, d.Sigma)
	d.Drift = e.vol.Drift(asset, price)

	res, next := e.signals.Evaluate(signal.Inputs{
		Now:         now,
		Reference:   w.ReferencePrice,
		Current:     price,
		MinutesLeft: d.MinutesLeft,
		Sigma:       d.Sigma,
		RegimeRatio: d.RegimeRatio,
		Drift:       d.Drift,
		Ledger:      view.Ledger,
	}, view.Signal)
	d.Z, d.Probability, d.Threshold, d.Extreme = res.Z, res.Probability, res.Threshold, res.Extreme
	e.metrics.RecordSignal(asset, res.Z, res.PUp)

	if !res.Trade {
		e.tracker.CommitSignal(asset, w.ID, next)
		d.Reason = res.Reason
		return e.finish(ctx, d), nil
	}
	d.Side = res.Side

	ask, opposite, err := e.bestAsks(ctx, w.Tokens, res.Side)
	if err != nil {
		return e.fail(d, "book", err)
	}
	if ask <= 0 {
		e.tracker.CommitSignal(asset, w.ID, next)
		d.Reason = models.ReasonNoAsk
		return e.finish(ctx, d), nil
	}
	d.Ask = ask
	if opposite > 0 {
		e.log.Debug("book",
			logger.String("asset", asset),
			logger.Float64("ask", ask),
			logger.Float64("opposite_ask", opposite),
		)
	}

	marketCap := e.risk.Cap(asset, w.Key)
	quote := sizing.Quote{Probability: res.Probability, Price: ask, MinutesLeft: d.MinutesLeft}
	var sz sizing.Result
	if res.Extreme {
		sz = e.sizer.Kelly(quote, marketCap)
	} else {
		sz = e.sizer.Size(quote, marketCap)
	}
	d.Edge, d.Band = sz.Edge, string(sz.Band)
	if sz.Size <= 0 {
		e.tracker.CommitSignal(asset, w.ID, next)
		d.Reason = models.ReasonEdgeTooSmall
		return e.finish(ctx, d), nil
	}
	d.Size = sz.Size

	if rc := e.risk.CanPlaceOrder(view.Ledger, res.Side, sz.Size, asset, w.Key); !rc.OK {
		e.tracker.CommitSignal(asset, w.ID, next)
		d.Reason = rc.Reason
		return e.finish(ctx, d), nil
	}
	cc := e.risk.CheckCorrelationRisk(asset, res.Side, sz.Size)
	d.PortfolioRisk = cc.PortfolioRisk
	if !cc.OK {
		e.tracker.CommitSignal(asset, w.ID, next)
		d.Reason = models.ReasonCorrelationRisk
		return e.finish(ctx, d), nil
	}

	po, err := e.orders.Submit(ctx, asset, w.ID, models.OrderRequest{
		Token:  w.Tokens.For(res.Side),
		Side:   res.Side,
		Price:  ask,
		Size:   sz.Size,
		Expiry: w.End,
	})
	if err != nil {
		return e.fail(d, "submit", err)
	}

	if err := e.tracker.RecordFill(asset, w.ID, res.Side, sz.Size); err != nil {
		e.log.Error("ledger update failed after submit",
			logger.String("asset", asset),
			logger.String("order_id", po.ID),
			logger.Error(err),
		)
	}
	e.tracker.CommitSignal(asset, w.ID, next.MarkEntry(res.Z))

	d.Action = models.ActionBuy
	d.Reason = models.ReasonSubmitted
	d.OrderID = po.ID
	if exp, ok := e.tracker.NetExposures()[asset]; ok {
		e.metrics.RecordExposure(asset, exp)
	}
	return e.finish(ctx, d), nil
}

func (e *DecisionEngine) currentPrice(ctx context.Context, asset string, now time.Time) (float64, error) {
	rctx, cancel := context.WithTimeout(ctx, e.cfg.ReadTimeout)
	defer cancel()

	p, err := e.feed.CurrentPrice(rctx, asset)
	if err != nil {
		if errors.Is(err, models.ErrStalePrice) || errors.Is(err, models.ErrDataUnavailable) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: price %s: %w", models.ErrDataUnavailable, asset, err)
	}
	if p.Price <= 0 || math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
		return 0, fmt.Errorf("%w: price %s is %v", models.ErrDataUnavailable, asset, p.Price)
	}
	if age := now.Sub(p.Timestamp); age > e.cfg.PriceMaxAge {
		return 0, fmt.Errorf("%w: %s price is %s old", models.ErrStalePrice, asset, age)
	}
	return p.Price, nil
}

// bestAsks reads both sides of the book concurrently. A missing chosen-side
// ask yields 0 without error.
func (e *DecisionEngine) bestAsks(ctx context.Context, tokens models.TokenHandles, side models.Side) (float64, float64, error) {
	rctx, cancel := context.WithTimeout(ctx, e.cfg.ReadTimeout)
	defer cancel()

	var ask, opposite float64
	g, gctx := errgroup.WithContext(rctx)
	g.Go(func() error {
		p, ok, err := e.book.BestAsk(gctx, tokens.For(side))
		if err != nil {
			return fmt.Errorf("%w: best ask %s: %w", models.ErrDataUnavailable, side, err)
		}
		if ok {
			ask = p
		}
		return nil
	})
	g.Go(func() error {
		p, ok, err := e.book.BestAsk(gctx, tokens.For(side.Opposite()))
		if err != nil {
			return fmt.Errorf("%w: best ask %s: %w", models.ErrDataUnavailable, side.Opposite(), err)
		}
		if ok {
			opposite = p
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	if ask >= 1 {
		ask = 0
	}
	return ask, opposite, nil
}

func (e *DecisionEngine) finish(ctx context.Context, d models.Decision) models.Decision {
	e.metrics.RecordDecision(d.Asset, d.Action, d.Reason)
	if e.journal != nil {
		e.journal.RecordDecision(ctx, d)
	}
	fields := []logger.Field{
		logger.String("asset", d.Asset),
		logger.String("window_id", d.WindowID),
		logger.String("reason", string(d.Reason)),
		logger.Float64("z", d.Z),
		logger.Float64("p", d.Probability),
		logger.Float64("threshold", d.Threshold),
		logger.Float64("minutes_left", d.MinutesLeft),
	}
	if d.Traded() {
		e.log.Info("order placed", append(fields,
			logger.String("side", string(d.Side)),
			logger.Float64("ask", d.Ask),
			logger.Float64("size", d.Size),
			logger.String("band", d.Band),
			logger.Bool("extreme", d.Extreme),
			logger.String("order_id", d.OrderID),
		)...)
	} else {
		e.log.Debug("no trade", fields...)
	}
	return d
}

func (e *DecisionEngine) fail(d models.Decision, kind string, err error) (models.Decision, error) {
	e.metrics.RecordError(kind)
	e.log.Warn("tick aborted",
		logger.String("asset", d.Asset),
		logger.String("stage", kind),
		logger.Error(err),
	)
	return d, fmt.Errorf("tick %s: %w", d.Asset, err)
}
