package volatility

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"WindowEdge/internal/domain/models"
	"WindowEdge/internal/domain/repository"
	domsvc "WindowEdge/internal/domain/service"
	"WindowEdge/internal/services/features"
	"WindowEdge/pkg/config"
	"WindowEdge/pkg/logger"
)

// Estimator keeps a bounded, spaced price history per asset and derives a
// USD volatility per sample interval from it. History is persisted on every
// insert and reloaded by Load.
type Estimator struct {
	cfg    config.VolatilityConfig
	floors map[string]float64
	store  repository.HistoryStore
	log    *logger.Logger

	saveMu sync.Mutex
	mu     sync.RWMutex
	hist   map[string][]models.PricePoint
}

type Option func(*Estimator)

func WithStore(s repository.HistoryStore) Option {
	return func(e *Estimator) { e.store = s }
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Estimator) { e.log = l }
}

func New(cfg config.VolatilityConfig, opts ...Option) *Estimator {
	e := &Estimator{
		cfg:    cfg,
		floors: make(map[string]float64, len(cfg.Floors)),
		log:    logger.NewNop(),
		hist:   make(map[string][]models.PricePoint),
	}
	for asset, f := range cfg.Floors {
		e.floors[normalize(asset)] = f
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load replaces in-memory history with the persisted one. Stored series are
// re-sorted and re-spaced so a hand-edited or partial blob cannot break invariants.
func (e *Estimator) Load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	data, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load volatility history: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for asset, pts := range data {
		clean := e.sanitize(pts)
		e.hist[normalize(asset)] = clean
		e.log.Info("volatility history loaded",
			logger.String("asset", asset),
			logger.Int("samples", len(clean)),
		)
	}
	return nil
}

// Record appends a sample when at least the configured spacing has elapsed
// since the previous one. It reports whether the sample was kept. A persistence
// failure is returned but the in-memory insert stands.
func (e *Estimator) Record(ctx context.Context, asset string, price float64, ts time.Time) (bool, error) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) || ts.IsZero() {
		return false, nil
	}
	asset = normalize(asset)

	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	h := e.hist[asset]
	if n := len(h); n > 0 {
		last := h[n-1].Timestamp
		if ts.Before(last) || ts.Sub(last) < e.cfg.SampleSpacing {
			e.mu.Unlock()
			return false, nil
		}
	}
	h = append(h, models.PricePoint{Timestamp: ts, Price: price})
	if over := len(h) - e.cfg.WindowSize; over > 0 {
		h = append([]models.PricePoint(nil), h[over:]...)
	}
	e.hist[asset] = h
	snapshot := append([]models.PricePoint(nil), h...)
	e.mu.Unlock()

	if e.store == nil {
		return true, nil
	}
	if err := e.store.Save(ctx, asset, snapshot); err != nil {
		return true, fmt.Errorf("persist volatility history %s: %w", asset, err)
	}
	return true, nil
}

// Estimate returns max(stddev(log returns) * currentPrice, floor), or the floor
// alone while the history is shorter than the minimum sample count.
func (e *Estimator) Estimate(asset string, currentPrice float64) float64 {
	asset = normalize(asset)
	floor := e.floors[asset]
	if currentPrice <= 0 {
		return floor
	}

	e.mu.RLock()
	h := e.hist[asset]
	if len(h) < e.cfg.MinSamples {
		e.mu.RUnlock()
		return floor
	}
	sd := features.SampleStdDev(features.ComputeLogReturns(h))
	e.mu.RUnlock()

	return math.Max(sd*currentPrice, floor)
}

// RegimeRatio is sigma relative to the asset floor; 1 when no floor is configured.
func (e *Estimator) RegimeRatio(asset string, sigma float64) float64 {
	floor, ok := e.floors[normalize(asset)]
	if !ok || floor <= 0 {
		return 1
	}
	return sigma / floor
}

// Drift is the regression slope of recent log prices converted to USD per
// minute, clamped to the configured fraction of price.
func (e *Estimator) Drift(asset string, currentPrice float64) float64 {
	if e.cfg.DisableDrift || currentPrice <= 0 {
		return 0
	}
	e.mu.RLock()
	h := e.hist[normalize(asset)]
	if len(h) < e.cfg.DriftLookback {
		e.mu.RUnlock()
		return 0
	}
	slope, ok := features.LogPriceSlope(h, e.cfg.DriftLookback)
	e.mu.RUnlock()
	if !ok {
		return 0
	}
	limit := e.cfg.MaxDriftPerMin * currentPrice
	return features.Clamp(slope*currentPrice, -limit, limit)
}

// History returns a copy of the retained samples.
func (e *Estimator) History(asset string) []models.PricePoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]models.PricePoint(nil), e.hist[normalize(asset)]...)
}

func (e *Estimator) Samples(asset string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.hist[normalize(asset)])
}

func (e *Estimator) Floor(asset string) float64 { return e.floors[normalize(asset)] }

func (e *Estimator) sanitize(pts []models.PricePoint) []models.PricePoint {
	sorted := append([]models.PricePoint(nil), pts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	out := make([]models.PricePoint, 0, len(sorted))
	for _, p := range sorted {
		if p.Price <= 0 || p.Timestamp.IsZero() {
			continue
		}
		if n := len(out); n > 0 && p.Timestamp.Sub(out[n-1].Timestamp) < e.cfg.SampleSpacing {
			continue
		}
		out = append(out, p)
	}
	if over := len(out) - e.cfg.WindowSize; over > 0 {
		out = out[over:]
	}
	return out
}

func normalize(asset string) string { return strings.ToUpper(strings.TrimSpace(asset)) }

var _ domsvc.VolatilityEstimator = (*Estimator)(nil)
