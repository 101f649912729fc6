package window

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"WindowEdge/internal/domain/models"
	"WindowEdge/internal/domain/repository"
	"WindowEdge/internal/services/signal"
	"WindowEdge/pkg/config"
	"WindowEdge/pkg/logger"
	"WindowEdge/pkg/util"
)

type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseActive        Phase = "active"
	PhaseRolling       Phase = "rolling"
)

// Context is all window-scoped state of one asset. It is only mutated through
// Tracker methods.
type Context struct {
	Window       models.MarketWindow
	Signal       signal.State
	Ledger       models.PositionLedger
	phase        Phase
	rollingSince time.Time
}

// View is a copy of a Context handed to a tick.
type View struct {
	Window models.MarketWindow
	Signal signal.State
	Ledger models.PositionLedger
}

// Tracker owns Map<asset, Map<windowKey, Context>>.
type Tracker struct {
	cfg    config.WindowConfig
	length time.Duration
	meta   repository.MarketMetadataProvider
	log    *logger.Logger

	mu    sync.RWMutex
	table map[string]map[string]*Context
}

func New(cfg config.WindowConfig, meta repository.MarketMetadataProvider, log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.NewNop()
	}
	return &Tracker{
		cfg:    cfg,
		length: config.WindowLength(cfg.Key),
		meta:   meta,
		log:    log,
		table:  make(map[string]map[string]*Context),
	}
}

func (t *Tracker) Key() string { return t.cfg.Key }

// Prepare returns the active window view for asset at now. A non-empty reason
// means the tick is a deliberate no-op (too early, rolling). Errors leave the
// table untouched.
func (t *Tracker) Prepare(ctx context.Context, asset string, now time.Time) (View, models.Reason, error) {
	asset = strings.ToUpper(asset)
	start, end := util.WindowBounds(now, t.length)
	id := models.WindowID(asset, t.cfg.Key, start)

	t.mu.Lock()
	c := t.get(asset)
	if c != nil && c.phase != PhaseRolling && c.Window.ID != id {
		// no tick landed in the rollover band; the cooldown runs from the old end
		c.phase = PhaseRolling
		c.rollingSince = c.Window.End
		t.log.Info("window identity changed",
			logger.String("asset", asset),
			logger.String("cached", c.Window.ID),
			logger.String("current", id),
		)
	}
	if c != nil && c.phase == PhaseRolling {
		if now.Sub(c.rollingSince) < t.cfg.RolloverCooldown {
			t.mu.Unlock()
			return View{}, models.ReasonRolling, nil
		}
		t.drop(asset)
		t.log.Info("window state discarded",
			logger.String("asset", asset),
			logger.String("window_id", c.Window.ID),
			logger.Float64("total_shares", c.Ledger.TotalShares),
		)
		c = nil
	}
	t.mu.Unlock()

	if end.Sub(now).Minutes() > t.cfg.TooEarlyMinutes {
		return View{}, models.ReasonTooEarly, nil
	}

	if c == nil {
		w, err := t.fetch(ctx, asset, id, start, end)
		if err != nil {
			return View{}, "", err
		}
		c = &Context{Window: w, phase: PhaseActive}

		t.mu.Lock()
		if t.table[asset] == nil {
			t.table[asset] = make(map[string]*Context)
		}
		t.table[asset][t.cfg.Key] = c
		t.mu.Unlock()

		t.log.Info("window activated",
			logger.String("asset", asset),
			logger.String("window_id", w.ID),
			logger.Float64("reference_price", w.ReferencePrice),
			logger.Time("end", w.End),
		)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c.Window.MinutesRemaining(now) < t.cfg.RolloverMinutes {
		c.phase = PhaseRolling
		c.rollingSince = now
		t.log.Info("window rolling",
			logger.String("asset", asset),
			logger.String("window_id", c.Window.ID),
		)
		return View{}, models.ReasonRolling, nil
	}
	return View{Window: c.Window, Signal: c.Signal, Ledger: c.Ledger}, "", nil
}

func (t *Tracker) fetch(ctx context.Context, asset, id string, start, end time.Time) (models.MarketWindow, error) {
	meta, err := t.meta.WindowMetadata(ctx, id)
	if err != nil {
		return models.MarketWindow{}, fmt.Errorf("%w: window metadata %s: %w", models.ErrDataUnavailable, id, err)
	}
	if meta.Tokens.Up == "" || meta.Tokens.Down == "" {
		return models.MarketWindow{}, fmt.Errorf("%w: window %s has no token handles", models.ErrDataUnavailable, id)
	}
	if !meta.End.IsZero() {
		end = meta.End
	}

	ref := meta.ReferencePrice
	if ref <= 0 {
		ref, err = t.meta.ReferencePrice(ctx, asset, start)
		if err != nil {
			return models.MarketWindow{}, fmt.Errorf("%w: reference price %s: %w", models.ErrDataUnavailable, id, err)
		}
	}
	if ref <= 0 || math.IsNaN(ref) || math.IsInf(ref, 0) {
		return models.MarketWindow{}, fmt.Errorf("%w: %s got %v", models.ErrInvalidReference, id, ref)
	}

	return models.MarketWindow{
		Key:            t.cfg.Key,
		Asset:          asset,
		ID:             id,
		Start:          start,
		End:            end,
		ReferencePrice: ref,
		Tokens:         meta.Tokens,
	}, nil
}

// CommitSignal stores the signal state of a tick if the window is still current.
func (t *Tracker) CommitSignal(asset, windowID string, st signal.State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.get(strings.ToUpper(asset))
	if c == nil || c.Window.ID != windowID || c.phase != PhaseActive {
		return false
	}
	c.Signal = st
	return true
}

// RecordFill is the only path that mutates a PositionLedger.
func (t *Tracker) RecordFill(asset, windowID string, side models.Side, size float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.get(strings.ToUpper(asset))
	if c == nil || c.Window.ID != windowID {
		return fmt.Errorf("record fill %s/%s: %w", asset, windowID, models.ErrNotFound)
	}
	c.Ledger.Add(side, size)
	return nil
}

// NetExposures snapshots net shares of every asset's current window under one lock.
func (t *Tracker) NetExposures() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.table))
	for asset, byKey := range t.table {
		for _, c := range byKey {
			out[asset] += c.Ledger.Net()
		}
	}
	return out
}

// Snapshot returns the phase and a copy of the current context, if any.
func (t *Tracker) Snapshot(asset string) (Phase, *View) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c := t.get(strings.ToUpper(asset))
	if c == nil {
		return PhaseUninitialized, nil
	}
	return c.phase, &View{Window: c.Window, Signal: c.Signal, Ledger: c.Ledger}
}

func (t *Tracker) get(asset string) *Context {
	if byKey, ok := t.table[asset]; ok {
		return byKey[t.cfg.Key]
	}
	return nil
}

func (t *Tracker) drop(asset string) {
	if byKey, ok := t.table[asset]; ok {
		delete(byKey, t.cfg.Key)
	}
}
