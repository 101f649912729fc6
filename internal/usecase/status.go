package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"WindowEdge/internal/domain/models"
	domsvc "WindowEdge/internal/domain/service"
	"WindowEdge/internal/services/pricefeed"
	"WindowEdge/internal/services/volatility"
	"WindowEdge/internal/services/window"
)

// StatusUseCase assembles read-only views for the status API.
type StatusUseCase struct {
	assets  []string
	tracker *window.Tracker
	vol     *volatility.Estimator
	prices  *pricefeed.Cache
	orders  domsvc.OrderSubmitter
	journal *Journal
	now     func() time.Time
}

func NewStatusUseCase(
	assets []string,
	tracker *window.Tracker,
	vol *volatility.Estimator,
	prices *pricefeed.Cache,
	orders domsvc.OrderSubmitter,
	journal *Journal,
) *StatusUseCase {
	up := make([]string, len(assets))
	for i, a := range assets {
		up[i] = strings.ToUpper(a)
	}
	return &StatusUseCase{
		assets:  up,
		tracker: tracker,
		vol:     vol,
		prices:  prices,
		orders:  orders,
		journal: journal,
		now:     time.Now,
	}
}

func (uc *StatusUseCase) known(asset string) bool {
	for _, a := range uc.assets {
		if a == asset {
			return true
		}
	}
	return false
}

// Asset returns the status of one configured asset.
func (uc *StatusUseCase) Asset(asset string) (models.AssetStatus, error) {
	asset = strings.ToUpper(asset)
	if !uc.known(asset) {
		return models.AssetStatus{}, fmt.Errorf("%w: asset %q", models.ErrNotFound, asset)
	}
	phase, view := uc.tracker.Snapshot(asset)
	st := models.AssetStatus{
		Asset:         asset,
		Phase:         string(phase),
		Samples:       uc.vol.Samples(asset),
		PendingOrders: uc.orders.PendingCount(asset),
		UpdatedAt:     uc.now(),
	}
	if view != nil {
		w := view.Window
		st.Window = &w
		st.Ledger = view.Ledger
		st.EntryZ = view.Signal.EntryZ
	}
	if d, ok := uc.journal.Last(asset); ok {
		st.LastDecision = &d
	}
	if t, ok := uc.prices.Last(asset); ok {
		p := t.Point()
		st.LastPrice = &p
	}
	return st, nil
}

// All gathers every asset's status concurrently.
func (uc *StatusUseCase) All(ctx context.Context) ([]models.AssetStatus, error) {
	ch := make(chan models.AssetStatus, len(uc.assets))
	var wg sync.WaitGroup
	for _, a := range uc.assets {
		wg.Add(1)
		go func(asset string) {
			defer wg.Done()
			if st, err := uc.Asset(asset); err == nil {
				ch <- st
			}
		}(a)
	}
	go func() {
		wg.Wait()
		close(ch)
	}()

	out := make([]models.AssetStatus, 0, len(uc.assets))
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case st, ok := <-ch:
			if !ok {
				sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
				return out, nil
			}
			out = append(out, st)
		}
	}
}

// Decisions returns journaled decisions, newest first.
func (uc *StatusUseCase) Decisions(req models.DecisionsRequest) []models.Decision {
	return uc.journal.Recent(req.Asset, req.Limit, req.Trades)
}

// Volatility reports the current estimate for asset.
func (uc *StatusUseCase) Volatility(asset string) (models.VolatilityReport, error) {
	asset = strings.ToUpper(asset)
	if !uc.known(asset) {
		return models.VolatilityReport{}, fmt.Errorf("%w: asset %q", models.ErrNotFound, asset)
	}
	rep := models.VolatilityReport{
		Asset:   asset,
		Samples: uc.vol.Samples(asset),
		Floor:   uc.vol.Floor(asset),
		At:      uc.now(),
	}
	t, ok := uc.prices.Last(asset)
	if !ok {
		return rep, nil
	}
	rep.LastPrice = t.Price
	rep.Sigma = uc.vol.Estimate(asset, t.Price)
	rep.RegimeRatio = uc.vol.RegimeRatio(asset, rep.Sigma)
	rep.Drift = uc.vol.Drift(asset, t.Price)
	return rep, nil
}
