package sizing

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"WindowEdge/internal/services/features"
	"WindowEdge/pkg/config"
)

type Band string

const (
	BandCore   Band = "core"
	BandMedium Band = "medium"
	BandRisky  Band = "risky"
)

const (
	ModeHeuristic = "heuristic"
	ModeKelly     = "kelly"
)

// Quote is a sizing request: model probability of the chosen side against
// its venue ask, with minutes left in the window.
type Quote struct {
	Probability float64
	Price       float64
	MinutesLeft float64
}

func (q Quote) Edge() float64 { return q.Probability - q.Price }

// Result carries the size and the inputs that produced it. Size 0 means skip.
type Result struct {
	Size    float64
	Band    Band
	Edge    float64
	MinEdge float64
	Mode    string
}

type Sizer struct {
	cfg           config.SizingConfig
	tiers         []config.EdgeTier
	lot           decimal.Decimal
	windowMinutes float64
}

func New(cfg config.SizingConfig, windowMinutes float64) *Sizer {
	tiers := append([]config.EdgeTier(nil), cfg.MinEdgeTiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinMinutes > tiers[j].MinMinutes })
	if windowMinutes <= 0 {
		windowMinutes = 15
	}
	return &Sizer{
		cfg:           cfg,
		tiers:         tiers,
		lot:           decimal.NewFromFloat(cfg.LotSize),
		windowMinutes: windowMinutes,
	}
}

// MinEdge is the time-tiered minimum edge required to trade.
func (s *Sizer) MinEdge(minutes float64) float64 {
	for _, t := range s.tiers {
		if minutes >= t.MinMinutes {
			return t.Edge
		}
	}
	return s.tiers[len(s.tiers)-1].Edge
}

// Size dispatches on the configured mode.
func (s *Sizer) Size(q Quote, marketCap float64) Result {
	if s.cfg.Mode == ModeKelly {
		return s.Kelly(q, marketCap)
	}
	return s.Heuristic(q)
}

// Classify assigns the risk band of a trade.
func (s *Sizer) Classify(probability, price float64) Band {
	switch {
	case probability >= s.cfg.CoreMinProb && price >= s.cfg.CoreMinPrice:
		return BandCore
	case probability < s.cfg.RiskyMaxProb || price < s.cfg.RiskyMaxPrice:
		return BandRisky
	default:
		return BandMedium
	}
}

func (s *Sizer) band(b Band) config.Band {
	switch b {
	case BandCore:
		return s.cfg.CoreBand
	case BandRisky:
		return s.cfg.RiskyBand
	default:
		return s.cfg.MediumBand
	}
}

// Heuristic blends the normalised edge with time urgency and maps the score
// into the band of the trade, rounded down to lots and clipped to the order ceiling.
func (s *Sizer) Heuristic(q Quote) Result {
	res := Result{Edge: q.Edge(), MinEdge: s.MinEdge(q.MinutesLeft), Mode: ModeHeuristic}
	if !validQuote(q) || res.Edge <= res.MinEdge {
		return res
	}
	res.Band = s.Classify(q.Probability, q.Price)

	norm := features.Clamp(res.Edge/s.cfg.EdgeCap, 0, 1)
	urgency := features.Clamp(1-q.MinutesLeft/s.windowMinutes, 0, 1)
	w := s.cfg.UrgencyWeight
	score := (1-w)*norm + w*urgency

	b := s.band(res.Band)
	raw := b.Min + score*(b.Max-b.Min)
	res.Size = s.floorLot(math.Min(raw, s.cfg.MaxOrderSize))
	return res
}

// Kelly sizes (p-price)/(1-price) scaled by the configured fraction of the
// market cap. Degenerate prices fall back to a fixed minimal size.
func (s *Sizer) Kelly(q Quote, marketCap float64) Result {
	res := Result{Edge: q.Edge(), MinEdge: s.MinEdge(q.MinutesLeft), Mode: ModeKelly}
	if !validQuote(q) || res.Edge <= res.MinEdge {
		return res
	}
	res.Band = s.Classify(q.Probability, q.Price)

	if q.Price >= 0.99 || q.Price <= 0.01 {
		res.Size = s.floorLot(s.cfg.FallbackSize)
		return res
	}
	f := (q.Probability - q.Price) / (1 - q.Price)
	raw := f * s.cfg.KellyFraction * marketCap
	res.Size = s.floorLot(math.Min(raw, marketCap))
	return res
}

func (s *Sizer) floorLot(v float64) float64 {
	if v <= 0 || math.IsNaN(v) || s.lot.IsZero() {
		return 0
	}
	d := decimal.NewFromFloat(v).Div(s.lot).Floor().Mul(s.lot)
	return d.InexactFloat64()
}

func validQuote(q Quote) bool {
	return q.Probability > 0 && q.Probability <= 1 && q.Price > 0 && q.Price < 1
}
