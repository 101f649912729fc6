package risk

import (
	"math"
	"strings"

	"WindowEdge/internal/domain/models"
	"WindowEdge/pkg/config"
)

// ExposureSource returns a consistent snapshot of net shares (up minus down) per asset.
type ExposureSource interface {
	NetExposures() map[string]float64
}

type pair struct{ a, b string }

// Manager enforces the per-market share cap and the portfolio correlation limit.
type Manager struct {
	cfg       config.RiskConfig
	windowKey string
	assets    []string
	corr      map[pair]float64
	exposures ExposureSource
}

func New(cfg config.RiskConfig, windowKey string, assets []string, exposures ExposureSource) *Manager {
	m := &Manager{
		cfg:       cfg,
		windowKey: windowKey,
		corr:      make(map[pair]float64, len(cfg.Correlation)*2),
		exposures: exposures,
	}
	for _, a := range assets {
		m.assets = append(m.assets, strings.ToUpper(a))
	}
	for key, rho := range cfg.Correlation {
		a, b, ok := config.SplitPair(key)
		if !ok {
			continue
		}
		m.corr[pair{a, b}] = rho
		m.corr[pair{b, a}] = rho
	}
	return m
}

// Cap returns the per-market share cap of an asset's window.
func (m *Manager) Cap(asset, windowKey string) float64 {
	if byWindow, ok := m.cfg.Caps[strings.ToUpper(asset)]; ok {
		if c, ok := byWindow[windowKey]; ok && c > 0 {
			return c
		}
	}
	return m.cfg.DefaultCap
}

// Correlation is 1 on the diagonal and the default for unlisted pairs.
func (m *Manager) Correlation(a, b string) float64 {
	a, b = strings.ToUpper(a), strings.ToUpper(b)
	if a == b {
		return 1
	}
	if rho, ok := m.corr[pair{a, b}]; ok {
		return rho
	}
	return m.cfg.DefaultCorrelation
}

// CanPlaceOrder allows any order that keeps the market within its cap; beyond
// the cap only an order that strictly reduces |net| is allowed.
func (m *Manager) CanPlaceOrder(ledger models.PositionLedger, side models.Side, size float64, asset, windowKey string) models.RiskCheck {
	totalAfter := ledger.TotalShares + size
	netBefore := ledger.Net()
	netAfter := netBefore + side.Sign()*size

	if totalAfter <= m.Cap(asset, windowKey) {
		return models.RiskCheck{OK: true, Reason: models.ReasonWithinCap}
	}
	if math.Abs(netAfter) < math.Abs(netBefore) {
		return models.RiskCheck{OK: true, Reason: models.ReasonHedgeBeyondCap}
	}
	return models.RiskCheck{OK: false, Reason: models.ReasonRiskIncrease}
}

// AverageCap is the mean per-market cap across the configured assets.
func (m *Manager) AverageCap() float64 {
	if len(m.assets) == 0 {
		return m.cfg.DefaultCap
	}
	sum := 0.0
	for _, a := range m.assets {
		sum += m.Cap(a, m.windowKey)
	}
	return sum / float64(len(m.assets))
}

// CheckCorrelationRisk computes sqrt(sum_i sum_j n_i n_j rho_ij) over net
// exposures including the proposed order and compares it with
// multiplier x average cap.
func (m *Manager) CheckCorrelationRisk(asset string, side models.Side, size float64) models.CorrelationCheck {
	net := make(map[string]float64)
	if m.exposures != nil {
		for a, n := range m.exposures.NetExposures() {
			net[strings.ToUpper(a)] = n
		}
	}
	net[strings.ToUpper(asset)] += side.Sign() * size

	risk := PortfolioRisk(net, m.Correlation)
	limit := m.cfg.CorrelationMultiplier * m.AverageCap()
	return models.CorrelationCheck{OK: risk <= limit, PortfolioRisk: risk, Limit: limit}
}

// PortfolioRisk is the correlation-weighted standard-deviation proxy of net positions.
func PortfolioRisk(net map[string]float64, corr func(a, b string) float64) float64 {
	sum := 0.0
	for a, na := range net {
		for b, nb := range net {
			sum += na * nb * corr(a, b)
		}
	}
	if sum < 0 {
		sum = 0
	}
	return math.Sqrt(sum)
}
