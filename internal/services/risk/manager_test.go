package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"WindowEdge/internal/domain/models"
	"WindowEdge/pkg/config"
)

type staticExposures map[string]float64

func (s staticExposures) NetExposures() map[string]float64 {
	out := make(map[string]float64, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func testConfig() config.RiskConfig {
	return config.RiskConfig{
		DefaultCap:            500,
		Caps:                  map[string]map[string]float64{"XRP": {"15m": 300}},
		Correlation:           map[string]float64{"BTC/ETH": 0.8},
		DefaultCorrelation:    0.5,
		CorrelationMultiplier: 3,
	}
}

func TestCanPlaceOrderWithinCap(t *testing.T) {
	m := New(testConfig(), "15m", []string{"BTC"}, nil)
	check := m.CanPlaceOrder(models.PositionLedger{TotalShares: 400, Up: 400}, models.SideUp, 100, "BTC", "15m")
	assert.True(t, check.OK)
	assert.Equal(t, models.ReasonWithinCap, check.Reason)
}

func TestCanPlaceOrderRejectsRiskIncreaseBeyondCap(t *testing.T) {
	m := New(testConfig(), "15m", []string{"BTC"}, nil)
	ledger := models.PositionLedger{TotalShares: 450, Up: 300, Down: 150}

	check := m.CanPlaceOrder(ledger, models.SideUp, 100, "BTC", "15m")
	assert.False(t, check.OK)
	assert.Equal(t, models.ReasonRiskIncrease, check.Reason)
}

func TestCanPlaceOrderHedgeBeyondCap(t *testing.T) {
	m := New(testConfig(), "15m", []string{"BTC"}, nil)
	ledger := models.PositionLedger{TotalShares: 450, Up: 300, Down: 150}

	check := m.CanPlaceOrder(ledger, models.SideDown, 100, "BTC", "15m")
	assert.True(t, check.OK)
	assert.Equal(t, models.ReasonHedgeBeyondCap, check.Reason)
}

func TestCanPlaceOrderHedgeRequiresStrictReduction(t *testing.T) {
	m := New(testConfig(), "15m", []string{"BTC"}, nil)

	// net +100, selling it through to -100 leaves |net| unchanged
	ledger := models.PositionLedger{TotalShares: 450, Up: 275, Down: 175}
	check := m.CanPlaceOrder(ledger, models.SideDown, 200, "BTC", "15m")
	assert.False(t, check.OK)
	assert.Equal(t, models.ReasonRiskIncrease, check.Reason)

	flat := models.PositionLedger{TotalShares: 500, Up: 250, Down: 250}
	check = m.CanPlaceOrder(flat, models.SideDown, 5, "BTC", "15m")
	assert.False(t, check.OK)
}

func TestCapOverrides(t *testing.T) {
	m := New(testConfig(), "15m", []string{"BTC", "XRP"}, nil)
	assert.Equal(t, 500.0, m.Cap("BTC", "15m"))
	assert.Equal(t, 300.0, m.Cap("xrp", "15m"))
	assert.Equal(t, 500.0, m.Cap("XRP", "5m"))
	assert.Equal(t, 400.0, m.AverageCap())
}

func TestCorrelationLookup(t *testing.T) {
	m := New(testConfig(), "15m", nil, nil)
	assert.Equal(t, 1.0, m.Correlation("BTC", "btc"))
	assert.Equal(t, 0.8, m.Correlation("ETH", "BTC"))
	assert.Equal(t, 0.5, m.Correlation("SOL", "BTC"))
}

func TestCheckCorrelationRisk(t *testing.T) {
	exp := staticExposures{"BTC": 800, "ETH": 900}
	m := New(testConfig(), "15m", []string{"BTC", "ETH"}, exp)

	check := m.CheckCorrelationRisk("BTC", models.SideUp, 100)
	want := math.Sqrt(900*900 + 900*900 + 2*900*900*0.8)
	assert.InDelta(t, want, check.PortfolioRisk, 1e-9)
	assert.Equal(t, 1500.0, check.Limit)
	assert.False(t, check.OK)

	hedged := m.CheckCorrelationRisk("ETH", models.SideDown, 900)
	assert.InDelta(t, 800.0, hedged.PortfolioRisk, 1e-9)
	assert.True(t, hedged.OK)

	assert.Equal(t, 800.0, exp["BTC"], "snapshot is not mutated")
}

func TestPortfolioRiskNeverNaN(t *testing.T) {
	corr := func(a, b string) float64 {
		if a == b {
			return 1
		}
		return -1
	}
	r := PortfolioRisk(map[string]float64{"A": 10, "B": 10.0000001}, corr)
	assert.False(t, math.IsNaN(r))
	assert.GreaterOrEqual(t, r, 0.0)
}
