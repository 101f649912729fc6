package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"WindowEdge/internal/domain/models"
	"WindowEdge/internal/services/risk"
	"WindowEdge/internal/services/signal"
	"WindowEdge/internal/services/sizing"
	"WindowEdge/internal/services/window"
	"WindowEdge/pkg/config"
	"WindowEdge/pkg/metrics"
)

var (
	windowStart = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tokens      = models.TokenHandles{Up: "tok-up", Down: "tok-down"}
)

type staticMeta struct{ reference float64 }

func (m staticMeta) WindowMetadata(_ context.Context, id string) (models.WindowMetadata, error) {
	return models.WindowMetadata{ID: id, Tokens: tokens, ReferencePrice: m.reference}, nil
}

func (m staticMeta) ReferencePrice(context.Context, string, time.Time) (float64, error) {
	return m.reference, nil
}

type staticFeed struct {
	point models.PricePoint
	err   error
}

func (f *staticFeed) CurrentPrice(context.Context, string) (models.PricePoint, error) {
	return f.point, f.err
}

// flatVol reports a fixed sigma with neutral regime and no drift.
type flatVol struct{ sigma float64 }

func (v flatVol) Record(context.Context, string, float64, time.Time) (bool, error) { return true, nil }
func (v flatVol) Estimate(string, float64) float64 { return v.sigma }
func (v flatVol) RegimeRatio(string, float64) float64 { return 1 }
func (v flatVol) Drift(string, float64) float64 { return 0 }
func (v flatVol) History(string) []models.PricePoint { return nil }

type bookStub struct {
	asks map[string]float64
	err  error
}

func (b bookStub) BestAsk(_ context.Context, token string) (float64, bool, error) {
	if b.err != nil {
		return 0, false, b.err
	}
	p, ok := b.asks[token]
	return p, ok, nil
}

type mockOrders struct{ mock.Mock }

func (m *mockOrders) Submit(ctx context.Context, asset, windowID string, req models.OrderRequest) (models.PendingOrder, error) {
	args := m.Called(ctx, asset, windowID, req)
	return args.Get(0).(models.PendingOrder), args.Error(1)
}

func (m *mockOrders) PendingCount(string) int { return 0 }

type engineFixture struct {
	engine  *DecisionEngine
	tracker *window.Tracker
	feed    *staticFeed
	orders  *mockOrders
	journal *Journal
}

func engineConfig(t *testing.T) config.EngineConfig {
	t.Helper()
	var cfg config.EngineConfig
	require.NoError(t, defaults.Set(&cfg))
	cfg.Assets = []string{"BTC"}
	return cfg
}

// newFixture builds an engine ticking at minute 10 of a 15m BTC window with a
// reference of 100000 and sigma 20 USD/min.
func newFixture(t *testing.T, cfg config.EngineConfig, book bookStub) *engineFixture {
	t.Helper()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	tracker := window.New(cfg.Window, staticMeta{reference: 100000}, nil)
	feed := &staticFeed{}
	orders := &mockOrders{}
	journal := NewJournal(nil, m, nil, "none", 50)

	e := NewDecisionEngine(
		cfg,
		tracker,
		flatVol{sigma: 20},
		signal.New(cfg.Signal),
		sizing.New(cfg.Sizing, 15),
		risk.New(cfg.Risk, cfg.Window.Key, cfg.Assets, tracker),
		orders,
		feed,
		book,
		journal,
		m,
		nil,
	)
	e.now = func() time.Time { return windowStart.Add(10 * time.Minute) }
	return &engineFixture{engine: e, tracker: tracker, feed: feed, orders: orders, journal: journal}
}

func (f *engineFixture) price(p float64, age time.Duration) {
	f.feed.point = models.PricePoint{Price: p, Timestamp: f.engine.now().Add(-age)}
}

func defaultBook() bookStub {
	return bookStub{asks: map[string]float64{"tok-up": 0.8, "tok-down": 0.25}}
}

func TestTickSubmitsOnStrongSignal(t *testing.T) {
	f := newFixture(t, engineConfig(t), defaultBook())
	f.price(100100, time.Second)
	f.orders.On("Submit", mock.Anything, "BTC", mock.Anything, mock.MatchedBy(func(r models.OrderRequest) bool {
		return r.Token == "tok-up" && r.Side == models.SideUp && r.Price == 0.8
	})).Return(models.PendingOrder{ID: "ord-1"}, nil).Once()

	d, err := f.engine.Tick(context.Background(), "btc")
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, d.Action)
	assert.Equal(t, models.ReasonSubmitted, d.Reason)
	assert.Equal(t, models.SideUp, d.Side)
	assert.Equal(t, "ord-1", d.OrderID)
	assert.InDelta(t, 2.236, d.Z, 0.01)
	assert.InDelta(t, 5.0, d.MinutesLeft, 1e-9)
	assert.Equal(t, 80.0, d.Size)
	assert.Equal(t, string(sizing.BandCore), d.Band)

	_, view := f.tracker.Snapshot("BTC")
	require.NotNil(t, view)
	assert.Equal(t, 80.0, view.Ledger.Up)
	require.NotNil(t, view.Signal.EntryZ)
	assert.InDelta(t, d.Z, *view.Signal.EntryZ, 1e-9)

	last, ok := f.journal.Last("BTC")
	require.True(t, ok)
	assert.True(t, last.Traded())
	f.orders.AssertExpectations(t)
}

func TestTickTooEarlyIsNoOp(t *testing.T) {
	f := newFixture(t, engineConfig(t), defaultBook())
	f.engine.now = func() time.Time { return windowStart.Add(30 * time.Second) }

	d, err := f.engine.Tick(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, models.ActionNoTrade, d.Action)
	assert.Equal(t, models.ReasonTooEarly, d.Reason)
	_, ok := f.journal.Last("BTC")
	assert.False(t, ok)
}

func TestTickBelowThresholdCommitsSignal(t *testing.T) {
	f := newFixture(t, engineConfig(t), defaultBook())
	f.price(100010, time.Second)

	d, err := f.engine.Tick(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, models.ReasonBelowThreshold, d.Reason)

	_, view := f.tracker.Snapshot("BTC")
	require.NotNil(t, view)
	assert.Len(t, view.Signal.History, 1)
	assert.Zero(t, view.Ledger.TotalShares)
	f.orders.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTickRejectsStalePrice(t *testing.T) {
	f := newFixture(t, engineConfig(t), defaultBook())
	f.price(100100, time.Minute)

	_, err := f.engine.Tick(context.Background(), "BTC")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStalePrice)
}

func TestTickWrapsFeedErrors(t *testing.T) {
	f := newFixture(t, engineConfig(t), defaultBook())
	f.feed.err = errors.New("connection reset")

	_, err := f.engine.Tick(context.Background(), "BTC")
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
}

func TestTickAbortsOnPriceDivergence(t *testing.T) {
	f := newFixture(t, engineConfig(t), defaultBook())
	f.price(110000, time.Second)

	_, err := f.engine.Tick(context.Background(), "BTC")
	assert.ErrorIs(t, err, models.ErrSanityCheck)

	_, view := f.tracker.Snapshot("BTC")
	require.NotNil(t, view)
	assert.Empty(t, view.Signal.History)
}

func TestTickWithoutAskDoesNotTrade(t *testing.T) {
	f := newFixture(t, engineConfig(t), bookStub{asks: map[string]float64{"tok-down": 0.2}})
	f.price(100100, time.Second)

	d, err := f.engine.Tick(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, models.ReasonNoAsk, d.Reason)
	assert.Equal(t, models.SideUp, d.Side)
}

func TestTickBookErrorLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, engineConfig(t), bookStub{err: errors.New("timeout")})
	f.price(100100, time.Second)

	_, err := f.engine.Tick(context.Background(), "BTC")
	assert.ErrorIs(t, err, models.ErrDataUnavailable)

	_, view := f.tracker.Snapshot("BTC")
	require.NotNil(t, view)
	assert.Empty(t, view.Signal.History)
}

func TestTickSubmitErrorLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t, engineConfig(t), defaultBook())
	f.price(100100, time.Second)
	f.orders.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.PendingOrder{}, models.ErrExecution).Once()

	_, err := f.engine.Tick(context.Background(), "BTC")
	assert.ErrorIs(t, err, models.ErrExecution)

	_, view := f.tracker.Snapshot("BTC")
	require.NotNil(t, view)
	assert.Zero(t, view.Ledger.TotalShares)
	assert.Nil(t, view.Signal.EntryZ)
	assert.Empty(t, view.Signal.History)
}

func TestTickRespectsMarketCap(t *testing.T) {
	cfg := engineConfig(t)
	cfg.Risk.DefaultCap = 50
	f := newFixture(t, cfg, defaultBook())
	f.price(100100, time.Second)

	d, err := f.engine.Tick(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, models.ActionNoTrade, d.Action)
	assert.Equal(t, models.ReasonRiskIncrease, d.Reason)
	assert.Equal(t, 80.0, d.Size)
	f.orders.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
