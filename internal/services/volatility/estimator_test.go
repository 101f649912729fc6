package volatility

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"WindowEdge/internal/domain/models"
	"WindowEdge/pkg/config"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) Load(ctx context.Context) (map[string][]models.PricePoint, error) {
	args := m.Called(ctx)
	data, _ := args.Get(0).(map[string][]models.PricePoint)
	return data, args.Error(1)
}

func (m *mockStore) Save(ctx context.Context, asset string, history []models.PricePoint) error {
	return m.Called(ctx, asset, history).Error(0)
}

func (m *mockStore) Close() error { return nil }

func testConfig() config.VolatilityConfig {
	return config.VolatilityConfig{
		SampleSpacing:  58 * time.Second,
		WindowSize:     60,
		MinSamples:     10,
		Floors:         map[string]float64{"BTC": 70, "ETH": 4},
		DriftLookback:  15,
		MaxDriftPerMin: 0.001,
	}
}

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func feed(t *testing.T, e *Estimator, asset string, prices ...float64) {
	t.Helper()
	for i, p := range prices {
		ok, err := e.Record(context.Background(), asset, p, t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestEstimateReturnsFloorBelowMinSamples(t *testing.T) {
	e := New(testConfig())
	feed(t, e, "BTC", 100000, 100400, 99500, 101000, 98000)

	assert.Equal(t, 5, e.Samples("BTC"))
	assert.Equal(t, 70.0, e.Estimate("BTC", 100000))
}

func TestEstimateNeverBelowFloor(t *testing.T) {
	e := New(testConfig())
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 100000
	}
	feed(t, e, "BTC", flat...)
	assert.Equal(t, 70.0, e.Estimate("BTC", 100000))

	noisy := New(testConfig())
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100000 + float64((i%2)*2-1)*500
	}
	feed(t, noisy, "BTC", prices...)
	got := noisy.Estimate("BTC", 100000)
	assert.Greater(t, got, 70.0)
	assert.GreaterOrEqual(t, got, noisy.Floor("BTC"))
}

func TestEstimateUsesSampleStdDevOfLogReturns(t *testing.T) {
	e := New(testConfig())
	prices := []float64{100, 101, 100, 102, 101, 103, 102, 104, 103, 105, 104}
	feed(t, e, "ETH", prices...)

	var rets []float64
	for i := 1; i < len(prices); i++ {
		rets = append(rets, math.Log(prices[i]/prices[i-1]))
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	ss := 0.0
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	want := math.Sqrt(ss/float64(len(rets)-1)) * 104

	assert.InDelta(t, math.Max(want, 4), e.Estimate("ETH", 104), 1e-9)
}

func TestRecordIsIdempotentWithinSpacing(t *testing.T) {
	e := New(testConfig())
	ctx := context.Background()

	ok, err := e.Record(ctx, "BTC", 100000, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Record(ctx, "BTC", 100000, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = e.Record(ctx, "BTC", 100010, t0.Add(30*time.Second))
	assert.False(t, ok)

	ok, _ = e.Record(ctx, "BTC", 100010, t0.Add(-time.Minute))
	assert.False(t, ok, "out-of-order sample")

	ok, _ = e.Record(ctx, "BTC", -1, t0.Add(time.Hour))
	assert.False(t, ok)

	assert.Len(t, e.History("BTC"), 1)
}

func TestRecordEvictsOldest(t *testing.T) {
	cfg := testConfig()
	cfg.WindowSize = 3
	cfg.MinSamples = 2
	e := New(cfg)
	feed(t, e, "btc", 1, 2, 3, 4, 5)

	h := e.History("BTC")
	require.Len(t, h, 3)
	assert.Equal(t, 3.0, h[0].Price)
	assert.Equal(t, 5.0, h[2].Price)
	for i := 1; i < len(h); i++ {
		assert.False(t, h[i].Timestamp.Before(h[i-1].Timestamp))
	}
}

func TestRecordPersistsEveryInsert(t *testing.T) {
	store := &mockStore{}
	store.On("Save", mock.Anything, "BTC", mock.AnythingOfType("[]models.PricePoint")).Return(nil).Twice()

	e := New(testConfig(), WithStore(store))
	feed(t, e, "BTC", 100, 101)

	ok, err := e.Record(context.Background(), "BTC", 102, t0.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	store.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "Save", 2)
}

func TestRecordReturnsPersistError(t *testing.T) {
	store := &mockStore{}
	store.On("Save", mock.Anything, "BTC", mock.Anything).Return(errors.New("disk full"))

	e := New(testConfig(), WithStore(store))
	ok, err := e.Record(context.Background(), "BTC", 100, t0)
	assert.True(t, ok)
	assert.Error(t, err)
	assert.Equal(t, 1, e.Samples("BTC"))
}

func TestLoadSanitizesPersistedHistory(t *testing.T) {
	store := &mockStore{}
	store.On("Load", mock.Anything).Return(map[string][]models.PricePoint{
		"btc": {
			{Timestamp: t0.Add(2 * time.Minute), Price: 102},
			{Timestamp: t0, Price: 100},
			{Timestamp: t0.Add(10 * time.Second), Price: 100.5},
			{Timestamp: t0.Add(time.Minute), Price: 0},
		},
	}, nil)

	e := New(testConfig(), WithStore(store))
	require.NoError(t, e.Load(context.Background()))

	h := e.History("BTC")
	require.Len(t, h, 2)
	assert.Equal(t, 100.0, h[0].Price)
	assert.Equal(t, 102.0, h[1].Price)
}

func TestRegimeRatio(t *testing.T) {
	e := New(testConfig())
	assert.InDelta(t, 2.0, e.RegimeRatio("BTC", 140), 1e-12)
	assert.Equal(t, 1.0, e.RegimeRatio("DOGE", 5))
}

func TestDriftIsClamped(t *testing.T) {
	e := New(testConfig())
	prices := make([]float64, 15)
	for i := range prices {
		prices[i] = 100 * math.Exp(0.01*float64(i))
	}
	feed(t, e, "ETH", prices...)

	cur := prices[len(prices)-1]
	assert.InDelta(t, 0.001*cur, e.Drift("ETH", cur), 1e-9)

	down := New(testConfig())
	for i := range prices {
		prices[i] = 100 * math.Exp(-0.0002*float64(i))
	}
	feed(t, down, "ETH", prices...)
	cur = prices[len(prices)-1]
	assert.InDelta(t, -0.0002*cur, down.Drift("ETH", cur), 1e-6)
}

func TestDriftDisabledOrShortHistory(t *testing.T) {
	cfg := testConfig()
	cfg.DisableDrift = true
	e := New(cfg)
	feed(t, e, "ETH", 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15)
	assert.Equal(t, 0.0, e.Drift("ETH", 15))

	short := New(testConfig())
	feed(t, short, "ETH", 1, 2, 3)
	assert.Equal(t, 0.0, short.Drift("ETH", 3))
}
