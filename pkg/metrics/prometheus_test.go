package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WindowEdge/internal/domain/models"
)

func TestRecorderCounters(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordDecision("BTC", models.ActionNoTrade, models.ReasonTooEarly)
	r.RecordDecision("BTC", models.ActionNoTrade, models.ReasonTooEarly)
	r.RecordDecision("BTC", models.ActionBuy, models.ReasonSubmitted)
	r.RecordError("journal")
	r.RecordMessageSent("kafka", "ETH")
	r.RecordOrderOutcome(models.OrderFilled)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.decisions.WithLabelValues("BTC", "NO_TRADE", "too_early")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("BTC", string(models.ActionBuy), "submitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("journal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.messagesSent.WithLabelValues("kafka", "ETH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.orders.WithLabelValues("FILLED")))
}

func TestRecorderGauges(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordLastPrice("BTC", 100123.5)
	r.RecordSignal("BTC", 1.8, 0.96)
	r.RecordExposure("BTC", -25)

	assert.Equal(t, 100123.5, testutil.ToFloat64(r.lastPrice.WithLabelValues("BTC")))
	assert.Equal(t, 1.8, testutil.ToFloat64(r.zScore.WithLabelValues("BTC")))
	assert.Equal(t, 0.96, testutil.ToFloat64(r.probability.WithLabelValues("BTC")))
	assert.Equal(t, -25.0, testutil.ToFloat64(r.exposure.WithLabelValues("BTC")))
}

func TestRecorderRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)
	r.RecordLatency("tick", 0.01)

	n, err := testutil.GatherAndCount(reg, "windowedge_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Panics(t, func() { NewWithRegistry(reg) })
}
