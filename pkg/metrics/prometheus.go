package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"WindowEdge/internal/domain/models"
	"WindowEdge/internal/domain/repository"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	decisions    *prometheus.CounterVec
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	orders       *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	zScore       *prometheus.GaugeVec
	probability  *prometheus.GaugeVec
	exposure     *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered with the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg; tests pass a fresh registry.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "windowedge_decisions_total",
				Help: "Tick outcomes by asset, action and reason",
			},
			[]string{"asset", "action", "reason"},
		),
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "windowedge_messages_sent_total",
				Help: "Total number of messages sent to a journal backend",
			},
			[]string{"backend", "asset"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "windowedge_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		orders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "windowedge_order_outcomes_total",
				Help: "Final order states",
			},
			[]string{"status"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "windowedge_last_price",
				Help: "Last reference price seen by the engine",
			},
			[]string{"asset"},
		),
		zScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "windowedge_signal_z",
				Help: "Latest drift-adjusted z of an asset",
			},
			[]string{"asset"},
		),
		probability: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "windowedge_signal_probability_up",
				Help: "Latest model probability of an up close",
			},
			[]string{"asset"},
		),
		exposure: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "windowedge_net_exposure_shares",
				Help: "Net shares (up minus down) in the current window",
			},
			[]string{"asset"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "windowedge_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordDecision(asset string, action models.Action, reason models.Reason) {
	r.decisions.WithLabelValues(asset, string(action), string(reason)).Inc()
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, asset string) {
	r.messagesSent.WithLabelValues(backend, asset).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordOrderOutcome(status models.OrderStatus) {
	r.orders.WithLabelValues(string(status)).Inc()
}

// RecordLastPrice records the last price for an asset.
func (r *Recorder) RecordLastPrice(asset string, price float64) {
	r.lastPrice.WithLabelValues(asset).Set(price)
}

func (r *Recorder) RecordSignal(asset string, z, probability float64) {
	r.zScore.WithLabelValues(asset).Set(z)
	r.probability.WithLabelValues(asset).Set(probability)
}

func (r *Recorder) RecordExposure(asset string, net float64) {
	r.exposure.WithLabelValues(asset).Set(net)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

var _ repository.Metrics = (*Recorder)(nil)
