package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"WindowEdge/internal/domain/models"
	domrepo "WindowEdge/internal/domain/repository"
	mid "WindowEdge/internal/middleware"
	pkgkafka "WindowEdge/pkg/kafka"
	"WindowEdge/pkg/util"
)

// KafkaTicksHandler consumes price ticks from Kafka and feeds the pipeline.
type KafkaTicksHandler struct {
	topic   string
	symbols map[string]string
	pipe    *mid.RealtimePipeline
	metrics domrepo.Metrics
}

// NewKafkaTicksHandler maps upstream symbols to assets via symbols (symbol -> asset).
func NewKafkaTicksHandler(topic string, symbols map[string]string, pipe *mid.RealtimePipeline, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, symbols: symbols, pipe: pipe, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, c}
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		T      int64   `json:"t"`
		C      float64 `json:"c"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	ts := util.EpochToTime(m.T)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(ts).Seconds())

	asset, ok := h.symbols[m.Symbol]
	if !ok {
		asset = strings.ToUpper(m.Symbol)
	}
	// rejected ticks are dropped, not retried
	_ = h.pipe.Process(ctx, &models.PriceTick{
		Asset:     asset,
		Price:     m.C,
		Timestamp: ts,
		Source:    "kafka",
	})
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
