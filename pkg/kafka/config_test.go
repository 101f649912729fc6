package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerOptionsKeepDefaultsOnZeroValues(t *testing.T) {
	cfg := defaultProducerConfig()
	for _, opt := range []ProducerOption{
		WithBrokers([]string{"localhost:9092"}),
		WithCompression(""),
		WithMaxAttempts(0),
		WithBatchSize(0),
		WithBatchBytes(0),
		WithBatchTimeout(0),
		WithTimeouts(0, 2*time.Second),
		WithHashByKey(true),
	} {
		opt(cfg)
	}

	require.NoError(t, cfg.validate())
	assert.Equal(t, "gzip", cfg.Compression)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 1<<20, cfg.BatchBytes)
	assert.Equal(t, 200*time.Millisecond, cfg.BatchTimeout)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.True(t, cfg.HashByKey)
}

func TestNewProducerRejectsBadConfig(t *testing.T) {
	_, err := NewProducer()
	assert.ErrorContains(t, err, "brokers are required")

	_, err = NewProducer(WithBrokers([]string{"localhost:9092"}), WithRequiredAcks(2))
	assert.ErrorContains(t, err, "required acks")

	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithCompression("zstd"))
	require.NoError(t, err)
	assert.Equal(t, "zstd", p.comp)
	assert.NoError(t, p.Close())
}
