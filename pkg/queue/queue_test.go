package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Asset string  `json:"asset"`
	Size  float64 `json:"size"`
}

func TestMessageRoundTripThroughParsePayload(t *testing.T) {
	b, err := json.Marshal(NewMessage("decision", sample{Asset: "BTC", Size: 25}))
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(b, &msg))
	assert.Equal(t, "decision", msg.Type)
	assert.NotEmpty(t, msg.ID)

	got, err := ParsePayload[sample](msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, sample{Asset: "BTC", Size: 25}, *got)
}

func TestParsePayloadRejectsUnknownTypes(t *testing.T) {
	_, err := ParsePayload[sample](42)
	assert.Error(t, err)

	got, err := ParsePayload[sample](json.RawMessage(`{"asset":"ETH","size":5}`))
	require.NoError(t, err)
	assert.Equal(t, "ETH", got.Asset)
}

func TestQueueKeyAndOptions(t *testing.T) {
	q := NewRedisPublisher(nil, nil, WithKeyPrefix("we:journal"), WithMaxLen(50))
	assert.Equal(t, "we:journal:messages", q.QueueKey())
	assert.EqualValues(t, 50, q.maxLen)
}
