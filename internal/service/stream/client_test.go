package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMapsSymbols(t *testing.T) {
	c := New("ws://unused", "", []string{"btc", "ETH"}, map[string]string{"BTC": "BINANCE:BTCUSDT"}, time.Second, time.Second, nil)

	ticks := c.decode([]byte(`{"type":"trade","data":[
		{"s":"BINANCE:BTCUSDT","p":100123.5,"t":1735732800000},
		{"s":"ETH","p":3500,"t":1735732801000},
		{"s":"DOGE","p":0.1,"t":1735732801000}
	]}`))
	require.Len(t, ticks, 2)
	assert.Equal(t, "BTC", ticks[0].Asset)
	assert.Equal(t, 100123.5, ticks[0].Price)
	assert.Equal(t, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), ticks[0].Timestamp.UTC())
	assert.Equal(t, "ETH", ticks[1].Asset)
}

func TestDecodeIgnoresNonTradeFrames(t *testing.T) {
	c := New("ws://unused", "", []string{"BTC"}, nil, time.Second, time.Second, nil)
	assert.Empty(t, c.decode([]byte(`{"type":"ping"}`)))
	assert.Empty(t, c.decode([]byte(`not json`)))
}

func TestClientSubscribesAndStreams(t *testing.T) {
	subs := make(chan string, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var msg map[string]string
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		subs <- msg["symbol"]
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"trade","data":[{"s":"BTC","p":99000,"t":1735732800000}]}`))
		// keep the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(wsURL, "secret", []string{"BTC"}, nil, 10*time.Millisecond, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe(ctx))
	assert.True(t, c.IsConnected())
	assert.Equal(t, "BTC", <-subs)

	ticks, _ := c.Read(ctx)
	select {
	case tk := <-ticks:
		assert.Equal(t, "BTC", tk.Asset)
		assert.Equal(t, 99000.0, tk.Price)
		assert.Equal(t, "ws", tk.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("no tick received")
	}

	cancel()
	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}

func TestSubscribeRequiresConnection(t *testing.T) {
	c := New("ws://unused", "", []string{"BTC"}, nil, time.Second, time.Second, nil)
	assert.Error(t, c.Subscribe(context.Background()))
}
