package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"WindowEdge/internal/domain/models"
	drepo "WindowEdge/internal/domain/repository"
	"WindowEdge/pkg/logger"
	"WindowEdge/pkg/util"
)

// Client implements a MarketStream over a trade-print WebSocket feed
// (Finnhub-compatible frames: {"type":"trade","data":[{"s","p","t"}]}).
type Client struct {
	url            string
	token          string
	symbols        map[string]string // stream symbol -> asset
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	ready     chan struct{}
}

// New creates a stream for assets. symbols maps asset -> stream symbol; an
// asset without an entry is subscribed under its own name.
func New(wsURL, token string, assets []string, symbols map[string]string, reconnectDelay, pingInterval time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	rev := make(map[string]string, len(assets))
	for _, a := range assets {
		a = strings.ToUpper(a)
		sym, ok := symbols[a]
		if !ok {
			sym = a
		}
		rev[sym] = a
	}
	return &Client{
		url:            wsURL,
		token:          token,
		symbols:        rev,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log.With(logger.String("component", "price_stream")),
		ready:          make(chan struct{}, 1),
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := c.url
	if c.token != "" {
		u += "?token=" + url.QueryEscape(c.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(3 * c.pingInterval))
	})
	_ = conn.SetReadDeadline(time.Now().Add(3 * c.pingInterval))

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	select {
	case c.ready <- struct{}{}:
	default:
	}
	c.log.Info("connected", logger.String("url", c.url))
	return nil
}

// Subscribe subscribes to configured symbols.
func (c *Client) Subscribe(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return fmt.Errorf("stream not connected")
	}
	for sym := range c.symbols {
		if err := c.conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": sym}); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	c.log.Info("subscribed", logger.Int("symbols", len(c.symbols)))
	return nil
}

type tradePrint struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	T int64   `json:"t"` // ms
}

type frame struct {
	Type string       `json:"type"`
	Data []tradePrint `json:"data"`
}

// Read streams ticks and errors. The channels outlive reconnects: after a read
// error the loop waits for the next successful Connect.
func (c *Client) Read(ctx context.Context) (<-chan *models.PriceTick, <-chan error) {
	ticks := make(chan *models.PriceTick, 1024)
	errs := make(chan error, 1)

	go c.pingLoop(ctx)
	go func() {
		defer close(ticks)
		defer close(errs)
		for {
			conn := c.current()
			if conn == nil {
				select {
				case <-ctx.Done():
					return
				case <-c.ready:
					continue
				}
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.markDown(conn)
				select {
				case errs <- fmt.Errorf("stream read: %w", err):
				default:
				}
				continue
			}
			for _, t := range c.decode(b) {
				select {
				case ticks <- t:
				default:
					// drop on backpressure; the cache only needs the latest
				}
			}
		}
	}()
	return ticks, errs
}

func (c *Client) decode(b []byte) []*models.PriceTick {
	var m frame
	if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
		return nil
	}
	out := make([]*models.PriceTick, 0, len(m.Data))
	for _, d := range m.Data {
		asset, ok := c.symbols[d.S]
		if !ok {
			continue
		}
		out = append(out, &models.PriceTick{
			Asset:     asset,
			Price:     d.P,
			Timestamp: util.MillisToTime(d.T),
			Source:    "ws",
		})
	}
	return out
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	return c.conn
}

func (c *Client) markDown(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.connected = false
	}
}

// Reconnect closes and reconnects after the configured delay.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.reconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

var _ drepo.MarketStream = (*Client)(nil)
