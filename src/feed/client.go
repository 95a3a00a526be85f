package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"gextrader/src/model"
)

const (
	defaultHandshakeTimeout = 15 * time.Second
	defaultReadTimeout      = 10 * time.Second
)

type snapshotRequest struct {
	Op     string `json:"op"`
	Symbol string `json:"symbol"`
}

// Client pulls per-strike exposure snapshots over a websocket. One snapshot
// is requested per cycle; a broken connection is dropped and redialed on the
// next request rather than retried inline. The mutex serializes the
// request/reply pairs: the connection has a single reader and writer, and
// every caller gets the reply to its own request even when several symbol
// loops share the client.
type Client struct {
	url         string
	readTimeout time.Duration

	mu   sync.Mutex
	conn *websocket.Conn

	log *logger.Entry
}

func NewClient(url string, readTimeout time.Duration) *Client {
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	return &Client{
		url:         url,
		readTimeout: readTimeout,
		log:         logger.WithField("component", "feed"),
	}
}

func (c *Client) dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout:  defaultHandshakeTimeout,
		EnableCompression: true,
		Proxy:             http.ProxyFromEnvironment,
	}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("feed dial %s: %w", c.url, err)
	}
	c.conn = conn
	c.log.WithField("url", c.url).Info("feed connected")
	return nil
}

func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Snapshot requests one exposure snapshot for a symbol. Any transport error
// invalidates the connection so the next call starts fresh.
func (c *Client) Snapshot(ctx context.Context, symbol string) (*model.ExposureSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.dial(ctx); err != nil {
			return nil, err
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	}
	if err := c.conn.WriteJSON(snapshotRequest{Op: "snapshot", Symbol: symbol}); err != nil {
		c.drop()
		return nil, fmt.Errorf("feed request: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		c.drop()
		return nil, fmt.Errorf("feed read: %w", err)
	}

	var snap model.ExposureSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("feed decode: %w", err)
	}
	if !strings.EqualFold(snap.Symbol, symbol) {
		return nil, fmt.Errorf("feed returned symbol %q, wanted %q", snap.Symbol, symbol)
	}
	snap.FetchedAt = time.Now()
	return &snap, nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drop()
}
