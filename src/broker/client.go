package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 4 * time.Second
)

// APIResponse is the bridge's generic envelope.
type APIResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	if code >= 500 && code <= 599 {
		return true
	}
	return code == 429
}

// Client talks to the MT5 bridge over REST. It is not safe for concurrent
// order submission; the Session actor serializes access.
type Client struct {
	baseURL string
	http    *resty.Client
	log     *logger.Entry
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		log:     logger.WithField("component", "broker"),
	}
}

// WithAuthToken sets the bearer token sent on every bridge request.
func (c *Client) WithAuthToken(token string) *Client {
	if token != "" {
		c.http.SetAuthToken(token)
	}
	return c
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return c.decode(resp, path, out)
}

func (c *Client) decode(resp *resty.Response, path string, out interface{}) error {
	if resp.StatusCode()/100 != 2 {
		return fmt.Errorf("%s non-2xx status %d: %s", path, resp.StatusCode(), resp.String())
	}
	var env APIResponse
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("%s decode envelope: %w", path, err)
	}
	if env.Code != 0 {
		return fmt.Errorf("%s bridge error %d: %s", path, env.Code, env.Msg)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s decode data: %w", path, err)
	}
	return nil
}

func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	var q Quote
	if err := c.get(ctx, "/api/v1/quote", map[string]string{"symbol": symbol}, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *Client) SymbolSpec(ctx context.Context, symbol string) (*SymbolSpec, error) {
	var s SymbolSpec
	if err := c.get(ctx, "/api/v1/symbol", map[string]string{"symbol": symbol}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// OrderSend submits a trade request. An HTTP 204 means the bridge forwarded
// the request but lost the terminal's answer: the caller gets (nil, nil) and
// must re-verify through Positions or Orders by client tag.
func (c *Client) OrderSend(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post("/api/v1/order/send")
	if err != nil {
		return nil, fmt.Errorf("order send: %w", err)
	}
	if resp.StatusCode() == http.StatusNoContent {
		c.log.WithFields(map[string]interface{}{
			"symbol":     req.Symbol,
			"client_tag": req.ClientTag,
		}).Warn("order send returned no content, outcome unknown")
		return nil, nil
	}

	var result TradeResult
	if err := c.decode(resp, "/api/v1/order/send", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) OrderCancel(ctx context.Context, ticket uint64) (*TradeResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]uint64{"ticket": ticket}).
		Post("/api/v1/order/cancel")
	if err != nil {
		return nil, fmt.Errorf("order cancel: %w", err)
	}
	if resp.StatusCode() == http.StatusNoContent {
		return nil, nil
	}
	var result TradeResult
	if err := c.decode(resp, "/api/v1/order/cancel", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PositionClose flattens a position by ticket. The bridge answers with
// TRADE_RETCODE_POSITION_CLOSED when the ticket is already gone.
func (c *Client) PositionClose(ctx context.Context, ticket uint64) (*TradeResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]uint64{"ticket": ticket}).
		Post("/api/v1/position/close")
	if err != nil {
		return nil, fmt.Errorf("position close: %w", err)
	}
	if resp.StatusCode() == http.StatusNoContent {
		return nil, nil
	}
	var result TradeResult
	if err := c.decode(resp, "/api/v1/position/close", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) PositionModify(ctx context.Context, ticket uint64, stopLoss, takeProfit string) (*TradeResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"ticket":      ticket,
			"stop_loss":   stopLoss,
			"take_profit": takeProfit,
		}).
		Post("/api/v1/position/modify")
	if err != nil {
		return nil, fmt.Errorf("position modify: %w", err)
	}
	var result TradeResult
	if err := c.decode(resp, "/api/v1/position/modify", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Positions lists open positions scoped by symbol and magic number. Magic
// scoping keeps this trader blind to positions opened by anything else on
// the same account.
func (c *Client) Positions(ctx context.Context, symbol string, magic int64) ([]BrokerPosition, error) {
	var positions []BrokerPosition
	err := c.get(ctx, "/api/v1/positions", map[string]string{
		"symbol": symbol,
		"magic":  fmt.Sprintf("%d", magic),
	}, &positions)
	if err != nil {
		return nil, err
	}
	return positions, nil
}

func (c *Client) Orders(ctx context.Context, symbol string, magic int64) ([]PendingOrder, error) {
	var orders []PendingOrder
	err := c.get(ctx, "/api/v1/orders", map[string]string{
		"symbol": symbol,
		"magic":  fmt.Sprintf("%d", magic),
	}, &orders)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "/api/v1/ping", nil, nil)
}
