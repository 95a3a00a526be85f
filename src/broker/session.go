package broker

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
)

// ErrSessionClosed is returned by every call once the session goroutine has
// stopped.
var ErrSessionClosed = errors.New("broker session closed")

// API is the surface the execution and lifecycle layers program against.
// Session implements it over a single Client; tests implement it directly.
type API interface {
	Quote(ctx context.Context, symbol string) (*Quote, error)
	SymbolSpec(ctx context.Context, symbol string) (*SymbolSpec, error)
	OrderSend(ctx context.Context, req TradeRequest) (*TradeResult, error)
	OrderCancel(ctx context.Context, ticket uint64) (*TradeResult, error)
	PositionClose(ctx context.Context, ticket uint64) (*TradeResult, error)
	PositionModify(ctx context.Context, ticket uint64, stopLoss, takeProfit string) (*TradeResult, error)
	Positions(ctx context.Context, symbol string, magic int64) ([]BrokerPosition, error)
	Orders(ctx context.Context, symbol string, magic int64) ([]PendingOrder, error)
	Reset(ctx context.Context) error
}

type sessionCall struct {
	fn    func(ctx context.Context) (interface{}, error)
	reply chan sessionReply
}

type sessionReply struct {
	value interface{}
	err   error
}

// Session owns the terminal connection. All calls funnel through one
// goroutine, so the bridge never sees interleaved requests and no caller
// needs a lock. Per-call timeouts bound how long a stuck terminal can stall
// the pipeline.
type Session struct {
	client      *Client
	calls       chan sessionCall
	done        chan struct{}
	callTimeout time.Duration
	log         *logger.Entry
}

func NewSession(client *Client, callTimeout time.Duration) *Session {
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	s := &Session{
		client:      client,
		calls:       make(chan sessionCall),
		done:        make(chan struct{}),
		callTimeout: callTimeout,
		log:         logger.WithField("component", "broker_session"),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case call := <-s.calls:
			ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
			value, err := call.fn(ctx)
			cancel()
			call.reply <- sessionReply{value: value, err: err}
		}
	}
}

func (s *Session) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *Session) do(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	call := sessionCall{fn: fn, reply: make(chan sessionReply, 1)}
	select {
	case s.calls <- call:
	case <-s.done:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-call.reply:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) Quote(ctx context.Context, symbol string) (*Quote, error) {
	v, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.client.Quote(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Quote), nil
}

func (s *Session) SymbolSpec(ctx context.Context, symbol string) (*SymbolSpec, error) {
	v, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.client.SymbolSpec(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	return v.(*SymbolSpec), nil
}

func (s *Session) OrderSend(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	v, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.client.OrderSend(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return asTradeResult(v), nil
}

func (s *Session) OrderCancel(ctx context.Context, ticket uint64) (*TradeResult, error) {
	v, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.client.OrderCancel(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}
	return asTradeResult(v), nil
}

func (s *Session) PositionClose(ctx context.Context, ticket uint64) (*TradeResult, error) {
	v, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.client.PositionClose(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}
	return asTradeResult(v), nil
}

func (s *Session) PositionModify(ctx context.Context, ticket uint64, stopLoss, takeProfit string) (*TradeResult, error) {
	v, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.client.PositionModify(ctx, ticket, stopLoss, takeProfit)
	})
	if err != nil {
		return nil, err
	}
	return asTradeResult(v), nil
}

func (s *Session) Positions(ctx context.Context, symbol string, magic int64) ([]BrokerPosition, error) {
	v, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.client.Positions(ctx, symbol, magic)
	})
	if err != nil {
		return nil, err
	}
	return v.([]BrokerPosition), nil
}

func (s *Session) Orders(ctx context.Context, symbol string, magic int64) ([]PendingOrder, error) {
	v, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.client.Orders(ctx, symbol, magic)
	})
	if err != nil {
		return nil, err
	}
	return v.([]PendingOrder), nil
}

// Reset pings the bridge through the session goroutine, forcing it to
// re-establish the terminal link. Used after repeated close failures.
func (s *Session) Reset(ctx context.Context) error {
	s.log.Warn("resetting broker session")
	_, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, s.client.Ping(ctx)
	})
	return err
}

// asTradeResult unwraps the interface without turning a typed-nil pointer
// into a panic. nil stays nil for the indeterminate case.
func asTradeResult(v interface{}) *TradeResult {
	if v == nil {
		return nil
	}
	r, _ := v.(*TradeResult)
	return r
}
