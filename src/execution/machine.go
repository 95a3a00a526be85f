package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"gextrader/src/broker"
	"gextrader/src/model"
)

// RejectedError carries a terminal broker retcode. The request can never
// succeed as-is, so the attempt loop stops immediately.
type RejectedError struct {
	Retcode int
	Comment string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("order rejected: %s (%d) %s", broker.RetcodeName(e.Retcode), e.Retcode, e.Comment)
}

// ExhaustedError means every fill mode and retry budget was spent without a
// confirmed outcome.
type ExhaustedError struct {
	Attempts int
	LastCode int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("order attempts exhausted after %d tries, last retcode %s",
		e.Attempts, broker.RetcodeName(e.LastCode))
}

// Outcome is the terminal state of one submission.
type Outcome struct {
	Status   string
	Retcode  int
	Ticket   uint64
	Fill     broker.FillMode
	Attempts int
}

// Engine drives a trade request through validation, submission and
// verification against a flaky bridge. Each state transition is logged with
// the client tag so an order can be traced end to end.
type Engine struct {
	api         broker.API
	maxAttempts int
	backoff     time.Duration
	log         *logger.Entry
}

func NewEngine(api broker.API, maxAttempts int, backoff time.Duration) *Engine {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Engine{
		api:         api,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		log:         logger.WithField("component", "execution"),
	}
}

// Submit validates the request against the provided spec and quote, then
// walks the fill mode preference order. Nothing reaches the network when
// validation fails.
//
// Every retry is preceded by a client-tag lookup: an answer lost in transit
// or a timeout may hide a filled order, and a submission already visible at
// the bridge is assumed done rather than resent. Retrying with the same tag
// keeps duplicates impossible to create silently. Before a transient retry
// the quote is re-fetched and a pending price is re-anchored at its original
// distance from the market, so a requote is never answered with the price it
// just refused.
func (e *Engine) Submit(ctx context.Context, req broker.TradeRequest, spec broker.SymbolSpec, quote broker.Quote) (Outcome, error) {
	if err := Validate(req, spec, quote); err != nil {
		return Outcome{Status: model.OperationStatusRejected}, err
	}

	fillOrder := spec.FillModes
	if len(fillOrder) == 0 {
		fillOrder = broker.DefaultFillOrder
	}

	priceOffset := decimal.Zero
	if req.Kind.IsPending() {
		priceOffset = req.Price.Sub(entryAnchor(req, quote))
	}

	log := e.log.WithFields(map[string]interface{}{
		"symbol":     req.Symbol,
		"kind":       req.Kind,
		"side":       req.Side,
		"client_tag": req.ClientTag,
	})

	attempts := 0
	lastCode := 0
	for _, fill := range fillOrder {
		req.Fill = fill
		for try := 0; try < e.maxAttempts; try++ {
			if attempts > 0 {
				select {
				case <-ctx.Done():
					return Outcome{Status: model.OperationStatusFailed, Attempts: attempts}, ctx.Err()
				case <-time.After(e.backoff * time.Duration(try)):
				}
			}
			attempts++

			result, err := e.api.OrderSend(ctx, req)
			if err != nil {
				log.WithError(err).Warn("order send transport failure, verifying before retry")
				if ticket, found, verr := e.findByTag(ctx, req); verr == nil && found {
					log.WithField("ticket", ticket).Info("order reached the broker despite transport failure")
					return Outcome{Status: model.OperationStatusAssumed, Ticket: ticket, Fill: fill, Attempts: attempts}, nil
				}
				continue
			}

			if result == nil {
				log.Warn("order outcome unknown, verifying by client tag")
				ticket, found, verr := e.findByTag(ctx, req)
				if verr != nil {
					log.WithError(verr).Warn("verification failed, retrying submission")
					continue
				}
				if found {
					log.WithField("ticket", ticket).Info("order confirmed at broker after unknown outcome")
					return Outcome{Status: model.OperationStatusAssumed, Ticket: ticket, Fill: fill, Attempts: attempts}, nil
				}
				log.Info("order not found at broker, resubmitting")
				continue
			}

			lastCode = result.Retcode
			switch {
			case result.Done() || result.Retcode == broker.RetcodePlaced:
				log.WithFields(map[string]interface{}{
					"ticket":  result.Ticket,
					"retcode": broker.RetcodeName(result.Retcode),
					"fill":    fill,
				}).Info("order accepted")
				return Outcome{
					Status:   model.OperationStatusDone,
					Retcode:  result.Retcode,
					Ticket:   result.Ticket,
					Fill:     fill,
					Attempts: attempts,
				}, nil

			case broker.NeedsFillFallback(result.Retcode):
				log.WithField("fill", fill).Info("filling mode unsupported, falling back")
				try = e.maxAttempts // break inner loop

			case broker.IsTerminal(result.Retcode):
				log.WithField("retcode", broker.RetcodeName(result.Retcode)).Error("order rejected with terminal retcode")
				return Outcome{
						Status:   model.OperationStatusRejected,
						Retcode:  result.Retcode,
						Attempts: attempts,
					}, &RejectedError{
						Retcode: result.Retcode,
						Comment: result.Comment,
					}

			default:
				log.WithField("retcode", broker.RetcodeName(result.Retcode)).Warn("transient retcode, verifying before retry")
				if ticket, found, verr := e.findByTag(ctx, req); verr == nil && found {
					log.WithField("ticket", ticket).Info("order already at the broker, not resending")
					return Outcome{
						Status:   model.OperationStatusAssumed,
						Retcode:  result.Retcode,
						Ticket:   ticket,
						Fill:     fill,
						Attempts: attempts,
					}, nil
				}
				e.repriceAtMarket(ctx, &req, &quote, priceOffset, log)
			}
		}
	}

	return Outcome{Status: model.OperationStatusFailed, Retcode: lastCode, Attempts: attempts},
		&ExhaustedError{Attempts: attempts, LastCode: lastCode}
}

// entryAnchor is the market price a request hangs off: buys work against the
// bid, sells against the ask, matching the grid's placement.
func entryAnchor(req broker.TradeRequest, quote broker.Quote) decimal.Decimal {
	if req.Kind.IsBuy() || req.Side == "buy" || req.Side == string(model.DecisionBuy) {
		return quote.Bid
	}
	return quote.Ask
}

// repriceAtMarket re-fetches the quote and moves a pending price to keep its
// original distance from the market. A failed quote fetch leaves the request
// untouched; the retry still happens.
func (e *Engine) repriceAtMarket(ctx context.Context, req *broker.TradeRequest, quote *broker.Quote, offset decimal.Decimal, log *logger.Entry) {
	fresh, err := e.api.Quote(ctx, req.Symbol)
	if err != nil || fresh == nil {
		if err != nil {
			log.WithError(err).Warn("quote refresh failed, retrying at last known price")
		}
		return
	}
	*quote = *fresh
	if !req.Kind.IsPending() {
		return
	}
	next := entryAnchor(*req, *quote).Add(offset)
	if !next.Equal(req.Price) {
		log.WithFields(map[string]interface{}{
			"old_price": req.Price.String(),
			"new_price": next.String(),
		}).Info("repricing pending order at the fresh quote")
		req.Price = next
	}
}

// findByTag searches open positions and pending orders for the request's
// client tag.
func (e *Engine) findByTag(ctx context.Context, req broker.TradeRequest) (uint64, bool, error) {
	positions, err := e.api.Positions(ctx, req.Symbol, req.Magic)
	if err != nil {
		return 0, false, err
	}
	for _, p := range positions {
		if p.ClientTag == req.ClientTag {
			return p.Ticket, true, nil
		}
	}

	orders, err := e.api.Orders(ctx, req.Symbol, req.Magic)
	if err != nil {
		return 0, false, err
	}
	for _, o := range orders {
		if o.ClientTag == req.ClientTag {
			return o.Ticket, true, nil
		}
	}
	return 0, false, nil
}

// ClosePosition flattens one position. A position that is already gone
// counts as success; closing is idempotent by construction.
func (e *Engine) ClosePosition(ctx context.Context, pos broker.BrokerPosition) error {
	log := e.log.WithFields(map[string]interface{}{
		"symbol": pos.Symbol,
		"ticket": pos.Ticket,
	})

	var lastCode int
	for try := 0; try < e.maxAttempts; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.backoff * time.Duration(try)):
			}
		}

		result, err := e.api.PositionClose(ctx, pos.Ticket)
		if err != nil {
			log.WithError(err).Warn("position close transport failure, retrying")
			continue
		}

		if result == nil {
			gone, verr := e.positionGone(ctx, pos)
			if verr != nil {
				log.WithError(verr).Warn("close verification failed, retrying")
				continue
			}
			if gone {
				log.Info("position no longer at broker, treating close as done")
				return nil
			}
			continue
		}

		lastCode = result.Retcode
		if result.Done() || result.Retcode == broker.RetcodePositionClosed {
			log.WithField("retcode", broker.RetcodeName(result.Retcode)).Info("position closed")
			return nil
		}
		if broker.IsTerminal(result.Retcode) {
			return &RejectedError{Retcode: result.Retcode, Comment: result.Comment}
		}
		log.WithField("retcode", broker.RetcodeName(result.Retcode)).Warn("close retcode transient, retrying")
	}

	return &ExhaustedError{Attempts: e.maxAttempts, LastCode: lastCode}
}

func (e *Engine) positionGone(ctx context.Context, pos broker.BrokerPosition) (bool, error) {
	positions, err := e.api.Positions(ctx, pos.Symbol, pos.Magic)
	if err != nil {
		return false, err
	}
	for _, p := range positions {
		if p.Ticket == pos.Ticket {
			return false, nil
		}
	}
	return true, nil
}

// CancelSide removes every pending order on the given side, so a fresh BUY
// plan never coexists with stale SELL orders and vice versa.
func (e *Engine) CancelSide(ctx context.Context, symbol string, magic int64, buySide bool) (int, error) {
	orders, err := e.api.Orders(ctx, symbol, magic)
	if err != nil {
		return 0, fmt.Errorf("list orders: %w", err)
	}

	cancelled := 0
	for _, o := range orders {
		if o.Kind.IsBuy() != buySide {
			continue
		}
		result, err := e.api.OrderCancel(ctx, o.Ticket)
		if err != nil {
			e.log.WithError(err).WithField("ticket", o.Ticket).Warn("cancel failed")
			continue
		}
		if result == nil || result.Done() || result.Retcode == broker.RetcodeCancelled {
			cancelled++
		}
	}
	return cancelled, nil
}
