package execution

import (
	"fmt"

	"github.com/shopspring/decimal"

	"gextrader/src/broker"
)

// ValidationError is returned before anything touches the network. The field
// name keeps rejection logs actionable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks a trade request against the symbol contract and the current
// quote. Pending order prices must sit strictly on the correct side of the
// market and respect the broker's minimum stop distance.
func Validate(req broker.TradeRequest, spec broker.SymbolSpec, quote broker.Quote) error {
	if req.Symbol == "" {
		return invalid("symbol", "empty")
	}
	if req.Volume.LessThanOrEqual(decimal.Zero) {
		return invalid("volume", "must be positive, got %s", req.Volume)
	}
	if spec.MinVolume.Sign() > 0 && req.Volume.LessThan(spec.MinVolume) {
		return invalid("volume", "%s below minimum %s", req.Volume, spec.MinVolume)
	}
	if spec.MaxVolume.Sign() > 0 && req.Volume.GreaterThan(spec.MaxVolume) {
		return invalid("volume", "%s above maximum %s", req.Volume, spec.MaxVolume)
	}

	if req.Kind.IsPending() {
		if req.Price.Sign() <= 0 {
			return invalid("price", "required for %s", req.Kind)
		}
		if err := validatePendingPrice(req, spec, quote); err != nil {
			return err
		}
	}

	if err := validateStops(req, quote); err != nil {
		return err
	}
	return nil
}

func validatePendingPrice(req broker.TradeRequest, spec broker.SymbolSpec, quote broker.Quote) error {
	minDistance := spec.StopDistance.Mul(spec.Point)

	switch req.Kind {
	case broker.OrderBuyLimit:
		if !req.Price.LessThan(quote.Bid) {
			return invalid("price", "buy limit %s must be below bid %s", req.Price, quote.Bid)
		}
		if quote.Bid.Sub(req.Price).LessThan(minDistance) {
			return invalid("price", "buy limit too close to market, need %s distance", minDistance)
		}
	case broker.OrderBuyStop:
		if !req.Price.GreaterThan(quote.Ask) {
			return invalid("price", "buy stop %s must be above ask %s", req.Price, quote.Ask)
		}
		if req.Price.Sub(quote.Ask).LessThan(minDistance) {
			return invalid("price", "buy stop too close to market, need %s distance", minDistance)
		}
	case broker.OrderSellLimit:
		if !req.Price.GreaterThan(quote.Ask) {
			return invalid("price", "sell limit %s must be above ask %s", req.Price, quote.Ask)
		}
		if req.Price.Sub(quote.Ask).LessThan(minDistance) {
			return invalid("price", "sell limit too close to market, need %s distance", minDistance)
		}
	case broker.OrderSellStop:
		if !req.Price.LessThan(quote.Bid) {
			return invalid("price", "sell stop %s must be below bid %s", req.Price, quote.Bid)
		}
		if quote.Bid.Sub(req.Price).LessThan(minDistance) {
			return invalid("price", "sell stop too close to market, need %s distance", minDistance)
		}
	default:
		return invalid("kind", "unknown order kind %q", req.Kind)
	}
	return nil
}

func validateStops(req broker.TradeRequest, quote broker.Quote) error {
	// Reference price: pending orders anchor on their own price, market
	// orders on the side they hit.
	ref := req.Price
	isBuy := req.Kind == broker.OrderMarket && req.Side == "buy" || req.Kind.IsBuy()
	if req.Kind == broker.OrderMarket {
		if req.Side == "buy" {
			ref = quote.Ask
		} else {
			ref = quote.Bid
		}
	}

	if req.StopLoss.Sign() > 0 {
		if isBuy && !req.StopLoss.LessThan(ref) {
			return invalid("stop_loss", "%s must be below entry %s for a buy", req.StopLoss, ref)
		}
		if !isBuy && !req.StopLoss.GreaterThan(ref) {
			return invalid("stop_loss", "%s must be above entry %s for a sell", req.StopLoss, ref)
		}
	}
	if req.TakeProfit.Sign() > 0 {
		if isBuy && !req.TakeProfit.GreaterThan(ref) {
			return invalid("take_profit", "%s must be above entry %s for a buy", req.TakeProfit, ref)
		}
		if !isBuy && !req.TakeProfit.LessThan(ref) {
			return invalid("take_profit", "%s must be below entry %s for a sell", req.TakeProfit, ref)
		}
	}
	return nil
}
