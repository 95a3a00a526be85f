package execution

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gextrader/src/broker"
	"gextrader/src/model"
)

// GridPlan describes a ladder of resting limit orders behind a direction:
// buys below the market, sells above it.
type GridPlan struct {
	Symbol     string
	Side       model.Decision
	Levels     int
	OffsetPct  decimal.Decimal
	SpacingPct decimal.Decimal
	Volume     decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	Magic      int64
	Comment    string
}

// GridResult pairs each placed level with its outcome.
type GridResult struct {
	Request broker.TradeRequest
	Outcome Outcome
	Err     error
}

// PlaceGrid splits the plan's volume across the levels and submits one limit
// order per level. A failing level does not stop the rest of the ladder; the
// caller inspects the per-level results.
func (e *Engine) PlaceGrid(ctx context.Context, plan GridPlan, spec broker.SymbolSpec, quote broker.Quote) []GridResult {
	if plan.Levels <= 0 {
		return nil
	}

	levelVolume := plan.Volume.Div(decimal.NewFromInt(int64(plan.Levels)))
	if spec.MinVolume.Sign() > 0 && levelVolume.LessThan(spec.MinVolume) {
		levelVolume = spec.MinVolume
	}

	kind := broker.OrderBuyLimit
	side := "buy"
	anchor := quote.Bid
	sign := decimal.NewFromInt(-1)
	if plan.Side == model.DecisionSell {
		kind = broker.OrderSellLimit
		side = "sell"
		anchor = quote.Ask
		sign = decimal.NewFromInt(1)
	}

	results := make([]GridResult, 0, plan.Levels)
	for i := 0; i < plan.Levels; i++ {
		offset := plan.OffsetPct.Add(plan.SpacingPct.Mul(decimal.NewFromInt(int64(i))))
		price := anchor.Add(anchor.Mul(offset).Mul(sign))

		req := broker.TradeRequest{
			Symbol:     plan.Symbol,
			Kind:       kind,
			Side:       side,
			Volume:     levelVolume,
			Price:      price,
			StopLoss:   plan.StopLoss,
			TakeProfit: plan.TakeProfit,
			Magic:      plan.Magic,
			ClientTag:  uuid.NewString(),
			Comment:    plan.Comment,
		}

		outcome, err := e.Submit(ctx, req, spec, quote)
		results = append(results, GridResult{Request: req, Outcome: outcome, Err: err})

		if ctx.Err() != nil {
			break
		}
	}
	return results
}
