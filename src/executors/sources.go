package executors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gextrader/src/consensus"
	"gextrader/src/indicators"
	"gextrader/src/model"
	"gextrader/src/setups"
)

// cycleState holds one loop iteration's derived view of a symbol. The
// strategy sources all read from it so every voter sees the same data.
type cycleState struct {
	mu      sync.RWMutex
	ind     model.Indicators
	vwap    model.VWAPBands
	results []model.SetupResult
}

func (c *cycleState) set(snap *model.ExposureSnapshot, analyzer *setups.Analyzer) {
	ind := indicators.ComputeSafe(snap.Rows(), snap.Price)
	results := analyzer.AnalyzeAll(ind, snap.VWAP)

	c.mu.Lock()
	c.ind = ind
	c.vwap = snap.VWAP
	c.results = results
	c.mu.Unlock()
}

func (c *cycleState) view() (model.Indicators, model.VWAPBands, []model.SetupResult) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ind, c.vwap, c.results
}

// buildSources wires the three strategy voters for one symbol. Each one reads
// the shared cycle state through a different lens so the consensus layer gets
// genuinely independent views rather than one signal counted three times.
func buildSources(state *cycleState) []consensus.Source {
	return []consensus.Source{
		consensus.SourceFunc{
			Name: "setup-engine",
			Fn: func(_ context.Context, _ string) (model.Opinion, error) {
				_, _, results := state.view()
				return setups.StrongestOpinion(results), nil
			},
		},
		consensus.SourceFunc{
			Name: "exposure-direction",
			Fn: func(_ context.Context, _ string) (model.Opinion, error) {
				ind, _, _ := state.view()
				return directionOpinion(ind), nil
			},
		},
		consensus.SourceFunc{
			Name: "vwap-bias",
			Fn: func(_ context.Context, _ string) (model.Opinion, error) {
				ind, vwap, _ := state.view()
				return vwapBiasOpinion(ind, vwap), nil
			},
		},
	}
}

// directionOpinion votes with the net dealer positioning. Confidence scales
// with how lopsided delta is between the two sides of the price.
func directionOpinion(ind model.Indicators) model.Opinion {
	op := model.Opinion{
		SourceID:  "exposure-direction",
		Timestamp: time.Now(),
	}

	switch ind.Direction {
	case model.DirectionBullish:
		op.Decision = model.DecisionBuy
	case model.DirectionBearish:
		op.Decision = model.DecisionSell
	default:
		op.Decision = model.DecisionHold
		op.Confidence = 40
		op.Reasoning = "no dominant exposure direction"
		return op
	}

	above := ind.DeltaAbove.Abs()
	below := ind.DeltaBelow.Abs()
	total := above.Add(below)
	if total.IsZero() {
		op.Confidence = 50
	} else {
		skew, _ := above.Sub(below).Abs().Div(total).Float64()
		op.Confidence = 50 + 50*skew
	}
	op.Reasoning = fmt.Sprintf("direction %s, net delta %s", ind.Direction, ind.NetDelta.StringFixed(2))
	return op
}

// vwapBiasOpinion votes on where price sits inside the VWAP bands: above the
// first upper band leans long, below the first lower band leans short, and
// inside the bands it abstains.
func vwapBiasOpinion(ind model.Indicators, vwap model.VWAPBands) model.Opinion {
	op := model.Opinion{
		SourceID:  "vwap-bias",
		Timestamp: time.Now(),
	}

	price := ind.CurrentPrice
	if vwap.VWAP.IsZero() || price.IsZero() {
		op.Decision = model.DecisionHold
		op.Confidence = 30
		op.Reasoning = "vwap unavailable"
		return op
	}

	switch {
	case price.GreaterThan(vwap.Std1Upper):
		op.Decision = model.DecisionBuy
		op.Confidence = bandConfidence(price, vwap.Std1Upper, vwap.Std2Upper)
		op.Reasoning = fmt.Sprintf("price %s above first upper band %s", price, vwap.Std1Upper)
	case price.LessThan(vwap.Std1Lower):
		op.Decision = model.DecisionSell
		op.Confidence = bandConfidence(price, vwap.Std1Lower, vwap.Std2Lower)
		op.Reasoning = fmt.Sprintf("price %s below first lower band %s", price, vwap.Std1Lower)
	default:
		op.Decision = model.DecisionHold
		op.Confidence = 55
		op.Reasoning = "price inside first deviation bands"
	}
	return op
}

// bandConfidence maps how far price has pushed from the first band toward the
// second onto 60..90.
func bandConfidence(price, band1, band2 decimal.Decimal) float64 {
	span := band2.Sub(band1).Abs()
	if span.IsZero() {
		return 60
	}
	frac, _ := price.Sub(band1).Abs().Div(span).Float64()
	if frac > 1 {
		frac = 1
	}
	return 60 + 30*frac
}
