package indicators

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"gextrader/src/model"
)

// ErrNoExposure reports an empty or all-zero exposure table.
var ErrNoExposure = errors.New("no usable exposure rows")

// MalformedRowError reports a row the aggregator refuses to use.
type MalformedRowError struct {
	Index  int
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("exposure row %d malformed: %s", e.Index, e.Reason)
}

var onePct = decimal.RequireFromString("0.01")

// Compute reduces the per-strike exposure table into scalar indicators
// relative to currentPrice. It returns a typed error on missing or malformed
// input; callers that need the fail-soft contract use ComputeSafe.
func Compute(rows []model.ExposureRow, currentPrice decimal.Decimal) (model.Indicators, error) {
	if len(rows) == 0 {
		return model.Indicators{}, ErrNoExposure
	}
	if currentPrice.Sign() <= 0 {
		return model.Indicators{}, &MalformedRowError{Index: -1, Reason: "non-positive current price"}
	}

	ind := model.Indicators{CurrentPrice: currentPrice}

	allZero := true
	maxIdx, minIdx := -1, -1

	for i := range rows {
		row := rows[i]
		if row.Strike.Sign() <= 0 {
			return model.Indicators{}, &MalformedRowError{Index: i, Reason: "non-positive strike"}
		}

		if row.GammaExposure.Sign() != 0 || row.DeltaExposure.Sign() != 0 ||
			row.VannaExposure.Sign() != 0 || row.CharmExposure.Sign() != 0 {
			allZero = false
		}

		switch row.Strike.Cmp(currentPrice) {
		case 1:
			ind.GammaAbove = ind.GammaAbove.Add(row.GammaExposure)
			ind.DeltaAbove = ind.DeltaAbove.Add(row.DeltaExposure)
			ind.VannaAbove = ind.VannaAbove.Add(row.VannaExposure)
			ind.CharmAbove = ind.CharmAbove.Add(row.CharmExposure)
		case -1:
			ind.GammaBelow = ind.GammaBelow.Add(row.GammaExposure)
			ind.DeltaBelow = ind.DeltaBelow.Add(row.DeltaExposure)
			ind.VannaBelow = ind.VannaBelow.Add(row.VannaExposure)
			ind.CharmBelow = ind.CharmBelow.Add(row.CharmExposure)
		}

		if maxIdx < 0 || gammaBeats(row, rows[maxIdx], currentPrice, true) {
			maxIdx = i
		}
		if minIdx < 0 || gammaBeats(row, rows[minIdx], currentPrice, false) {
			minIdx = i
		}
	}

	if allZero {
		return model.Indicators{}, ErrNoExposure
	}

	ind.NetGamma = ind.GammaAbove.Add(ind.GammaBelow)
	ind.NetDelta = ind.DeltaAbove.Add(ind.DeltaBelow)
	ind.NetVanna = ind.VannaAbove.Add(ind.VannaBelow)
	ind.NetCharm = ind.CharmAbove.Add(ind.CharmBelow)
	ind.MaxGammaStrike = rows[maxIdx].Strike
	ind.MinGammaStrike = rows[minIdx].Strike
	ind.Direction = direction(ind)

	return ind, nil
}

// ComputeSafe is the single collapse point for aggregation failures: any
// missing/malformed input degrades to an all-zero record whose extrema are
// a conservative currentPrice ± 1% placeholder, never a signal.
func ComputeSafe(rows []model.ExposureRow, currentPrice decimal.Decimal) model.Indicators {
	ind, err := Compute(rows, currentPrice)
	if err == nil {
		return ind
	}

	return model.Indicators{
		CurrentPrice:   currentPrice,
		Direction:      model.DirectionNeutral,
		MaxGammaStrike: currentPrice.Add(currentPrice.Mul(onePct)),
		MinGammaStrike: currentPrice.Sub(currentPrice.Mul(onePct)),
	}
}

// gammaBeats reports whether candidate should replace incumbent as the
// max (or min) gamma-exposure strike. Exposure ties resolve to the strike
// nearest the current price.
func gammaBeats(candidate, incumbent model.ExposureRow, price decimal.Decimal, max bool) bool {
	cmp := candidate.GammaExposure.Cmp(incumbent.GammaExposure)
	if cmp == 0 {
		candDist := candidate.Strike.Sub(price).Abs()
		incDist := incumbent.Strike.Sub(price).Abs()
		return candDist.LessThan(incDist)
	}
	if max {
		return cmp > 0
	}
	return cmp < 0
}

func direction(ind model.Indicators) model.MarketDirection {
	switch {
	case ind.NetDelta.Sign() > 0 && ind.NetCharm.Sign() >= 0:
		return model.DirectionBullish
	case ind.NetDelta.Sign() < 0 && ind.NetCharm.Sign() <= 0:
		return model.DirectionBearish
	default:
		return model.DirectionNeutral
	}
}
