package risk

import "github.com/shopspring/decimal"

// TrailingConfig parametrizes the per-position trailing stop. Activation and
// BaseDistance are in account currency of open profit.
type TrailingConfig struct {
	Activation   decimal.Decimal
	BaseDistance decimal.Decimal
}

func DefaultTrailingConfig() TrailingConfig {
	return TrailingConfig{
		Activation:   decimal.NewFromFloat(0.5),
		BaseDistance: decimal.NewFromFloat(0.5),
	}
}

// protectionTiers maps a peak profit to the fraction of it that must be kept.
// Ordered highest first; below the lowest tier nothing is locked in.
var protectionTiers = []struct {
	minPeak  decimal.Decimal
	retained decimal.Decimal
}{
	{decimal.NewFromInt(100), decimal.NewFromFloat(0.80)},
	{decimal.NewFromInt(80), decimal.NewFromFloat(0.75)},
	{decimal.NewFromInt(50), decimal.NewFromFloat(0.70)},
}

// ProtectedFloor returns the profit level a peak must not fall below, or zero
// when the peak never reached the lowest protection tier.
func ProtectedFloor(peak decimal.Decimal) decimal.Decimal {
	for _, t := range protectionTiers {
		if peak.GreaterThanOrEqual(t.minPeak) {
			return peak.Mul(t.retained)
		}
	}
	return decimal.Zero
}

// TrailingDistance is how far profit may retrace from its peak before the
// position is closed. Inside a protection tier the distance is the give-back
// the tier allows, so it tightens (as a fraction) the higher the peak got.
// Below the tiers a flat base distance applies.
func (c TrailingConfig) TrailingDistance(peak decimal.Decimal) decimal.Decimal {
	floor := ProtectedFloor(peak)
	if floor.Sign() > 0 {
		return peak.Sub(floor)
	}
	return c.BaseDistance
}

// ShouldClose reports whether a position whose profit peaked at peak and now
// sits at current must be closed by the trailing rule. Nothing triggers until
// the peak reaches the activation threshold.
func (c TrailingConfig) ShouldClose(peak, current decimal.Decimal) bool {
	if peak.LessThan(c.Activation) {
		return false
	}
	return peak.Sub(current).GreaterThanOrEqual(c.TrailingDistance(peak))
}
