package model

import "github.com/shopspring/decimal"

// MarketDirection is the dominant direction implied by the exposure table.
type MarketDirection string

const (
	DirectionBullish MarketDirection = "bullish"
	DirectionBearish MarketDirection = "bearish"
	DirectionNeutral MarketDirection = "neutral"
)

// Indicators is the flat set of scalars the setup engine consumes. It is
// built fresh each cycle from one ExposureSnapshot and never mutated.
type Indicators struct {
	CurrentPrice decimal.Decimal

	// Per-greek sums partitioned by strike relative to CurrentPrice.
	GammaAbove decimal.Decimal
	GammaBelow decimal.Decimal
	DeltaAbove decimal.Decimal
	DeltaBelow decimal.Decimal
	VannaAbove decimal.Decimal
	VannaBelow decimal.Decimal
	CharmAbove decimal.Decimal
	CharmBelow decimal.Decimal

	NetGamma decimal.Decimal
	NetDelta decimal.Decimal
	NetVanna decimal.Decimal
	NetCharm decimal.Decimal

	Direction MarketDirection

	// Strike carrying the largest (resp. smallest) gamma exposure.
	// Ties resolve to the strike nearest the current price.
	MaxGammaStrike decimal.Decimal
	MinGammaStrike decimal.Decimal
}
