package model

import "github.com/shopspring/decimal"

// SetupType identifies one of the six trade theses the engine scores.
type SetupType string

const (
	SetupBullishBreakout SetupType = "bullish_breakout"
	SetupBearishBreakout SetupType = "bearish_breakout"
	SetupPullbackTop     SetupType = "pullback_top"
	SetupPullbackBottom  SetupType = "pullback_bottom"
	SetupConsolidated    SetupType = "consolidated_market"
	SetupGammaProtection SetupType = "gamma_negative_protection"
)

// RiskLevel grades a setup's risk tier from its confidence.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// SetupResult is one setup's verdict for the cycle. TargetPrice and StopLoss
// are set only when Active is true.
type SetupResult struct {
	SetupType   SetupType
	Active      bool
	Confidence  float64 // 0..100
	Details     string
	TargetPrice *decimal.Decimal
	StopLoss    *decimal.Decimal
	RiskLevel   RiskLevel
}

// RiskLevelFor maps a confidence score to its tier.
func RiskLevelFor(confidence float64) RiskLevel {
	switch {
	case confidence > 70:
		return RiskHigh
	case confidence > 40:
		return RiskMedium
	default:
		return RiskLow
	}
}
