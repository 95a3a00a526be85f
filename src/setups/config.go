package setups

// Global scoring thresholds. AnalysisThreshold is diagnostic only ("worth
// watching"); OperateThreshold is the single threshold that gates execution.
const (
	AnalysisThreshold = 90.0
	OperateThreshold  = 60.0
)

// Weights for one setup's graded factors. Each setup's weights sum to 1.0.
type Weights struct {
	Gamma     float64
	VWAP      float64
	Charm     float64
	Delta     float64
	Proximity float64
}

// Config holds the scales and bands the six setups score against. The exact
// percentages are tuning, not logic; defaults reproduce the production
// calibration.
type Config struct {
	// Exposure magnitude that maps a factor to full score.
	GammaScale float64
	CharmScale float64
	DeltaScale float64

	// Net delta band treated as exhaustion for the pullback setups.
	DeltaExhaustFull float64

	// Distance-to-level grading (fractions of price).
	ProximityFullPct float64
	ProximityZeroPct float64
	PinFullPct       float64
	PinZeroPct       float64
	VWAPFullPct      float64
	VWAPZeroPct      float64

	// Offsets applied to the triggering strike/price for targets and stops.
	TargetBandPct float64
	StopBandPct   float64

	Breakout Weights
	Pullback Weights
	Range    Weights
	Protect  Weights
}

// DefaultConfig mirrors the production weighting of the six setups.
func DefaultConfig() Config {
	return Config{
		GammaScale: 1000,
		CharmScale: 0.5,
		DeltaScale: 0.5,

		DeltaExhaustFull: 0.6,

		ProximityFullPct: 0.002,
		ProximityZeroPct: 0.02,
		PinFullPct:       0.002,
		PinZeroPct:       0.01,
		VWAPFullPct:      0.001,
		VWAPZeroPct:      0.005,

		TargetBandPct: 0.005,
		StopBandPct:   0.005,

		Breakout: Weights{Gamma: 0.40, VWAP: 0.25, Charm: 0.20, Delta: 0.15},
		Pullback: Weights{Proximity: 0.40, Delta: 0.35, Charm: 0.25},
		Range:    Weights{VWAP: 0.45, Charm: 0.30, Proximity: 0.25},
		Protect:  Weights{Gamma: 0.50, Proximity: 0.30, Delta: 0.20},
	}
}
