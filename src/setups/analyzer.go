package setups

import (
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"gextrader/src/model"
)

// Analyzer scores the fixed catalogue of six setups against one cycle's
// indicators. Every analyzer is a pure function of its inputs: malformed or
// missing indicator fields degrade individual factors to zero, they never
// abort the cycle.
type Analyzer struct {
	cfg Config
	log *logger.Entry
}

func NewAnalyzer(cfg Config, log *logger.Entry) *Analyzer {
	if log == nil {
		log = logger.NewEntry(logger.StandardLogger())
	}
	return &Analyzer{cfg: cfg, log: log}
}

// AnalyzeAll evaluates the six setups. Results are independent: more than one
// setup may be active in the same cycle, precedence is the caller's call.
func (a *Analyzer) AnalyzeAll(ind model.Indicators, vwap model.VWAPBands) []model.SetupResult {
	results := []model.SetupResult{
		a.bullishBreakout(ind, vwap),
		a.bearishBreakout(ind, vwap),
		a.pullbackTop(ind),
		a.pullbackBottom(ind),
		a.consolidatedMarket(ind, vwap),
		a.gammaProtection(ind),
	}

	for _, r := range results {
		if r.Confidence >= AnalysisThreshold {
			a.log.WithFields(map[string]interface{}{
				"setup":      r.SetupType,
				"confidence": r.Confidence,
			}).Info("setup worth watching")
		}
	}
	return results
}

func (a *Analyzer) bullishBreakout(ind model.Indicators, vwap model.VWAPBands) model.SetupResult {
	w := a.cfg.Breakout
	price := ind.CurrentPrice.InexactFloat64()

	gamma := grade(ind.GammaAbove.InexactFloat64(), a.cfg.GammaScale)
	vwapF := 0.0
	if vwap.VWAP.Sign() > 0 && ind.CurrentPrice.GreaterThan(vwap.VWAP) {
		vwapF = 100
	}
	charm := grade(ind.NetCharm.InexactFloat64(), a.cfg.CharmScale)
	delta := grade(ind.NetDelta.InexactFloat64(), a.cfg.DeltaScale)

	conf := clampConfidence(w.Gamma*gamma + w.VWAP*vwapF + w.Charm*charm + w.Delta*delta)

	r := model.SetupResult{
		SetupType:  model.SetupBullishBreakout,
		Confidence: conf,
		RiskLevel:  model.RiskLevelFor(conf),
		Details: fmt.Sprintf("gamma above %.0f, charm %.2f, delta %.2f, price %s vwap",
			ind.GammaAbove.InexactFloat64(), ind.NetCharm.InexactFloat64(),
			ind.NetDelta.InexactFloat64(), aboveBelow(vwapF)),
	}
	if conf >= OperateThreshold {
		r.Active = true
		target := ind.MaxGammaStrike
		if !target.GreaterThan(ind.CurrentPrice) {
			target = pctOffset(ind.CurrentPrice, a.cfg.TargetBandPct)
		}
		stop := pctOffset(ind.CurrentPrice, -a.cfg.StopBandPct)
		r.TargetPrice = &target
		r.StopLoss = &stop
		r.Details = fmt.Sprintf("bullish breakout toward %.2f (price %.2f)", target.InexactFloat64(), price)
	}
	return r
}

func (a *Analyzer) bearishBreakout(ind model.Indicators, vwap model.VWAPBands) model.SetupResult {
	w := a.cfg.Breakout

	gamma := grade(-ind.GammaBelow.InexactFloat64(), a.cfg.GammaScale)
	vwapF := 0.0
	if vwap.VWAP.Sign() > 0 && ind.CurrentPrice.LessThan(vwap.VWAP) {
		vwapF = 100
	}
	charm := grade(-ind.NetCharm.InexactFloat64(), a.cfg.CharmScale)
	delta := grade(-ind.NetDelta.InexactFloat64(), a.cfg.DeltaScale)

	conf := clampConfidence(w.Gamma*gamma + w.VWAP*vwapF + w.Charm*charm + w.Delta*delta)

	r := model.SetupResult{
		SetupType:  model.SetupBearishBreakout,
		Confidence: conf,
		RiskLevel:  model.RiskLevelFor(conf),
		Details: fmt.Sprintf("gamma below %.0f, charm %.2f, delta %.2f",
			ind.GammaBelow.InexactFloat64(), ind.NetCharm.InexactFloat64(), ind.NetDelta.InexactFloat64()),
	}
	if conf >= OperateThreshold {
		r.Active = true
		target := ind.MinGammaStrike
		if !target.LessThan(ind.CurrentPrice) {
			target = pctOffset(ind.CurrentPrice, -a.cfg.TargetBandPct)
		}
		stop := pctOffset(ind.CurrentPrice, a.cfg.StopBandPct)
		r.TargetPrice = &target
		r.StopLoss = &stop
		r.Details = fmt.Sprintf("bearish breakout toward %.2f (price %.2f)",
			target.InexactFloat64(), ind.CurrentPrice.InexactFloat64())
	}
	return r
}

// pullbackTop: price near a heavy max-gamma strike above it while delta shows
// the demand side exhausted and charm no longer supports the move.
func (a *Analyzer) pullbackTop(ind model.Indicators) model.SetupResult {
	w := a.cfg.Pullback

	proximity := 0.0
	if ind.MaxGammaStrike.GreaterThan(ind.CurrentPrice) && ind.CurrentPrice.Sign() > 0 {
		dist := ind.MaxGammaStrike.Sub(ind.CurrentPrice).Div(ind.CurrentPrice).InexactFloat64()
		proximity = bandGrade(dist, a.cfg.ProximityFullPct, a.cfg.ProximityZeroPct)
	}
	exhaust := grade(ind.NetDelta.InexactFloat64(), a.cfg.DeltaExhaustFull)
	fade := inverseGrade(ind.NetCharm.InexactFloat64(), a.cfg.CharmScale)

	conf := clampConfidence(w.Proximity*proximity + w.Delta*exhaust + w.Charm*fade)

	r := model.SetupResult{
		SetupType:  model.SetupPullbackTop,
		Confidence: conf,
		RiskLevel:  model.RiskLevelFor(conf),
		Details: fmt.Sprintf("resistance %.2f, delta %.2f, charm %.2f",
			ind.MaxGammaStrike.InexactFloat64(), ind.NetDelta.InexactFloat64(), ind.NetCharm.InexactFloat64()),
	}
	if conf >= OperateThreshold {
		r.Active = true
		target := pctOffset(ind.CurrentPrice, -a.cfg.TargetBandPct)
		stop := pctOffset(ind.MaxGammaStrike, a.cfg.StopBandPct)
		r.TargetPrice = &target
		r.StopLoss = &stop
		r.Details = fmt.Sprintf("reversal at resistance %.2f, demand exhausted (delta %.2f)",
			ind.MaxGammaStrike.InexactFloat64(), ind.NetDelta.InexactFloat64())
	}
	return r
}

func (a *Analyzer) pullbackBottom(ind model.Indicators) model.SetupResult {
	w := a.cfg.Pullback

	proximity := 0.0
	if ind.MinGammaStrike.Sign() > 0 && ind.MinGammaStrike.LessThan(ind.CurrentPrice) && ind.CurrentPrice.Sign() > 0 {
		dist := ind.CurrentPrice.Sub(ind.MinGammaStrike).Div(ind.CurrentPrice).InexactFloat64()
		proximity = bandGrade(dist, a.cfg.ProximityFullPct, a.cfg.ProximityZeroPct)
	}
	exhaust := grade(-ind.NetDelta.InexactFloat64(), a.cfg.DeltaExhaustFull)
	rise := inverseGrade(-ind.NetCharm.InexactFloat64(), a.cfg.CharmScale)

	conf := clampConfidence(w.Proximity*proximity + w.Delta*exhaust + w.Charm*rise)

	r := model.SetupResult{
		SetupType:  model.SetupPullbackBottom,
		Confidence: conf,
		RiskLevel:  model.RiskLevelFor(conf),
		Details: fmt.Sprintf("support %.2f, delta %.2f, charm %.2f",
			ind.MinGammaStrike.InexactFloat64(), ind.NetDelta.InexactFloat64(), ind.NetCharm.InexactFloat64()),
	}
	if conf >= OperateThreshold {
		r.Active = true
		target := pctOffset(ind.CurrentPrice, a.cfg.TargetBandPct)
		stop := pctOffset(ind.MinGammaStrike, -a.cfg.StopBandPct)
		r.TargetPrice = &target
		r.StopLoss = &stop
		r.Details = fmt.Sprintf("reversal at support %.2f, supply exhausted (delta %.2f)",
			ind.MinGammaStrike.InexactFloat64(), ind.NetDelta.InexactFloat64())
	}
	return r
}

// consolidatedMarket: price pinned near the reference mean with low net charm
// and the dominant gamma bar close by. Active means "stay flat", not "enter".
func (a *Analyzer) consolidatedMarket(ind model.Indicators, vwap model.VWAPBands) model.SetupResult {
	w := a.cfg.Range

	vwapF := 0.0
	if vwap.VWAP.Sign() > 0 && ind.CurrentPrice.Sign() > 0 {
		dist := ind.CurrentPrice.Sub(vwap.VWAP).Abs().Div(ind.CurrentPrice).InexactFloat64()
		vwapF = bandGrade(dist, a.cfg.VWAPFullPct, a.cfg.VWAPZeroPct)
	}
	lowCharm := inverseGrade(abs(ind.NetCharm.InexactFloat64()), a.cfg.CharmScale)
	pin := 0.0
	if ind.CurrentPrice.Sign() > 0 {
		dist := ind.MaxGammaStrike.Sub(ind.CurrentPrice).Abs().Div(ind.CurrentPrice).InexactFloat64()
		pin = bandGrade(dist, a.cfg.PinFullPct, a.cfg.PinZeroPct)
	}

	conf := clampConfidence(w.VWAP*vwapF + w.Charm*lowCharm + w.Proximity*pin)

	r := model.SetupResult{
		SetupType:  model.SetupConsolidated,
		Confidence: conf,
		RiskLevel:  model.RiskLevelFor(conf),
		Details: fmt.Sprintf("price %.2f vs vwap %.2f, charm %.2f",
			ind.CurrentPrice.InexactFloat64(), vwap.VWAP.InexactFloat64(), ind.NetCharm.InexactFloat64()),
	}
	if conf >= OperateThreshold {
		r.Active = true
		target := vwap.VWAP
		stop := pctOffset(ind.CurrentPrice, -a.cfg.StopBandPct)
		r.TargetPrice = &target
		r.StopLoss = &stop
		r.Details = fmt.Sprintf("consolidated around vwap %.2f, waiting for breakout", vwap.VWAP.InexactFloat64())
	}
	return r
}

// gammaProtection: net gamma flipped negative near price with no positive
// gamma bar above to hedge against. Defensive sell.
func (a *Analyzer) gammaProtection(ind model.Indicators) model.SetupResult {
	w := a.cfg.Protect

	negGamma := grade(-ind.NetGamma.InexactFloat64(), a.cfg.GammaScale)
	noHedge := 0.0
	if ind.GammaAbove.Sign() <= 0 {
		noHedge = 100
	}
	deltaConfirm := grade(-ind.NetDelta.InexactFloat64(), a.cfg.DeltaScale)

	conf := clampConfidence(w.Gamma*negGamma + w.Proximity*noHedge + w.Delta*deltaConfirm)

	r := model.SetupResult{
		SetupType:  model.SetupGammaProtection,
		Confidence: conf,
		RiskLevel:  model.RiskLevelFor(conf),
		Details: fmt.Sprintf("net gamma %.0f, gamma above %.0f",
			ind.NetGamma.InexactFloat64(), ind.GammaAbove.InexactFloat64()),
	}
	if conf >= OperateThreshold {
		r.Active = true
		target := pctOffset(ind.CurrentPrice, -a.cfg.TargetBandPct)
		stop := pctOffset(ind.CurrentPrice, a.cfg.StopBandPct)
		r.TargetPrice = &target
		r.StopLoss = &stop
		r.Details = fmt.Sprintf("negative gamma %.0f with no hedging bar above, defensive sell",
			ind.NetGamma.InexactFloat64())
	}
	return r
}

// ----- grading helpers -----

// grade maps value linearly onto [0,100]: 0 at <= 0, 100 at >= full.
func grade(value, full float64) float64 {
	if full <= 0 || value <= 0 {
		return 0
	}
	if value >= full {
		return 100
	}
	return value / full * 100
}

// inverseGrade is 100 at value <= 0 and decays linearly to 0 at >= full.
func inverseGrade(value, full float64) float64 {
	return 100 - grade(value, full)
}

// bandGrade scores a distance: 100 within fullAt, 0 beyond zeroAt.
func bandGrade(dist, fullAt, zeroAt float64) float64 {
	if dist < 0 || zeroAt <= fullAt {
		return 0
	}
	if dist <= fullAt {
		return 100
	}
	if dist >= zeroAt {
		return 0
	}
	return (zeroAt - dist) / (zeroAt - fullAt) * 100
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func aboveBelow(vwapF float64) string {
	if vwapF > 0 {
		return "above"
	}
	return "at/below"
}

func pctOffset(p decimal.Decimal, pct float64) decimal.Decimal {
	return p.Add(p.Mul(decimal.NewFromFloat(pct)))
}
