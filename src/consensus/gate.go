package consensus

import (
	"context"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"gextrader/src/model"
	"gextrader/src/risk"
)

const (
	// confidenceBoost rewards agreement between independent sources.
	confidenceBoost = 1.1

	MinConsensusLevel = 0.6
	MinConfidence     = 70.0
	MinOpinions       = 3
)

// decisionOrder fixes the tie-break: with equal vote counts the earlier entry
// wins, so BUY beats SELL beats HOLD.
var decisionOrder = []model.Decision{model.DecisionBuy, model.DecisionSell, model.DecisionHold}

// Gate collects opinions from registered sources, aggregates them into one
// collective decision and decides whether that decision clears the execution
// bar. It owns a reference to the shared daily risk state; callers never
// consult risk limits directly.
type Gate struct {
	sources []Source
	riskSt  *risk.DailyState
	log     *logger.Entry
}

func NewGate(sources []Source, riskState *risk.DailyState, log *logger.Entry) *Gate {
	if log == nil {
		log = logger.NewEntry(logger.StandardLogger())
	}
	return &Gate{sources: sources, riskSt: riskState, log: log}
}

// Collect asks every source for an opinion. A failing source is logged and
// skipped, never fatal: the gate's opinion-count condition handles the case
// where too few sources answered.
func (g *Gate) Collect(ctx context.Context, symbol string) []model.Opinion {
	opinions := make([]model.Opinion, 0, len(g.sources))
	for _, src := range g.sources {
		op, err := src.Opine(ctx, symbol)
		if err != nil {
			g.log.WithError(err).WithField("source", src.ID()).Warn("opinion source failed, skipping")
			continue
		}
		opinions = append(opinions, op)
	}
	return opinions
}

// Aggregate counts votes per decision, picks the winner and scores the
// outcome. Consensus level is the winning bloc's share of all votes;
// confidence is the winning bloc's mean confidence with a boost for
// agreement, capped at 100.
func (g *Gate) Aggregate(opinions []model.Opinion) model.CollectiveDecision {
	now := time.Now()
	if len(opinions) == 0 {
		return model.CollectiveDecision{
			FinalDecision:  model.DecisionHold,
			Confidence:     0,
			ConsensusLevel: 0,
			Opinions:       nil,
			Reasoning:      []string{"no opinions collected"},
			Timestamp:      now,
		}
	}

	votes := map[model.Decision]int{}
	confSum := map[model.Decision]float64{}
	for _, op := range opinions {
		votes[op.Decision]++
		confSum[op.Decision] += op.Confidence
	}

	winner := model.DecisionHold
	best := -1
	for _, d := range decisionOrder {
		if votes[d] > best {
			winner = d
			best = votes[d]
		}
	}

	consensus := float64(votes[winner]) / float64(len(opinions))
	confidence := confSum[winner] / float64(votes[winner]) * confidenceBoost
	if confidence > 100 {
		confidence = 100
	}

	reasoning := make([]string, 0, len(opinions)+1)
	reasoning = append(reasoning, fmt.Sprintf("%d of %d sources voted %s", votes[winner], len(opinions), winner))
	for _, op := range opinions {
		reasoning = append(reasoning, fmt.Sprintf("%s: %s (%.0f%%) %s", op.SourceID, op.Decision, op.Confidence, op.Reasoning))
	}

	return model.CollectiveDecision{
		FinalDecision:  winner,
		Confidence:     confidence,
		ConsensusLevel: consensus,
		Opinions:       opinions,
		Reasoning:      reasoning,
		Timestamp:      now,
	}
}

// ShouldExecute checks every execution condition and reports the first
// failure. All conditions are evaluated against the same decision; the reason
// string is persisted with the decision record for the audit trail.
func (g *Gate) ShouldExecute(cd model.CollectiveDecision) (bool, string) {
	log := g.log.WithFields(map[string]interface{}{
		"decision":   cd.FinalDecision,
		"confidence": cd.Confidence,
		"consensus":  cd.ConsensusLevel,
		"opinions":   len(cd.Opinions),
	})

	if cd.FinalDecision == model.DecisionHold {
		log.Info("gate: holding, nothing to execute")
		return false, "decision is HOLD"
	}
	if len(cd.Opinions) < MinOpinions {
		log.Warn("gate: too few opinions")
		return false, fmt.Sprintf("only %d opinions, need %d", len(cd.Opinions), MinOpinions)
	}
	if cd.ConsensusLevel < MinConsensusLevel {
		log.Info("gate: consensus below threshold")
		return false, fmt.Sprintf("consensus %.2f below %.2f", cd.ConsensusLevel, MinConsensusLevel)
	}
	if cd.Confidence < MinConfidence {
		log.Info("gate: confidence below threshold")
		return false, fmt.Sprintf("confidence %.1f below %.1f", cd.Confidence, MinConfidence)
	}
	if g.riskSt != nil {
		if g.riskSt.BreakerTripped() {
			log.Warn("gate: circuit breaker tripped, trading halted for the day")
			return false, "daily circuit breaker tripped"
		}
		if !g.riskSt.OperationAllowed() {
			log.Warn("gate: daily operation limit reached")
			return false, "daily operation limit reached"
		}
		if g.riskSt.ProfitGoalReached() {
			log.Info("gate: daily profit goal reached, no further entries")
			return false, "daily profit goal reached"
		}
	}

	log.Info("gate: decision approved for execution")
	return true, ""
}
