package setups

import (
	"fmt"
	"time"

	"gextrader/src/model"
)

const sourceID = "setup-engine"

var setupDecisions = map[model.SetupType]model.Decision{
	model.SetupBullishBreakout: model.DecisionBuy,
	model.SetupPullbackBottom:  model.DecisionBuy,
	model.SetupBearishBreakout: model.DecisionSell,
	model.SetupPullbackTop:     model.DecisionSell,
	model.SetupGammaProtection: model.DecisionSell,
	model.SetupConsolidated:    model.DecisionHold,
}

// DecisionFor maps a setup to the side it trades.
func DecisionFor(t model.SetupType) model.Decision {
	return setupDecisions[t]
}

// StrongestOpinion collapses one cycle's setup results into a single opinion:
// the active setup with the highest confidence wins. With nothing active the
// engine abstains with a low-confidence HOLD rather than staying silent, so
// the consensus layer still counts it as a vote.
func StrongestOpinion(results []model.SetupResult) model.Opinion {
	var best *model.SetupResult
	for i := range results {
		if !results[i].Active {
			continue
		}
		if best == nil || results[i].Confidence > best.Confidence {
			best = &results[i]
		}
	}

	if best == nil {
		return model.Opinion{
			SourceID:   sourceID,
			Decision:   model.DecisionHold,
			Confidence: 30,
			Reasoning:  "no active setup",
			Timestamp:  time.Now(),
		}
	}

	return model.Opinion{
		SourceID:   sourceID,
		Decision:   setupDecisions[best.SetupType],
		Confidence: best.Confidence,
		Reasoning:  fmt.Sprintf("%s: %s", best.SetupType, best.Details),
		Timestamp:  time.Now(),
	}
}
