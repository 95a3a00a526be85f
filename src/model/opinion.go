package model

import "time"

// Decision is a strategy source's vote for the cycle.
type Decision string

const (
	DecisionBuy  Decision = "BUY"
	DecisionSell Decision = "SELL"
	DecisionHold Decision = "HOLD"
)

// Opinion is the fixed shape every strategy source emits. Heterogeneous
// sources adapt to this at their boundary; nothing downstream knows what
// produced it.
type Opinion struct {
	SourceID   string
	Decision   Decision
	Confidence float64 // 0..100
	Reasoning  string
	Timestamp  time.Time
}

// CollectiveDecision is the merged verdict over one cycle's opinions.
type CollectiveDecision struct {
	FinalDecision  Decision
	Confidence     float64 // 0..100
	ConsensusLevel float64 // winning votes / total opinions, 0..1
	Opinions       []Opinion
	Reasoning      []string
	Timestamp      time.Time
}
