package model

import "time"

// DecisionRecord is the append-only audit row written for every collective
// decision, executed or not. Opinions and reasoning are stored denormalized
// so the row alone explains why a trade did or did not happen.
type DecisionRecord struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Symbol         string  `gorm:"size:50;index" json:"symbol"`
	FinalDecision  string  `gorm:"size:10;not null" json:"final_decision"`
	Confidence     float64 `json:"confidence"`
	ConsensusLevel float64 `json:"consensus_level"`
	OpinionCount   int     `json:"opinion_count"`

	// Opinions is the opinion list serialized as JSON.
	Opinions string `gorm:"type:text" json:"opinions"`
	// Reasoning is the full reasoning trail, one entry per line.
	Reasoning string `gorm:"type:text" json:"reasoning"`

	Executed   bool   `json:"executed"`
	GateReason string `gorm:"size:255" json:"gate_reason"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (DecisionRecord) TableName() string {
	return "decision_records"
}

// Operation outcome constants for OperationLog.Status.
const (
	OperationStatusDone     = "done"
	OperationStatusRejected = "rejected"
	OperationStatusFailed   = "failed"
	OperationStatusAssumed  = "assumed_done" // satisfied by re-verification, not by a fill ack
)

// OperationLog stores one row per broker order interaction and its
// conclusion, including retries that ended in an assumed outcome.
type OperationLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Symbol    string  `gorm:"size:50;index" json:"symbol"`
	Kind      string  `gorm:"size:20" json:"kind"` // market, buy_limit, sell_limit, buy_stop, sell_stop, close, cancel
	Side      string  `gorm:"size:10" json:"side"`
	Volume    float64 `json:"volume"`
	Price     float64 `json:"price"`
	Ticket    uint64  `gorm:"index" json:"ticket"`
	ClientTag string  `gorm:"size:64;index" json:"client_tag"`

	Status   string `gorm:"size:20;not null" json:"status"`
	Retcode  int    `json:"retcode"`
	Reason   string `gorm:"size:255" json:"reason"`
	Attempts int    `json:"attempts"`

	CreatedAt time.Time `json:"created_at"`
}

func (OperationLog) TableName() string {
	return "operation_logs"
}
