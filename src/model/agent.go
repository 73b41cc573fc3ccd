package model

import "time"

// AgentSignal is the directional opinion reported by an analysis agent.
type AgentSignal string

const (
	AgentSignalBullish AgentSignal = "BULLISH"
	AgentSignalBearish AgentSignal = "BEARISH"
	AgentSignalNeutral AgentSignal = "NEUTRAL"
)

// Valid reports whether s is one of the known agent signals.
func (s AgentSignal) Valid() bool {
	switch s {
	case AgentSignalBullish, AgentSignalBearish, AgentSignalNeutral:
		return true
	default:
		return false
	}
}

// AgentOutput is the opinion produced by one agent for one cycle.
// Confidence is the agent's self-reported reliability, Score its directional magnitude.
type AgentOutput struct {
	AgentName  string      `json:"agent_name"`
	Signal     AgentSignal `json:"signal"`
	Confidence float64     `json:"confidence"` // 0..1
	Score      float64     `json:"score"`      // -100..100
	Reasoning  string      `json:"reasoning"`
}

// AgentExecution is the audit row stored for every agent invocation of a completed cycle.
type AgentExecution struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ExecutionID string    `gorm:"size:36;not null;index" json:"execution_id"`
	AgentName   string    `gorm:"size:100;not null" json:"agent_name"`
	Signal      string    `gorm:"size:20;not null" json:"signal"`
	Score       float64   `json:"score"`
	Confidence  float64   `json:"confidence"`
	Reasoning   string    `gorm:"type:text" json:"reasoning"`
	DurationMs  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

func (AgentExecution) TableName() string {
	return "agent_executions"
}
