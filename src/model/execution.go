package model

import (
	"time"

	"gorm.io/datatypes"
)

// Execution statuses. running is the only non-terminal state.
const (
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
)

// error_type values stored in StrategyExecution.ErrorDetails.
const (
	ErrorTypeAgentExecution = "agent_execution_error"
	ErrorTypeMarketData     = "market_data_error"
	ErrorTypeCycle          = "cycle_error"
	ErrorTypeStuck          = "execution_stuck"
)

// StrategyExecution records one decision cycle of one portfolio.
type StrategyExecution struct {
	ID               string                      `gorm:"primaryKey;size:36" json:"id"`
	PortfolioID      uint                        `gorm:"not null;index:idx_strategy_executions_portfolio_time,priority:1" json:"portfolio_id"`
	ExecutionTime    time.Time                   `gorm:"not null;index:idx_strategy_executions_portfolio_time,priority:2" json:"execution_time"`
	Status           string                      `gorm:"size:20;not null;index" json:"status"`
	ConvictionScore  *float64                    `json:"conviction_score,omitempty"`
	Signal           string                      `gorm:"size:10" json:"signal,omitempty"`
	PositionSize     *float64                    `json:"position_size,omitempty"`
	RiskLevel        string                      `gorm:"size:10" json:"risk_level,omitempty"`
	IsAccelerated    bool                        `gorm:"not null;default:false" json:"is_accelerated"`
	Reasons          datatypes.JSONSlice[string] `json:"reasons,omitempty"`
	Warnings         datatypes.JSONSlice[string] `json:"warnings,omitempty"`
	ConvictionDetail datatypes.JSON              `json:"conviction_detail,omitempty"`
	TradeID          *uint                       `json:"trade_id,omitempty"`
	ErrorDetails     datatypes.JSONMap           `json:"error_details,omitempty"`
	CompletedAt      *time.Time                  `json:"completed_at,omitempty"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`

	AgentExecutions []AgentExecution `gorm:"foreignKey:ExecutionID" json:"agent_executions,omitempty"`
}

func (StrategyExecution) TableName() string {
	return "strategy_executions"
}

// Terminal reports whether the execution reached completed or failed.
func (e *StrategyExecution) Terminal() bool {
	return e.Status == ExecutionStatusCompleted || e.Status == ExecutionStatusFailed
}
