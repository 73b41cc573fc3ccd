package model

import "time"

// DecisionState is the per-portfolio memory carried between cycles.
// Streak counters reset as soon as a cycle leaves the qualifying zone.
type DecisionState struct {
	ID                      uint       `gorm:"primaryKey" json:"id"`
	PortfolioID             uint       `gorm:"not null;uniqueIndex" json:"portfolio_id"`
	ConsecutiveBullishCount int        `gorm:"not null;default:0" json:"consecutive_bullish_count"`
	ConsecutiveBullishSince *time.Time `json:"consecutive_bullish_since,omitempty"`
	ConsecutiveBearishCount int        `gorm:"not null;default:0" json:"consecutive_bearish_count"`
	ConsecutiveBearishSince *time.Time `json:"consecutive_bearish_since,omitempty"`
	LastConvictionScore     *float64   `json:"last_conviction_score,omitempty"`
	CurrentPosition         float64    `gorm:"not null;default:0" json:"current_position"` // 0..1
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

func (DecisionState) TableName() string {
	return "decision_states"
}
