package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a fill produced by the portfolio service for an executed signal.
type Trade struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	PortfolioID  uint            `gorm:"not null;index" json:"portfolio_id"`
	ExecutionID  string          `gorm:"size:36;index" json:"execution_id"`
	Side         string          `gorm:"size:10;not null" json:"side"`
	PositionSize float64         `gorm:"not null" json:"position_size"`
	Price        decimal.Decimal `gorm:"type:numeric(28,10);not null" json:"price"`
	Quantity     decimal.Decimal `gorm:"type:numeric(28,10);not null" json:"quantity"`
	Notional     decimal.Decimal `gorm:"type:numeric(28,10);not null" json:"notional"`
	ExecutedAt   time.Time       `gorm:"not null" json:"executed_at"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (Trade) TableName() string {
	return "trades"
}
