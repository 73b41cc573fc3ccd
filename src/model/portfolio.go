package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DefaultAgents are the agents a portfolio consults when none are configured.
var DefaultAgents = []string{"macro", "ta", "onchain"}

// Portfolio is a paper-traded strategy account.
type Portfolio struct {
	ID            uint                        `gorm:"primaryKey" json:"id"`
	Name          string                      `gorm:"size:255;not null" json:"name"`
	Symbol        string                      `gorm:"size:50;not null;default:BTCUSDT" json:"symbol"`
	Active        bool                        `gorm:"not null;default:false;index" json:"active"`
	PeriodMinutes int                         `gorm:"not null;default:60" json:"period_minutes"`
	Agents        datatypes.JSONSlice[string] `json:"agents"`
	CashBalance   decimal.Decimal             `gorm:"type:numeric(28,10);not null;default:0" json:"cash_balance"`
	Holdings      decimal.Decimal             `gorm:"type:numeric(28,10);not null;default:0" json:"holdings"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`

	Thresholds *ThresholdConfig `gorm:"foreignKey:PortfolioID" json:"thresholds,omitempty"`
}

func (Portfolio) TableName() string {
	return "portfolios"
}

// AgentNames returns the configured agents or the default set.
func (p *Portfolio) AgentNames() []string {
	if len(p.Agents) == 0 {
		return DefaultAgents
	}
	return p.Agents
}
