package model

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultBuyThreshold              = 50.0
	DefaultFullSellThreshold         = 45.0
	DefaultFGCircuitBreakerThreshold = 20.0
	DefaultFGPositionAdjustThreshold = 30.0
	DefaultConsecutiveSignalThresh   = 3
	DefaultAccelerationMultiplierMin = 1.2
	DefaultAccelerationMultiplierMax = 1.5
	DefaultBuyPositionMin            = 0.1
	DefaultBuyPositionMax            = 0.5
)

// ThresholdConfig holds the per-portfolio decision thresholds.
type ThresholdConfig struct {
	ID                         uint      `gorm:"primaryKey" json:"id"`
	PortfolioID                uint      `gorm:"not null;uniqueIndex" json:"portfolio_id"`
	BuyThreshold               float64   `gorm:"not null" json:"buy_threshold"`
	FullSellThreshold          float64   `gorm:"not null" json:"full_sell_threshold"`
	FGCircuitBreakerThreshold  float64   `gorm:"column:fg_circuit_breaker_threshold;not null" json:"fg_circuit_breaker_threshold"`
	FGPositionAdjustThreshold  float64   `gorm:"column:fg_position_adjust_threshold;not null" json:"fg_position_adjust_threshold"`
	ConsecutiveSignalThreshold int       `gorm:"not null" json:"consecutive_signal_threshold"`
	AccelerationMultiplierMin  float64   `gorm:"not null" json:"acceleration_multiplier_min"`
	AccelerationMultiplierMax  float64   `gorm:"not null" json:"acceleration_multiplier_max"`
	BuyPositionMin             float64   `gorm:"not null;default:0.1" json:"buy_position_min"`
	BuyPositionMax             float64   `gorm:"not null;default:0.5" json:"buy_position_max"`
	CreatedAt                  time.Time `json:"created_at"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

func (ThresholdConfig) TableName() string {
	return "threshold_configs"
}

// DefaultThresholdConfig returns the thresholds a new portfolio starts with.
func DefaultThresholdConfig(portfolioID uint) *ThresholdConfig {
	return &ThresholdConfig{
		PortfolioID:                portfolioID,
		BuyThreshold:               DefaultBuyThreshold,
		FullSellThreshold:          DefaultFullSellThreshold,
		FGCircuitBreakerThreshold:  DefaultFGCircuitBreakerThreshold,
		FGPositionAdjustThreshold:  DefaultFGPositionAdjustThreshold,
		ConsecutiveSignalThreshold: DefaultConsecutiveSignalThresh,
		AccelerationMultiplierMin:  DefaultAccelerationMultiplierMin,
		AccelerationMultiplierMax:  DefaultAccelerationMultiplierMax,
		BuyPositionMin:             DefaultBuyPositionMin,
		BuyPositionMax:             DefaultBuyPositionMax,
	}
}

var ErrInvalidThresholds = errors.New("invalid threshold config")

// Validate checks the ordering constraints between thresholds.
func (c *ThresholdConfig) Validate() error {
	switch {
	case c.BuyThreshold <= 0 || c.BuyThreshold > 100:
		return fmt.Errorf("%w: buy_threshold must be in (0,100]", ErrInvalidThresholds)
	case c.FullSellThreshold < 0 || c.FullSellThreshold >= c.BuyThreshold:
		return fmt.Errorf("%w: full_sell_threshold must be in [0, buy_threshold)", ErrInvalidThresholds)
	case c.FGCircuitBreakerThreshold < 0 || c.FGCircuitBreakerThreshold >= c.FGPositionAdjustThreshold:
		return fmt.Errorf("%w: fg_circuit_breaker_threshold must be below fg_position_adjust_threshold", ErrInvalidThresholds)
	case c.FGPositionAdjustThreshold > 100:
		return fmt.Errorf("%w: fg_position_adjust_threshold must be <= 100", ErrInvalidThresholds)
	case c.ConsecutiveSignalThreshold < 1:
		return fmt.Errorf("%w: consecutive_signal_threshold must be >= 1", ErrInvalidThresholds)
	case c.AccelerationMultiplierMin < 1 || c.AccelerationMultiplierMax < c.AccelerationMultiplierMin:
		return fmt.Errorf("%w: acceleration multipliers must satisfy 1 <= min <= max", ErrInvalidThresholds)
	case c.BuyPositionMin <= 0 || c.BuyPositionMax < c.BuyPositionMin || c.BuyPositionMax > 1:
		return fmt.Errorf("%w: buy position sizes must satisfy 0 < min <= max <= 1", ErrInvalidThresholds)
	}
	return nil
}
