package migrations

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"convictionexecutor/src/model"
)

const (
	paperPortfolioName = "paper-btc"
	paperStartingCash  = 10000
)

// seedPaperPortfolio creates an inactive paper portfolio on an empty database.
func seedPaperPortfolio(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.Portfolio{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count portfolios: %w", err)
	}
	if count > 0 {
		return nil
	}

	p := model.Portfolio{
		Name:          paperPortfolioName,
		Symbol:        "BTCUSDT",
		PeriodMinutes: 60,
		Agents:        model.DefaultAgents,
		CashBalance:   decimal.NewFromInt(paperStartingCash),
		Holdings:      decimal.Zero,
	}
	if err := db.Create(&p).Error; err != nil {
		return fmt.Errorf("create paper portfolio: %w", err)
	}

	return nil
}

// backfillThresholdConfigs gives every portfolio without thresholds the defaults.
func backfillThresholdConfigs(db *gorm.DB) error {
	var ids []uint
	err := db.Model(&model.Portfolio{}).
		Where("id NOT IN (?)", db.Model(&model.ThresholdConfig{}).Select("portfolio_id")).
		Pluck("id", &ids).Error
	if err != nil {
		return fmt.Errorf("find portfolios without thresholds: %w", err)
	}

	for _, id := range ids {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(model.DefaultThresholdConfig(id)).Error; err != nil {
			return fmt.Errorf("create thresholds for portfolio %d: %w", id, err)
		}
	}

	return nil
}
