package repository

import (
	"context"

	"gorm.io/gorm"

	"convictionexecutor/src/database"
	"convictionexecutor/src/model"
)

// TradeRepository reads the paper trades of a portfolio.
type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository() *TradeRepository {
	return &TradeRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// ListByPortfolio returns trades newest first.
func (r *TradeRepository) ListByPortfolio(
	ctx context.Context,
	portfolioID uint,
	limit int,
) ([]model.Trade, error) {

	var trades []model.Trade
	err := r.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("executed_at DESC, id DESC").
		Limit(NormalizeLimit(limit)).
		Find(&trades).Error

	return trades, err
}
