package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"convictionexecutor/src/database"
	"convictionexecutor/src/model"
)

// ThresholdRepository reads and writes per-portfolio decision thresholds.
type ThresholdRepository struct {
	db *gorm.DB
}

func NewThresholdRepository() *ThresholdRepository {
	return &ThresholdRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ThresholdRepository) WithDB(db *gorm.DB) *ThresholdRepository {
	return &ThresholdRepository{db: db}
}

// GetOrDefault returns the stored thresholds, or unsaved defaults when none exist.
func (r *ThresholdRepository) GetOrDefault(
	ctx context.Context,
	portfolioID uint,
) (*model.ThresholdConfig, error) {

	var cfg model.ThresholdConfig
	err := r.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":         "ThresholdRepository",
				"op":           "GetOrDefault",
				"portfolio_id": portfolioID,
			}).Debug("No thresholds stored, using defaults")

			return model.DefaultThresholdConfig(portfolioID), nil
		}

		return nil, err
	}

	return &cfg, nil
}

// Upsert validates cfg and stores it keyed by portfolio_id.
func (r *ThresholdRepository) Upsert(
	ctx context.Context,
	cfg *model.ThresholdConfig,
) error {

	if err := cfg.Validate(); err != nil {
		return err
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "portfolio_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"buy_threshold",
			"full_sell_threshold",
			"fg_circuit_breaker_threshold",
			"fg_position_adjust_threshold",
			"consecutive_signal_threshold",
			"acceleration_multiplier_min",
			"acceleration_multiplier_max",
			"buy_position_min",
			"buy_position_max",
			"updated_at",
		}),
	}).Create(cfg).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "ThresholdRepository",
			"op":           "Upsert",
			"portfolio_id": cfg.PortfolioID,
		}).WithError(err).Error("Failed to upsert thresholds")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":         "ThresholdRepository",
		"op":           "Upsert",
		"portfolio_id": cfg.PortfolioID,
	}).Info("Thresholds saved")

	return nil
}
