package repository

import (
	"context"
	"errors"
	"fmt"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"convictionexecutor/src/database"
	"convictionexecutor/src/model"
)

// PortfolioRepository handles portfolio reads and activation changes.
type PortfolioRepository struct {
	db *gorm.DB
}

func NewPortfolioRepository() *PortfolioRepository {
	return &PortfolioRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PortfolioRepository) WithDB(db *gorm.DB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// Create inserts the portfolio together with default thresholds when none are attached.
func (r *PortfolioRepository) Create(
	ctx context.Context,
	p *model.Portfolio,
) error {

	if p.PeriodMinutes < 1 {
		return fmt.Errorf("period_minutes must be >= 1, got %d", p.PeriodMinutes)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		thresholds := p.Thresholds
		p.Thresholds = nil

		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("create portfolio: %w", err)
		}

		if thresholds == nil {
			thresholds = model.DefaultThresholdConfig(p.ID)
		}
		thresholds.PortfolioID = p.ID
		if err := thresholds.Validate(); err != nil {
			return err
		}
		if err := tx.Create(thresholds).Error; err != nil {
			return fmt.Errorf("create thresholds: %w", err)
		}
		p.Thresholds = thresholds

		return nil
	})
}

// FindByID returns (nil, nil) if the portfolio does not exist.
func (r *PortfolioRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Portfolio, error) {

	var p model.Portfolio
	err := r.db.WithContext(ctx).
		Preload("Thresholds").
		First(&p, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "PortfolioRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Portfolio not found")

			return nil, nil
		}

		return nil, err
	}

	return &p, nil
}

// ListActive returns every portfolio that should have a scheduled job.
func (r *PortfolioRepository) ListActive(ctx context.Context) ([]model.Portfolio, error) {
	var out []model.Portfolio
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id").
		Find(&out).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PortfolioRepository",
			"op":   "ListActive",
		}).WithError(err).Error("Failed to list active portfolios")

		return nil, err
	}

	return out, nil
}

// SetActive flips the active flag. A positive periodMinutes also updates the cadence.
func (r *PortfolioRepository) SetActive(
	ctx context.Context,
	id uint,
	active bool,
	periodMinutes int,
) error {

	updates := map[string]interface{}{"active": active}
	if periodMinutes > 0 {
		updates["period_minutes"] = periodMinutes
	}

	res := r.db.WithContext(ctx).
		Model(&model.Portfolio{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	logger.WithFields(map[string]interface{}{
		"repo":           "PortfolioRepository",
		"op":             "SetActive",
		"id":             id,
		"active":         active,
		"period_minutes": periodMinutes,
	}).Info("Portfolio activation updated")

	return nil
}
