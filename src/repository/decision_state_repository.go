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

// DecisionStateRepository stores the per-portfolio streak memory.
type DecisionStateRepository struct {
	db *gorm.DB
}

func NewDecisionStateRepository() *DecisionStateRepository {
	return &DecisionStateRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *DecisionStateRepository) WithDB(db *gorm.DB) *DecisionStateRepository {
	return &DecisionStateRepository{db: db}
}

// Get returns the state of a portfolio, or (nil, nil) before its first completed cycle.
func (r *DecisionStateRepository) Get(
	ctx context.Context,
	portfolioID uint,
) (*model.DecisionState, error) {

	var state model.DecisionState
	err := r.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":         "DecisionStateRepository",
			"op":           "Get",
			"portfolio_id": portfolioID,
		}).WithError(err).Error("Failed to fetch decision state")

		return nil, err
	}

	return &state, nil
}

// Upsert inserts or replaces the state keyed by portfolio_id.
func (r *DecisionStateRepository) Upsert(
	ctx context.Context,
	state *model.DecisionState,
) error {

	if err := upsertDecisionState(r.db.WithContext(ctx), state); err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "DecisionStateRepository",
			"op":           "Upsert",
			"portfolio_id": state.PortfolioID,
		}).WithError(err).Error("Failed to upsert decision state")

		return err
	}

	return nil
}

// upsertDecisionState conflicts on portfolio_id only, so the caller's primary key is ignored.
func upsertDecisionState(db *gorm.DB, state *model.DecisionState) error {
	row := *state
	row.ID = 0

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "portfolio_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"consecutive_bullish_count",
			"consecutive_bullish_since",
			"consecutive_bearish_count",
			"consecutive_bearish_since",
			"last_conviction_score",
			"current_position",
			"updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return err
	}

	state.ID = row.ID
	return nil
}
