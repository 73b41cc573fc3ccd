package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"convictionexecutor/src/database"
	"convictionexecutor/src/model"
)

const (
	defaultExecutionLimit = 20
	maxExecutionLimit     = 200
)

// ErrExecutionNotRunning is returned when a finalization targets a row that already left running.
var ErrExecutionNotRunning = errors.New("execution is not running")

// ExecutionRepository persists strategy executions and their agent audit rows.
type ExecutionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository() *ExecutionRepository {
	return &ExecutionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ExecutionRepository) WithDB(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Create inserts a new execution row, normally in status running.
func (r *ExecutionRepository) Create(
	ctx context.Context,
	exec *model.StrategyExecution,
) error {

	if err := r.db.WithContext(ctx).Create(exec).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "ExecutionRepository",
			"op":           "Create",
			"portfolio_id": exec.PortfolioID,
		}).WithError(err).Error("Failed to create execution")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":         "ExecutionRepository",
		"op":           "Create",
		"execution_id": exec.ID,
		"portfolio_id": exec.PortfolioID,
	}).Debug("Execution created")

	return nil
}

// Complete finalizes a running execution, stores one audit row per agent and upserts the
// decision state in a single transaction. If the row is no longer running nothing is written
// and ErrExecutionNotRunning is returned.
func (r *ExecutionRepository) Complete(
	ctx context.Context,
	exec *model.StrategyExecution,
	audits []model.AgentExecution,
	state *model.DecisionState,
) error {

	completedAt := time.Now().UTC()
	if exec.CompletedAt != nil {
		completedAt = *exec.CompletedAt
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.StrategyExecution{}).
			Where("id = ?", exec.ID).
			Where("status = ?", model.ExecutionStatusRunning).
			Updates(map[string]interface{}{
				"status":            model.ExecutionStatusCompleted,
				"conviction_score":  exec.ConvictionScore,
				"signal":            exec.Signal,
				"position_size":     exec.PositionSize,
				"risk_level":        exec.RiskLevel,
				"is_accelerated":    exec.IsAccelerated,
				"reasons":           exec.Reasons,
				"warnings":          exec.Warnings,
				"conviction_detail": exec.ConvictionDetail,
				"trade_id":          exec.TradeID,
				"completed_at":      completedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("finalize execution: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrExecutionNotRunning
		}

		for i := range audits {
			audits[i].ExecutionID = exec.ID
		}
		if len(audits) > 0 {
			if err := tx.Create(&audits).Error; err != nil {
				return fmt.Errorf("insert agent executions: %w", err)
			}
		}

		if state != nil {
			if err := upsertDecisionState(tx, state); err != nil {
				return fmt.Errorf("upsert decision state: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "ExecutionRepository",
			"op":           "Complete",
			"execution_id": exec.ID,
		}).WithError(err).Error("Failed to complete execution")

		return err
	}

	exec.Status = model.ExecutionStatusCompleted
	exec.CompletedAt = &completedAt
	exec.AgentExecutions = audits

	logger.WithFields(map[string]interface{}{
		"repo":         "ExecutionRepository",
		"op":           "Complete",
		"execution_id": exec.ID,
		"signal":       exec.Signal,
	}).Info("Execution completed")

	return nil
}

// MarkFailed moves a running execution to failed with the given error details.
func (r *ExecutionRepository) MarkFailed(
	ctx context.Context,
	id string,
	details map[string]interface{},
) error {

	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&model.StrategyExecution{}).
		Where("id = ?", id).
		Where("status = ?", model.ExecutionStatusRunning).
		Updates(map[string]interface{}{
			"status":        model.ExecutionStatusFailed,
			"error_details": datatypes.JSONMap(details),
			"completed_at":  now,
		})
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "ExecutionRepository",
			"op":           "MarkFailed",
			"execution_id": id,
		}).WithError(res.Error).Error("Failed to mark execution as failed")

		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrExecutionNotRunning
	}

	logger.WithFields(map[string]interface{}{
		"repo":         "ExecutionRepository",
		"op":           "MarkFailed",
		"execution_id": id,
		"error_type":   details["error_type"],
	}).Warn("Execution marked as failed")

	return nil
}

// FindByID returns (nil, nil) if the execution does not exist.
func (r *ExecutionRepository) FindByID(
	ctx context.Context,
	id string,
) (*model.StrategyExecution, error) {

	var exec model.StrategyExecution
	err := r.db.WithContext(ctx).
		Preload("AgentExecutions").
		Where("id = ?", id).
		First(&exec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &exec, nil
}

// LastExecution returns the most recent execution of a portfolio, or (nil, nil).
func (r *ExecutionRepository) LastExecution(
	ctx context.Context,
	portfolioID uint,
) (*model.StrategyExecution, error) {

	var exec model.StrategyExecution
	err := r.db.WithContext(ctx).
		Preload("AgentExecutions").
		Where("portfolio_id = ?", portfolioID).
		Order("execution_time DESC").
		First(&exec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":         "ExecutionRepository",
			"op":           "LastExecution",
			"portfolio_id": portfolioID,
		}).WithError(err).Error("Failed to fetch last execution")

		return nil, err
	}

	return &exec, nil
}

// RecentExecutions lists a portfolio's executions newest first.
// limit <= 0 selects 20; it is capped at 200.
func (r *ExecutionRepository) RecentExecutions(
	ctx context.Context,
	portfolioID uint,
	limit int,
) ([]model.StrategyExecution, error) {

	limit = NormalizeLimit(limit)

	var execs []model.StrategyExecution
	err := r.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("execution_time DESC").
		Limit(limit).
		Find(&execs).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "ExecutionRepository",
			"op":           "RecentExecutions",
			"portfolio_id": portfolioID,
			"limit":        limit,
		}).WithError(err).Error("Failed to fetch recent executions")

		return nil, err
	}

	return execs, nil
}

// FindStuck lists executions still running that started before cutoff.
func (r *ExecutionRepository) FindStuck(
	ctx context.Context,
	cutoff time.Time,
) ([]model.StrategyExecution, error) {

	var execs []model.StrategyExecution
	err := r.db.WithContext(ctx).
		Where("status = ?", model.ExecutionStatusRunning).
		Where("execution_time < ?", cutoff).
		Order("execution_time").
		Find(&execs).Error

	return execs, err
}

// CleanupStuck fails every execution running since before now-timeout. Rows finalized
// concurrently are skipped, so repeated sweeps are no-ops.
func (r *ExecutionRepository) CleanupStuck(
	ctx context.Context,
	timeout time.Duration,
	now time.Time,
) (int, error) {

	stuck, err := r.FindStuck(ctx, now.Add(-timeout))
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExecutionRepository",
			"op":   "CleanupStuck",
		}).WithError(err).Error("Failed to find stuck executions")

		return 0, err
	}

	cleaned := 0
	for _, exec := range stuck {
		details := map[string]interface{}{
			"error_type":    model.ErrorTypeStuck,
			"error_message": fmt.Sprintf("execution exceeded timeout of %s", timeout),
			"stuck_minutes": int(math.Floor(now.Sub(exec.ExecutionTime).Minutes())),
			"cleaned_at":    now.UTC().Format(time.RFC3339),
		}

		err := r.MarkFailed(ctx, exec.ID, details)
		if errors.Is(err, ErrExecutionNotRunning) {
			continue
		}
		if err != nil {
			return cleaned, fmt.Errorf("fail stuck execution %s: %w", exec.ID, err)
		}
		cleaned++
	}

	if cleaned > 0 {
		logger.WithFields(map[string]interface{}{
			"repo":    "ExecutionRepository",
			"op":      "CleanupStuck",
			"cleaned": cleaned,
			"timeout": timeout.String(),
		}).Warn("Stuck executions cleaned up")
	}

	return cleaned, nil
}

// NormalizeLimit applies the listing defaults shared by history endpoints.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultExecutionLimit
	}
	if limit > maxExecutionLimit {
		return maxExecutionLimit
	}
	return limit
}
