package handler

import (
	"context"
	"errors"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"convictionexecutor/src/model"
	"convictionexecutor/src/orchestrator"
)

type cycleRunner interface {
	Execute(ctx context.Context, portfolioID uint) (*model.StrategyExecution, error)
}

type executionHistory interface {
	LastExecution(ctx context.Context, portfolioID uint) (*model.StrategyExecution, error)
	RecentExecutions(ctx context.Context, portfolioID uint, limit int) ([]model.StrategyExecution, error)
}

// ExecuteHandler runs a cycle immediately and returns the resulting record, failed or not.
func ExecuteHandler(runner cycleRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := portfolioIDParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		exec, err := runner.Execute(r.Context(), id)
		if errors.Is(err, orchestrator.ErrPortfolioNotFound) {
			http.Error(w, "portfolio not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.WithError(err).WithField("portfolio_id", id).Error("manual execution failed to start")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, exec)
	}
}

func LastExecutionHandler(history executionHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := portfolioIDParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		exec, err := history.LastExecution(r.Context(), id)
		if err != nil {
			logger.WithError(err).Error("failed to load last execution")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if exec == nil {
			http.Error(w, "no executions", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, exec)
	}
}

// RecentExecutionsHandler lists executions newest first. ?limit defaults to 20, capped at 200.
func RecentExecutionsHandler(history executionHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := portfolioIDParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		limit, err := limitParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		execs, err := history.RecentExecutions(r.Context(), id, limit)
		if err != nil {
			logger.WithError(err).Error("failed to list executions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if execs == nil {
			execs = []model.StrategyExecution{}
		}

		writeJSON(w, http.StatusOK, execs)
	}
}
