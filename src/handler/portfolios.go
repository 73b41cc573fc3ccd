package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"convictionexecutor/src/model"
)

type portfolioStore interface {
	FindByID(ctx context.Context, id uint) (*model.Portfolio, error)
	SetActive(ctx context.Context, id uint, active bool, periodMinutes int) error
}

type jobScheduler interface {
	OnActivate(portfolioID uint, periodMinutes int) error
	OnDeactivate(portfolioID uint)
}

type activateRequest struct {
	PeriodMinutes int `json:"period_minutes"`
}

func GetPortfolioHandler(store portfolioStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := portfolioIDParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		p, err := store.FindByID(r.Context(), id)
		if err != nil {
			logger.WithError(err).Error("failed to load portfolio")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if p == nil {
			http.Error(w, "portfolio not found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, p)
	}
}

// ActivateHandler marks the portfolio active and schedules it. The body is optional;
// without period_minutes the stored period is kept.
func ActivateHandler(store portfolioStore, scheduler jobScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := portfolioIDParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req activateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.PeriodMinutes < 0 {
			http.Error(w, "period_minutes must be positive", http.StatusBadRequest)
			return
		}

		if err := store.SetActive(r.Context(), id, true, req.PeriodMinutes); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				http.Error(w, "portfolio not found", http.StatusNotFound)
				return
			}
			logger.WithError(err).WithField("portfolio_id", id).Error("failed to activate portfolio")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		p, err := store.FindByID(r.Context(), id)
		if err != nil || p == nil {
			logger.WithError(err).WithField("portfolio_id", id).Error("failed to reload activated portfolio")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if err := scheduler.OnActivate(p.ID, p.PeriodMinutes); err != nil {
			logger.WithError(err).WithField("portfolio_id", id).Error("failed to schedule portfolio")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, p)
	}
}

func DeactivateHandler(store portfolioStore, scheduler jobScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := portfolioIDParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := store.SetActive(r.Context(), id, false, 0); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				http.Error(w, "portfolio not found", http.StatusNotFound)
				return
			}
			logger.WithError(err).WithField("portfolio_id", id).Error("failed to deactivate portfolio")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		scheduler.OnDeactivate(id)

		w.WriteHeader(http.StatusNoContent)
	}
}
