package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"convictionexecutor/src/model"
)

type thresholdStore interface {
	GetOrDefault(ctx context.Context, portfolioID uint) (*model.ThresholdConfig, error)
	Upsert(ctx context.Context, cfg *model.ThresholdConfig) error
}

type portfolioFinder interface {
	FindByID(ctx context.Context, id uint) (*model.Portfolio, error)
}

func GetThresholdsHandler(store thresholdStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := portfolioIDParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		cfg, err := store.GetOrDefault(r.Context(), id)
		if err != nil {
			logger.WithError(err).Error("failed to load thresholds")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, cfg)
	}
}

// PutThresholdsHandler replaces the portfolio's thresholds. Invalid combinations are rejected with 400.
func PutThresholdsHandler(portfolios portfolioFinder, store thresholdStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := portfolioIDParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var cfg model.ThresholdConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		p, err := portfolios.FindByID(r.Context(), id)
		if err != nil {
			logger.WithError(err).Error("failed to load portfolio")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if p == nil {
			http.Error(w, "portfolio not found", http.StatusNotFound)
			return
		}

		cfg.ID = 0
		cfg.PortfolioID = id
		if err := store.Upsert(r.Context(), &cfg); err != nil {
			if errors.Is(err, model.ErrInvalidThresholds) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			logger.WithError(err).WithField("portfolio_id", id).Error("failed to store thresholds")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, cfg)
	}
}
