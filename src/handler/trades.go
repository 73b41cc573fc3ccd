package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"convictionexecutor/src/model"
)

type tradeLister interface {
	ListByPortfolio(ctx context.Context, portfolioID uint, limit int) ([]model.Trade, error)
}

type exceptionLister interface {
	Recent(ctx context.Context, limit int) ([]model.Exception, error)
}

func ListTradesHandler(trades tradeLister) http.HandlerFunc {
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

		out, err := trades.ListByPortfolio(r.Context(), id, limit)
		if err != nil {
			logger.WithError(err).Error("failed to list trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if out == nil {
			out = []model.Trade{}
		}

		writeJSON(w, http.StatusOK, out)
	}
}

// RecentExceptionsHandler exposes the persisted cycle errors to operators.
func RecentExceptionsHandler(exceptions exceptionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := limitParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		out, err := exceptions.Recent(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to list exceptions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if out == nil {
			out = []model.Exception{}
		}

		writeJSON(w, http.StatusOK, out)
	}
}
