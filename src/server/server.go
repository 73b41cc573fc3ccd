package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"

	"convictionexecutor/src/auth"
	"convictionexecutor/src/handler"
	"convictionexecutor/src/model"
)

// Orchestrator is the part of the strategy orchestrator the routes use.
type Orchestrator interface {
	Execute(ctx context.Context, portfolioID uint) (*model.StrategyExecution, error)
	LastExecution(ctx context.Context, portfolioID uint) (*model.StrategyExecution, error)
	RecentExecutions(ctx context.Context, portfolioID uint, limit int) ([]model.StrategyExecution, error)
}

type Portfolios interface {
	FindByID(ctx context.Context, id uint) (*model.Portfolio, error)
	SetActive(ctx context.Context, id uint, active bool, periodMinutes int) error
}

type Scheduler interface {
	OnActivate(portfolioID uint, periodMinutes int) error
	OnDeactivate(portfolioID uint)
}

type Thresholds interface {
	GetOrDefault(ctx context.Context, portfolioID uint) (*model.ThresholdConfig, error)
	Upsert(ctx context.Context, cfg *model.ThresholdConfig) error
}

type Trades interface {
	ListByPortfolio(ctx context.Context, portfolioID uint, limit int) ([]model.Trade, error)
}

type Exceptions interface {
	Recent(ctx context.Context, limit int) ([]model.Exception, error)
}

// Routes groups everything the HTTP surface needs. Stream may be nil.
type Routes struct {
	Orchestrator   Orchestrator
	Portfolios     Portfolios
	Scheduler      Scheduler
	Thresholds     Thresholds
	Trades         Trades
	Exceptions     Exceptions
	Stream         http.Handler
	AdminTokenHash string
}

func NewRouter(rt Routes) chi.Router {
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})
	if rt.Stream != nil {
		r.Handle("/ws/executions", rt.Stream)
	}

	r.Route("/portfolios/{id}", func(r chi.Router) {
		r.Get("/", handler.GetPortfolioHandler(rt.Portfolios))
		r.Get("/executions/last", handler.LastExecutionHandler(rt.Orchestrator))
		r.Get("/executions", handler.RecentExecutionsHandler(rt.Orchestrator))
		r.Get("/thresholds", handler.GetThresholdsHandler(rt.Thresholds))
		r.Get("/trades", handler.ListTradesHandler(rt.Trades))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdminToken(rt.AdminTokenHash))
			r.Post("/execute", handler.ExecuteHandler(rt.Orchestrator))
			r.Post("/activate", handler.ActivateHandler(rt.Portfolios, rt.Scheduler))
			r.Post("/deactivate", handler.DeactivateHandler(rt.Portfolios, rt.Scheduler))
			r.Put("/thresholds", handler.PutThresholdsHandler(rt.Portfolios, rt.Thresholds))
		})
	})

	r.With(auth.RequireAdminToken(rt.AdminTokenHash)).
		Get("/exceptions", handler.RecentExceptionsHandler(rt.Exceptions))

	return r
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, port string, h http.Handler, shutdownTimeout time.Duration) error {
	addr := ":" + port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
