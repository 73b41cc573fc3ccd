package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"convictionexecutor/src/agents"
	"convictionexecutor/src/auth"
	"convictionexecutor/src/database"
	"convictionexecutor/src/marketdata"
	"convictionexecutor/src/model"
	"convictionexecutor/src/orchestrator"
	"convictionexecutor/src/portfolio"
	"convictionexecutor/src/repository"
	"convictionexecutor/src/scheduler"
	"convictionexecutor/src/server"
	"convictionexecutor/src/stream"
)

// Executor wires the decision engine: repositories, agents, market data, orchestrator and scheduler.
type Executor struct {
	Log *logrus.Entry

	orchestrator *orchestrator.Orchestrator
	scheduler    *scheduler.Scheduler
	hub          *stream.Hub
	portfolios   *repository.PortfolioRepository
	thresholds   *repository.ThresholdRepository
	trades       *repository.TradeRepository
	exceptions   *repository.ExceptionRepository
}

// New connects the main database (running migrations) and builds every component.
func New(log *logrus.Entry) (*Executor, error) {
	if log == nil {
		log = logrus.WithField("cmd", "executor")
	}

	if err := database.InitMainDB(); err != nil {
		return nil, fmt.Errorf("init main db: %w", err)
	}

	registry, err := agents.LoadRegistry(agents.GetConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("load agent registry: %w", err)
	}
	log.WithField("agents", registry.Names()).Info("agent registry loaded")

	executions := repository.NewExecutionRepository()
	e := &Executor{
		Log:        log,
		hub:        stream.NewHub(log),
		portfolios: repository.NewPortfolioRepository(),
		thresholds: repository.NewThresholdRepository(),
		trades:     repository.NewTradeRepository(),
		exceptions: repository.NewExceptionRepository(),
	}

	e.orchestrator = orchestrator.New(log, orchestrator.GetConfig(), orchestrator.Dependencies{
		Market:     marketdata.NewService(marketdata.GetConfig(), log),
		Agents:     registry,
		Trades:     portfolio.NewService(log),
		Portfolios: e.portfolios,
		Thresholds: e.thresholds,
		States:     repository.NewDecisionStateRepository(),
		Executions: executions,
		Exceptions: e.exceptions,
		Notifier:   e.hub,
	})
	e.scheduler = scheduler.New(log, scheduler.GetConfig(), e.orchestrator, e.portfolios, executions)

	return e, nil
}

// Serve runs the scheduler and the HTTP API until ctx is cancelled.
func (e *Executor) Serve(ctx context.Context) error {
	config := GetConfig()
	srvConfig := server.GetConfig()

	if config.RunScheduler {
		if err := e.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer e.scheduler.Stop()
	} else {
		e.Log.Warn("RUN_SCHEDULER=false, portfolios will only run on demand")
	}
	defer e.hub.Close()

	router := server.NewRouter(server.Routes{
		Orchestrator:   e.orchestrator,
		Portfolios:     e.portfolios,
		Scheduler:      e.scheduler,
		Thresholds:     e.thresholds,
		Trades:         e.trades,
		Exceptions:     e.exceptions,
		Stream:         e.hub,
		AdminTokenHash: auth.GetConfig().AdminTokenHash,
	})

	return server.Serve(ctx, srvConfig.Port, router, srvConfig.ShutdownTimeout)
}

// ExecuteOnce runs a single cycle outside the scheduler.
func (e *Executor) ExecuteOnce(ctx context.Context, portfolioID uint) (*model.StrategyExecution, error) {
	return e.orchestrator.Execute(ctx, portfolioID)
}

// Cleanup runs the stuck-execution sweep once.
func (e *Executor) Cleanup(ctx context.Context, timeout time.Duration) (int, error) {
	return e.scheduler.CleanupStuck(ctx, timeout)
}
