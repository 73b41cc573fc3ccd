package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"convictionexecutor/src/agents"
	"convictionexecutor/src/conviction"
	"convictionexecutor/src/model"
	"convictionexecutor/src/portfolio"
	"convictionexecutor/src/repository"
	"convictionexecutor/src/signal"
)

var ErrPortfolioNotFound = errors.New("portfolio not found")

type MarketData interface {
	Snapshot(ctx context.Context, symbol string) (*model.MarketSnapshot, error)
}

type AgentResolver interface {
	Resolve(names []string) (map[agents.Role]agents.Agent, error)
}

type TradeExecutor interface {
	ExecuteTrade(ctx context.Context, req portfolio.TradeRequest) (*model.Trade, error)
	GetPosition(ctx context.Context, portfolioID uint, price float64) (float64, error)
}

type PortfolioStore interface {
	FindByID(ctx context.Context, id uint) (*model.Portfolio, error)
}

type ThresholdStore interface {
	GetOrDefault(ctx context.Context, portfolioID uint) (*model.ThresholdConfig, error)
}

type StateStore interface {
	Get(ctx context.Context, portfolioID uint) (*model.DecisionState, error)
}

type ExecutionStore interface {
	Create(ctx context.Context, exec *model.StrategyExecution) error
	Complete(ctx context.Context, exec *model.StrategyExecution, audits []model.AgentExecution, state *model.DecisionState) error
	MarkFailed(ctx context.Context, id string, details map[string]interface{}) error
	FindByID(ctx context.Context, id string) (*model.StrategyExecution, error)
	LastExecution(ctx context.Context, portfolioID uint) (*model.StrategyExecution, error)
	RecentExecutions(ctx context.Context, portfolioID uint, limit int) ([]model.StrategyExecution, error)
}

type ExceptionStore interface {
	Create(ctx context.Context, exc *model.Exception) error
}

// Notifier receives every finalized execution. Publish must not block.
type Notifier interface {
	Publish(exec *model.StrategyExecution)
}

// Dependencies are the collaborators of an Orchestrator. Notifier and Exceptions are optional.
type Dependencies struct {
	Market     MarketData
	Agents     AgentResolver
	Trades     TradeExecutor
	Portfolios PortfolioStore
	Thresholds ThresholdStore
	States     StateStore
	Executions ExecutionStore
	Exceptions ExceptionStore
	Notifier   Notifier
}

// Orchestrator runs one decision cycle for one portfolio.
type Orchestrator struct {
	logger     *logrus.Entry
	deps       Dependencies
	config     Config
	calculator *conviction.Calculator
	generator  *signal.Generator
	now        func() time.Time
	newID      func() string
}

func New(logger *logrus.Entry, config Config, deps Dependencies) *Orchestrator {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if config.FinalizeTimeout <= 0 {
		config.FinalizeTimeout = 15 * time.Second
	}
	if config.WeightMacro == 0 && config.WeightTA == 0 && config.WeightOnchain == 0 {
		w := conviction.DefaultWeights()
		config.WeightMacro, config.WeightTA, config.WeightOnchain = w.Macro, w.TA, w.Onchain
	}

	return &Orchestrator{
		logger:     logger.WithField("component", "orchestrator"),
		deps:       deps,
		config:     config,
		calculator: conviction.NewCalculator(logger),
		generator:  signal.NewGenerator(logger),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Execute runs a full cycle. The error is non-nil only when the portfolio cannot be loaded or the
// running record cannot be created; every later failure is reported through a failed record.
func (o *Orchestrator) Execute(ctx context.Context, portfolioID uint) (*model.StrategyExecution, error) {
	p, err := o.deps.Portfolios.FindByID(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("load portfolio %d: %w", portfolioID, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %d", ErrPortfolioNotFound, portfolioID)
	}

	exec := &model.StrategyExecution{
		ID:            o.newID(),
		PortfolioID:   p.ID,
		ExecutionTime: o.now().UTC(),
		Status:        model.ExecutionStatusRunning,
	}
	if err := o.deps.Executions.Create(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution record: %w", err)
	}

	log := o.logger.WithFields(logrus.Fields{
		"portfolio_id": p.ID,
		"execution_id": exec.ID,
	})
	log.Info("strategy cycle started")

	c := &cycle{o: o, log: log, portfolio: p, exec: exec, stage: "start"}
	c.run(ctx)

	return c.exec, nil
}

func (o *Orchestrator) LastExecution(ctx context.Context, portfolioID uint) (*model.StrategyExecution, error) {
	return o.deps.Executions.LastExecution(ctx, portfolioID)
}

func (o *Orchestrator) RecentExecutions(ctx context.Context, portfolioID uint, limit int) ([]model.StrategyExecution, error) {
	return o.deps.Executions.RecentExecutions(ctx, portfolioID, repository.NormalizeLimit(limit))
}

// cycle carries the per-run state so a recovered panic still knows where it happened.
type cycle struct {
	o         *Orchestrator
	log       *logrus.Entry
	portfolio *model.Portfolio
	exec      *model.StrategyExecution
	stage     string
}

type agentRun struct {
	output   *model.AgentOutput
	duration time.Duration
}

func (c *cycle) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.failUnexpected(ctx, fmt.Errorf("panic: %v", r), string(debug.Stack()))
		}
	}()

	c.stage = "thresholds"
	thresholds := c.portfolio.Thresholds
	if thresholds == nil {
		t, err := c.o.deps.Thresholds.GetOrDefault(ctx, c.portfolio.ID)
		if err != nil {
			c.failUnexpected(ctx, err, "")
			return
		}
		thresholds = t
	}

	c.stage = "market_data"
	market, err := c.o.deps.Market.Snapshot(ctx, c.portfolio.Symbol)
	if err != nil {
		c.fail(ctx, map[string]interface{}{
			"error_type":    model.ErrorTypeMarketData,
			"error_message": err.Error(),
		})
		return
	}

	c.stage = "resolve_agents"
	resolved, err := c.o.deps.Agents.Resolve(c.portfolio.AgentNames())
	if err != nil {
		c.failUnexpected(ctx, err, "")
		return
	}

	c.stage = "agents"
	runs, err := c.runAgents(ctx, resolved, market)
	if err != nil {
		var agentErr *agents.AgentExecutionError
		if !errors.As(err, &agentErr) {
			agentErr = &agents.AgentExecutionError{Err: err}
		}
		c.fail(ctx, map[string]interface{}{
			"error_type":    model.ErrorTypeAgentExecution,
			"failed_agent":  agentErr.AgentName,
			"error_message": agentErr.Err.Error(),
			"retry_count":   agentErr.RetryCount,
		})
		return
	}

	c.stage = "scoring"
	weights := c.o.config.Weights()
	conv := c.o.calculator.Calculate(
		outputFor(runs, agents.RoleMacro),
		outputFor(runs, agents.RoleTA),
		outputFor(runs, agents.RoleOnchain),
		market,
		&weights,
	)

	c.stage = "decision_state"
	state, err := c.o.deps.States.Get(ctx, c.portfolio.ID)
	if err != nil {
		c.failUnexpected(ctx, err, "")
		return
	}

	c.stage = "position"
	position, err := c.o.deps.Trades.GetPosition(ctx, c.portfolio.ID, market.Price)
	if err != nil {
		c.failUnexpected(ctx, err, "")
		return
	}

	c.stage = "signal"
	sig := c.o.generator.Generate(conv.Score, market, position, state, thresholds,
		signal.WithAgentConfidence(conv.AverageConfidence))

	var trade *model.Trade
	if sig.ShouldExecute {
		c.stage = "trade"
		trade, err = c.o.deps.Trades.ExecuteTrade(ctx, portfolio.TradeRequest{
			PortfolioID:  c.portfolio.ID,
			ExecutionID:  c.exec.ID,
			Signal:       sig.Signal,
			PositionSize: sig.PositionSize,
			Price:        market.Price,
		})
		if err != nil {
			c.failUnexpected(ctx, err, "")
			return
		}

		position, err = c.o.deps.Trades.GetPosition(ctx, c.portfolio.ID, market.Price)
		if err != nil {
			c.failUnexpected(ctx, err, "")
			return
		}
	}

	c.stage = "persist"
	next := NextDecisionState(state, c.portfolio.ID, sig.Zone, conv.Score, position, c.o.now())
	c.complete(ctx, conv, sig, trade, runs, next)
}

func (c *cycle) runAgents(
	ctx context.Context,
	resolved map[agents.Role]agents.Agent,
	market *model.MarketSnapshot,
) (map[agents.Role]agentRun, error) {
	if c.o.config.AgentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.o.config.AgentTimeout)
		defer cancel()
	}

	roles := make([]agents.Role, 0, len(resolved))
	for role := range resolved {
		roles = append(roles, role)
	}
	results := make([]agentRun, len(roles))

	g, gctx := errgroup.WithContext(ctx)
	for i, role := range roles {
		agent := resolved[role]
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &agents.AgentExecutionError{AgentName: agent.Name(), Err: fmt.Errorf("panic: %v", r)}
				}
			}()

			start := c.o.now()
			out, err := agent.Analyze(gctx, market)
			if err != nil {
				var agentErr *agents.AgentExecutionError
				if errors.As(err, &agentErr) {
					return err
				}
				return &agents.AgentExecutionError{AgentName: agent.Name(), Err: err}
			}
			results[i] = agentRun{output: out, duration: c.o.now().Sub(start)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[agents.Role]agentRun, len(roles))
	for i, role := range roles {
		out[role] = results[i]
	}
	return out, nil
}

func outputFor(runs map[agents.Role]agentRun, role agents.Role) *model.AgentOutput {
	run, ok := runs[role]
	if !ok {
		return nil
	}
	return run.output
}

type convictionDetail struct {
	Conviction model.ConvictionResult `json:"conviction"`
	Zone       model.SignalZone       `json:"zone"`
	Strength   float64                `json:"signal_strength"`
	Count      int                    `json:"consecutive_count"`
	Multiplier float64                `json:"position_multiplier"`
}

func (c *cycle) complete(
	ctx context.Context,
	conv model.ConvictionResult,
	sig model.TradeSignalResult,
	trade *model.Trade,
	runs map[agents.Role]agentRun,
	next *model.DecisionState,
) {
	detail, err := json.Marshal(convictionDetail{
		Conviction: conv,
		Zone:       sig.Zone,
		Strength:   sig.SignalStrength,
		Count:      sig.ConsecutiveCount,
		Multiplier: sig.PositionMultiplier,
	})
	if err != nil {
		c.failUnexpected(ctx, err, "")
		return
	}

	score := conv.Score
	size := sig.PositionSize
	completedAt := c.o.now().UTC()
	c.exec.ConvictionScore = &score
	c.exec.Signal = string(sig.Signal)
	c.exec.PositionSize = &size
	c.exec.RiskLevel = string(sig.RiskLevel)
	c.exec.IsAccelerated = sig.IsAccelerated
	c.exec.Reasons = sig.Reasons
	c.exec.Warnings = sig.Warnings
	c.exec.ConvictionDetail = datatypes.JSON(detail)
	c.exec.CompletedAt = &completedAt
	if trade != nil {
		c.exec.TradeID = &trade.ID
	}

	audits := make([]model.AgentExecution, 0, len(runs))
	for _, run := range runs {
		audits = append(audits, model.AgentExecution{
			AgentName:  run.output.AgentName,
			Signal:     string(run.output.Signal),
			Score:      run.output.Score,
			Confidence: run.output.Confidence,
			Reasoning:  run.output.Reasoning,
			DurationMs: run.duration.Milliseconds(),
		})
	}

	fctx, cancel := c.finalizeContext(ctx)
	defer cancel()

	err = c.o.deps.Executions.Complete(fctx, c.exec, audits, next)
	if errors.Is(err, repository.ErrExecutionNotRunning) {
		c.log.WithField("error_type", "execution_not_running").
			Warn("execution was finalized elsewhere before completion, keeping stored record")
		if stored, ferr := c.o.deps.Executions.FindByID(fctx, c.exec.ID); ferr == nil && stored != nil {
			c.exec = stored
		}
		c.publish()
		return
	}
	if err != nil {
		c.failUnexpected(ctx, err, "")
		return
	}

	c.log.WithFields(logrus.Fields{
		"conviction":    score,
		"signal":        sig.Signal,
		"position_size": size,
		"risk_level":    sig.RiskLevel,
		"accelerated":   sig.IsAccelerated,
		"traded":        trade != nil,
	}).Info("strategy cycle completed")

	c.publish()
}

// fail records an expected failure (agent or market data) on the execution row.
func (c *cycle) fail(ctx context.Context, details map[string]interface{}) {
	c.exec.Status = model.ExecutionStatusFailed
	c.exec.ErrorDetails = details
	now := c.o.now().UTC()
	c.exec.CompletedAt = &now

	fctx, cancel := c.finalizeContext(ctx)
	defer cancel()

	if err := c.o.deps.Executions.MarkFailed(fctx, c.exec.ID, details); err != nil {
		c.log.WithError(err).Error("failed to record failed execution")
	}

	c.log.WithFields(logrus.Fields(details)).Warn("strategy cycle failed")
	c.publish()
}

// failUnexpected records a cycle_error and persists an exception for operators.
func (c *cycle) failUnexpected(ctx context.Context, cause error, stack string) {
	details := map[string]interface{}{
		"error_type":    model.ErrorTypeCycle,
		"error_message": cause.Error(),
		"stage":         c.stage,
	}

	if c.o.deps.Exceptions != nil {
		excContext, _ := json.Marshal(map[string]interface{}{
			"portfolio_id": c.portfolio.ID,
			"execution_id": c.exec.ID,
			"stage":        c.stage,
		})

		fctx, cancel := c.finalizeContext(ctx)
		err := c.o.deps.Exceptions.Create(fctx, &model.Exception{
			Service: "orchestrator",
			Module:  "strategy_cycle",
			Method:  "Execute",
			Message: cause.Error(),
			Stack:   stack,
			Level:   "error",
			Context: datatypes.JSON(excContext),
		})
		cancel()
		if err != nil {
			c.log.WithError(err).Error("failed to persist exception")
		}
	}

	c.log.WithError(cause).WithField("stage", c.stage).Error("unexpected error in strategy cycle")
	c.fail(ctx, details)
}

func (c *cycle) finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.o.config.FinalizeTimeout)
}

func (c *cycle) publish() {
	if c.o.deps.Notifier != nil {
		c.o.deps.Notifier.Publish(c.exec)
	}
}
