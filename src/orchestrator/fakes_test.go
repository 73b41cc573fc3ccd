package orchestrator

import (
	"context"
	"errors"
	"sync"

	"convictionexecutor/src/agents"
	"convictionexecutor/src/model"
	"convictionexecutor/src/portfolio"
	"convictionexecutor/src/repository"
)

type fakeMarket struct {
	snap *model.MarketSnapshot
	err  error
}

func (f *fakeMarket) Snapshot(context.Context, string) (*model.MarketSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := *f.snap
	return &s, nil
}

type fakeAgent struct {
	name   string
	role   agents.Role
	out    model.AgentOutput
	err    error
	panics bool
	block  bool
}

func (a *fakeAgent) Name() string      { return a.name }
func (a *fakeAgent) Role() agents.Role { return a.role }

func (a *fakeAgent) Analyze(ctx context.Context, _ *model.MarketSnapshot) (*model.AgentOutput, error) {
	if a.panics {
		panic("agent exploded")
	}
	if a.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if a.err != nil {
		return nil, a.err
	}
	out := a.out
	out.AgentName = a.name
	return &out, nil
}

type fakeResolver struct {
	agents map[agents.Role]agents.Agent
	err    error
}

func (f *fakeResolver) Resolve([]string) (map[agents.Role]agents.Agent, error) {
	return f.agents, f.err
}

type fakeTrades struct {
	mu       sync.Mutex
	position float64
	requests []portfolio.TradeRequest
	err      error
	panics   bool
}

func (f *fakeTrades) ExecuteTrade(_ context.Context, req portfolio.TradeRequest) (*model.Trade, error) {
	if f.panics {
		panic("exchange adapter nil map")
	}
	if f.err != nil {
		return nil, f.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if req.Signal == model.TradeSignalBuy {
		f.position += req.PositionSize
	} else {
		f.position -= req.PositionSize
	}
	return &model.Trade{ID: uint(len(f.requests)), PortfolioID: req.PortfolioID, ExecutionID: req.ExecutionID, Side: string(req.Signal)}, nil
}

func (f *fakeTrades) GetPosition(context.Context, uint, float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position, nil
}

type fakePortfolios struct {
	p   *model.Portfolio
	err error
}

func (f *fakePortfolios) FindByID(_ context.Context, id uint) (*model.Portfolio, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.p == nil || f.p.ID != id {
		return nil, nil
	}
	return f.p, nil
}

type fakeThresholds struct{}

func (fakeThresholds) GetOrDefault(_ context.Context, id uint) (*model.ThresholdConfig, error) {
	return model.DefaultThresholdConfig(id), nil
}

type fakeStates struct {
	state *model.DecisionState
}

func (f *fakeStates) Get(context.Context, uint) (*model.DecisionState, error) {
	return f.state, nil
}

// fakeExecutions mimics the status guard of the real repository.
type fakeExecutions struct {
	mu         sync.Mutex
	rows       map[string]*model.StrategyExecution
	audits     map[string][]model.AgentExecution
	lastState  *model.DecisionState
	createErr  error
	beforeDone func(id string)
}

func newFakeExecutions() *fakeExecutions {
	return &fakeExecutions{rows: map[string]*model.StrategyExecution{}, audits: map[string][]model.AgentExecution{}}
}

func (f *fakeExecutions) Create(_ context.Context, exec *model.StrategyExecution) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row := *exec
	f.rows[exec.ID] = &row
	return nil
}

func (f *fakeExecutions) Complete(_ context.Context, exec *model.StrategyExecution, audits []model.AgentExecution, state *model.DecisionState) error {
	if f.beforeDone != nil {
		f.beforeDone(exec.ID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[exec.ID]
	if !ok || row.Status != model.ExecutionStatusRunning {
		return repository.ErrExecutionNotRunning
	}
	done := *exec
	done.Status = model.ExecutionStatusCompleted
	f.rows[exec.ID] = &done
	exec.Status = model.ExecutionStatusCompleted
	f.audits[exec.ID] = audits
	f.lastState = state
	return nil
}

func (f *fakeExecutions) MarkFailed(_ context.Context, id string, details map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[id]
	if !ok || row.Status != model.ExecutionStatusRunning {
		return repository.ErrExecutionNotRunning
	}
	row.Status = model.ExecutionStatusFailed
	row.ErrorDetails = details
	return nil
}

func (f *fakeExecutions) FindByID(_ context.Context, id string) (*model.StrategyExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	out := *row
	return &out, nil
}

func (f *fakeExecutions) LastExecution(context.Context, uint) (*model.StrategyExecution, error) {
	return nil, errors.New("not used")
}

func (f *fakeExecutions) RecentExecutions(_ context.Context, _ uint, limit int) ([]model.StrategyExecution, error) {
	return make([]model.StrategyExecution, limit), nil
}

type fakeExceptions struct {
	mu   sync.Mutex
	rows []model.Exception
}

func (f *fakeExceptions) Create(_ context.Context, exc *model.Exception) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *exc)
	return nil
}

type fakeNotifier struct {
	published []model.StrategyExecution
}

func (f *fakeNotifier) Publish(exec *model.StrategyExecution) {
	f.published = append(f.published, *exec)
}
