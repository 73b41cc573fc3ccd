package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"convictionexecutor/src/model"
	"convictionexecutor/src/orchestrator"
)

type mockRunner struct {
	exec   *model.StrategyExecution
	err    error
	called uint
}

func (m *mockRunner) Execute(_ context.Context, id uint) (*model.StrategyExecution, error) {
	m.called = id
	return m.exec, m.err
}

type mockHistory struct {
	last     *model.StrategyExecution
	recent   []model.StrategyExecution
	err      error
	gotLimit int
	gotID    uint
}

func (m *mockHistory) LastExecution(_ context.Context, id uint) (*model.StrategyExecution, error) {
	m.gotID = id
	return m.last, m.err
}

func (m *mockHistory) RecentExecutions(_ context.Context, id uint, limit int) ([]model.StrategyExecution, error) {
	m.gotID = id
	m.gotLimit = limit
	return m.recent, m.err
}

type mockPortfolios struct {
	portfolios map[uint]*model.Portfolio
	setErr     error
}

func (m *mockPortfolios) FindByID(_ context.Context, id uint) (*model.Portfolio, error) {
	return m.portfolios[id], nil
}

func (m *mockPortfolios) SetActive(_ context.Context, id uint, active bool, period int) error {
	if m.setErr != nil {
		return m.setErr
	}
	p, ok := m.portfolios[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.Active = active
	if period > 0 {
		p.PeriodMinutes = period
	}
	return nil
}

type mockScheduler struct {
	active map[uint]int
	err    error
}

func (m *mockScheduler) OnActivate(id uint, period int) error {
	if m.err != nil {
		return m.err
	}
	m.active[id] = period
	return nil
}

func (m *mockScheduler) OnDeactivate(id uint) { delete(m.active, id) }

type mockThresholds struct {
	stored map[uint]*model.ThresholdConfig
}

func (m *mockThresholds) GetOrDefault(_ context.Context, id uint) (*model.ThresholdConfig, error) {
	if cfg, ok := m.stored[id]; ok {
		return cfg, nil
	}
	return model.DefaultThresholdConfig(id), nil
}

func (m *mockThresholds) Upsert(_ context.Context, cfg *model.ThresholdConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.stored[cfg.PortfolioID] = cfg
	return nil
}

type mockTrades struct {
	trades   []model.Trade
	gotLimit int
}

func (m *mockTrades) ListByPortfolio(_ context.Context, _ uint, limit int) ([]model.Trade, error) {
	m.gotLimit = limit
	return m.trades, nil
}

// serve routes req through chi so URL params resolve like in production.
func serve(method, pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, h)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestExecuteHandler(t *testing.T) {
	runner := &mockRunner{exec: &model.StrategyExecution{ID: "e1", PortfolioID: 4, Status: model.ExecutionStatusFailed}}

	rr := serve(http.MethodPost, "/portfolios/{id}/execute", ExecuteHandler(runner),
		httptest.NewRequest(http.MethodPost, "/portfolios/4/execute", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, uint(4), runner.called)
	var got model.StrategyExecution
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "e1", got.ID)
	assert.Equal(t, model.ExecutionStatusFailed, got.Status, "failed cycles are still a 200 with the record")
}

func TestExecuteHandlerErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		err  error
		want int
	}{
		{"bad id", "/portfolios/abc/execute", nil, http.StatusBadRequest},
		{"zero id", "/portfolios/0/execute", nil, http.StatusBadRequest},
		{"not found", "/portfolios/9/execute", fmt.Errorf("%w: 9", orchestrator.ErrPortfolioNotFound), http.StatusNotFound},
		{"create failed", "/portfolios/9/execute", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(http.MethodPost, "/portfolios/{id}/execute", ExecuteHandler(&mockRunner{err: tt.err}),
				httptest.NewRequest(http.MethodPost, tt.path, nil))
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestLastExecutionHandler(t *testing.T) {
	history := &mockHistory{}
	rr := serve(http.MethodGet, "/portfolios/{id}/executions/last", LastExecutionHandler(history),
		httptest.NewRequest(http.MethodGet, "/portfolios/2/executions/last", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	history.last = &model.StrategyExecution{ID: "e9", PortfolioID: 2}
	rr = serve(http.MethodGet, "/portfolios/{id}/executions/last", LastExecutionHandler(history),
		httptest.NewRequest(http.MethodGet, "/portfolios/2/executions/last", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"id":"e9"`)
	assert.Equal(t, uint(2), history.gotID)
}

func TestRecentExecutionsHandler(t *testing.T) {
	history := &mockHistory{}

	rr := serve(http.MethodGet, "/portfolios/{id}/executions", RecentExecutionsHandler(history),
		httptest.NewRequest(http.MethodGet, "/portfolios/2/executions?limit=5", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 5, history.gotLimit)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = serve(http.MethodGet, "/portfolios/{id}/executions", RecentExecutionsHandler(history),
		httptest.NewRequest(http.MethodGet, "/portfolios/2/executions", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Zero(t, history.gotLimit, "absent limit is left to the store default")

	rr = serve(http.MethodGet, "/portfolios/{id}/executions", RecentExecutionsHandler(history),
		httptest.NewRequest(http.MethodGet, "/portfolios/2/executions?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	history.err = assert.AnError
	rr = serve(http.MethodGet, "/portfolios/{id}/executions", RecentExecutionsHandler(history),
		httptest.NewRequest(http.MethodGet, "/portfolios/2/executions", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestActivateAndDeactivate(t *testing.T) {
	store := &mockPortfolios{portfolios: map[uint]*model.Portfolio{3: {ID: 3, PeriodMinutes: 60}}}
	sched := &mockScheduler{active: map[uint]int{}}

	rr := serve(http.MethodPost, "/portfolios/{id}/activate", ActivateHandler(store, sched),
		httptest.NewRequest(http.MethodPost, "/portfolios/3/activate", strings.NewReader(`{"period_minutes":15}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 15, sched.active[3])
	assert.True(t, store.portfolios[3].Active)

	// empty body keeps the stored period
	rr = serve(http.MethodPost, "/portfolios/{id}/activate", ActivateHandler(store, sched),
		httptest.NewRequest(http.MethodPost, "/portfolios/3/activate", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 15, sched.active[3])

	rr = serve(http.MethodPost, "/portfolios/{id}/deactivate", DeactivateHandler(store, sched),
		httptest.NewRequest(http.MethodPost, "/portfolios/3/deactivate", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, sched.active)
	assert.False(t, store.portfolios[3].Active)
}

func TestActivateErrors(t *testing.T) {
	store := &mockPortfolios{portfolios: map[uint]*model.Portfolio{3: {ID: 3, PeriodMinutes: 60}}}
	sched := &mockScheduler{active: map[uint]int{}}

	rr := serve(http.MethodPost, "/portfolios/{id}/activate", ActivateHandler(store, sched),
		httptest.NewRequest(http.MethodPost, "/portfolios/8/activate", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(http.MethodPost, "/portfolios/{id}/activate", ActivateHandler(store, sched),
		httptest.NewRequest(http.MethodPost, "/portfolios/3/activate", strings.NewReader(`{"period_minutes":-5}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(http.MethodPost, "/portfolios/{id}/activate", ActivateHandler(store, sched),
		httptest.NewRequest(http.MethodPost, "/portfolios/3/activate", strings.NewReader(`{not json`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	sched.err = assert.AnError
	rr = serve(http.MethodPost, "/portfolios/{id}/activate", ActivateHandler(store, sched),
		httptest.NewRequest(http.MethodPost, "/portfolios/3/activate", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = serve(http.MethodPost, "/portfolios/{id}/deactivate", DeactivateHandler(store, sched),
		httptest.NewRequest(http.MethodPost, "/portfolios/8/deactivate", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetPortfolioHandler(t *testing.T) {
	store := &mockPortfolios{portfolios: map[uint]*model.Portfolio{3: {ID: 3, Name: "paper-btc", Symbol: "BTCUSDT"}}}

	rr := serve(http.MethodGet, "/portfolios/{id}", GetPortfolioHandler(store),
		httptest.NewRequest(http.MethodGet, "/portfolios/3", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"name":"paper-btc"`)

	rr = serve(http.MethodGet, "/portfolios/{id}", GetPortfolioHandler(store),
		httptest.NewRequest(http.MethodGet, "/portfolios/4", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestThresholdHandlers(t *testing.T) {
	store := &mockThresholds{stored: map[uint]*model.ThresholdConfig{}}
	portfolios := &mockPortfolios{portfolios: map[uint]*model.Portfolio{3: {ID: 3}}}

	rr := serve(http.MethodGet, "/portfolios/{id}/thresholds", GetThresholdsHandler(store),
		httptest.NewRequest(http.MethodGet, "/portfolios/3/thresholds", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var got model.ThresholdConfig
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, model.DefaultBuyThreshold, got.BuyThreshold)

	cfg := *model.DefaultThresholdConfig(99)
	cfg.BuyThreshold = 60
	body, _ := json.Marshal(cfg)
	rr = serve(http.MethodPut, "/portfolios/{id}/thresholds", PutThresholdsHandler(portfolios, store),
		httptest.NewRequest(http.MethodPut, "/portfolios/3/thresholds", strings.NewReader(string(body))))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, store.stored, uint(3), "path id wins over body")
	assert.Equal(t, 60.0, store.stored[3].BuyThreshold)

	cfg.FullSellThreshold = 70
	body, _ = json.Marshal(cfg)
	rr = serve(http.MethodPut, "/portfolios/{id}/thresholds", PutThresholdsHandler(portfolios, store),
		httptest.NewRequest(http.MethodPut, "/portfolios/3/thresholds", strings.NewReader(string(body))))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "full_sell_threshold")

	rr = serve(http.MethodPut, "/portfolios/{id}/thresholds", PutThresholdsHandler(portfolios, store),
		httptest.NewRequest(http.MethodPut, "/portfolios/5/thresholds", strings.NewReader(string(body))))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListTradesHandler(t *testing.T) {
	trades := &mockTrades{trades: []model.Trade{{ID: 1, Side: "BUY"}}}

	rr := serve(http.MethodGet, "/portfolios/{id}/trades", ListTradesHandler(trades),
		httptest.NewRequest(http.MethodGet, "/portfolios/3/trades?limit=10", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 10, trades.gotLimit)
	assert.Contains(t, rr.Body.String(), `"side":"BUY"`)
}
