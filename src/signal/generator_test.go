package signal

import (
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convictionexecutor/src/model"
)

func newTestGenerator() *Generator {
	logger, _ := logrustest.NewNullLogger()
	return NewGenerator(logrus.NewEntry(logger))
}

func market(fg float64) *model.MarketSnapshot {
	return &model.MarketSnapshot{
		Symbol:    "BTCUSDT",
		Price:     60000,
		Change24h: 1,
		FearGreed: &model.FearGreed{Value: fg},
	}
}

func thresholds() *model.ThresholdConfig {
	th := model.DefaultThresholdConfig(1)
	th.BuyThreshold = 50
	th.FullSellThreshold = 45
	th.FGCircuitBreakerThreshold = 20
	th.FGPositionAdjustThreshold = 30
	th.ConsecutiveSignalThreshold = 3
	th.AccelerationMultiplierMin = 1.2
	th.AccelerationMultiplierMax = 1.5
	th.BuyPositionMin = 0.1
	th.BuyPositionMax = 0.5
	return th
}

func TestCircuitBreakerHoldsForEveryScore(t *testing.T) {
	gen := newTestGenerator()

	for _, score := range []float64{0, 20, 43.14, 45, 47.5, 50, 75, 100} {
		res := gen.Generate(score, market(15), 0.5, &model.DecisionState{}, thresholds())

		assert.Equal(t, model.TradeSignalHold, res.Signal, "score %.2f", score)
		assert.False(t, res.ShouldExecute)
		assert.Zero(t, res.PositionSize)
		assert.Equal(t, model.ZoneNone, res.Zone)
		require.NotEmpty(t, res.Reasons)
		assert.Contains(t, res.Reasons[0], "circuit breaker")
	}
}

func TestCircuitBreakerIgnoredWithoutFearGreed(t *testing.T) {
	gen := newTestGenerator()
	m := market(0)
	m.FearGreed = nil

	res := gen.Generate(30, m, 0.4, nil, thresholds())
	assert.Equal(t, model.TradeSignalSell, res.Signal)
	assert.InDelta(t, 0.4, res.PositionSize, 1e-9)
	assert.Contains(t, res.Warnings, "fear&greed unavailable, circuit breaker not evaluated")
}

func TestMissingFearGreedIsRecordedOnBuy(t *testing.T) {
	gen := newTestGenerator()
	m := market(0)
	m.FearGreed = nil

	res := gen.Generate(75, m, 0, nil, thresholds())
	assert.Equal(t, model.TradeSignalBuy, res.Signal)
	assert.True(t, res.ShouldExecute)
	assert.Equal(t, []string{"fear&greed unavailable, circuit breaker not evaluated"}, res.Warnings)
	require.NotEmpty(t, res.Reasons)
	assert.Contains(t, res.Reasons[0], "fear&greed unavailable")

	withFG := gen.Generate(75, market(50), 0, nil, thresholds())
	for _, w := range withFG.Warnings {
		assert.NotContains(t, w, "fear&greed unavailable")
	}
}

func TestSellZones(t *testing.T) {
	gen := newTestGenerator()

	tests := []struct {
		name         string
		score        float64
		position     float64
		wantSignal   model.TradeSignal
		wantZone     model.SignalZone
		wantSize     float64
		wantStrength float64
		wantExecute  bool
	}{
		{"lower edge of partial zone sells half", 45, 0.5, model.TradeSignalSell, model.ZonePartialSell, 0.25, 0.5, true},
		{"middle of partial zone sells a quarter", 47.5, 0.5, model.TradeSignalSell, model.ZonePartialSell, 0.125, 0.25, true},
		{"full sell liquidates", 40, 0.3, model.TradeSignalSell, model.ZoneFullSell, 0.3, 1.0, true},
		{"flat portfolio in sell zone holds", 40, 0, model.TradeSignalHold, model.ZoneFullSell, 0, 1.0, false},
		{"flat portfolio in partial zone holds", 46, 0, model.TradeSignalHold, model.ZonePartialSell, 0, 0.4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := gen.Generate(tt.score, market(50), tt.position, &model.DecisionState{}, thresholds())

			assert.Equal(t, tt.wantSignal, res.Signal)
			assert.Equal(t, tt.wantZone, res.Zone)
			assert.InDelta(t, tt.wantSize, res.PositionSize, 1e-9)
			assert.InDelta(t, tt.wantStrength, res.SignalStrength, 1e-9)
			assert.Equal(t, tt.wantExecute, res.ShouldExecute)
			assert.False(t, res.IsAccelerated)
			assert.Equal(t, 1.0, res.PositionMultiplier)
		})
	}
}

func TestBuyThresholdBoundaryIsBuyEntry(t *testing.T) {
	gen := newTestGenerator()

	res := gen.Generate(50, market(50), 0.2, &model.DecisionState{}, thresholds())

	assert.Equal(t, model.ZoneBuy, res.Zone)
	assert.Equal(t, model.TradeSignalBuy, res.Signal)
	assert.True(t, res.ShouldExecute)
	assert.InDelta(t, 0.0, res.SignalStrength, 1e-9)
	assert.InDelta(t, 0.1, res.PositionSize, 1e-9)
}

func TestBuySizeScalesWithStrength(t *testing.T) {
	gen := newTestGenerator()

	mid := gen.Generate(75, market(50), 0, nil, thresholds())
	top := gen.Generate(100, market(50), 0, nil, thresholds())

	assert.InDelta(t, 0.5, mid.SignalStrength, 1e-9)
	assert.InDelta(t, 0.3, mid.PositionSize, 1e-9)
	assert.InDelta(t, 0.5, top.PositionSize, 1e-9)
}

func TestFearGreedDeRiskTrimsBuy(t *testing.T) {
	gen := newTestGenerator()

	res := gen.Generate(75, market(25), 0, nil, thresholds())

	assert.Equal(t, model.TradeSignalBuy, res.Signal)
	assert.True(t, res.ShouldExecute)
	assert.InDelta(t, 0.3*0.8, res.PositionSize, 1e-9)

	atBreaker := gen.Generate(75, market(20), 0, nil, thresholds())
	assert.Equal(t, model.TradeSignalBuy, atBreaker.Signal, "breaker is strict less-than")
	assert.InDelta(t, 0.3*0.8, atBreaker.PositionSize, 1e-9)

	atAdjust := gen.Generate(75, market(30), 0, nil, thresholds())
	assert.InDelta(t, 0.3, atAdjust.PositionSize, 1e-9)
}

func TestBuyCappedByFreeCapital(t *testing.T) {
	gen := newTestGenerator()

	capped := gen.Generate(100, market(50), 0.8, nil, thresholds())
	assert.Equal(t, model.TradeSignalBuy, capped.Signal)
	assert.InDelta(t, 0.2, capped.PositionSize, 1e-9)

	full := gen.Generate(100, market(50), 1.0, nil, thresholds())
	assert.Equal(t, model.TradeSignalHold, full.Signal)
	assert.False(t, full.ShouldExecute)
	assert.Zero(t, full.PositionSize)
	assert.Equal(t, model.ZoneBuy, full.Zone)
}

func TestAcceleration(t *testing.T) {
	gen := newTestGenerator()

	tests := []struct {
		name        string
		stored      int
		wantAccel   bool
		wantCount   int
		wantMult    float64
		wantBuySize float64
	}{
		{"first cycle", 0, false, 1, 1.0, 0.3},
		{"below threshold", 1, false, 2, 1.0, 0.3},
		{"reaches threshold", 2, true, 3, 1.2, 0.36},
		{"one past threshold", 3, true, 4, 1.3, 0.39},
		{"capped at max", 10, true, 11, 1.5, 0.45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &model.DecisionState{ConsecutiveBullishCount: tt.stored}
			res := gen.Generate(75, market(50), 0, state, thresholds())

			assert.Equal(t, tt.wantAccel, res.IsAccelerated)
			assert.Equal(t, tt.wantCount, res.ConsecutiveCount)
			assert.InDelta(t, tt.wantMult, res.PositionMultiplier, 1e-9)
			assert.InDelta(t, tt.wantBuySize, res.PositionSize, 1e-9)
			assert.LessOrEqual(t, res.PositionMultiplier, 1.5)
			assert.Equal(t, tt.stored, state.ConsecutiveBullishCount, "state must not be mutated")
		})
	}
}

func TestSellAccelerationUsesBearishStreakAndCapsAtPosition(t *testing.T) {
	gen := newTestGenerator()

	partial := gen.Generate(47.5, market(50), 0.5, &model.DecisionState{ConsecutiveBearishCount: 5, ConsecutiveBullishCount: 9}, thresholds())
	assert.True(t, partial.IsAccelerated)
	assert.Equal(t, 6, partial.ConsecutiveCount)
	assert.InDelta(t, 1.5, partial.PositionMultiplier, 1e-9)
	assert.InDelta(t, 0.125*1.5, partial.PositionSize, 1e-9)

	full := gen.Generate(10, market(50), 0.5, &model.DecisionState{ConsecutiveBearishCount: 5}, thresholds())
	assert.True(t, full.IsAccelerated)
	assert.InDelta(t, 0.5, full.PositionSize, 1e-9, "never sells more than held")
}

func TestRiskLevelAndWarnings(t *testing.T) {
	gen := newTestGenerator()

	m := market(85)
	m.Change24h = -12
	m.Macro = &model.MacroData{DXYIndex: 111}

	res := gen.Generate(60, m, 0, nil, thresholds(), WithAgentConfidence(0.35))

	assert.Equal(t, model.RiskLevelHigh, res.RiskLevel)
	assert.Len(t, res.Warnings, 4)
	assert.Contains(t, res.Warnings[len(res.Warnings)-1], "low agent confidence")

	calm := gen.Generate(60, market(50), 0, nil, thresholds(), WithAgentConfidence(0.9))
	assert.Equal(t, model.RiskLevelLow, calm.RiskLevel)
	assert.Empty(t, calm.Warnings)
}

func TestPositionSizeZeroWheneverNotExecuting(t *testing.T) {
	gen := newTestGenerator()

	for score := 0.0; score <= 100; score += 2.5 {
		for _, pos := range []float64{0, 0.3, 1} {
			for _, fg := range []float64{10, 25, 50} {
				res := gen.Generate(score, market(fg), pos, &model.DecisionState{ConsecutiveBearishCount: 4, ConsecutiveBullishCount: 4}, thresholds())
				if !res.ShouldExecute {
					assert.Zero(t, res.PositionSize, "score=%v pos=%v fg=%v", score, pos, fg)
				}
				assert.GreaterOrEqual(t, res.PositionSize, 0.0)
				assert.LessOrEqual(t, res.PositionSize, 1.0)
			}
		}
	}
}
