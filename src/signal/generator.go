package signal

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"convictionexecutor/src/model"
	"convictionexecutor/src/risk"
)

const (
	// positions at or below this are treated as flat
	positionEpsilon = 1e-9

	maxPartialSellFraction = 0.5
	fgDeRiskMultiplier     = 0.8
	lowConfidenceWarnBelow = 0.5
)

// Option tunes a single Generate call.
type Option func(*options)

type options struct {
	agentConfidence *float64
}

// WithAgentConfidence passes the mean agent confidence so low-confidence cycles are flagged.
func WithAgentConfidence(avg float64) Option {
	return func(o *options) {
		o.agentConfidence = &avg
	}
}

// Generator maps a conviction score to a trade signal and position size.
// It never mutates the decision state it is given.
type Generator struct {
	logger *logrus.Entry
}

func NewGenerator(logger *logrus.Entry) *Generator {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Generator{logger: logger.WithField("component", "signal")}
}

// Generate evaluates, in priority order: circuit breaker, zone, sell sizing, buy sizing.
// currentPosition is the invested fraction of total portfolio value.
func (g *Generator) Generate(
	score float64,
	market *model.MarketSnapshot,
	currentPosition float64,
	state *model.DecisionState,
	thresholds *model.ThresholdConfig,
	opts ...Option,
) model.TradeSignalResult {
	if thresholds == nil {
		thresholds = model.DefaultThresholdConfig(0)
	}
	if state == nil {
		state = &model.DecisionState{}
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	assessment := risk.Assess(market)
	res := model.TradeSignalResult{
		Signal:             model.TradeSignalHold,
		Zone:               model.ZoneNone,
		RiskLevel:          assessment.Level,
		PositionMultiplier: 1.0,
		Reasons:            []string{},
		Warnings:           warningsFor(assessment, o),
	}
	currentPosition = clamp01(currentPosition)

	fg, hasFG := market.FearGreedValue()
	if !hasFG {
		res.Reasons = append(res.Reasons, "fear&greed unavailable: circuit breaker and fear de-risking not evaluated")
		res.Warnings = append(res.Warnings, "fear&greed unavailable, circuit breaker not evaluated")
	}
	if hasFG && fg < thresholds.FGCircuitBreakerThreshold {
		res.Reasons = append(res.Reasons, fmt.Sprintf(
			"circuit breaker: fear&greed %.0f below %.0f, holding regardless of conviction %.2f",
			fg, thresholds.FGCircuitBreakerThreshold, score))
		res.Warnings = append(res.Warnings, "circuit breaker tripped, trading halted")
		g.log(res, score)
		return res
	}

	switch {
	case score >= thresholds.BuyThreshold:
		res.Zone = model.ZoneBuy
		g.sizeBuy(&res, score, fg, hasFG, currentPosition, state, thresholds)
	case score >= thresholds.FullSellThreshold:
		res.Zone = model.ZonePartialSell
		fraction := maxPartialSellFraction * (thresholds.BuyThreshold - score) / (thresholds.BuyThreshold - thresholds.FullSellThreshold)
		res.Reasons = append(res.Reasons, fmt.Sprintf(
			"partial sell zone: conviction %.2f in [%.2f, %.2f), sell fraction %.4f",
			score, thresholds.FullSellThreshold, thresholds.BuyThreshold, fraction))
		g.sizeSell(&res, fraction, currentPosition, state, thresholds)
	default:
		res.Zone = model.ZoneFullSell
		res.Reasons = append(res.Reasons, fmt.Sprintf(
			"full sell zone: conviction %.2f below %.2f, liquidating position",
			score, thresholds.FullSellThreshold))
		g.sizeSell(&res, 1.0, currentPosition, state, thresholds)
	}

	if !res.ShouldExecute {
		res.PositionSize = 0
	}

	g.log(res, score)
	return res
}

func (g *Generator) sizeSell(
	res *model.TradeSignalResult,
	fraction float64,
	currentPosition float64,
	state *model.DecisionState,
	th *model.ThresholdConfig,
) {
	res.SignalStrength = fraction
	res.ConsecutiveCount = state.ConsecutiveBearishCount + 1

	if currentPosition <= positionEpsilon {
		res.Reasons = append(res.Reasons, "no open position to sell, holding")
		return
	}

	size := fraction * currentPosition
	if mult, ok := accelerationMultiplier(res.ConsecutiveCount, th); ok {
		size *= mult
		res.IsAccelerated = true
		res.PositionMultiplier = mult
		res.Reasons = append(res.Reasons, fmt.Sprintf(
			"bearish streak of %d cycles (threshold %d), sell size x%.3f",
			res.ConsecutiveCount, th.ConsecutiveSignalThreshold, mult))
	}
	if size > currentPosition {
		size = currentPosition
	}

	res.Signal = model.TradeSignalSell
	res.PositionSize = size
	res.ShouldExecute = size > positionEpsilon
}

func (g *Generator) sizeBuy(
	res *model.TradeSignalResult,
	score float64,
	fg float64,
	hasFG bool,
	currentPosition float64,
	state *model.DecisionState,
	th *model.ThresholdConfig,
) {
	strength := 1.0
	if span := 100 - th.BuyThreshold; span > 0 {
		strength = clamp01((score - th.BuyThreshold) / span)
	}
	res.SignalStrength = strength
	res.ConsecutiveCount = state.ConsecutiveBullishCount + 1

	size := th.BuyPositionMin + strength*(th.BuyPositionMax-th.BuyPositionMin)
	res.Reasons = append(res.Reasons, fmt.Sprintf(
		"buy zone: conviction %.2f >= %.2f, strength %.3f, base size %.4f",
		score, th.BuyThreshold, strength, size))

	if hasFG && fg < th.FGPositionAdjustThreshold {
		size *= fgDeRiskMultiplier
		res.Reasons = append(res.Reasons, fmt.Sprintf(
			"fear&greed %.0f below %.0f, buy size x%.1f",
			fg, th.FGPositionAdjustThreshold, fgDeRiskMultiplier))
	}

	if mult, ok := accelerationMultiplier(res.ConsecutiveCount, th); ok {
		size *= mult
		res.IsAccelerated = true
		res.PositionMultiplier = mult
		res.Reasons = append(res.Reasons, fmt.Sprintf(
			"bullish streak of %d cycles (threshold %d), buy size x%.3f",
			res.ConsecutiveCount, th.ConsecutiveSignalThreshold, mult))
	}

	free := 1 - currentPosition
	if free <= positionEpsilon {
		res.Reasons = append(res.Reasons, "portfolio fully invested, holding")
		return
	}
	if size > free {
		size = free
		res.Reasons = append(res.Reasons, fmt.Sprintf("buy size capped to free capital %.4f", free))
	}

	res.Signal = model.TradeSignalBuy
	res.PositionSize = clamp01(size)
	res.ShouldExecute = res.PositionSize > positionEpsilon
}

// accelerationMultiplier grows linearly from min at the threshold to max one threshold-length later.
func accelerationMultiplier(streak int, th *model.ThresholdConfig) (float64, bool) {
	if th.ConsecutiveSignalThreshold <= 0 || streak < th.ConsecutiveSignalThreshold {
		return 1.0, false
	}

	progress := float64(streak-th.ConsecutiveSignalThreshold) / float64(th.ConsecutiveSignalThreshold)
	mult := th.AccelerationMultiplierMin + (th.AccelerationMultiplierMax-th.AccelerationMultiplierMin)*progress

	return math.Min(mult, th.AccelerationMultiplierMax), true
}

func warningsFor(a risk.Assessment, o options) []string {
	warnings := []string{}
	for i, c := range a.Conditions {
		// elevated (not extreme) volatility only adjusts the score
		if c == risk.ConditionVolatility {
			continue
		}
		warnings = append(warnings, a.Notes[i])
	}

	if o.agentConfidence != nil && *o.agentConfidence < lowConfidenceWarnBelow {
		warnings = append(warnings, fmt.Sprintf("low agent confidence (mean %.2f)", *o.agentConfidence))
	}

	return warnings
}

func (g *Generator) log(res model.TradeSignalResult, score float64) {
	g.logger.WithFields(logrus.Fields{
		"score":          score,
		"signal":         res.Signal,
		"zone":           res.Zone,
		"position_size":  res.PositionSize,
		"should_execute": res.ShouldExecute,
		"risk_level":     res.RiskLevel,
		"accelerated":    res.IsAccelerated,
	}).Debug("trade signal generated")
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
