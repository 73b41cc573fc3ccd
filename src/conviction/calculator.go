package conviction

import (
	"math"

	"github.com/sirupsen/logrus"

	"convictionexecutor/src/model"
	"convictionexecutor/src/risk"
)

// Agent roles the calculator aggregates.
const (
	RoleMacro   = "macro"
	RoleTA      = "ta"
	RoleOnchain = "onchain"
)

// SignalScore maps an agent signal to its directional base score.
var SignalScore = map[model.AgentSignal]float64{
	model.AgentSignalBullish: 100,
	model.AgentSignalNeutral: 0,
	model.AgentSignalBearish: -100,
}

const (
	defaultConfidence = 0.5

	lowConfidenceBelow      = 0.4
	moderateConfidenceBelow = 0.5
	lowConfidenceFactor     = 0.7
	moderateConfidenceFact  = 0.85
)

// Weights are the per-role weights of the weighted sum.
// They are not required to sum to 1.
type Weights struct {
	Macro   float64 `yaml:"macro" json:"macro"`
	TA      float64 `yaml:"ta" json:"ta"`
	Onchain float64 `yaml:"onchain" json:"onchain"`
}

// DefaultWeights favours macro and on-chain views over technicals.
func DefaultWeights() Weights {
	return Weights{Macro: 0.40, TA: 0.20, Onchain: 0.40}
}

// Calculator turns agent opinions into a 0..100 conviction score.
type Calculator struct {
	logger *logrus.Entry
}

func NewCalculator(logger *logrus.Entry) *Calculator {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Calculator{logger: logger.WithField("component", "conviction")}
}

// Calculate aggregates the three agent outputs. A nil output, or one with an empty signal,
// counts as NEUTRAL with confidence 0.5.
// A nil weights pointer selects DefaultWeights.
func (c *Calculator) Calculate(macro, ta, onchain *model.AgentOutput, market *model.MarketSnapshot, weights *Weights) model.ConvictionResult {
	w := DefaultWeights()
	if weights != nil {
		w = *weights
	}

	contributions := []model.AgentContribution{
		contribution(RoleMacro, macro, w.Macro),
		contribution(RoleTA, ta, w.TA),
		contribution(RoleOnchain, onchain, w.Onchain),
	}

	weighted := 0.0
	confidenceSum := 0.0
	for _, ctb := range contributions {
		weighted += ctb.WeightedScore
		confidenceSum += ctb.Confidence
	}

	assessment := risk.Assess(market)
	avgConfidence := confidenceSum / float64(len(contributions))
	confidenceFactor := ConfidenceFactor(avgConfidence)

	adjusted := weighted * assessment.Factor * confidenceFactor
	score := clamp((adjusted+100)/2, 0, 100)

	result := model.ConvictionResult{
		Score:                score,
		RawWeightedScore:     weighted,
		AdjustedScore:        adjusted,
		Contributions:        contributions,
		RiskAdjustment:       assessment.Factor,
		ConfidenceAdjustment: confidenceFactor,
		AverageConfidence:    avgConfidence,
	}

	c.logger.WithFields(logrus.Fields{
		"score":                 score,
		"raw_weighted_score":    weighted,
		"risk_adjustment":       assessment.Factor,
		"confidence_adjustment": confidenceFactor,
	}).Debug("conviction calculated")

	return result
}

// ConfidenceFactor damps the score when agents are collectively unsure.
func ConfidenceFactor(avgConfidence float64) float64 {
	switch {
	case avgConfidence < lowConfidenceBelow:
		return lowConfidenceFactor
	case avgConfidence < moderateConfidenceBelow:
		return moderateConfidenceFact
	default:
		return 1.0
	}
}

func contribution(role string, out *model.AgentOutput, weight float64) model.AgentContribution {
	signal := model.AgentSignalNeutral
	confidence := defaultConfidence
	name := role

	if out != nil {
		// an output without a signal is treated like a missing one
		if out.Signal != "" {
			signal = out.Signal
			confidence = out.Confidence
		}
		if out.AgentName != "" {
			name = out.AgentName
		}
	}

	// unknown signals score 0 through the map lookup
	base := SignalScore[signal] * confidence

	return model.AgentContribution{
		Agent:         name,
		Signal:        signal,
		Confidence:    confidence,
		BaseScore:     base,
		Weight:        weight,
		WeightedScore: base * weight,
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 50
	}
	return math.Max(lo, math.Min(hi, v))
}
