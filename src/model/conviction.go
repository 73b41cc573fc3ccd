package model

// AgentContribution explains how one agent moved the weighted score.
type AgentContribution struct {
	Agent         string      `json:"agent"`
	Signal        AgentSignal `json:"signal"`
	Confidence    float64     `json:"confidence"`
	BaseScore     float64     `json:"base_score"`
	Weight        float64     `json:"weight"`
	WeightedScore float64     `json:"weighted_score"`
}

// ConvictionResult is the aggregate conviction for one cycle. It is derived from its inputs only.
type ConvictionResult struct {
	Score                float64             `json:"score"` // 0..100, 50 is neutral
	RawWeightedScore     float64             `json:"raw_weighted_score"`
	AdjustedScore        float64             `json:"adjusted_score"`
	Contributions        []AgentContribution `json:"contributions"`
	RiskAdjustment       float64             `json:"risk_adjustment"`
	ConfidenceAdjustment float64             `json:"confidence_adjustment"`
	AverageConfidence    float64             `json:"average_confidence"`
}
