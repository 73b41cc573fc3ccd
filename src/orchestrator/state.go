package orchestrator

import (
	"time"

	"convictionexecutor/src/model"
)

// NextDecisionState applies one completed cycle to prev. A bullish zone extends the bullish streak
// and clears the bearish one, bearish zones mirror that, and a cycle without a zone clears both.
// prev is not modified.
func NextDecisionState(
	prev *model.DecisionState,
	portfolioID uint,
	zone model.SignalZone,
	score float64,
	position float64,
	now time.Time,
) *model.DecisionState {
	next := model.DecisionState{PortfolioID: portfolioID}
	if prev != nil {
		next = *prev
		next.PortfolioID = portfolioID
	}
	ts := now.UTC()

	switch {
	case zone.Bullish():
		if next.ConsecutiveBullishCount == 0 || next.ConsecutiveBullishSince == nil {
			next.ConsecutiveBullishSince = &ts
		}
		next.ConsecutiveBullishCount++
		next.ConsecutiveBearishCount = 0
		next.ConsecutiveBearishSince = nil
	case zone.Bearish():
		if next.ConsecutiveBearishCount == 0 || next.ConsecutiveBearishSince == nil {
			next.ConsecutiveBearishSince = &ts
		}
		next.ConsecutiveBearishCount++
		next.ConsecutiveBullishCount = 0
		next.ConsecutiveBullishSince = nil
	default:
		next.ConsecutiveBullishCount = 0
		next.ConsecutiveBullishSince = nil
		next.ConsecutiveBearishCount = 0
		next.ConsecutiveBearishSince = nil
	}

	s := score
	next.LastConvictionScore = &s
	next.CurrentPosition = position

	return &next
}
