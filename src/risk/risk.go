package risk

import (
	"fmt"
	"math"

	"convictionexecutor/src/model"
)

// ----- thresholds -----

const (
	ExtremeFearBelow    = 20.0
	ExtremeGreedAbove   = 80.0
	HighVolatilityAbove = 10.0 // |24h change| in percent
	VolatilityAbove     = 5.0
	StrongDollarAbove   = 110.0
)

// ----- multipliers -----

const (
	ExtremeFearMultiplier    = 0.7
	ExtremeGreedMultiplier   = 0.8
	HighVolatilityMultiplier = 0.75
	VolatilityMultiplier     = 0.9
	StrongDollarMultiplier   = 0.85
)

// Condition is a single market risk condition that fired.
type Condition string

const (
	ConditionExtremeFear    Condition = "extreme_fear"
	ConditionExtremeGreed   Condition = "extreme_greed"
	ConditionHighVolatility Condition = "high_volatility"
	ConditionVolatility     Condition = "elevated_volatility"
	ConditionStrongDollar   Condition = "strong_dollar"
)

// Assessment is the market risk view shared by the conviction calculator and the signal generator.
type Assessment struct {
	// Factor is the product of every multiplier that fired, in (0,1].
	Factor     float64
	Level      model.RiskLevel
	Conditions []Condition
	Notes      []string
	points     int
}

// Has reports whether the condition fired.
func (a Assessment) Has(c Condition) bool {
	for _, got := range a.Conditions {
		if got == c {
			return true
		}
	}
	return false
}

// Assess evaluates fear&greed, 24h volatility and the dollar index.
// Missing inputs do not contribute. Reductions compound multiplicatively.
func Assess(market *model.MarketSnapshot) Assessment {
	a := Assessment{Factor: 1.0}

	if fg, ok := market.FearGreedValue(); ok {
		switch {
		case fg < ExtremeFearBelow:
			a.add(ConditionExtremeFear, ExtremeFearMultiplier, 1, fmt.Sprintf("extreme fear (fear&greed %.0f < %.0f)", fg, ExtremeFearBelow))
		case fg > ExtremeGreedAbove:
			a.add(ConditionExtremeGreed, ExtremeGreedMultiplier, 1, fmt.Sprintf("extreme greed (fear&greed %.0f > %.0f)", fg, ExtremeGreedAbove))
		}
	}

	change := math.Abs(market.PriceChange24h())
	switch {
	case change > HighVolatilityAbove:
		a.add(ConditionHighVolatility, HighVolatilityMultiplier, 2, fmt.Sprintf("high volatility (|24h change| %.2f%% > %.0f%%)", change, HighVolatilityAbove))
	case change > VolatilityAbove:
		a.add(ConditionVolatility, VolatilityMultiplier, 1, fmt.Sprintf("elevated volatility (|24h change| %.2f%% > %.0f%%)", change, VolatilityAbove))
	}

	if dxy, ok := market.DXY(); ok && dxy > StrongDollarAbove {
		a.add(ConditionStrongDollar, StrongDollarMultiplier, 1, fmt.Sprintf("strong dollar (DXY %.2f > %.0f)", dxy, StrongDollarAbove))
	}

	a.Level = levelForPoints(a.points)

	return a
}

func (a *Assessment) add(c Condition, multiplier float64, points int, note string) {
	a.Factor *= multiplier
	a.points += points
	a.Conditions = append(a.Conditions, c)
	a.Notes = append(a.Notes, note)
}

func levelForPoints(points int) model.RiskLevel {
	switch {
	case points >= 2:
		return model.RiskLevelHigh
	case points == 1:
		return model.RiskLevelMedium
	default:
		return model.RiskLevelLow
	}
}
