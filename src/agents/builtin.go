package agents

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"convictionexecutor/src/model"
)

// Registry kinds for agents computed in-process.
const (
	KindTechnical = "technical"
	KindSentiment = "sentiment"
	KindTrend     = "trend"
)

const (
	bullishAbove = 20.0
	bearishBelow = -20.0
)

// ErrNoInputs is wrapped when a built-in agent finds none of the snapshot fields it scores.
var ErrNoInputs = errors.New("no usable market inputs")

// factor is one scored observation. points is in [-max, max].
type factor struct {
	points float64
	max    float64
	note   string
}

type scoreFunc func(market *model.MarketSnapshot) []factor

// BuiltinAgent scores the snapshot deterministically with a fixed factor table.
type BuiltinAgent struct {
	name   string
	role   Role
	kind   string
	score  scoreFunc
	logger *logrus.Entry
}

func newBuiltinAgent(name string, role Role, kind string, logger *logrus.Entry) (*BuiltinAgent, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	var fn scoreFunc
	switch kind {
	case KindTechnical:
		fn = technicalFactors
	case KindSentiment:
		fn = sentimentFactors
	case KindTrend:
		fn = trendFactors
	default:
		return nil, fmt.Errorf("unknown builtin kind %q", kind)
	}

	return &BuiltinAgent{
		name:   name,
		role:   role,
		kind:   kind,
		score:  fn,
		logger: logger.WithFields(logrus.Fields{"agent": name, "role": role}),
	}, nil
}

// NewTechnicalAgent scores RSI and moving-average structure.
func NewTechnicalAgent(name string, role Role, logger *logrus.Entry) *BuiltinAgent {
	a, _ := newBuiltinAgent(name, role, KindTechnical, logger)
	return a
}

// NewSentimentAgent scores fear&greed (contrarian) and the dollar index.
func NewSentimentAgent(name string, role Role, logger *logrus.Entry) *BuiltinAgent {
	a, _ := newBuiltinAgent(name, role, KindSentiment, logger)
	return a
}

// NewTrendAgent scores the long-term MA200 deviation and the 24h move.
func NewTrendAgent(name string, role Role, logger *logrus.Entry) *BuiltinAgent {
	a, _ := newBuiltinAgent(name, role, KindTrend, logger)
	return a
}

func (a *BuiltinAgent) Name() string { return a.name }

func (a *BuiltinAgent) Role() Role { return a.role }

func (a *BuiltinAgent) Analyze(ctx context.Context, market *model.MarketSnapshot) (*model.AgentOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, &AgentExecutionError{AgentName: a.name, Err: err}
	}
	if market == nil {
		return nil, &AgentExecutionError{AgentName: a.name, Err: fmt.Errorf("%s: %w", a.kind, ErrNoInputs)}
	}

	factors := a.score(market)
	if len(factors) == 0 {
		return nil, &AgentExecutionError{AgentName: a.name, Err: fmt.Errorf("%s: %w", a.kind, ErrNoInputs)}
	}

	var points, maxPoints float64
	notes := make([]string, 0, len(factors))
	for _, f := range factors {
		points += f.points
		maxPoints += f.max
		notes = append(notes, f.note)
	}

	score := 100 * points / maxPoints
	out := &model.AgentOutput{
		Signal:     signalForScore(score),
		Score:      score,
		Confidence: 0.5 + math.Abs(score)/200,
		Reasoning:  strings.Join(notes, "; "),
	}

	a.logger.WithFields(logrus.Fields{
		"signal": out.Signal,
		"score":  out.Score,
	}).Debug("builtin analysis computed")

	return normalizeOutput(a.name, out)
}

func signalForScore(score float64) model.AgentSignal {
	switch {
	case score >= bullishAbove:
		return model.AgentSignalBullish
	case score <= bearishBelow:
		return model.AgentSignalBearish
	default:
		return model.AgentSignalNeutral
	}
}

func technicalFactors(m *model.MarketSnapshot) []factor {
	var out []factor
	ind := m.Indicators

	if ind.RSI14 > 0 {
		var p float64
		switch {
		case ind.RSI14 <= 30:
			p = 2
		case ind.RSI14 <= 40:
			p = 1
		case ind.RSI14 >= 70:
			p = -2
		case ind.RSI14 >= 60:
			p = -1
		}
		out = append(out, factor{points: p, max: 2, note: fmt.Sprintf("RSI14=%.1f", ind.RSI14)})
	}
	if ind.MA20 > 0 && ind.MA50 > 0 {
		p, rel := -1.0, "below"
		if ind.MA20 > ind.MA50 {
			p, rel = 1, "above"
		}
		out = append(out, factor{points: p, max: 1, note: fmt.Sprintf("MA20 %s MA50", rel)})
	}
	if ind.MA50 > 0 && m.Price > 0 {
		p, rel := -1.0, "below"
		if m.Price > ind.MA50 {
			p, rel = 1, "above"
		}
		out = append(out, factor{points: p, max: 1, note: fmt.Sprintf("price %s MA50", rel)})
	}
	if ind.MA200 > 0 && m.Price > 0 {
		p, rel := -1.0, "below"
		if m.Price > ind.MA200 {
			p, rel = 1, "above"
		}
		out = append(out, factor{points: p, max: 1, note: fmt.Sprintf("price %s MA200", rel)})
	}

	return out
}

func sentimentFactors(m *model.MarketSnapshot) []factor {
	var out []factor

	if fg, ok := m.FearGreedValue(); ok {
		var p float64
		switch {
		case fg < 25:
			p = 2
		case fg < 45:
			p = 1
		case fg > 75:
			p = -2
		case fg > 55:
			p = -1
		}
		out = append(out, factor{points: p, max: 2, note: fmt.Sprintf("fear&greed=%.0f", fg)})
	}
	if dxy, ok := m.DXY(); ok {
		var p float64
		switch {
		case dxy > 105:
			p = -1
		case dxy < 100:
			p = 1
		}
		out = append(out, factor{points: p, max: 1, note: fmt.Sprintf("DXY=%.2f", dxy)})
	}

	return out
}

func trendFactors(m *model.MarketSnapshot) []factor {
	var out []factor

	if ma := m.Indicators.MA200; ma > 0 && m.Price > 0 {
		deviation := (m.Price - ma) / ma * 100

		var p float64
		switch {
		case deviation <= -20:
			p = 2
		case deviation <= -5:
			p = 1
		case deviation <= 5:
			p = 0
		case deviation <= 20:
			p = -1
		default:
			p = -2
		}
		out = append(out, factor{points: p, max: 2, note: fmt.Sprintf("MA200 deviation %+.1f%%", deviation)})
	}
	if m.Price > 0 {
		change := m.PriceChange24h()

		var p float64
		switch {
		case change > 3:
			p = 1
		case change < -3:
			p = -1
		}
		out = append(out, factor{points: p, max: 1, note: fmt.Sprintf("24h change %+.2f%%", change)})
	}

	return out
}
