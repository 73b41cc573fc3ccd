package agents

import (
	"context"
	"fmt"
	"math"

	"convictionexecutor/src/model"
)

// Role is the slot an agent fills in the conviction weighting.
type Role string

const (
	RoleMacro   Role = "macro"
	RoleTA      Role = "ta"
	RoleOnchain Role = "onchain"
)

func (r Role) Valid() bool {
	switch r {
	case RoleMacro, RoleTA, RoleOnchain:
		return true
	default:
		return false
	}
}

// Agent produces a directional opinion from a market snapshot.
// Implementations retry internally; a returned error is final for the cycle.
type Agent interface {
	Name() string
	Role() Role
	Analyze(ctx context.Context, market *model.MarketSnapshot) (*model.AgentOutput, error)
}

// AgentExecutionError is returned when an agent could not produce an output.
// It aborts the cycle and is never replaced by a neutral opinion.
type AgentExecutionError struct {
	AgentName  string
	RetryCount int
	Err        error
}

func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("agent %s failed after %d retries: %v", e.AgentName, e.RetryCount, e.Err)
}

func (e *AgentExecutionError) Unwrap() error {
	return e.Err
}

// normalizeOutput enforces the output contract: known signal, confidence in [0,1], score in [-100,100].
func normalizeOutput(name string, out *model.AgentOutput) (*model.AgentOutput, error) {
	if out == nil {
		return nil, fmt.Errorf("empty output")
	}
	if !out.Signal.Valid() {
		return nil, fmt.Errorf("invalid signal %q", out.Signal)
	}
	if math.IsNaN(out.Confidence) || math.IsNaN(out.Score) {
		return nil, fmt.Errorf("non-numeric confidence or score")
	}

	normalized := *out
	normalized.AgentName = name
	normalized.Confidence = math.Max(0, math.Min(1, out.Confidence))
	normalized.Score = math.Max(-100, math.Min(100, out.Score))

	return &normalized, nil
}
