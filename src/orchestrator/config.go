package orchestrator

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"convictionexecutor/src/conviction"
)

type Config struct {
	WeightMacro   float64       `envconfig:"CONVICTION_WEIGHT_MACRO" default:"0.40"`
	WeightTA      float64       `envconfig:"CONVICTION_WEIGHT_TA" default:"0.20"`
	WeightOnchain float64       `envconfig:"CONVICTION_WEIGHT_ONCHAIN" default:"0.40"`
	AgentTimeout  time.Duration `envconfig:"AGENT_STAGE_TIMEOUT" default:"5m"`
	// FinalizeTimeout bounds the writes that close a cycle, even after the caller's context ended.
	FinalizeTimeout time.Duration `envconfig:"FINALIZE_TIMEOUT" default:"15s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

func (c Config) Weights() conviction.Weights {
	return conviction.Weights{Macro: c.WeightMacro, TA: c.WeightTA, Onchain: c.WeightOnchain}
}
