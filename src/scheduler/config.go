package scheduler

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SweepSchedule        string        `envconfig:"SCHEDULER_SWEEP_SCHEDULE" default:"@every 1h"`
	StuckTimeout         time.Duration `envconfig:"STUCK_EXECUTION_TIMEOUT" default:"1h"`
	DefaultPeriodMinutes int           `envconfig:"SCHEDULER_DEFAULT_PERIOD_MINUTES" default:"60"`
	RunOnStart           bool          `envconfig:"SCHEDULER_RUN_ON_START" default:"false"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
