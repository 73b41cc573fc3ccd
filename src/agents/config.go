package agents

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RegistryPath points to the YAML agent registry. A missing file selects the built-in agents.
	RegistryPath string `envconfig:"AGENTS_CONFIG" default:"agents.yaml"`

	HTTPTimeout      time.Duration `envconfig:"AGENT_HTTP_TIMEOUT" default:"60s"`
	HTTPRetryCount   int           `envconfig:"AGENT_HTTP_RETRY_COUNT" default:"2"`
	HTTPRetryWait    time.Duration `envconfig:"AGENT_HTTP_RETRY_WAIT" default:"1s"`
	HTTPRetryMaxWait time.Duration `envconfig:"AGENT_HTTP_RETRY_MAX_WAIT" default:"10s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

func (c Config) httpOptions() HTTPOptions {
	return HTTPOptions{
		Timeout:      c.HTTPTimeout,
		RetryCount:   c.HTTPRetryCount,
		RetryWait:    c.HTTPRetryWait,
		RetryMaxWait: c.HTTPRetryMaxWait,
	}
}
