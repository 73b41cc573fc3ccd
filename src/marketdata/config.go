package marketdata

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BinanceEndpoint string        `envconfig:"BINANCE_API_ENDPOINT" default:"https://api.binance.com"`
	KlineLimit      int           `envconfig:"MARKET_KLINE_LIMIT" default:"250"`
	FearGreedURL    string        `envconfig:"FEAR_GREED_URL" default:"https://api.alternative.me/fng/?limit=1"`
	MacroURL        string        `envconfig:"MACRO_DXY_URL" default:""`
	HTTPTimeout     time.Duration `envconfig:"MARKET_HTTP_TIMEOUT" default:"10s"`
	HTTPRetryCount  int           `envconfig:"MARKET_HTTP_RETRY_COUNT" default:"2"`
	CacheTTL        time.Duration `envconfig:"MARKET_CACHE_TTL" default:"60s"`
	FetchTimeout    time.Duration `envconfig:"MARKET_FETCH_TIMEOUT" default:"30s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
