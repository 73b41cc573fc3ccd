package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"convictionexecutor/src/model"
)

// KlineSource is the subset of goex.API used for price history.
type KlineSource interface {
	GetKlineRecords(currency goex.CurrencyPair, period goex.KlinePeriod, size int, optional ...goex.OptionalParameter) ([]goex.Kline, error)
}

var ErrNoPriceData = errors.New("no price data")

var knownQuotes = []string{"USDT", "USDC", "BUSD", "FDUSD", "USD", "BTC", "ETH"}

type fearGreedResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
	} `json:"data"`
}

type macroResponse struct {
	DXY float64 `json:"dxy"`
}

type cacheEntry struct {
	snapshot model.MarketSnapshot
	expires  time.Time
}

// Service assembles market snapshots. Snapshots are cached per symbol for the configured TTL and
// concurrent misses for the same symbol share one upstream fetch.
type Service struct {
	cfg    Config
	klines KlineSource
	http   *resty.Client
	logger *logrus.Entry
	now    func() time.Time

	mu     sync.Mutex
	cache  map[string]cacheEntry
	flight singleflight.Group
}

func NewService(cfg Config, logger *logrus.Entry) *Service {
	exchange := binance.NewWithConfig(&goex.APIConfig{
		HttpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Endpoint:   cfg.BinanceEndpoint,
	})
	return NewServiceWithSource(cfg, exchange, logger)
}

func NewServiceWithSource(cfg Config, klines KlineSource, logger *logrus.Entry) *Service {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.KlineLimit <= 0 {
		cfg.KlineLimit = 250
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}

	client := resty.New().
		SetTimeout(cfg.HTTPTimeout).
		SetRetryCount(cfg.HTTPRetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && (r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests))
		})

	return &Service{
		cfg:    cfg,
		klines: klines,
		http:   client,
		logger: logger.WithField("component", "marketdata"),
		now:    time.Now,
		cache:  map[string]cacheEntry{},
	}
}

// Snapshot returns the market view for symbol (e.g. BTCUSDT). Price data is mandatory;
// fear&greed and macro data are left nil when their sources fail.
//
// The shared upstream fetch is detached from ctx and bounded by FetchTimeout. Only complete
// snapshots are cached; a degraded one is served to the current waiters and refetched next time.
func (s *Service) Snapshot(ctx context.Context, symbol string) (*model.MarketSnapshot, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if snap, ok := s.cached(symbol); ok {
		return snap, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := s.flight.DoChan(symbol, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FetchTimeout)
		defer cancel()

		snap, err := s.fetch(fetchCtx, symbol)
		if err != nil {
			return nil, err
		}
		if s.complete(snap) {
			s.store(symbol, *snap)
		}
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		out := *res.Val.(*model.MarketSnapshot)
		return &out, nil
	}
}

// complete reports whether every configured optional source contributed to snap.
func (s *Service) complete(snap *model.MarketSnapshot) bool {
	if s.cfg.FearGreedURL != "" && snap.FearGreed == nil {
		return false
	}
	return s.cfg.MacroURL == "" || snap.Macro != nil
}

func (s *Service) cached(symbol string) (*model.MarketSnapshot, bool) {
	if s.cfg.CacheTTL <= 0 {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache[symbol]
	if !ok || !s.now().Before(entry.expires) {
		return nil, false
	}
	snap := entry.snapshot
	return &snap, true
}

func (s *Service) store(symbol string, snap model.MarketSnapshot) {
	if s.cfg.CacheTTL <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[symbol] = cacheEntry{snapshot: snap, expires: s.now().Add(s.cfg.CacheTTL)}
}

func (s *Service) fetch(ctx context.Context, symbol string) (*model.MarketSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pair, err := ParsePair(symbol)
	if err != nil {
		return nil, err
	}

	klines, err := s.klines.GetKlineRecords(pair, goex.KLINE_PERIOD_1DAY, s.cfg.KlineLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s: %w", symbol, err)
	}
	if len(klines) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoPriceData)
	}

	sort.Slice(klines, func(i, j int) bool { return klines[i].Timestamp < klines[j].Timestamp })
	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}

	snap := &model.MarketSnapshot{
		Symbol: symbol,
		Price:  closes[len(closes)-1],
		Indicators: model.Indicators{
			RSI14: RSI(closes, 14),
			MA20:  SMA(closes, 20),
			MA50:  SMA(closes, 50),
			MA200: SMA(closes, 200),
		},
		FetchedAt: s.now().UTC(),
	}
	if len(closes) > 1 && closes[len(closes)-2] != 0 {
		prev := closes[len(closes)-2]
		snap.Change24h = (snap.Price - prev) / prev * 100
	}

	if fg, err := s.fearGreed(ctx); err != nil {
		s.logger.WithError(err).Warn("fear&greed unavailable, continuing without it")
	} else {
		snap.FearGreed = fg
	}

	if s.cfg.MacroURL != "" {
		if macro, err := s.macro(ctx); err != nil {
			s.logger.WithError(err).Warn("macro data unavailable, continuing without it")
		} else {
			snap.Macro = macro
		}
	}

	s.logger.WithFields(logrus.Fields{
		"symbol":     symbol,
		"price":      snap.Price,
		"change_24h": snap.Change24h,
		"fear_greed": snap.FearGreed != nil,
		"macro":      snap.Macro != nil,
	}).Debug("market snapshot fetched")

	return snap, nil
}

func (s *Service) fearGreed(ctx context.Context) (*model.FearGreed, error) {
	var body fearGreedResponse

	resp, err := s.http.R().SetContext(ctx).SetResult(&body).Get(s.cfg.FearGreedURL)
	if err != nil {
		return nil, fmt.Errorf("get fear&greed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get fear&greed: unexpected status %d", resp.StatusCode())
	}
	if len(body.Data) == 0 {
		return nil, errors.New("get fear&greed: empty data")
	}

	value, err := strconv.ParseFloat(body.Data[0].Value, 64)
	if err != nil {
		return nil, fmt.Errorf("parse fear&greed value %q: %w", body.Data[0].Value, err)
	}

	return &model.FearGreed{Value: value, Classification: body.Data[0].Classification}, nil
}

func (s *Service) macro(ctx context.Context) (*model.MacroData, error) {
	var body macroResponse

	resp, err := s.http.R().SetContext(ctx).SetResult(&body).Get(s.cfg.MacroURL)
	if err != nil {
		return nil, fmt.Errorf("get macro: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get macro: unexpected status %d", resp.StatusCode())
	}
	if body.DXY <= 0 {
		return nil, errors.New("get macro: missing dxy")
	}

	return &model.MacroData{DXYIndex: body.DXY}, nil
}

// ParsePair splits an exchange symbol into a goex currency pair. BTCUSDT, BTC_USDT and BTC/USDT are accepted.
func ParsePair(symbol string) (goex.CurrencyPair, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	for _, sep := range []string{"_", "/", "-"} {
		if base, quote, ok := strings.Cut(symbol, sep); ok && base != "" && quote != "" {
			return goex.NewCurrencyPair(goex.Currency{Symbol: base}, goex.Currency{Symbol: quote}), nil
		}
	}
	for _, quote := range knownQuotes {
		if base, ok := strings.CutSuffix(symbol, quote); ok && base != "" {
			return goex.NewCurrencyPair(goex.Currency{Symbol: base}, goex.Currency{Symbol: quote}), nil
		}
	}

	return goex.CurrencyPair{}, fmt.Errorf("cannot parse symbol %q", symbol)
}
