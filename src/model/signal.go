package model

// TradeSignal is the action the strategy decided on.
type TradeSignal string

const (
	TradeSignalBuy  TradeSignal = "BUY"
	TradeSignalSell TradeSignal = "SELL"
	TradeSignalHold TradeSignal = "HOLD"
)

// SignalZone is the band the conviction score fell into.
type SignalZone string

const (
	ZoneNone        SignalZone = "NONE" // circuit breaker tripped, no zone evaluated
	ZoneBuy         SignalZone = "BUY"
	ZonePartialSell SignalZone = "PARTIAL_SELL"
	ZoneFullSell    SignalZone = "FULL_SELL"
)

// Bullish reports whether the zone extends a bullish streak.
func (z SignalZone) Bullish() bool { return z == ZoneBuy }

// Bearish reports whether the zone extends a bearish streak.
func (z SignalZone) Bearish() bool { return z == ZonePartialSell || z == ZoneFullSell }

// RiskLevel summarises market risk independently of the trade decision.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

// TradeSignalResult is the output of the signal generator.
// PositionSize is always zero when ShouldExecute is false.
type TradeSignalResult struct {
	Signal             TradeSignal `json:"signal"`
	Zone               SignalZone  `json:"zone"`
	SignalStrength     float64     `json:"signal_strength"`
	PositionSize       float64     `json:"position_size"`
	RiskLevel          RiskLevel   `json:"risk_level"`
	ShouldExecute      bool        `json:"should_execute"`
	Reasons            []string    `json:"reasons"`
	Warnings           []string    `json:"warnings"`
	IsAccelerated      bool        `json:"is_accelerated"`
	ConsecutiveCount   int         `json:"consecutive_count"`
	PositionMultiplier float64     `json:"position_multiplier"`
}
