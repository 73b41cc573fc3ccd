package model

import "time"

// FearGreed is the crypto fear & greed index reading (0 extreme fear .. 100 extreme greed).
type FearGreed struct {
	Value          float64 `json:"value"`
	Classification string  `json:"classification,omitempty"`
}

// MacroData holds the macro inputs used for risk adjustments.
type MacroData struct {
	DXYIndex float64 `json:"dxy_index"`
}

// Indicators are daily technical indicators computed from closing prices.
type Indicators struct {
	RSI14 float64 `json:"rsi14"`
	MA20  float64 `json:"ma20"`
	MA50  float64 `json:"ma50"`
	MA200 float64 `json:"ma200"`
}

// MarketSnapshot is the market view handed to agents and calculators for one cycle.
// FearGreed and Macro are nil when the upstream source was unavailable.
type MarketSnapshot struct {
	Symbol     string     `json:"symbol"`
	Price      float64    `json:"price"`
	Change24h  float64    `json:"change_24h"` // percent
	FearGreed  *FearGreed `json:"fear_greed,omitempty"`
	Macro      *MacroData `json:"macro,omitempty"`
	Indicators Indicators `json:"indicators"`
	FetchedAt  time.Time  `json:"fetched_at"`
}

// FearGreedValue returns the index value and whether it is present.
func (m *MarketSnapshot) FearGreedValue() (float64, bool) {
	if m == nil || m.FearGreed == nil {
		return 0, false
	}
	return m.FearGreed.Value, true
}

// DXY returns the dollar index and whether it is present.
func (m *MarketSnapshot) DXY() (float64, bool) {
	if m == nil || m.Macro == nil || m.Macro.DXYIndex == 0 {
		return 0, false
	}
	return m.Macro.DXYIndex, true
}

// PriceChange24h returns the 24h change in percent, zero for a nil snapshot.
func (m *MarketSnapshot) PriceChange24h() float64 {
	if m == nil {
		return 0
	}
	return m.Change24h
}
