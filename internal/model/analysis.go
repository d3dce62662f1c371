package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MarketPhase is the advisor's read of the current structural regime.
type MarketPhase string

const (
	PhaseUp          MarketPhase = "up"
	PhaseDown        MarketPhase = "down"
	PhaseAccumulate  MarketPhase = "accumulate"
	PhaseDistribute  MarketPhase = "distribute"
)

func (p MarketPhase) Valid() bool {
	switch p {
	case PhaseUp, PhaseDown, PhaseAccumulate, PhaseDistribute:
		return true
	}
	return false
}

// Sentiment is the advisor's overall directional bias.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

// RiskLevel governs the leverage/size caps applied in the signal policy.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskHigh, RiskMedium, RiskLow:
		return true
	}
	return false
}

// PositionSuggestion is the advisor's recommended directional action.
type PositionSuggestion string

const (
	SuggestBuy  PositionSuggestion = "BUY"
	SuggestSell PositionSuggestion = "SELL"
	SuggestHold PositionSuggestion = "HOLD"
)

func (p PositionSuggestion) Valid() bool {
	switch p {
	case SuggestBuy, SuggestSell, SuggestHold:
		return true
	}
	return false
}

// TradingSignal is the actionable subset of an Analysis (spec.md §3).
type TradingSignal struct {
	PositionSuggestion PositionSuggestion `json:"position_suggestion"`
	EntryPrice         decimal.Decimal    `json:"entry_price"`
	StopLoss           decimal.Decimal    `json:"stop_loss"`
	TakeProfit1        decimal.Decimal    `json:"take_profit_1"`
	TakeProfit2        decimal.Decimal    `json:"take_profit_2"`
	TakeProfit3        decimal.Decimal    `json:"take_profit_3"`
	Leverage           int                `json:"leverage"`
	PositionSizePct    decimal.Decimal    `json:"position_size_pct"`
	AutoTradingEnabled bool               `json:"auto_trading_enabled"`
}

// ValidateOrdering enforces the directional SL/TP/entry invariant from
// spec.md §3 and §8 invariant 3. HOLD signals are always valid (their
// price fields may be zero).
func (s TradingSignal) ValidateOrdering() error {
	switch s.PositionSuggestion {
	case SuggestHold:
		return nil
	case SuggestSell:
		if !(s.StopLoss.GreaterThan(s.EntryPrice) && s.EntryPrice.GreaterThan(s.TakeProfit1)) {
			return fmt.Errorf("SELL invariant violated: want stop_loss > entry > take_profit1, got %s > %s > %s",
				s.StopLoss, s.EntryPrice, s.TakeProfit1)
		}
		return nil
	case SuggestBuy:
		if !(s.TakeProfit1.GreaterThan(s.EntryPrice) && s.EntryPrice.GreaterThan(s.StopLoss)) {
			return fmt.Errorf("BUY invariant violated: want take_profit1 > entry > stop_loss, got %s > %s > %s",
				s.TakeProfit1, s.EntryPrice, s.StopLoss)
		}
		return nil
	default:
		return fmt.Errorf("unknown position_suggestion %q", s.PositionSuggestion)
	}
}

// Analysis is the advisor's structured verdict for one timeframe
// (spec.md §3).
type Analysis struct {
	Timeframe        Timeframe       `json:"timeframe"`
	MarketPhase      MarketPhase     `json:"market_phase"`
	OverallSentiment Sentiment       `json:"overall_sentiment"`
	RiskLevel        RiskLevel       `json:"risk_level"`
	Confidence       decimal.Decimal `json:"confidence"`     // [0,100]
	TrendStrength    decimal.Decimal `json:"trend_strength"` // [0,100]
	TradingSignals   TradingSignal   `json:"trading_signal"`
	GeneratedAtMs    int64           `json:"generated_at_ms"`
	SourceTimeframe  Timeframe       `json:"source_timeframe"`
}

// Validate runs the full structural/range/ordering check a validator
// pass applies to a parsed advisor reply (spec.md §4.4).
func (a Analysis) Validate() error {
	if !a.MarketPhase.Valid() {
		return fmt.Errorf("invalid market_phase %q", a.MarketPhase)
	}
	if !a.OverallSentiment.Valid() {
		return fmt.Errorf("invalid overall_sentiment %q", a.OverallSentiment)
	}
	if !a.RiskLevel.Valid() {
		return fmt.Errorf("invalid risk_level %q", a.RiskLevel)
	}
	if a.Confidence.LessThan(decimal.Zero) || a.Confidence.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("confidence %s out of [0,100]", a.Confidence)
	}
	if a.TrendStrength.LessThan(decimal.Zero) || a.TrendStrength.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("trend_strength %s out of [0,100]", a.TrendStrength)
	}
	if !a.TradingSignals.PositionSuggestion.Valid() {
		return fmt.Errorf("invalid position_suggestion %q", a.TradingSignals.PositionSuggestion)
	}
	if a.TradingSignals.Leverage < 1 || a.TradingSignals.Leverage > 10 {
		return fmt.Errorf("leverage %d out of [1,10]", a.TradingSignals.Leverage)
	}
	pct := a.TradingSignals.PositionSizePct
	if pct.LessThan(decimal.Zero) || pct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("position_size_pct %s out of [0,100]", pct)
	}
	if err := a.TradingSignals.ValidateOrdering(); err != nil {
		return err
	}
	return nil
}
