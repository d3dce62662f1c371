package advisor

import (
	"fmt"
	"strings"

	"btc-advisor-bot/internal/marketdata"
	"btc-advisor-bot/internal/model"
)

// systemPrompt embeds the exact JSON schema the advisor must reply
// with, the same schema-in-prompt idiom as the teacher's
// internal/ai/llm/prompts.go:SystemPromptMarketAnalysis, but shaped to
// this system's single model.Analysis contract instead of the
// teacher's free-form "direction/reasoning/key_levels" reply.
const systemPrompt = `You are a derivatives trading analyst for BTC/USDT perpetual futures. You will be given OHLCV data and a precomputed indicator table for one timeframe. Respond with a single JSON object and nothing else — no prose, no markdown fence — matching exactly this shape:

{
  "timeframe": "15m" | "1h" | "4h" | "1d" | "final",
  "market_phase": "up" | "down" | "accumulate" | "distribute",
  "overall_sentiment": "positive" | "negative" | "neutral",
  "risk_level": "high" | "medium" | "low",
  "confidence": 0-100,
  "trend_strength": 0-100,
  "trading_signal": {
    "position_suggestion": "BUY" | "SELL" | "HOLD",
    "entry_price": number,
    "stop_loss": number,
    "take_profit_1": number,
    "take_profit_2": number,
    "take_profit_3": number,
    "leverage": 1-10,
    "position_size_pct": 0-100,
    "auto_trading_enabled": boolean
  },
  "generated_at_ms": integer,
  "source_timeframe": "15m" | "1h" | "4h" | "1d"
}

Rules:
- For SELL, stop_loss > entry_price > take_profit_1. For BUY, take_profit_1 > entry_price > stop_loss. For HOLD every price field may be 0.
- Be conservative. Only report confidence above 70 when multiple indicators agree.
- risk_level governs how much leverage and position size the caller will allow; do not inflate it to justify a larger trade.`

// BuildUserPrompt renders the window and indicator table into the
// user-turn content. It intentionally prints rounded, compact numbers
// rather than full decimal precision — this is advisory context for
// the model, not the money path.
func BuildUserPrompt(symbol string, tf model.Timeframe, window model.OhlcvWindow, table marketdata.IndicatorTable) string {
	var b strings.Builder
	last, _ := window.Last()
	closeF, _ := last.Close.Float64()

	fmt.Fprintf(&b, "Symbol: %s\nTimeframe: %s\nBars: %d\nLast close: %.2f\n\n", symbol, tf, window.Len(), closeF)
	fmt.Fprintf(&b, "RSI(14): %.1f\n", table.RSI14)
	fmt.Fprintf(&b, "MACD: value=%.2f signal=%.2f hist=%.2f\n", table.MACD.Value, table.MACD.Signal, table.MACD.Histogram)
	fmt.Fprintf(&b, "Bollinger: upper=%.2f mid=%.2f lower=%.2f\n", table.Bollinger.Upper, table.Bollinger.Middle, table.Bollinger.Lower)
	fmt.Fprintf(&b, "VWAP: %.2f\n", table.VWAP)
	fmt.Fprintf(&b, "Ichimoku: tenkan=%.2f kijun=%.2f senkouA=%.2f senkouB=%.2f\n",
		table.Ichimoku.Tenkan, table.Ichimoku.Kijun, table.Ichimoku.SenkouA, table.Ichimoku.SenkouB)
	fmt.Fprintf(&b, "ADX(14): %.1f\n", table.ADX14)
	fmt.Fprintf(&b, "SMA: 20=%.2f 50=%.2f 200=%.2f\n", table.SMA20, table.SMA50, table.SMA200)
	fmt.Fprintf(&b, "Volume: current=%.1f avg=%.1f ratio=%.2f high=%v climax=%v obv=%.1f type=%s\n",
		table.Volume.CurrentVolume, table.Volume.AverageVolume, table.Volume.VolumeRatio,
		table.Volume.IsHighVolume, table.Volume.IsClimaxVolume, table.Volume.OBV, table.Volume.VolumeType)
	fmt.Fprintf(&b, "Structure: trend=%s strength=%.2f phase=%s support=%v resistance=%v\n",
		table.Structure.Trend, table.Structure.TrendStrength, table.Structure.Phase,
		table.Structure.SupportLevels, table.Structure.ResistanceLevels)
	fmt.Fprintf(&b, "Unfilled FVGs: %d\n", len(table.UnfilledFVGs))

	return b.String()
}

// retryFeedback is appended to the user prompt on the single
// re-prompt-on-rejection attempt (spec.md §4.4), so the model sees
// exactly why its first reply was rejected rather than guessing again
// blind.
func retryFeedback(original string, rejection error) string {
	return fmt.Sprintf("%s\n\nYour previous reply was rejected: %s\nReturn only the corrected JSON object.", original, rejection)
}

// BuildFinalUserPrompt renders the four latest per-timeframe Analyses
// into the user-turn content for the synthetic "final" combined pass
// (spec.md §3, §4.1): the advisor is re-prompted with the bundle
// rather than fresh OHLCV, since "final" has no exchange
// representation of its own. snapshots must be keyed by all four of
// model.SourceTimeframes; the caller (Gateway.AnalyzeFinal) enforces
// that before calling this.
func BuildFinalUserPrompt(symbol string, snapshots map[model.Timeframe]model.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\nTimeframe: final (combined)\n\n", symbol)
	fmt.Fprintf(&b, "You are re-evaluating the most recent analysis from each sampled timeframe below. Synthesize one combined view; weigh higher timeframes more heavily for trend, lower timeframes for timing.\n\n")

	for _, tf := range model.SourceTimeframes {
		a, ok := snapshots[tf]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "--- %s ---\n", tf)
		fmt.Fprintf(&b, "market_phase=%s sentiment=%s risk_level=%s confidence=%s trend_strength=%s\n",
			a.MarketPhase, a.OverallSentiment, a.RiskLevel, a.Confidence, a.TrendStrength)
		fmt.Fprintf(&b, "signal: suggestion=%s entry=%s sl=%s tp1=%s leverage=%d size_pct=%s auto_trading_enabled=%v\n\n",
			a.TradingSignals.PositionSuggestion, a.TradingSignals.EntryPrice, a.TradingSignals.StopLoss,
			a.TradingSignals.TakeProfit1, a.TradingSignals.Leverage, a.TradingSignals.PositionSizePct,
			a.TradingSignals.AutoTradingEnabled)
	}

	return b.String()
}
