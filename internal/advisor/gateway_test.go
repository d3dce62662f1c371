package advisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"btc-advisor-bot/internal/coreerrors"
	"btc-advisor-bot/internal/marketdata"
	"btc-advisor-bot/internal/model"
)

func zero() decimal.Decimal { return decimal.Zero }

func emptyTable() marketdata.IndicatorTable { return marketdata.IndicatorTable{} }

func TestStripMarkdownCodeBlock(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		`{"a":1}`:                 `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripMarkdownCodeBlock(in); got != want {
			t.Errorf("stripMarkdownCodeBlock(%q) = %q, want %q", in, got, want)
		}
	}
}

const validHoldReply = `{
  "timeframe": "1h",
  "market_phase": "accumulate",
  "overall_sentiment": "neutral",
  "risk_level": "low",
  "confidence": 55,
  "trend_strength": 40,
  "trading_signal": {
    "position_suggestion": "HOLD",
    "entry_price": 0,
    "stop_loss": 0,
    "take_profit_1": 0,
    "take_profit_2": 0,
    "take_profit_3": 0,
    "leverage": 1,
    "position_size_pct": 0,
    "auto_trading_enabled": false
  },
  "generated_at_ms": 1700000000000,
  "source_timeframe": "1h"
}`

type fakeCompleter struct {
	replies   []string
	calls     int
	err       error
	errCalls  int // Complete fails with err on the first errCalls invocations, then serves replies
	callCount int
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.callCount++
	if f.err != nil && f.callCount <= f.errCalls {
		return "", f.err
	}
	if f.err != nil && f.errCalls == 0 {
		return "", f.err
	}
	reply := f.replies[f.calls]
	if f.calls < len(f.replies)-1 {
		f.calls++
	}
	return reply, nil
}

func TestGatewayAnalyzeAcceptsValidReply(t *testing.T) {
	fc := &fakeCompleter{replies: []string{validHoldReply}}
	g := NewGateway(fc, "BTCUSDT")

	window := mustWindow(t)
	analysis, err := g.Analyze(context.Background(), model.Timeframe1h, window, emptyTable(), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.TradingSignals.PositionSuggestion != model.SuggestHold {
		t.Errorf("PositionSuggestion = %v, want HOLD", analysis.TradingSignals.PositionSuggestion)
	}
}

func TestGatewayAnalyzeRetriesOnceOnInvalidReply(t *testing.T) {
	fc := &fakeCompleter{replies: []string{"not json at all", validHoldReply}}
	g := NewGateway(fc, "BTCUSDT")

	window := mustWindow(t)
	_, err := g.Analyze(context.Background(), model.Timeframe1h, window, emptyTable(), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if fc.calls != 1 {
		t.Errorf("calls index = %d, want second attempt (index 1)", fc.calls)
	}
}

func TestGatewayAnalyzeRejectsAfterTwoInvalidReplies(t *testing.T) {
	fc := &fakeCompleter{replies: []string{"garbage", "still garbage"}}
	g := NewGateway(fc, "BTCUSDT")

	window := mustWindow(t)
	_, err := g.Analyze(context.Background(), model.Timeframe1h, window, emptyTable(), time.Now().Add(time.Minute))
	if !errors.Is(err, coreerrors.ErrAdvisorRejected) {
		t.Fatalf("err = %v, want wrapping ErrAdvisorRejected", err)
	}
}

func TestGatewayAnalyzePropagatesTransportFailure(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("connection refused")}
	g := NewGateway(fc, "BTCUSDT")

	window := mustWindow(t)
	_, err := g.Analyze(context.Background(), model.Timeframe1h, window, emptyTable(), time.Now().Add(time.Minute))
	if !errors.Is(err, coreerrors.ErrTransientAdvisor) {
		t.Fatalf("err = %v, want wrapping ErrTransientAdvisor", err)
	}
}

func TestGatewayAnalyzeRetriesOnceOnTransientThenSucceeds(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("deadline exceeded"), errCalls: 1, replies: []string{validHoldReply}}
	g := NewGateway(fc, "BTCUSDT")

	window := mustWindow(t)
	analysis, err := g.Analyze(context.Background(), model.Timeframe1h, window, emptyTable(), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.TradingSignals.PositionSuggestion != model.SuggestHold {
		t.Errorf("PositionSuggestion = %v, want HOLD", analysis.TradingSignals.PositionSuggestion)
	}
	if fc.callCount != 2 {
		t.Errorf("Complete called %d times, want 2 (one retry after the transient failure)", fc.callCount)
	}
}

func TestGatewayAnalyzeFailsAfterSecondTransientFailure(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("deadline exceeded"), errCalls: 2, replies: []string{validHoldReply}}
	g := NewGateway(fc, "BTCUSDT")

	window := mustWindow(t)
	_, err := g.Analyze(context.Background(), model.Timeframe1h, window, emptyTable(), time.Now().Add(time.Minute))
	if !errors.Is(err, coreerrors.ErrTransientAdvisor) {
		t.Fatalf("err = %v, want wrapping ErrTransientAdvisor", err)
	}
	if fc.callCount != 2 {
		t.Errorf("Complete called %d times, want exactly 2 (no third attempt)", fc.callCount)
	}
}

func fourSnapshots() map[model.Timeframe]model.Analysis {
	out := make(map[model.Timeframe]model.Analysis)
	for _, tf := range model.SourceTimeframes {
		out[tf] = model.Analysis{Timeframe: tf, MarketPhase: model.PhaseAccumulate, OverallSentiment: model.SentimentNeutral, RiskLevel: model.RiskLow, TradingSignals: model.TradingSignal{PositionSuggestion: model.SuggestHold, Leverage: 1}}
	}
	return out
}

func TestGatewayAnalyzeFinalRequiresAllFourSnapshots(t *testing.T) {
	fc := &fakeCompleter{replies: []string{validHoldReply}}
	g := NewGateway(fc, "BTCUSDT")

	snapshots := fourSnapshots()
	delete(snapshots, model.Timeframe1d)

	_, err := g.AnalyzeFinal(context.Background(), snapshots, time.Now().Add(time.Minute))
	if !errors.Is(err, coreerrors.ErrMarketDataUnavailable) {
		t.Fatalf("err = %v, want wrapping ErrMarketDataUnavailable", err)
	}
	if fc.callCount != 0 {
		t.Errorf("Complete was called %d times, want 0 (should fail before any transport call)", fc.callCount)
	}
}

func TestGatewayAnalyzeFinalAcceptsValidReply(t *testing.T) {
	fc := &fakeCompleter{replies: []string{validHoldReply}}
	g := NewGateway(fc, "BTCUSDT")

	analysis, err := g.AnalyzeFinal(context.Background(), fourSnapshots(), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("AnalyzeFinal: %v", err)
	}
	if analysis.TradingSignals.PositionSuggestion != model.SuggestHold {
		t.Errorf("PositionSuggestion = %v, want HOLD", analysis.TradingSignals.PositionSuggestion)
	}
}

func mustWindow(t *testing.T) model.OhlcvWindow {
	t.Helper()
	bars := []model.Bar{{OpenTS: 1, Open: zero(), High: zero(), Low: zero(), Close: zero(), Volume: zero()}}
	w, err := model.NewOhlcvWindow(model.Timeframe("custom-unbounded"), bars)
	if err != nil {
		t.Fatalf("NewOhlcvWindow: %v", err)
	}
	return w
}
