package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"btc-advisor-bot/internal/model"
)

func newAnalysis(tf model.Timeframe, ts int64) model.Analysis {
	return model.Analysis{
		Timeframe:        tf,
		MarketPhase:      model.PhaseUp,
		OverallSentiment: model.SentimentNeutral,
		RiskLevel:        model.RiskMedium,
		Confidence:       decimal.NewFromInt(80),
		TrendStrength:    decimal.NewFromInt(65),
		TradingSignals:   model.TradingSignal{PositionSuggestion: model.SuggestHold, Leverage: 1},
		GeneratedAtMs:    ts,
		SourceTimeframe:  tf,
	}
}

func TestPutAndGetLatestRoundTrips(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a := newAnalysis(model.Timeframe1h, time.Now().UnixMilli())
	prev, err := s.PutAnalysis(model.Timeframe1h, a)
	if err != nil {
		t.Fatalf("PutAnalysis: %v", err)
	}
	if prev != nil {
		t.Errorf("expected nil previous snapshot on first write, got %+v", prev)
	}

	got, err := s.GetLatest(model.Timeframe1h)
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if got == nil || !got.Confidence.Equal(a.Confidence) {
		t.Fatalf("GetLatest = %+v, want %+v", got, a)
	}
}

func TestPutAnalysisReturnsPreviousSnapshot(t *testing.T) {
	s, _ := New(t.TempDir())

	first := newAnalysis(model.Timeframe1h, 1000)
	if _, err := s.PutAnalysis(model.Timeframe1h, first); err != nil {
		t.Fatalf("PutAnalysis first: %v", err)
	}

	second := newAnalysis(model.Timeframe1h, 2000)
	prev, err := s.PutAnalysis(model.Timeframe1h, second)
	if err != nil {
		t.Fatalf("PutAnalysis second: %v", err)
	}
	if prev == nil || prev.GeneratedAtMs != first.GeneratedAtMs {
		t.Fatalf("prev = %+v, want snapshot with GeneratedAtMs=%d", prev, first.GeneratedAtMs)
	}
}

func TestGetLatestQuarantinesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)

	path := filepath.Join(dir, "analysis", "analysis_1h.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	got, err := s.GetLatest(model.Timeframe1h)
	if err == nil {
		t.Fatal("expected error reading corrupt snapshot")
	}
	if got != nil {
		t.Errorf("got = %+v, want nil", got)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected corrupt file to be moved aside")
	}
	matches, _ := filepath.Glob(path + ".bad.*")
	if len(matches) != 1 {
		t.Errorf("expected exactly one quarantined file, found %d", len(matches))
	}
}

func TestPutFinalRequiresFreshSourceSnapshots(t *testing.T) {
	s, _ := New(t.TempDir())

	final := newAnalysis(model.TimeframeFinal, time.Now().UnixMilli())
	if _, err := s.PutFinal(final, time.Hour); err == nil {
		t.Fatal("expected error when no source snapshots exist")
	}

	now := time.Now()
	for _, tf := range model.SourceTimeframes {
		a := newAnalysis(tf, now.UnixMilli())
		if _, err := s.PutAnalysis(tf, a); err != nil {
			t.Fatalf("PutAnalysis(%s): %v", tf, err)
		}
	}

	if _, err := s.PutFinal(final, time.Hour); err != nil {
		t.Fatalf("PutFinal with fresh sources: %v", err)
	}

	got, err := s.GetLatest(model.TimeframeFinal)
	if err != nil || got == nil {
		t.Fatalf("GetLatest(final) = %+v, %v", got, err)
	}
}

func TestPutFinalRejectsStaleSourceSnapshot(t *testing.T) {
	s, _ := New(t.TempDir())

	stale := time.Now().Add(-2 * time.Hour).UnixMilli()
	fresh := time.Now().UnixMilli()
	for i, tf := range model.SourceTimeframes {
		ts := fresh
		if i == 0 {
			ts = stale
		}
		if _, err := s.PutAnalysis(tf, newAnalysis(tf, ts)); err != nil {
			t.Fatalf("PutAnalysis(%s): %v", tf, err)
		}
	}

	final := newAnalysis(model.TimeframeFinal, fresh)
	if _, err := s.PutFinal(final, time.Hour); err == nil {
		t.Fatal("expected error with one stale source snapshot")
	}
}

func TestAppendAndReadTradeHistory(t *testing.T) {
	s, _ := New(t.TempDir())

	r1 := model.TradeRecord{ID: "t1", Timestamp: time.Now(), Trigger: model.TriggerAuto}
	r2 := model.TradeRecord{ID: "t2", Timestamp: time.Now(), Trigger: model.TriggerManual}

	if err := s.AppendTrade(r1); err != nil {
		t.Fatalf("AppendTrade r1: %v", err)
	}
	if err := s.AppendTrade(r2); err != nil {
		t.Fatalf("AppendTrade r2: %v", err)
	}

	history, err := s.TradeHistory()
	if err != nil {
		t.Fatalf("TradeHistory: %v", err)
	}
	if len(history) != 2 || history[0].ID != "t1" || history[1].ID != "t2" {
		t.Fatalf("history = %+v, want [t1, t2] in order", history)
	}
}
