package marketdata

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"btc-advisor-bot/internal/coreerrors"
	"btc-advisor-bot/internal/model"
)

type fakeSource struct {
	bars    []model.Bar
	err     error
	failN   int // fail this many calls before succeeding
	calls   int
}

func (f *fakeSource) GetOHLCV(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	f.calls++
	if f.calls <= f.failN {
		return nil, f.err
	}
	return f.bars, nil
}

func genBars(n int, start, step float64) []model.Bar {
	bars := make([]model.Bar, n)
	price := start
	for i := 0; i < n; i++ {
		open := decimal.NewFromFloat(price)
		high := decimal.NewFromFloat(price + step)
		low := decimal.NewFromFloat(price - step)
		closeP := decimal.NewFromFloat(price + step/2)
		bars[i] = model.Bar{
			OpenTS: int64(i) * 3_600_000,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closeP,
			Volume: decimal.NewFromFloat(100 + float64(i)),
		}
		price += step
	}
	return bars
}

func TestAdapterPullSucceeds(t *testing.T) {
	bars := genBars(48, 100, 1)
	src := &fakeSource{bars: bars}
	a := NewAdapter(src)

	window, table, err := a.Pull(context.Background(), "BTCUSDT", model.Timeframe1h)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if window.Len() != 48 {
		t.Fatalf("window len = %d, want 48", window.Len())
	}
	if table.SMA20 == 0 {
		t.Error("expected non-zero SMA20 with 48 bars")
	}
	if table.VWAP == 0 {
		t.Error("expected non-zero VWAP")
	}
	if !model.MarketPhase(table.Structure.Phase).Valid() {
		t.Errorf("phase %q not a recognized model.MarketPhase value", table.Structure.Phase)
	}
}

func TestAdapterRetriesTransientFailures(t *testing.T) {
	bars := genBars(48, 100, 1)
	src := &fakeSource{bars: bars, err: coreerrors.ErrTransientExchange, failN: 2}
	a := NewAdapter(src)

	_, _, err := a.Pull(context.Background(), "BTCUSDT", model.Timeframe1h)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if src.calls != 3 {
		t.Errorf("calls = %d, want 3", src.calls)
	}
}

func TestAdapterGivesUpOnExhaustedRetries(t *testing.T) {
	src := &fakeSource{err: coreerrors.ErrTransientExchange, failN: 10}
	a := NewAdapter(src)

	_, _, err := a.Pull(context.Background(), "BTCUSDT", model.Timeframe1h)
	if !errors.Is(err, coreerrors.ErrMarketDataUnavailable) {
		t.Fatalf("err = %v, want wrapping ErrMarketDataUnavailable", err)
	}
}

func TestAdapterWrapsNonTransientImmediately(t *testing.T) {
	src := &fakeSource{err: errors.New("boom"), failN: 10}
	a := NewAdapter(src)

	_, _, err := a.Pull(context.Background(), "BTCUSDT", model.Timeframe1h)
	if !errors.Is(err, coreerrors.ErrMarketDataUnavailable) {
		t.Fatalf("err = %v, want wrapping ErrMarketDataUnavailable", err)
	}
	if src.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on non-transient error)", src.calls)
	}
}
