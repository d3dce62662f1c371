package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Bar is a single OHLCV candle.
type Bar struct {
	OpenTS int64 // unix millis
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// OhlcvWindow is an immutable, open-time-ordered sequence of bars for one
// timeframe. Callers must use NewOhlcvWindow to get the monotonicity and
// length guarantees spec.md §3 requires.
type OhlcvWindow struct {
	Timeframe Timeframe
	bars      []Bar
}

// NewOhlcvWindow validates bars are non-empty, strictly increasing in
// OpenTS, and match the timeframe's fixed window length, then returns an
// immutable window. A mismatched length or non-monotonic sequence is
// treated as MarketDataUnavailable by the caller (spec.md §4.3).
func NewOhlcvWindow(tf Timeframe, bars []Bar) (OhlcvWindow, error) {
	want := tf.WindowLength()
	if len(bars) == 0 {
		return OhlcvWindow{}, fmt.Errorf("%s: empty window", tf)
	}
	if want > 0 && len(bars) != want {
		return OhlcvWindow{}, fmt.Errorf("%s: want %d bars, got %d", tf, want, len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if bars[i].OpenTS <= bars[i-1].OpenTS {
			return OhlcvWindow{}, fmt.Errorf("%s: bars not monotonic at index %d", tf, i)
		}
	}
	cp := make([]Bar, len(bars))
	copy(cp, bars)
	return OhlcvWindow{Timeframe: tf, bars: cp}, nil
}

// Bars returns a defensive copy of the window's bars.
func (w OhlcvWindow) Bars() []Bar {
	cp := make([]Bar, len(w.bars))
	copy(cp, w.bars)
	return cp
}

// Len returns the number of bars in the window.
func (w OhlcvWindow) Len() int { return len(w.bars) }

// Last returns the most recent bar (the window's tail).
func (w OhlcvWindow) Last() (Bar, bool) {
	if len(w.bars) == 0 {
		return Bar{}, false
	}
	return w.bars[len(w.bars)-1], true
}

// Closes returns the close prices as float64, the shape most indicator
// libraries (go-talib included) expect.
func (w OhlcvWindow) Closes() []float64 { return w.column(func(b Bar) decimal.Decimal { return b.Close }) }
func (w OhlcvWindow) Highs() []float64  { return w.column(func(b Bar) decimal.Decimal { return b.High }) }
func (w OhlcvWindow) Lows() []float64   { return w.column(func(b Bar) decimal.Decimal { return b.Low }) }
func (w OhlcvWindow) Volumes() []float64 {
	return w.column(func(b Bar) decimal.Decimal { return b.Volume })
}

func (w OhlcvWindow) column(pick func(Bar) decimal.Decimal) []float64 {
	out := make([]float64, len(w.bars))
	for i, b := range w.bars {
		out[i], _ = pick(b).Float64()
	}
	return out
}
