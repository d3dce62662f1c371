// Package marketdata pulls per-timeframe OHLCV windows (spec.md §3, §4.3)
// and computes the indicator table the advisor gateway compresses into
// its prompt. Indicator math is delegated to
// github.com/markcheno/go-talib for the textbook oscillators; VWAP and
// Ichimoku, which talib does not implement, are computed by hand from
// the window's own high/low/close/volume series.
package marketdata

// MACD bundles the three series talib.Macd returns, last-value only.
type MACD struct {
	Value     float64
	Signal    float64
	Histogram float64
}

// Bollinger bundles talib.BBands's three bands, last-value only.
type Bollinger struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Ichimoku bundles the cloud's four lines, last-value only. Senkou spans
// are the *unshifted* projection (i.e. evaluated at the current bar, not
// plotted 26 periods forward) since the advisor only ever reasons about
// "now".
type Ichimoku struct {
	Tenkan  float64
	Kijun   float64
	SenkouA float64
	SenkouB float64
}

// VolumeProfile summarizes buy/sell pressure and anomaly detection over
// the window (spec.md §4.3 "per-bar volume metrics"), grounded on the
// teacher's internal/analysis volume analyzer.
type VolumeProfile struct {
	CurrentVolume  float64
	AverageVolume  float64
	VolumeRatio    float64
	IsHighVolume   bool
	IsClimaxVolume bool
	OBV            float64
	VolumeType     string // "buying", "selling", "neutral"
}

// SwingPoint is a locally-extreme high or low used to derive trend
// structure and support/resistance clusters.
type SwingPoint struct {
	Price       float64
	CandleIndex int
	Kind        string // "high" or "low"
}

// Structure is the deterministic market-structure read computed
// independent of the LLM and used as prompt context; it is not compared
// against the advisor's own market_phase claim.
type Structure struct {
	Trend            string // "bullish", "bearish", "sideways"
	TrendStrength    float64 // 0..1
	HigherHighs      int
	HigherLows       int
	LowerHighs       int
	LowerLows        int
	SupportLevels    []float64
	ResistanceLevels []float64
	Phase            string // "up", "down", "accumulate", "distribute" — model.MarketPhase values
}

// FVGKind tags the direction of a Fair Value Gap.
type FVGKind string

const (
	FVGBullish FVGKind = "bullish"
	FVGBearish FVGKind = "bearish"
)

// FVG is a three-candle Fair Value Gap, grounded on the teacher's
// internal/analysis FVG detector.
type FVG struct {
	Kind        FVGKind
	TopPrice    float64
	BottomPrice float64
	CandleIndex int
	Filled      bool
}

// IndicatorTable is the full dense indicator snapshot for one window
// (spec.md §4.3): RSI(14), MACD, VWAP, Bollinger, Ichimoku, ADX, SMAs,
// plus the volume/structure/FVG enrichment the teacher's own analysis
// package contributes beyond the spec's named indicator list.
type IndicatorTable struct {
	RSI14     float64
	MACD      MACD
	VWAP      float64
	Bollinger Bollinger
	Ichimoku  Ichimoku
	ADX14     float64
	SMA20     float64
	SMA50     float64
	SMA200    float64
	Volume    VolumeProfile
	Structure Structure
	UnfilledFVGs []FVG
}
