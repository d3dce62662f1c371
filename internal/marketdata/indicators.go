package marketdata

import (
	"github.com/markcheno/go-talib"

	"btc-advisor-bot/internal/model"
)

// computeIndicators runs the talib battery plus the hand-rolled VWAP and
// Ichimoku over one window, grounded on
// skalibog-bfma/internal/analysis/technical/analyzer.go's calculateRSI/
// calculateMACD/calculateBollingerBands/calculateATR/calculateIchimoku
// pattern: talib operates on the full series, the table only keeps the
// last value since that is all the advisor's prompt needs. SMA50 and
// SMA200 stay zero when the window holds fewer bars than their period.
func computeIndicators(w model.OhlcvWindow) IndicatorTable {
	closes := w.Closes()
	highs := w.Highs()
	lows := w.Lows()

	var table IndicatorTable

	if rsi := talib.Rsi(closes, 14); len(rsi) > 0 {
		table.RSI14 = last(rsi)
	}

	macd, signal, hist := talib.Macd(closes, 12, 26, 9)
	table.MACD = MACD{Value: last(macd), Signal: last(signal), Histogram: last(hist)}

	upper, middle, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
	table.Bollinger = Bollinger{Upper: last(upper), Middle: last(middle), Lower: last(lower)}

	if adx := talib.Adx(highs, lows, closes, 14); len(adx) > 0 {
		table.ADX14 = last(adx)
	}
	if sma20 := talib.Sma(closes, 20); len(sma20) > 0 {
		table.SMA20 = last(sma20)
	}
	if len(closes) >= 50 {
		table.SMA50 = last(talib.Sma(closes, 50))
	}
	if len(closes) >= 200 {
		table.SMA200 = last(talib.Sma(closes, 200))
	}

	table.VWAP = vwap(w)
	table.Ichimoku = ichimoku(highs, lows)
	table.Volume = volumeProfile(w)
	table.Structure = marketStructure(w)
	table.UnfilledFVGs = unfilledFVGs(w)

	return table
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// ichimokuLine computes the rolling (periodHigh+periodLow)/2 midline
// talib has no primitive for, grounded on skalibog's
// calculateIchimokuLine.
func ichimokuLine(highs, lows []float64, period int) float64 {
	n := len(highs)
	if n < period {
		period = n
	}
	if period == 0 {
		return 0
	}
	hi, lo := highs[n-period], lows[n-period]
	for i := n - period; i < n; i++ {
		if highs[i] > hi {
			hi = highs[i]
		}
		if lows[i] < lo {
			lo = lows[i]
		}
	}
	return (hi + lo) / 2
}

// ichimoku computes the cloud's four lines unshifted, grounded on
// skalibog-bfma/internal/analysis/technical/analyzer.go's
// calculateIchimoku (Tenkan=9, Kijun=26, SenkouA=avg(Tenkan,Kijun),
// SenkouB=52).
func ichimoku(highs, lows []float64) Ichimoku {
	tenkan := ichimokuLine(highs, lows, 9)
	kijun := ichimokuLine(highs, lows, 26)
	return Ichimoku{
		Tenkan:  tenkan,
		Kijun:   kijun,
		SenkouA: (tenkan + kijun) / 2,
		SenkouB: ichimokuLine(highs, lows, 52),
	}
}

// vwap is the classic volume-weighted average price over the whole
// window, grounded on the teacher's
// internal/analysis/volume.go:CalculateVolumeWeightedAveragePrice —
// go-talib has no VWAP primitive.
func vwap(w model.OhlcvWindow) float64 {
	bars := w.Bars()
	var totalVolumePrice, totalVolume float64
	for _, b := range bars {
		high, _ := b.High.Float64()
		low, _ := b.Low.Float64()
		closeP, _ := b.Close.Float64()
		vol, _ := b.Volume.Float64()
		typical := (high + low + closeP) / 3
		totalVolumePrice += typical * vol
		totalVolume += vol
	}
	if totalVolume == 0 {
		return 0
	}
	return totalVolumePrice / totalVolume
}
