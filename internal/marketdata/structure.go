package marketdata

import (
	"btc-advisor-bot/internal/model"
)

const swingLookback = 3

// marketStructure adapts the teacher's internal/analysis/trend.go
// TrendAnalyzer onto model.OhlcvWindow/float64, remapping its five-value
// CurrentPhase vocabulary (markup/markdown/accumulation/distribution/
// transitional) onto model.MarketPhase's four values. A bullish or
// bearish trend with strength above 0.7 reads as "up" or "down"; every
// other read, sideways or weak, is split by the last close against its
// 20-bar average ("accumulate" at or above it, "distribute" below).
// There is no separate "transitional" case.
func marketStructure(w model.OhlcvWindow) Structure {
	highs := w.Highs()
	lows := w.Lows()
	closes := w.Closes()

	swingHighs := findSwings(highs, true)
	swingLows := findSwings(lows, false)

	hh, hl := countDirectional(swingHighs, true), countDirectional(swingLows, true)
	lh, ll := countDirectional(swingHighs, false), countDirectional(swingLows, false)

	trend := determineTrend(hh, hl, lh, ll)
	strength := trendStrength(trend, swingHighs, swingLows)

	return Structure{
		Trend:            trend,
		TrendStrength:    strength,
		HigherHighs:      hh,
		HigherLows:       hl,
		LowerHighs:       lh,
		LowerLows:        ll,
		SupportLevels:    clusterLevels(lowPrices(swingLows)),
		ResistanceLevels: clusterLevels(highPrices(swingHighs)),
		Phase:            marketPhase(trend, strength, closes),
	}
}

func findSwings(series []float64, high bool) []SwingPoint {
	var out []SwingPoint
	for i := swingLookback; i < len(series)-swingLookback; i++ {
		isSwing := true
		for j := i - swingLookback; j <= i+swingLookback; j++ {
			if j == i {
				continue
			}
			if high && series[j] > series[i] {
				isSwing = false
				break
			}
			if !high && series[j] < series[i] {
				isSwing = false
				break
			}
		}
		if isSwing {
			kind := "low"
			if high {
				kind = "high"
			}
			out = append(out, SwingPoint{Price: series[i], CandleIndex: i, Kind: kind})
		}
	}
	return out
}

// countDirectional counts how many consecutive swing-point pairs rose
// (ascending=true) or fell (ascending=false).
func countDirectional(points []SwingPoint, ascending bool) int {
	count := 0
	for i := 1; i < len(points); i++ {
		if ascending && points[i].Price > points[i-1].Price {
			count++
		}
		if !ascending && points[i].Price < points[i-1].Price {
			count++
		}
	}
	return count
}

func determineTrend(hh, hl, lh, ll int) string {
	bullish := hh + hl
	bearish := lh + ll
	switch {
	case bullish > 0 && bullish > bearish:
		return "bullish"
	case bearish > 0 && bearish > bullish:
		return "bearish"
	default:
		return "sideways"
	}
}

func trendStrength(trend string, highs, lows []SwingPoint) float64 {
	if trend == "sideways" {
		return 0.3
	}
	total := len(highs) + len(lows)
	if total == 0 {
		return 0
	}
	aligned := countDirectional(highs, trend == "bullish") + countDirectional(lows, trend == "bullish")
	s := float64(aligned) / float64(total)
	if s > 1 {
		s = 1
	}
	return s
}

func marketPhase(trend string, strength float64, closes []float64) string {
	switch {
	case trend == "bullish" && strength > 0.7:
		return string(model.PhaseUp)
	case trend == "bearish" && strength > 0.7:
		return string(model.PhaseDown)
	default:
		if aboveRecentAverage(closes) {
			return string(model.PhaseAccumulate)
		}
		return string(model.PhaseDistribute)
	}
}

func aboveRecentAverage(closes []float64) bool {
	n := len(closes)
	if n == 0 {
		return true
	}
	window := 20
	if window > n {
		window = n
	}
	var sum float64
	for _, c := range closes[n-window:] {
		sum += c
	}
	avg := sum / float64(window)
	return closes[n-1] >= avg
}

func highPrices(points []SwingPoint) []float64 { return prices(points) }
func lowPrices(points []SwingPoint) []float64   { return prices(points) }

func prices(points []SwingPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Price
	}
	return out
}

// clusterLevels groups swing prices within 1% of each other and averages
// each cluster, grounded on the teacher's
// IdentifySupportLevels/IdentifyResistanceLevels tolerance-clustering.
func clusterLevels(prices []float64) []float64 {
	if len(prices) == 0 {
		return nil
	}
	sorted := append([]float64(nil), prices...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	var levels []float64
	clusterSum, clusterCount := sorted[0], 1
	for i := 1; i < len(sorted); i++ {
		clusterAvg := clusterSum / float64(clusterCount)
		if sorted[i] <= clusterAvg*1.01 {
			clusterSum += sorted[i]
			clusterCount++
			continue
		}
		levels = append(levels, clusterAvg)
		clusterSum, clusterCount = sorted[i], 1
	}
	levels = append(levels, clusterSum/float64(clusterCount))
	return levels
}
