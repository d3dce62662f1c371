package marketdata

import "btc-advisor-bot/internal/model"

// minFVGPercent is the minimum gap size, as a fraction of price, for a
// three-candle gap to count as a Fair Value Gap rather than noise.
const minFVGPercent = 0.001

// unfilledFVGs adapts the teacher's internal/analysis/fvg.go FVGDetector
// onto model.OhlcvWindow: a bullish gap is candle[i-2].High below
// candle[i].Low, a bearish gap is candle[i-2].Low above candle[i].High.
// Only gaps not yet wicked back into by a later candle are returned,
// since this table exists purely as advisor-prompt context, not a
// tracked/persisted structure.
func unfilledFVGs(w model.OhlcvWindow) []FVG {
	bars := w.Bars()
	n := len(bars)
	if n < 3 {
		return nil
	}

	var gaps []FVG
	for i := 2; i < n; i++ {
		first, third := bars[i-2], bars[i]
		firstHigh, _ := first.High.Float64()
		firstLow, _ := first.Low.Float64()
		thirdHigh, _ := third.High.Float64()
		thirdLow, _ := third.Low.Float64()

		if thirdLow > firstHigh && gapSize(firstHigh, thirdLow) >= minFVGPercent {
			gaps = append(gaps, FVG{Kind: FVGBullish, TopPrice: thirdLow, BottomPrice: firstHigh, CandleIndex: i})
		}
		if firstLow > thirdHigh && gapSize(thirdHigh, firstLow) >= minFVGPercent {
			gaps = append(gaps, FVG{Kind: FVGBearish, TopPrice: firstLow, BottomPrice: thirdHigh, CandleIndex: i})
		}
	}

	for idx := range gaps {
		gaps[idx].Filled = isFilled(gaps[idx], bars)
	}

	var unfilled []FVG
	for _, g := range gaps {
		if !g.Filled {
			unfilled = append(unfilled, g)
		}
	}
	return unfilled
}

func gapSize(low, high float64) float64 {
	if low == 0 {
		return 0
	}
	return (high - low) / low
}

// isFilled reports whether any candle after the gap's formation wicked
// back into any part of its zone.
func isFilled(gap FVG, bars []model.Bar) bool {
	for i := gap.CandleIndex + 1; i < len(bars); i++ {
		high, _ := bars[i].High.Float64()
		low, _ := bars[i].Low.Float64()
		if low <= gap.TopPrice && high >= gap.BottomPrice {
			return true
		}
	}
	return false
}
