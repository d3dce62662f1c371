package marketdata

import "btc-advisor-bot/internal/model"

const volumeAvgPeriod = 20

// volumeProfile adapts the teacher's internal/analysis/volume.go
// VolumeAnalyzer onto model.OhlcvWindow: average/ratio/high-volume/
// climax-volume flags, OBV, and a buying/selling/neutral read from the
// last candle's close position within its range and its direction.
func volumeProfile(w model.OhlcvWindow) VolumeProfile {
	bars := w.Bars()
	volumes := w.Volumes()
	n := len(bars)
	if n == 0 {
		return VolumeProfile{}
	}

	avg := averageVolume(volumes)
	current := volumes[n-1]
	ratio := 0.0
	if avg > 0 {
		ratio = current / avg
	}

	last := bars[n-1]
	highF, _ := last.High.Float64()
	lowF, _ := last.Low.Float64()
	openF, _ := last.Open.Float64()
	closeF, _ := last.Close.Float64()

	return VolumeProfile{
		CurrentVolume:  current,
		AverageVolume:  avg,
		VolumeRatio:    ratio,
		IsHighVolume:   ratio >= 1.5,
		IsClimaxVolume: ratio >= 3,
		OBV:            onBalanceVolume(w),
		VolumeType:     volumeType(openF, highF, lowF, closeF),
	}
}

func averageVolume(volumes []float64) float64 {
	n := len(volumes)
	period := volumeAvgPeriod
	if period > n {
		period = n
	}
	if period == 0 {
		return 0
	}
	var sum float64
	for _, v := range volumes[n-period:] {
		sum += v
	}
	return sum / float64(period)
}

// onBalanceVolume is the cumulative +volume-on-up-close/-volume-on-down-close
// series, grounded on the teacher's CalculateOBV.
func onBalanceVolume(w model.OhlcvWindow) float64 {
	bars := w.Bars()
	var obv float64
	for i := 1; i < len(bars); i++ {
		prevClose, _ := bars[i-1].Close.Float64()
		closeF, _ := bars[i].Close.Float64()
		vol, _ := bars[i].Volume.Float64()
		switch {
		case closeF > prevClose:
			obv += vol
		case closeF < prevClose:
			obv -= vol
		}
	}
	return obv
}

// volumeType classifies the last candle's close position within its
// range as buying, selling, or neutral pressure, grounded on the
// teacher's DetermineVolumeType.
func volumeType(openP, high, low, closeP float64) string {
	rng := high - low
	if rng <= 0 {
		return "neutral"
	}
	closePosition := (closeP - low) / rng
	switch {
	case closePosition >= 0.66 && closeP >= openP:
		return "buying"
	case closePosition <= 0.34 && closeP <= openP:
		return "selling"
	default:
		return "neutral"
	}
}
