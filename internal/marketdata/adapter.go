package marketdata

import (
	"context"
	"fmt"
	"time"

	"btc-advisor-bot/internal/coreerrors"
	"btc-advisor-bot/internal/logging"
	"btc-advisor-bot/internal/model"
)

// OHLCVSource is the subset of internal/exchange.Client the adapter
// needs: fetch the most recent bars for one symbol/timeframe. Kept as a
// narrow interface here (rather than importing the full exchange client
// type) so marketdata's tests can supply a fake without touching the
// exchange package.
type OHLCVSource interface {
	GetOHLCV(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error)
}

// backoffSchedule is the transient-failure retry ladder from spec.md
// §4.3: up to three retries after the first attempt, waiting 1s, 2s and
// 4s before them, grounded on
// evdnx-goexchange/retry_policy.go's exponential backoff shape.
var backoffSchedule = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Adapter pulls one timeframe's OHLCV window and computes its full
// indicator table in one call, retrying transient source failures.
type Adapter struct {
	source OHLCVSource
	log    *logging.Logger
}

// NewAdapter builds an Adapter over source.
func NewAdapter(source OHLCVSource) *Adapter {
	return &Adapter{source: source, log: logging.WithComponent("marketdata")}
}

// Pull fetches symbol's window for tf and returns it alongside its
// computed IndicatorTable. A failure that persists across the full
// backoff schedule is wrapped in coreerrors.ErrMarketDataUnavailable.
func (a *Adapter) Pull(ctx context.Context, symbol string, tf model.Timeframe) (model.OhlcvWindow, IndicatorTable, error) {
	limit := tf.WindowLength()

	var bars []model.Bar
	var err error
	for attempt := 0; attempt <= len(backoffSchedule); attempt++ {
		bars, err = a.source.GetOHLCV(ctx, symbol, tf, limit)
		if err == nil {
			break
		}
		if !coreerrors.IsTransient(err) || attempt == len(backoffSchedule) {
			break
		}
		a.log.Warn("transient market data fetch failure, retrying",
			"timeframe", string(tf), "attempt", attempt+1, "error", err.Error())
		select {
		case <-ctx.Done():
			return model.OhlcvWindow{}, IndicatorTable{}, ctx.Err()
		case <-time.After(backoffSchedule[attempt]):
		}
	}
	if err != nil {
		return model.OhlcvWindow{}, IndicatorTable{}, fmt.Errorf("%w: %s: %v", coreerrors.ErrMarketDataUnavailable, tf, err)
	}

	window, err := model.NewOhlcvWindow(tf, bars)
	if err != nil {
		return model.OhlcvWindow{}, IndicatorTable{}, fmt.Errorf("%w: %s: %v", coreerrors.ErrMarketDataUnavailable, tf, err)
	}

	return window, computeIndicators(window), nil
}
