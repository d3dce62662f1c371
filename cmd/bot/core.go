package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"btc-advisor-bot/internal/api"
	"btc-advisor-bot/internal/clock"
	"btc-advisor-bot/internal/exchange"
	"btc-advisor-bot/internal/model"
)

// botCore adapts the running bot's components to api.Core. Its
// TriggerAnalyze rejects model.TimeframeFinal: the scheduler's Trigger
// always re-runs the sampled-timeframe path regardless of the
// timeframe passed to it, so routing "final" through it would silently
// do the wrong thing. Trade bypasses the scheduler entirely and calls
// the mutex-guarded final pipeline directly, matching spec.md §6's
// description of /trade as an independent manual override.
type botCore struct {
	pipeline  *pipeline
	scheduler *clock.Scheduler
	exch      *exchange.Client
	symbol    string
	cancel    context.CancelFunc
}

func (c *botCore) Status(ctx context.Context) (api.StatusSnapshot, error) {
	window, table, err := c.pipeline.market.Pull(ctx, c.symbol, model.Timeframe15m)
	if err != nil {
		return api.StatusSnapshot{}, fmt.Errorf("status: %w", err)
	}
	bar, ok := window.Last()
	if !ok {
		return api.StatusSnapshot{}, fmt.Errorf("status: empty market data window")
	}
	price, _ := bar.Close.Float64()
	return api.StatusSnapshot{
		Price: price,
		RSI14: table.RSI14,
		MACD:  table.MACD.Value,
		Trend: table.Structure.Trend,
	}, nil
}

func (c *botCore) Balance(ctx context.Context) (string, error) {
	bal, err := c.exch.GetBalance(ctx)
	if err != nil {
		return "", err
	}
	return bal.String(), nil
}

func (c *botCore) Position(ctx context.Context) (model.Position, error) {
	return c.exch.GetPosition(ctx, c.symbol)
}

func (c *botCore) Price(ctx context.Context) (string, error) {
	window, _, err := c.pipeline.market.Pull(ctx, c.symbol, model.Timeframe15m)
	if err != nil {
		return "", err
	}
	bar, ok := window.Last()
	if !ok {
		return "", fmt.Errorf("price: empty market data window")
	}
	return bar.Close.String(), nil
}

func (c *botCore) TriggerAnalyze(ctx context.Context, tf model.Timeframe) (bool, error) {
	if tf == model.TimeframeFinal {
		return false, fmt.Errorf("analyze: final is a combined pass, use /trade to run it manually")
	}
	if !tf.Valid() {
		return false, fmt.Errorf("analyze: unknown timeframe %q", tf)
	}
	return c.scheduler.Trigger(ctx, tf), nil
}

func (c *botCore) Last(ctx context.Context, tf model.Timeframe) (*model.Analysis, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("last: unknown timeframe %q", tf)
	}
	return c.pipeline.store.GetLatest(tf)
}

func (c *botCore) Trade(ctx context.Context) (model.TradeRecord, error) {
	return c.pipeline.RunFinal(ctx, time.Now(), model.TriggerManual)
}

func (c *botCore) Stop(ctx context.Context) error {
	c.cancel()
	return nil
}

func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
