// Package policy is the signal admissibility gate (spec.md §4.5): it
// decides whether a BUY/SELL Analysis is allowed to reach the
// reconciler, and clamps leverage/position size to the operator's
// risk-tiered caps when it is. Gated state (trades-today counter,
// cooldown clock) is kept in scheduler-timezone calendar days, not
// UTC, unlike the teacher's own risk manager.
package policy

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"btc-advisor-bot/config"
	"btc-advisor-bot/internal/model"
)

// Decision is the gate's verdict. A HOLD signal is always Admissible
// with no clamping applied — gates only constrain BUY/SELL.
type Decision struct {
	Admissible bool
	Reason     string // populated when !Admissible
	Signal     model.TradingSignal
}

// Policy holds the admissibility state that must persist across
// triggers: how many trades have fired today, and when the last one
// fired, both keyed to loc's calendar rather than UTC's, grounded on
// the teacher's internal/risk/manager.go CanOpenPosition gate style but
// adapted for a configurable scheduler timezone instead of the
// teacher's UTC-truncated daily reset.
type Policy struct {
	cfg config.BotConfig
	loc *time.Location

	mu          sync.Mutex
	dayKey      string
	tradesToday int
	lastTradeAt time.Time
}

// New builds a Policy gating on cfg's thresholds, with daily/cooldown
// state measured in tz.
func New(cfg config.BotConfig, tz string) (*Policy, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return &Policy{cfg: cfg, loc: loc}, nil
}

func dayKeyOf(t time.Time, loc *time.Location) string {
	y, m, d := t.In(loc).Date()
	return fmt.Sprintf("%04d-%02d-%02d", y, int(m), d)
}

// resetIfNewDayLocked rolls the trades-today counter over at local
// midnight. Caller must hold p.mu.
func (p *Policy) resetIfNewDayLocked(now time.Time) {
	key := dayKeyOf(now, p.loc)
	if key != p.dayKey {
		p.dayKey = key
		p.tradesToday = 0
	}
}

var hundred = decimal.NewFromInt(100)

// Evaluate runs the spec.md §4.5 gate table against analysis and
// returns the admissibility verdict, with leverage/position_size_pct
// clamped to the risk-tiered caps on an admissible BUY/SELL. now should
// be the trigger's scheduled time, not wall-clock time, so a replayed
// trigger gates consistently.
func (p *Policy) Evaluate(analysis model.Analysis, now time.Time) Decision {
	signal := analysis.TradingSignals
	if signal.PositionSuggestion == model.SuggestHold {
		return Decision{Admissible: true, Signal: signal}
	}

	if !p.cfg.AutoTradingEnabled {
		return reject("auto trading disabled")
	}
	if !signal.AutoTradingEnabled {
		return reject("advisor did not set auto_trading_enabled on this signal")
	}
	if analysis.Confidence.LessThan(decimal.NewFromFloat(p.cfg.MinConfidence)) {
		return reject(fmt.Sprintf("confidence %s below minimum %.0f", analysis.Confidence, p.cfg.MinConfidence))
	}
	if analysis.TrendStrength.LessThan(decimal.NewFromFloat(p.cfg.MinTrendStrength)) {
		return reject(fmt.Sprintf("trend_strength %s below minimum %.0f", analysis.TrendStrength, p.cfg.MinTrendStrength))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetIfNewDayLocked(now)

	if p.tradesToday >= p.cfg.MaxDailyTrades {
		return reject(fmt.Sprintf("max daily trades (%d) already reached", p.cfg.MaxDailyTrades))
	}
	if !p.lastTradeAt.IsZero() {
		elapsed := now.Sub(p.lastTradeAt)
		cooldown := time.Duration(p.cfg.CooldownMinutes) * time.Minute
		if elapsed < cooldown {
			return reject(fmt.Sprintf("cooldown active: %s remaining", cooldown-elapsed))
		}
	}

	if lossPct, ok := impliedLossPct(signal); ok && lossPct.GreaterThan(decimal.NewFromFloat(p.cfg.MaxLossPct)) {
		return reject(fmt.Sprintf("implied loss %s%% exceeds max %.2f%%", lossPct, p.cfg.MaxLossPct))
	}

	clamped := signal
	leverageCap := p.cfg.LeverageCapsByRisk.RiskCapFor(string(analysis.RiskLevel))
	if float64(clamped.Leverage) > leverageCap {
		clamped.Leverage = int(leverageCap)
	}
	sizeCap := decimal.NewFromFloat(p.cfg.PositionCapsByRisk.RiskCapFor(string(analysis.RiskLevel)))
	if clamped.PositionSizePct.GreaterThan(sizeCap) {
		clamped.PositionSizePct = sizeCap
	}

	return Decision{Admissible: true, Signal: clamped}
}

// impliedLossPct is the percentage distance between entry and stop loss
// — the risk the signal itself is proposing, not a daily drawdown
// figure. ok is false for a HOLD or a zero entry price, where the ratio
// is meaningless.
func impliedLossPct(signal model.TradingSignal) (decimal.Decimal, bool) {
	if signal.EntryPrice.IsZero() {
		return decimal.Zero, false
	}
	diff := signal.EntryPrice.Sub(signal.StopLoss).Abs()
	return diff.Div(signal.EntryPrice).Mul(hundred), true
}

// RecordTrade marks a trade as having fired at now, advancing the
// cooldown clock and the daily counter. Callers invoke this only after
// the executor has actually submitted the resulting Plan — a rejected
// or policy-gated signal never reaches this.
func (p *Policy) RecordTrade(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetIfNewDayLocked(now)
	p.tradesToday++
	p.lastTradeAt = now
}

// TradesToday returns the current day's trade count, resetting the
// counter first if now falls on a new day.
func (p *Policy) TradesToday(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetIfNewDayLocked(now)
	return p.tradesToday
}

func reject(reason string) Decision {
	return Decision{Admissible: false, Reason: reason}
}
