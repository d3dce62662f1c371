// Package executor realizes a reconciler Plan against the live
// exchange (spec.md §4.7, C7): it is the only component allowed to
// call order-placing exchange methods. Grounded on the teacher's
// internal/order/manager.go retry/backoff shape and
// internal/orders/client_order_id.go's idempotence concern, but
// trimmed to this system's four primitive actions and single
// exec_lock instead of the teacher's trailing-stop/time-based order
// rule engine and its Redis-backed multi-tenant client-order-ID
// sequence — there is one instrument and one account here, so a
// per-trade UUID suffix is enough to make a retried submission
// recognizable as a duplicate.
package executor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"btc-advisor-bot/internal/coreerrors"
	"btc-advisor-bot/internal/events"
	"btc-advisor-bot/internal/exchange"
	"btc-advisor-bot/internal/logging"
	"btc-advisor-bot/internal/model"
)

// Exchange is the subset of *exchange.Client the executor depends on,
// narrowed to an interface so tests can supply a fake.
type Exchange interface {
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	GetPosition(ctx context.Context, symbol string) (model.Position, error)
	CreateOrder(ctx context.Context, req exchange.OrderRequest) (int64, error)
	CreateStopOrder(ctx context.Context, symbol string, closeSide model.Side, kind exchange.StopOrderKind, stopPrice decimal.Decimal) (int64, error)
}

// backoffSchedule is the transient-failure retry ladder from spec.md
// §4.7: three retries, 1s/2s/4s apart, plus jitter.
var backoffSchedule = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

const closePollTimeout = 5 * time.Second
const closePollInterval = 250 * time.Millisecond

// Executor serializes every Plan against the instrument behind a
// single exec_lock (spec.md §5), so no two Plans ever run
// concurrently regardless of how many triggers produced them.
type Executor struct {
	ex     Exchange
	symbol string
	bus    *events.Bus
	log    *logging.Logger

	mu               sync.Mutex // exec_lock
	haveLastLeverage bool
	lastLeverage     int
}

// New builds an Executor for symbol, publishing order lifecycle events
// onto bus.
func New(ex Exchange, symbol string, bus *events.Bus) *Executor {
	return &Executor{ex: ex, symbol: symbol, bus: bus, log: logging.WithComponent("executor")}
}

// Execute runs plan start to finish under exec_lock and returns the
// resulting TradeRecord. The record is returned even on partial
// failure — spec.md §3 "TradeRecord... per-action outcomes" — the
// caller is responsible for appending it to the trade history
// regardless of outcome.
func (e *Executor) Execute(ctx context.Context, plan model.Plan, signal model.TradingSignal, trigger model.Trigger) model.TradeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	record := model.TradeRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Trigger:   trigger,
		Signal:    signal,
		Plan:      plan,
	}

	for _, action := range plan {
		outcome := e.executeAction(ctx, record.ID, action)
		record.Outcomes = append(record.Outcomes, outcome)
		if !outcome.Success {
			e.bus.Publish(events.Event{Type: events.EventOrderFailed, Data: map[string]interface{}{
				"trade_id": record.ID, "action": string(action.Kind), "error": outcome.Error,
			}})
			break // abort remainder of Plan (spec.md §7: no compensating trade)
		}
		e.bus.Publish(events.Event{Type: events.EventOrderFilled, Data: map[string]interface{}{
			"trade_id": record.ID, "action": string(action.Kind), "order_id": outcome.OrderID,
		}})
	}
	return record
}

func (e *Executor) executeAction(ctx context.Context, tradeID string, action model.PlanAction) model.ActionOutcome {
	e.bus.Publish(events.Event{Type: events.EventOrderSubmitted, Data: map[string]interface{}{
		"trade_id": tradeID, "action": string(action.Kind),
	}})

	var orderID int64
	var err error
	switch action.Kind {
	case model.ActionSetLeverage:
		orderID, err = 0, e.setLeverage(ctx, action.Leverage)
	case model.ActionClosePosition:
		orderID, err = e.closePosition(ctx)
	case model.ActionOpenPosition:
		orderID, err = e.openPosition(ctx, tradeID, action)
	case model.ActionResizePosition:
		orderID, err = e.resizePosition(ctx, tradeID, action)
	default:
		err = fmt.Errorf("%w: unknown action kind %q", coreerrors.ErrInvariantViolation, action.Kind)
	}

	if err != nil {
		return model.ActionOutcome{Action: action, Success: false, Error: err.Error()}
	}
	return model.ActionOutcome{Action: action, Success: true, OrderID: orderID}
}

// setLeverage is idempotent: repeating the same leverage twice in a
// row performs exactly one exchange call (spec.md §8 invariant 8).
func (e *Executor) setLeverage(ctx context.Context, leverage int) error {
	if e.haveLastLeverage && e.lastLeverage == leverage {
		return nil
	}
	err := e.withRetry(ctx, "set_leverage", func() error {
		return e.ex.SetLeverage(ctx, e.symbol, leverage)
	})
	if err != nil {
		return err
	}
	e.haveLastLeverage = true
	e.lastLeverage = leverage
	return nil
}

// closePosition submits a reduce-only market order sized to the
// current position, then polls until it is flat or CloseTimeout.
func (e *Executor) closePosition(ctx context.Context) (int64, error) {
	pos, err := e.ex.GetPosition(ctx, e.symbol)
	if err != nil {
		return 0, err
	}
	if pos.IsFlat() {
		return 0, nil
	}

	closeSide := model.SideShort
	if pos.Side == model.SideShort {
		closeSide = model.SideLong
	}

	var orderID int64
	err = e.withRetry(ctx, "close_position", func() error {
		var callErr error
		orderID, callErr = e.ex.CreateOrder(ctx, exchange.OrderRequest{
			Symbol: e.symbol, Side: closeSide, Qty: pos.SizeBase, ReduceOnly: true,
		})
		return callErr
	})
	if err != nil {
		return 0, err
	}

	if err := e.pollUntilFlat(ctx); err != nil {
		return orderID, err
	}
	return orderID, nil
}

func (e *Executor) pollUntilFlat(ctx context.Context) error {
	deadline := time.Now().Add(closePollTimeout)
	for {
		pos, err := e.ex.GetPosition(ctx, e.symbol)
		if err == nil && pos.IsFlat() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: position still open after %s", coreerrors.ErrCloseTimeout, closePollTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(closePollInterval):
		}
	}
}

// openPosition pre-checks that no position is live, that the
// directional SL/TP invariant holds, then submits the entry order
// followed by its attached stop-loss and take-profit close orders
// (spec.md §4.7). take_profit_2/3 are informational only — they are
// never submitted as exchange orders.
func (e *Executor) openPosition(ctx context.Context, tradeID string, action model.PlanAction) (int64, error) {
	pos, err := e.ex.GetPosition(ctx, e.symbol)
	if err != nil {
		return 0, err
	}
	if !pos.IsFlat() {
		return 0, fmt.Errorf("%w: position not flat before open", coreerrors.ErrPositionDesyncAfterOpen)
	}
	if err := validateOpenOrdering(action); err != nil {
		return 0, fmt.Errorf("%w: %v", coreerrors.ErrInvariantViolation, err)
	}

	var entryOrderID int64
	err = e.withRetry(ctx, "open_position_entry", func() error {
		var callErr error
		entryOrderID, callErr = e.ex.CreateOrder(ctx, exchange.OrderRequest{
			Symbol: e.symbol, Side: action.Side, Qty: action.QtyBase, LimitPrice: action.EntryLimit,
			ClientOrderID: clientOrderID(tradeID, "entry"),
		})
		return callErr
	})
	if err != nil {
		return 0, err
	}

	closeSide := model.SideShort
	if action.Side == model.SideShort {
		closeSide = model.SideLong
	}

	if err := e.withRetry(ctx, "open_position_sl", func() error {
		_, callErr := e.ex.CreateStopOrder(ctx, e.symbol, closeSide, exchange.StopOrderStopLoss, action.StopLoss)
		return callErr
	}); err != nil {
		return entryOrderID, err
	}
	if err := e.withRetry(ctx, "open_position_tp", func() error {
		_, callErr := e.ex.CreateStopOrder(ctx, e.symbol, closeSide, exchange.StopOrderTakeProfit, action.TakeProfit)
		return callErr
	}); err != nil {
		return entryOrderID, err
	}

	return entryOrderID, nil
}

// validateOpenOrdering re-checks the directional invariant spec.md §3
// mandates on the plan action about to be submitted, independent of
// whatever validation ran upstream in the policy/reconciler stages.
func validateOpenOrdering(action model.PlanAction) error {
	switch action.Side {
	case model.SideLong:
		if !(action.TakeProfit.GreaterThan(action.EntryLimit) && action.EntryLimit.GreaterThan(action.StopLoss)) {
			return fmt.Errorf("want take_profit > entry > stop_loss, got %s > %s > %s", action.TakeProfit, action.EntryLimit, action.StopLoss)
		}
	case model.SideShort:
		if !(action.StopLoss.GreaterThan(action.EntryLimit) && action.EntryLimit.GreaterThan(action.TakeProfit)) {
			return fmt.Errorf("want stop_loss > entry > take_profit, got %s > %s > %s", action.StopLoss, action.EntryLimit, action.TakeProfit)
		}
	default:
		return fmt.Errorf("open position with side %q", action.Side)
	}
	return nil
}

// resizePosition submits an add-on order (delta > 0, non-reduce-only,
// same side as the position) or a reduce-only order (delta < 0, sized
// to |delta|), per spec.md §4.7.
func (e *Executor) resizePosition(ctx context.Context, tradeID string, action model.PlanAction) (int64, error) {
	if action.DeltaBase.IsZero() {
		return 0, nil
	}

	side := action.Side
	reduceOnly := false
	qty := action.DeltaBase
	if action.DeltaBase.IsNegative() {
		reduceOnly = true
		qty = action.DeltaBase.Abs()
		side = oppositeSide(action.Side)
	}

	var orderID int64
	err := e.withRetry(ctx, "resize_position", func() error {
		var callErr error
		orderID, callErr = e.ex.CreateOrder(ctx, exchange.OrderRequest{
			Symbol: e.symbol, Side: side, Qty: qty, ReduceOnly: reduceOnly,
			ClientOrderID: clientOrderID(tradeID, "resize"),
		})
		return callErr
	})
	return orderID, err
}

func oppositeSide(s model.Side) model.Side {
	if s == model.SideLong {
		return model.SideShort
	}
	return model.SideLong
}

// clientOrderID derives a deterministic, per-(trade,leg) exchange
// client order ID so a retried submission after a lost response is
// recognized as a duplicate rather than opening a second order.
func clientOrderID(tradeID, leg string) string {
	const maxLen = 36 // Binance newClientOrderId max length
	prefix, suffix := "bot-"+tradeID, "-"+leg
	if len(prefix)+len(suffix) > maxLen {
		prefix = prefix[:maxLen-len(suffix)] // trim the trade ID, keep the leg
	}
	return prefix + suffix
}

// withRetry runs fn, retrying per the transient-error backoff ladder
// (spec.md §4.7). A non-transient error returns immediately without
// retrying.
func (e *Executor) withRetry(ctx context.Context, label string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= len(backoffSchedule); attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !coreerrors.IsTransient(err) || attempt == len(backoffSchedule) {
			return err
		}
		wait := backoffSchedule[attempt] + jitter()
		e.log.Warn("transient exchange error, retrying", "action", label, "attempt", attempt+1, "error", err.Error())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}

func jitter() time.Duration {
	return time.Duration(rand.Intn(250)) * time.Millisecond
}

// liquidationWarnPct is the advisory threshold for
// RunLiquidationWatch: mark price coming within this percentage of
// the liquidation price triggers a warning event, never an order.
const liquidationWarnPct = 5

// RunLiquidationWatch polls the live position at interval and emits
// EventPositionLiquidationRisk when mark price is within
// liquidationWarnPct of the liquidation price. This is the
// SPEC_FULL.md §11 watchdog recovered from
// original_source/src/services/monitor_service.py: advisory only, it
// never places or cancels an order — blocks until ctx is cancelled.
func (e *Executor) RunLiquidationWatch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.checkLiquidationDistance(ctx)
		}
	}
}

func (e *Executor) checkLiquidationDistance(ctx context.Context) {
	pos, err := e.ex.GetPosition(ctx, e.symbol)
	if err != nil || pos.IsFlat() || pos.MarkPrice.IsZero() || pos.LiqPrice.IsZero() {
		return
	}
	distance := pos.MarkPrice.Sub(pos.LiqPrice).Abs().Div(pos.MarkPrice).Mul(decimal.NewFromInt(100))
	if distance.LessThanOrEqual(decimal.NewFromInt(liquidationWarnPct)) {
		e.bus.Publish(events.Event{Type: events.EventPositionLiquidationRisk, Data: map[string]interface{}{
			"mark_price": pos.MarkPrice.String(),
			"liq_price":  pos.LiqPrice.String(),
			"distance_pct": distance.String(),
		}})
	}
}
