// Package reconciler turns an admissible TradingSignal plus the
// current live Position into a Plan of primitive exchange actions
// (spec.md §4.6). It is grounded on
// original_source/src/trade/trade_manager.py's
// _handle_existing_position/_open_new_position/_close_position branch
// structure, which maps directly onto the FLAT/LONG/SHORT ×
// HOLD/BUY/SELL decision table spec.md formalizes — and on the
// original's percent-vs-absolute-unit bug (spec.md §9), resolved here
// by computing every quantity as percent-of-equity in decimal.Decimal,
// with no "is_btc_unit" branch anywhere in this package.
package reconciler

import (
	"fmt"

	"github.com/shopspring/decimal"

	"btc-advisor-bot/internal/coreerrors"
	"btc-advisor-bot/internal/model"
)

// Reconciler is stateless; every call only depends on its arguments.
type Reconciler struct {
	stepSize    decimal.Decimal
	minNotional decimal.Decimal
}

// New builds a Reconciler with the symbol's exchange filter
// parameters.
func New(stepSize, minNotional decimal.Decimal) *Reconciler {
	return &Reconciler{stepSize: stepSize, minNotional: minNotional}
}

// Reconcile produces the Plan for signal against the account's current
// position and equity. An empty, non-nil Plan means "do nothing this
// trigger" (HOLD, a same-direction/same-leverage signal whose implied
// resize is below min_notional). The returned Plan is always
// model.Plan.StructurallyValid.
func (r *Reconciler) Reconcile(signal model.TradingSignal, position model.Position, equity decimal.Decimal) (model.Plan, error) {
	if signal.PositionSuggestion == model.SuggestHold {
		return model.Plan{}, nil
	}
	if signal.EntryPrice.IsZero() {
		return nil, fmt.Errorf("%w: signal has zero entry_price", coreerrors.ErrInvariantViolation)
	}

	targetSide := model.SignalSide(signal.PositionSuggestion)
	targetQty, err := r.targetQuantity(signal, equity)
	if err != nil {
		return nil, err
	}

	var plan model.Plan
	switch {
	case position.IsFlat():
		plan = r.openFromFlat(signal, targetSide, targetQty)

	case position.Side == targetSide && signal.Leverage == position.Leverage:
		// Same side, same leverage: resize by the signed delta only.
		// Per spec.md §4.6 this is the one case where the quantity
		// gate applies to the delta, not the full target size, and a
		// sub-threshold delta is a silent no-op (never cancels the
		// existing SL/TP).
		delta := targetQty.Sub(position.SizeBase)
		notional := delta.Abs().Mul(signal.EntryPrice)
		if notional.LessThan(r.minNotional) {
			return model.Plan{}, nil
		}
		plan = model.Plan{{Kind: model.ActionResizePosition, Side: targetSide, DeltaBase: delta}}

	default:
		// Same side with a different leverage, or opposite side
		// entirely: always close-then-reopen. Never a bare leverage
		// change on an open position (spec.md §4.6 tie-break).
		plan = r.closeThenReopen(signal, targetSide, targetQty)
	}

	if !plan.StructurallyValid() {
		return nil, fmt.Errorf("%w: reconciler produced a structurally invalid plan", coreerrors.ErrInvariantViolation)
	}
	return plan, nil
}

func (r *Reconciler) openFromFlat(signal model.TradingSignal, side model.Side, qty decimal.Decimal) model.Plan {
	return model.Plan{
		{Kind: model.ActionSetLeverage, Leverage: signal.Leverage},
		{Kind: model.ActionOpenPosition, Side: side, QtyBase: qty, EntryLimit: signal.EntryPrice, StopLoss: signal.StopLoss, TakeProfit: signal.TakeProfit1},
	}
}

func (r *Reconciler) closeThenReopen(signal model.TradingSignal, newSide model.Side, qty decimal.Decimal) model.Plan {
	return model.Plan{
		{Kind: model.ActionClosePosition},
		{Kind: model.ActionSetLeverage, Leverage: signal.Leverage},
		{Kind: model.ActionOpenPosition, Side: newSide, QtyBase: qty, EntryLimit: signal.EntryPrice, StopLoss: signal.StopLoss, TakeProfit: signal.TakeProfit1},
	}
}

// targetQuantity computes equity * pct/100 * leverage / entry, floored
// down to the instrument's step size, and validates the notional floor
// for the full-size cases (open, close-then-reopen). The same-side/
// same-leverage resize path validates its own delta notional instead.
func (r *Reconciler) targetQuantity(signal model.TradingSignal, equity decimal.Decimal) (decimal.Decimal, error) {
	raw := equity.Mul(signal.PositionSizePct).Div(decimal.NewFromInt(100)).
		Mul(decimal.NewFromInt(int64(signal.Leverage))).
		Div(signal.EntryPrice)
	qty := floorToStep(raw, r.stepSize)

	notional := qty.Mul(signal.EntryPrice)
	if notional.LessThan(r.minNotional) {
		return decimal.Zero, fmt.Errorf("%w: order notional %s below minimum %s", coreerrors.ErrSymbolFilterRejected, notional, r.minNotional)
	}
	return qty, nil
}

// floorToStep rounds qty down to the nearest multiple of step.
func floorToStep(qty, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return qty
	}
	steps := qty.Div(step).Floor()
	return steps.Mul(step)
}
