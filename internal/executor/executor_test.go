package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"btc-advisor-bot/internal/coreerrors"
	"btc-advisor-bot/internal/events"
	"btc-advisor-bot/internal/exchange"
	"btc-advisor-bot/internal/model"
)

func d(v string) decimal.Decimal {
	dec, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return dec
}

type fakeExchange struct {
	position model.Position

	setLeverageCalls int
	setLeverageErrs  []error // consumed in order, then nil

	createOrderCalls int
	createOrderErrs  []error
	nextOrderID      int64

	stopOrderCalls int
	stopOrderErrs  []error

	// closeFlattensImmediately simulates the position reported after a
	// close order is submitted, so pollUntilFlat sees FLAT promptly.
	closeFlattensImmediately bool
}

func (f *fakeExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	var err error
	if f.setLeverageCalls < len(f.setLeverageErrs) {
		err = f.setLeverageErrs[f.setLeverageCalls]
	}
	f.setLeverageCalls++
	return err
}

func (f *fakeExchange) GetPosition(ctx context.Context, symbol string) (model.Position, error) {
	return f.position, nil
}

func (f *fakeExchange) CreateOrder(ctx context.Context, req exchange.OrderRequest) (int64, error) {
	var err error
	if f.createOrderCalls < len(f.createOrderErrs) {
		err = f.createOrderErrs[f.createOrderCalls]
	}
	f.createOrderCalls++
	if err != nil {
		return 0, err
	}
	if req.ReduceOnly && f.closeFlattensImmediately {
		f.position = model.Position{Side: model.SideFlat}
	}
	f.nextOrderID++
	return f.nextOrderID, nil
}

func (f *fakeExchange) CreateStopOrder(ctx context.Context, symbol string, closeSide model.Side, kind exchange.StopOrderKind, stopPrice decimal.Decimal) (int64, error) {
	var err error
	if f.stopOrderCalls < len(f.stopOrderErrs) {
		err = f.stopOrderErrs[f.stopOrderCalls]
	}
	f.stopOrderCalls++
	if err != nil {
		return 0, err
	}
	f.nextOrderID++
	return f.nextOrderID, nil
}

func buySignal() model.TradingSignal {
	return model.TradingSignal{PositionSuggestion: model.SuggestBuy, EntryPrice: d("100"), StopLoss: d("98"), TakeProfit1: d("104"), Leverage: 5}
}

func TestExecuteOpenFromFlat(t *testing.T) {
	fx := &fakeExchange{position: model.Position{Side: model.SideFlat}}
	bus := events.New()
	e := New(fx, "BTCUSDT", bus)

	plan := model.Plan{
		{Kind: model.ActionSetLeverage, Leverage: 5},
		{Kind: model.ActionOpenPosition, Side: model.SideLong, QtyBase: d("1"), EntryLimit: d("100"), StopLoss: d("98"), TakeProfit: d("104")},
	}
	record := e.Execute(context.Background(), plan, buySignal(), model.TriggerAuto)

	if !record.Succeeded() {
		t.Fatalf("record did not succeed: %+v", record.Outcomes)
	}
	if fx.setLeverageCalls != 1 {
		t.Errorf("setLeverageCalls = %d, want 1", fx.setLeverageCalls)
	}
	if fx.createOrderCalls != 1 {
		t.Errorf("createOrderCalls = %d, want 1 (entry only)", fx.createOrderCalls)
	}
	if fx.stopOrderCalls != 2 {
		t.Errorf("stopOrderCalls = %d, want 2 (sl+tp)", fx.stopOrderCalls)
	}
}

func TestExecuteSetLeverageIdempotentAcrossPlans(t *testing.T) {
	fx := &fakeExchange{position: model.Position{Side: model.SideFlat}}
	bus := events.New()
	e := New(fx, "BTCUSDT", bus)

	plan := model.Plan{{Kind: model.ActionSetLeverage, Leverage: 5}}
	e.Execute(context.Background(), plan, buySignal(), model.TriggerAuto)
	e.Execute(context.Background(), plan, buySignal(), model.TriggerAuto)

	if fx.setLeverageCalls != 1 {
		t.Errorf("setLeverageCalls = %d, want exactly 1 exchange call across two identical plans", fx.setLeverageCalls)
	}
}

func TestExecuteSetLeverageCallsAgainOnChange(t *testing.T) {
	fx := &fakeExchange{position: model.Position{Side: model.SideFlat}}
	bus := events.New()
	e := New(fx, "BTCUSDT", bus)

	e.Execute(context.Background(), model.Plan{{Kind: model.ActionSetLeverage, Leverage: 5}}, buySignal(), model.TriggerAuto)
	e.Execute(context.Background(), model.Plan{{Kind: model.ActionSetLeverage, Leverage: 3}}, buySignal(), model.TriggerAuto)

	if fx.setLeverageCalls != 2 {
		t.Errorf("setLeverageCalls = %d, want 2 (leverage changed)", fx.setLeverageCalls)
	}
}

func TestExecuteClosePositionPollsUntilFlat(t *testing.T) {
	fx := &fakeExchange{
		position:                 model.Position{Side: model.SideLong, SizeBase: d("1")},
		closeFlattensImmediately: true,
	}
	bus := events.New()
	e := New(fx, "BTCUSDT", bus)

	plan := model.Plan{{Kind: model.ActionClosePosition}}
	record := e.Execute(context.Background(), plan, buySignal(), model.TriggerAuto)

	if !record.Succeeded() {
		t.Fatalf("record did not succeed: %+v", record.Outcomes)
	}
}

func TestExecuteSetLeverageRetriesTransientThenSucceeds(t *testing.T) {
	// Matches spec.md §8 S6: SetLeverage fails twice then succeeds.
	fx := &fakeExchange{
		position: model.Position{Side: model.SideFlat},
		setLeverageErrs: []error{
			errors.New("transient exchange error: 503"),
			errors.New("transient exchange error: 503"),
		},
	}
	wrapped := &wrappingExchange{fx}
	bus := events.New()
	e := New(wrapped, "BTCUSDT", bus)
	e.log = e.log // no-op, keep default component logger

	start := time.Now()
	record := e.Execute(context.Background(), model.Plan{{Kind: model.ActionSetLeverage, Leverage: 5}}, buySignal(), model.TriggerAuto)
	if time.Since(start) < time.Second {
		t.Errorf("Execute returned before the first backoff interval elapsed")
	}
	if !record.Succeeded() {
		t.Fatalf("record did not succeed: %+v", record.Outcomes)
	}
	if fx.setLeverageCalls != 3 {
		t.Errorf("setLeverageCalls = %d, want 3 (2 failures + 1 success)", fx.setLeverageCalls)
	}
}

// wrappingExchange re-wraps fakeExchange's plain errors as transient
// so withRetry's coreerrors.IsTransient classification engages,
// without fakeExchange itself needing to import coreerrors.
type wrappingExchange struct{ *fakeExchange }

func (w *wrappingExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := w.fakeExchange.SetLeverage(ctx, symbol, leverage); err != nil {
		return errWrap(err)
	}
	return nil
}

func errWrap(err error) error {
	return &transientErr{err}
}

type transientErr struct{ err error }

func (t *transientErr) Error() string { return t.err.Error() }
func (t *transientErr) Unwrap() error { return coreerrors.ErrTransientExchange }

func TestExecuteAbortsRemainderOnPermanentError(t *testing.T) {
	fx := &fakeExchange{
		position:        model.Position{Side: model.SideFlat},
		createOrderErrs: []error{coreerrors.ErrSymbolFilterRejected},
	}
	bus := events.New()
	e := New(fx, "BTCUSDT", bus)

	plan := model.Plan{
		{Kind: model.ActionSetLeverage, Leverage: 5},
		{Kind: model.ActionOpenPosition, Side: model.SideLong, QtyBase: d("1"), EntryLimit: d("100"), StopLoss: d("98"), TakeProfit: d("104")},
	}
	record := e.Execute(context.Background(), plan, buySignal(), model.TriggerAuto)

	if record.Succeeded() {
		t.Fatal("record succeeded, want failure on the Open action")
	}
	if len(record.Outcomes) != 2 {
		t.Fatalf("len(Outcomes) = %d, want 2 (SetLeverage success + Open failure, no retry-induced duplicates)", len(record.Outcomes))
	}
	if !record.Outcomes[0].Success || record.Outcomes[1].Success {
		t.Errorf("Outcomes = %+v, want [success, failure]", record.Outcomes)
	}
}

func TestExecuteResizeAddOnSameDirection(t *testing.T) {
	fx := &fakeExchange{position: model.Position{Side: model.SideLong, SizeBase: d("3")}}
	bus := events.New()
	e := New(fx, "BTCUSDT", bus)

	plan := model.Plan{{Kind: model.ActionResizePosition, Side: model.SideLong, DeltaBase: d("2")}}
	record := e.Execute(context.Background(), plan, buySignal(), model.TriggerAuto)
	if !record.Succeeded() {
		t.Fatalf("record did not succeed: %+v", record.Outcomes)
	}
	if fx.createOrderCalls != 1 {
		t.Errorf("createOrderCalls = %d, want 1", fx.createOrderCalls)
	}
}

func TestExecuteResizeReduceOnly(t *testing.T) {
	fx := &fakeExchange{position: model.Position{Side: model.SideLong, SizeBase: d("3")}}
	bus := events.New()
	e := New(fx, "BTCUSDT", bus)

	plan := model.Plan{{Kind: model.ActionResizePosition, Side: model.SideLong, DeltaBase: d("-1")}}
	record := e.Execute(context.Background(), plan, buySignal(), model.TriggerAuto)
	if !record.Succeeded() {
		t.Fatalf("record did not succeed: %+v", record.Outcomes)
	}
}

func TestOpenPositionRejectsPositionNotFlat(t *testing.T) {
	fx := &fakeExchange{position: model.Position{Side: model.SideLong, SizeBase: d("1")}}
	bus := events.New()
	e := New(fx, "BTCUSDT", bus)

	plan := model.Plan{{Kind: model.ActionOpenPosition, Side: model.SideLong, QtyBase: d("1"), EntryLimit: d("100"), StopLoss: d("98"), TakeProfit: d("104")}}
	record := e.Execute(context.Background(), plan, buySignal(), model.TriggerAuto)
	if record.Succeeded() {
		t.Fatal("record succeeded, want failure: position already open")
	}
}
