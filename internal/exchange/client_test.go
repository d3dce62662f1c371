package exchange

import (
	"errors"
	"testing"

	"github.com/adshao/go-binance/v2/common"

	"btc-advisor-bot/internal/coreerrors"
	"btc-advisor-bot/internal/model"
)

func TestIntervalFor(t *testing.T) {
	cases := map[model.Timeframe]string{
		model.Timeframe15m: "15m",
		model.Timeframe1h:  "1h",
		model.Timeframe4h:  "4h",
		model.Timeframe1d:  "1d",
	}
	for tf, want := range cases {
		got, err := intervalFor(tf)
		if err != nil {
			t.Fatalf("intervalFor(%s): %v", tf, err)
		}
		if got != want {
			t.Errorf("intervalFor(%s) = %q, want %q", tf, got, want)
		}
	}
}

func TestIntervalForFinalIsUnavailable(t *testing.T) {
	_, err := intervalFor(model.TimeframeFinal)
	if !errors.Is(err, coreerrors.ErrMarketDataUnavailable) {
		t.Fatalf("err = %v, want wrapping ErrMarketDataUnavailable", err)
	}
}

func TestClassifyOrderErrMarginCodeIsOperational(t *testing.T) {
	err := classifyOrderErr(&common.APIError{Code: -2019, Message: "Margin is insufficient."})
	if !errors.Is(err, coreerrors.ErrInsufficientMargin) {
		t.Fatalf("err = %v, want wrapping ErrInsufficientMargin", err)
	}
	if coreerrors.IsTransient(err) {
		t.Error("margin rejection classified as transient, it must not be retried")
	}
}

func TestClassifyOrderErrFilterCodeIsOperational(t *testing.T) {
	err := classifyOrderErr(&common.APIError{Code: -4164, Message: "Order's notional must be no smaller than 5."})
	if !errors.Is(err, coreerrors.ErrSymbolFilterRejected) {
		t.Fatalf("err = %v, want wrapping ErrSymbolFilterRejected", err)
	}
	if coreerrors.IsTransient(err) {
		t.Error("filter rejection classified as transient, it must not be retried")
	}
}

func TestClassifyOrderErrUnrecognizedCodeIsTransient(t *testing.T) {
	err := classifyOrderErr(&common.APIError{Code: -1001, Message: "Internal error."})
	if !coreerrors.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestClassifyOrderErrNetworkFailureIsTransient(t *testing.T) {
	err := classifyOrderErr(errors.New("connection reset by peer"))
	if !coreerrors.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestFirstErr(t *testing.T) {
	boom := errors.New("boom")
	if got := firstErr(nil, nil, boom, nil); got != boom {
		t.Errorf("firstErr = %v, want %v", got, boom)
	}
	if got := firstErr(nil, nil, nil); got != nil {
		t.Errorf("firstErr = %v, want nil", got)
	}
}
