// Package exchange adapts github.com/adshao/go-binance/v2/futures into
// the narrow facade spec.md §6 requires: OHLCV, balance, position,
// set-leverage, create-order, cancel-order. Builder-pattern service
// calls are grounded on
// skalibog-bfma/internal/exchange/binance.go's GetKlines; this package
// does not use the teacher's own hand-rolled HMAC REST client
// (internal/binance), which never imports go-binance and covers a much
// larger surface (algo orders, listen keys, trade history) than this
// system needs.
package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"btc-advisor-bot/config"
	"btc-advisor-bot/internal/coreerrors"
	"btc-advisor-bot/internal/model"
)

// Client is the USDT-M Futures facade the rest of the system depends
// on. It is deliberately small: every method maps onto exactly one
// spec.md §6 operation.
type Client struct {
	futures *futures.Client
}

// New builds a Client from exchange config. apiKey/secretKey may have
// already been resolved through internal/secrets before this is called.
func New(cfg config.ExchangeConfig, apiKey, secretKey string) *Client {
	c := futures.NewClient(apiKey, secretKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return &Client{futures: c}
}

// intervalFor maps a model.Timeframe onto the Binance kline interval
// string. TimeframeFinal has no exchange representation; callers never
// pull OHLCV for it.
func intervalFor(tf model.Timeframe) (string, error) {
	switch tf {
	case model.Timeframe15m:
		return "15m", nil
	case model.Timeframe1h:
		return "1h", nil
	case model.Timeframe4h:
		return "4h", nil
	case model.Timeframe1d:
		return "1d", nil
	default:
		return "", fmt.Errorf("%w: no kline interval for timeframe %q", coreerrors.ErrMarketDataUnavailable, tf)
	}
}

// GetOHLCV fetches the most recent limit klines for symbol/tf, oldest
// first, matching model.NewOhlcvWindow's monotonic-OpenTS requirement.
func (c *Client) GetOHLCV(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	interval, err := intervalFor(tf)
	if err != nil {
		return nil, err
	}

	klines, err := c.futures.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: klines %s/%s: %v", coreerrors.ErrTransientExchange, symbol, interval, err)
	}

	bars := make([]model.Bar, len(klines))
	for i, k := range klines {
		open, err1 := decimal.NewFromString(k.Open)
		high, err2 := decimal.NewFromString(k.High)
		low, err3 := decimal.NewFromString(k.Low)
		closeP, err4 := decimal.NewFromString(k.Close)
		volume, err5 := decimal.NewFromString(k.Volume)
		if err := firstErr(err1, err2, err3, err4, err5); err != nil {
			return nil, fmt.Errorf("%w: parsing kline %s/%s: %v", coreerrors.ErrMarketDataUnavailable, symbol, interval, err)
		}
		bars[i] = model.Bar{
			OpenTS: k.OpenTime,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closeP,
			Volume: volume,
		}
	}
	return bars, nil
}

// insufficientMarginCodes and symbolFilterCodes are Binance futures API
// error codes (github.com/adshao/go-binance/v2/common.APIError.Code) that
// mean the order was rejected for cause, not dropped in flight — retrying
// it would only reproduce the same rejection. classifyOrderErr routes
// these to the Operational kind so the executor aborts instead of
// retrying; everything else (network errors, 5xx, rate limiting) stays
// Transient.
var insufficientMarginCodes = map[int64]bool{
	-2019: true, // Margin is insufficient.
	-2018: true, // Balance is insufficient.
	-2010: true, // NEW_ORDER_REJECTED: account has insufficient balance for requested action.
}

var symbolFilterCodes = map[int64]bool{
	-1013: true, // Filter failure (PRICE_FILTER, LOT_SIZE, ...).
	-1111: true, // Precision is over the maximum defined for this asset.
	-4003: true, // Quantity less than or equal to zero.
	-4005: true, // Quantity greater than max quantity.
	-4164: true, // Order's notional must be no smaller than the symbol's minNotional.
}

// classifyOrderErr maps an order-submission error onto the spec's error
// taxonomy. A *common.APIError carrying a margin or symbol-filter code is
// a permanent rejection (Operational); anything else — network failure,
// timeout, 5xx, unrecognized code — is Transient and safe to retry.
func classifyOrderErr(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch {
		case insufficientMarginCodes[apiErr.Code]:
			return fmt.Errorf("%w: %v", coreerrors.ErrInsufficientMargin, err)
		case symbolFilterCodes[apiErr.Code]:
			return fmt.Errorf("%w: %v", coreerrors.ErrSymbolFilterRejected, err)
		}
	}
	return fmt.Errorf("%w: %v", coreerrors.ErrTransientExchange, err)
}

func firstErr(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// GetBalance returns the available USDT-margined balance.
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	balances, err := c.futures.NewGetBalanceService().Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: balance: %v", coreerrors.ErrTransientExchange, err)
	}
	for _, b := range balances {
		if b.Asset == "USDT" {
			avail, err := decimal.NewFromString(b.AvailableBalance)
			if err != nil {
				return decimal.Zero, fmt.Errorf("%w: parsing balance: %v", coreerrors.ErrMarketDataUnavailable, err)
			}
			return avail, nil
		}
	}
	return decimal.Zero, nil
}

// GetPosition returns the current position for symbol, FLAT if the
// exchange reports no open amount.
func (c *Client) GetPosition(ctx context.Context, symbol string) (model.Position, error) {
	risks, err := c.futures.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return model.Position{}, fmt.Errorf("%w: position risk %s: %v", coreerrors.ErrTransientExchange, symbol, err)
	}
	if len(risks) == 0 {
		return model.Position{Side: model.SideFlat}, nil
	}
	r := risks[0]

	amt, err1 := decimal.NewFromString(r.PositionAmt)
	entry, err2 := decimal.NewFromString(r.EntryPrice)
	mark, err3 := decimal.NewFromString(r.MarkPrice)
	pnl, err4 := decimal.NewFromString(r.UnRealizedProfit)
	liq, err5 := decimal.NewFromString(r.LiquidationPrice)
	if err := firstErr(err1, err2, err3, err4, err5); err != nil {
		return model.Position{}, fmt.Errorf("%w: parsing position %s: %v", coreerrors.ErrMarketDataUnavailable, symbol, err)
	}

	side := model.SideFlat
	switch {
	case amt.IsPositive():
		side = model.SideLong
	case amt.IsNegative():
		side = model.SideShort
	}

	leverage := 1
	if _, errConv := fmt.Sscanf(r.Leverage, "%d", &leverage); errConv != nil {
		leverage = 1
	}

	return model.Position{
		Side:          side,
		SizeBase:      amt.Abs(),
		Leverage:      leverage,
		EntryPrice:    entry,
		MarkPrice:     mark,
		UnrealizedPnL: pnl,
		LiqPrice:      liq,
	}, nil
}

// SetLeverage is idempotent on the exchange side: calling it with the
// currently-set leverage is a no-op success, matching the executor's
// (C7) expectation that SET_LEVERAGE is safe to re-issue every plan.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := c.futures.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: set leverage %s=%d: %v", coreerrors.ErrTransientExchange, symbol, leverage, err)
	}
	return nil
}

// OrderRequest is the normalized order input CreateOrder accepts,
// shaped after the teacher's internal/binance FuturesOrderParams but
// trimmed to the fields this system's Plan actions actually produce.
type OrderRequest struct {
	Symbol     string
	Side       model.Side // SideLong -> BUY, SideShort -> SELL
	Qty        decimal.Decimal
	LimitPrice decimal.Decimal // zero means market order
	ReduceOnly bool

	// ClientOrderID, when non-empty, is passed through as the
	// exchange's newClientOrderId so a retried submission (the
	// original may have succeeded server-side while the response was
	// lost to a network timeout) is recognized as a duplicate instead
	// of opening a second order.
	ClientOrderID string
}

// CreateOrder submits a market or limit order and returns the exchange
// order ID.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (int64, error) {
	side := futures.SideTypeBuy
	if req.Side == model.SideShort {
		side = futures.SideTypeSell
	}

	svc := c.futures.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Quantity(req.Qty.String()).
		ReduceOnly(req.ReduceOnly)
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	if req.LimitPrice.IsZero() {
		svc = svc.Type(futures.OrderTypeMarket)
	} else {
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(req.LimitPrice.String())
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("create order %s %s: %w", req.Symbol, req.Side, classifyOrderErr(err))
	}
	return resp.OrderID, nil
}

// StopOrderKind tags which closing order CreateStopOrder submits.
type StopOrderKind string

const (
	StopOrderStopLoss   StopOrderKind = "STOP_MARKET"
	StopOrderTakeProfit StopOrderKind = "TAKE_PROFIT_MARKET"
)

// CreateStopOrder submits a closePosition stop-market or
// take-profit-market order on the opposite side of a held position,
// the exchange's native bracket-order mechanism backing
// OpenPosition's attached sl/tp (spec.md §4.7). closeSide is the side
// that closes the position (SideShort for a LONG's SL/TP, SideLong for
// a SHORT's).
func (c *Client) CreateStopOrder(ctx context.Context, symbol string, closeSide model.Side, kind StopOrderKind, stopPrice decimal.Decimal) (int64, error) {
	side := futures.SideTypeSell
	if closeSide == model.SideLong {
		side = futures.SideTypeBuy
	}
	orderType := futures.OrderTypeStopMarket
	if kind == StopOrderTakeProfit {
		orderType = futures.OrderTypeTakeProfitMarket
	}

	resp, err := c.futures.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(orderType).
		StopPrice(stopPrice.String()).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("create stop order %s %s@%s: %w", symbol, kind, stopPrice, classifyOrderErr(err))
	}
	return resp.OrderID, nil
}

// CancelOrder cancels a previously submitted order by ID.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	_, err := c.futures.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: cancel order %s/%d: %v", coreerrors.ErrTransientExchange, symbol, orderID, err)
	}
	return nil
}
