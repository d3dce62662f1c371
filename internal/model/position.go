package model

import "github.com/shopspring/decimal"

// Side is a position's directional state, including the flat state.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideFlat  Side = "FLAT"
)

// Position is the live exchange position snapshot (spec.md §3).
type Position struct {
	Side           Side
	SizeBase       decimal.Decimal // >= 0, always; direction is carried by Side
	Leverage       int
	EntryPrice     decimal.Decimal
	MarkPrice      decimal.Decimal
	UnrealizedPnL  decimal.Decimal
	LiqPrice       decimal.Decimal
}

// IsFlat reports whether the position is closed (size_base = 0).
func (p Position) IsFlat() bool {
	return p.Side == SideFlat || p.SizeBase.IsZero()
}

// SignalSide maps a BUY/SELL suggestion onto the Side the resulting
// position would hold.
func SignalSide(s PositionSuggestion) Side {
	switch s {
	case SuggestBuy:
		return SideLong
	case SuggestSell:
		return SideShort
	default:
		return SideFlat
	}
}
