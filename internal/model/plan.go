package model

import "github.com/shopspring/decimal"

// ActionKind tags the primitive operations a Plan is built from
// (spec.md §3).
type ActionKind string

const (
	ActionSetLeverage    ActionKind = "SET_LEVERAGE"
	ActionClosePosition  ActionKind = "CLOSE_POSITION"
	ActionOpenPosition   ActionKind = "OPEN_POSITION"
	ActionResizePosition ActionKind = "RESIZE_POSITION"
)

// PlanAction is one primitive step of a Plan. Only the fields relevant
// to Kind are populated; the zero value of the rest is ignored.
type PlanAction struct {
	Kind ActionKind

	// SetLeverage
	Leverage int

	// OpenPosition
	Side       Side
	QtyBase    decimal.Decimal
	EntryLimit decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal

	// ResizePosition: signed delta, positive = add in current direction,
	// negative = reduce.
	DeltaBase decimal.Decimal
}

// Plan is an ordered, finite list of primitive exchange actions produced
// by the reconciler for one trigger. At most one direction change is
// ever present within a single Plan (spec.md §3, §8 invariant 5).
type Plan []PlanAction

// StructurallyValid is a constructive check for spec.md §8 invariant 5:
// a plan must never be able to leave the account simultaneously long
// and short. Per the §4.6 decision table, an Open is emitted either
// from FLAT (no Close needed) or after explicitly closing the opposite
// side first, so at most one Open and one Resize may appear, never
// both, and a Close present alongside an Open must precede it.
func (p Plan) StructurallyValid() bool {
	opens, resizes := 0, 0
	closeIdx, openIdx := -1, -1
	for i, a := range p {
		switch a.Kind {
		case ActionOpenPosition:
			opens++
			openIdx = i
		case ActionResizePosition:
			resizes++
		case ActionClosePosition:
			closeIdx = i
		}
	}
	if opens > 1 || resizes > 1 {
		return false
	}
	if opens == 1 && resizes == 1 {
		return false
	}
	if opens == 1 && closeIdx >= 0 && closeIdx > openIdx {
		return false
	}
	return true
}
