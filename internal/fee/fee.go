// Package fee prices fills under a maker-rebate / taker-fee schedule.
//
// Amounts are signed from the account's point of view: a positive value is a
// fee paid, a negative value is a rebate received.
package fee

import "math"

// Model holds the two configured rates.
type Model struct {
	MakerRebateRate float64
	TakerFeeRate    float64
}

// Fee returns the signed fee for one fill. Maker fills earn the rebate
// (negative amount), taker fills pay the fee.
func (m Model) Fee(price, volume float64, isMaker bool) float64 {
	notional := math.Abs(price) * math.Abs(volume)
	if isMaker {
		return -m.MakerRebateRate * notional
	}
	return m.TakerFeeRate * notional
}

// Totals are the running counters kept alongside the account.
type Totals struct {
	RebateQuote float64
	PaidQuote   float64
	MakerFills  int
	TakerFills  int
}

// Ledger charges fills through a Model and accumulates Totals.
type Ledger struct {
	model  Model
	totals Totals
}

// NewLedger creates an empty ledger.
func NewLedger(m Model) *Ledger {
	return &Ledger{model: m}
}

// Charge prices a fill and records it.
func (l *Ledger) Charge(price, volume float64, isMaker bool) float64 {
	amount := l.model.Fee(price, volume, isMaker)
	if isMaker {
		l.totals.MakerFills++
		l.totals.RebateQuote += -amount
	} else {
		l.totals.TakerFills++
		l.totals.PaidQuote += amount
	}
	return amount
}

// Totals returns a copy of the counters.
func (l *Ledger) Totals() Totals {
	return l.totals
}

// Model returns the rates in use.
func (l *Ledger) Model() Model {
	return l.model
}
