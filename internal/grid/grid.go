// Package grid computes symmetric price ladders and the incremental
// cancel/place diff between two ladders.
//
// Prices are keyed by Tick, the price scaled to a fixed number of decimal
// places, so membership never depends on float equality.
package grid

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Tick is a price expressed in units of 10^-dp.
type Tick int64

// Quantizer converts between float prices and ticks at a fixed precision.
type Quantizer struct {
	dp int32
}

// NewQuantizer returns a quantizer rounding to dp decimal places.
func NewQuantizer(dp int) Quantizer {
	return Quantizer{dp: int32(dp)}
}

// Decimals returns the configured decimal places.
func (q Quantizer) Decimals() int {
	return int(q.dp)
}

// Tick rounds price half away from zero and returns its tick index.
func (q Quantizer) Tick(price float64) Tick {
	return Tick(decimal.NewFromFloat(price).Round(q.dp).Shift(q.dp).IntPart())
}

// Price converts a tick back to a float price.
func (q Quantizer) Price(t Tick) float64 {
	return decimal.New(int64(t), -q.dp).InexactFloat64()
}

// Round rounds price to the configured precision.
func (q Quantizer) Round(price float64) float64 {
	return q.Price(q.Tick(price))
}

// Levels returns the ascending, de-duplicated ladder
// base·(1 ± gridPct·i) for i in 1..levels.
// A level whose rounded price does not sit strictly on its own side of base,
// or is not positive, is dropped.
func Levels(base, gridPct float64, levels int, q Quantizer) []Tick {
	if base <= 0 || levels < 1 || math.IsNaN(base) || math.IsInf(base, 0) {
		return nil
	}

	seen := make(map[Tick]struct{}, 2*levels)
	for i := 1; i <= levels; i++ {
		step := gridPct * float64(i)

		lower := q.Tick(base * (1 - step))
		if lower > 0 && q.Price(lower) < base {
			seen[lower] = struct{}{}
		}

		upper := q.Tick(base * (1 + step))
		if q.Price(upper) > base {
			seen[upper] = struct{}{}
		}
	}

	out := make([]Tick, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sortTicks(out)
	return out
}

// Diff returns the ticks to cancel (old − next) and to place (next − old),
// each ascending. With no previous ladder everything in next is placed.
func Diff(old, next []Tick) (toCancel, toPlace []Tick) {
	oldSet := make(map[Tick]struct{}, len(old))
	for _, t := range old {
		oldSet[t] = struct{}{}
	}
	nextSet := make(map[Tick]struct{}, len(next))
	for _, t := range next {
		nextSet[t] = struct{}{}
	}

	for t := range oldSet {
		if _, ok := nextSet[t]; !ok {
			toCancel = append(toCancel, t)
		}
	}
	for t := range nextSet {
		if _, ok := oldSet[t]; !ok {
			toPlace = append(toPlace, t)
		}
	}
	sortTicks(toCancel)
	sortTicks(toPlace)
	return toCancel, toPlace
}

func sortTicks(ts []Tick) {
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
}
