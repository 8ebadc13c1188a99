// Package synthetic generates reproducible geometric Brownian motion bars
// for smoke runs without market data.
package synthetic

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"hedged-grid-backtest/internal/models"
)

const (
	wickPct    = 0.0005
	priceFloor = 1e-6
)

// Params controls the random walk.
type Params struct {
	StartPrice float64
	Mu         float64 // 每根K线的对数漂移
	Sigma      float64 // 每根K线的对数波动
	Seed       int64
	Volume     float64
}

// DefaultParams 1600 起步, 每分钟 0.2% 波动
func DefaultParams() Params {
	return Params{StartPrice: 1600, Sigma: 0.002, Seed: 42, Volume: 10}
}

// GenerateBars returns one bar per interval step over [start, end].
// Each bar opens at the previous close; wicks extend the body by wickPct.
func GenerateBars(symbol string, interval models.Interval, start, end time.Time, p Params) ([]models.Bar, error) {
	step, err := interval.Duration()
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end %s before start %s", end, start)
	}
	if p.StartPrice <= 0 {
		return nil, fmt.Errorf("start price must be positive, got %g", p.StartPrice)
	}

	rng := rand.New(rand.NewSource(p.Seed))
	n := int(end.Sub(start)/step) + 1
	bars := make([]models.Bar, 0, n)

	cur := p.StartPrice
	for t := start; !t.After(end); t = t.Add(step) {
		next := math.Max(priceFloor, cur*math.Exp(p.Mu+p.Sigma*rng.NormFloat64()))
		bars = append(bars, models.Bar{
			Symbol:   symbol,
			Interval: interval,
			Time:     t.UTC(),
			Open:     cur,
			High:     math.Max(cur, next) * (1 + wickPct),
			Low:      math.Min(cur, next) * (1 - wickPct),
			Close:    next,
			Volume:   p.Volume,
		})
		cur = next
	}
	return bars, nil
}
