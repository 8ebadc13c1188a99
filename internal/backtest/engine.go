package backtest

import (
	"time"

	"hedged-grid-backtest/internal/exchange"
	"hedged-grid-backtest/internal/metrics"
	"hedged-grid-backtest/internal/models"
	"hedged-grid-backtest/internal/strategy"
)

// Engine is the per-bar host loop: it crosses resting orders, shows the bar
// to the strategy and marks the account.
type Engine struct {
	exchange *exchange.BacktestExchange
	strategy strategy.Strategy
	metrics  *metrics.Collector

	lastTime time.Time
	bars     int
	skipped  int
}

// NewEngine wires the exchange's fills into the strategy.
// collector may be nil.
func NewEngine(ex *exchange.BacktestExchange, strat strategy.Strategy, collector *metrics.Collector) *Engine {
	ex.SetTradeHandler(strat.OnTrade)
	if collector != nil {
		ex.SetObserver(collector)
	}
	return &Engine{exchange: ex, strategy: strat, metrics: collector}
}

// NewBar processes one bar. Bars that do not move time forward are skipped
// and reported as false.
func (e *Engine) NewBar(bar models.Bar) bool {
	if !e.lastTime.IsZero() && !bar.Time.After(e.lastTime) {
		e.skipped++
		return false
	}
	e.lastTime = bar.Time

	e.exchange.CrossBar(bar)
	e.strategy.OnBar(bar)
	e.strategy.Account().Mark(bar.Time)

	e.bars++
	if e.metrics != nil {
		e.metrics.BarProcessed()
	}
	return true
}

func (e *Engine) Strategy() strategy.Strategy { return e.strategy }

func (e *Engine) Exchange() *exchange.BacktestExchange { return e.exchange }

// Bars returns how many bars were processed.
func (e *Engine) Bars() int { return e.bars }

// Skipped returns how many out-of-order or duplicate bars were dropped.
func (e *Engine) Skipped() int { return e.skipped }
