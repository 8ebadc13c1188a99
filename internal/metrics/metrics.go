// Package metrics exposes backtest progress and order flow to Prometheus.
//
//   - gridbt_orders_placed_total{side}    – Orders accepted by the exchange simulator
//   - gridbt_orders_cancelled_total       – Resting orders withdrawn
//   - gridbt_fills_total{side}            – Orders filled
//   - gridbt_filled_volume_total{side}    – Base volume filled
//   - gridbt_bars_processed_total         – Bars fed through the engine
//   - gridbt_windows_loaded_total         – Windows pulled from the bar store
//   - gridbt_equity_quote                 – Current equity
//   - gridbt_drawdown_ratio               – Current and max drawdown vs initial equity
//   - gridbt_halted                       – 1 once the strategy halted
//   - gridbt_progress_percent             – Run progress
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hedged-grid-backtest/internal/models"
)

// Collector implements exchange.Observer and the harness progress hooks.
type Collector struct {
	ordersPlaced    *prometheus.CounterVec
	ordersCancelled prometheus.Counter
	fills           *prometheus.CounterVec
	filledVolume    *prometheus.CounterVec
	bars            prometheus.Counter
	windows         prometheus.Counter
	equity          prometheus.Gauge
	drawdown        *prometheus.GaugeVec
	halted          prometheus.Gauge
	progress        prometheus.Gauge
}

// NewCollector builds the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is what tests of other packages want.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridbt_orders_placed_total",
			Help: "Orders accepted by the exchange simulator",
		}, []string{"side"}),
		ordersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridbt_orders_cancelled_total",
			Help: "Resting orders withdrawn",
		}),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridbt_fills_total",
			Help: "Orders filled",
		}, []string{"side"}),
		filledVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridbt_filled_volume_total",
			Help: "Base volume filled",
		}, []string{"side"}),
		bars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridbt_bars_processed_total",
			Help: "Bars fed through the engine",
		}),
		windows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridbt_windows_loaded_total",
			Help: "Windows pulled from the bar store",
		}),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridbt_equity_quote",
			Help: "Current equity in quote currency",
		}),
		// 两条带标签的序列: current 与 max
		drawdown: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridbt_drawdown_ratio",
			Help: "Drawdown relative to initial equity",
		}, []string{"kind"}),
		halted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridbt_halted",
			Help: "1 once the strategy halted trading",
		}),
		progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridbt_progress_percent",
			Help: "Backtest progress in percent",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.ordersPlaced, c.ordersCancelled, c.fills, c.filledVolume,
			c.bars, c.windows, c.equity, c.drawdown, c.halted, c.progress)
	}
	return c
}

func (c *Collector) OrderPlaced(side models.Side) {
	c.ordersPlaced.WithLabelValues(string(side)).Inc()
}

func (c *Collector) OrderCancelled() { c.ordersCancelled.Inc() }

func (c *Collector) OrderFilled(side models.Side, volume float64) {
	c.fills.WithLabelValues(string(side)).Inc()
	c.filledVolume.WithLabelValues(string(side)).Add(volume)
}

// BarProcessed counts one engine step.
func (c *Collector) BarProcessed() { c.bars.Inc() }

// WindowLoaded records a finished window and the run progress after it.
func (c *Collector) WindowLoaded(progress int) {
	c.windows.Inc()
	c.progress.Set(float64(progress))
}

// ObserveAccount copies the account gauges.
func (c *Collector) ObserveAccount(s models.AccountSnapshot) {
	c.equity.Set(s.Equity)
	c.drawdown.WithLabelValues("current").Set(s.Drawdown)
	c.drawdown.WithLabelValues("max").Set(s.MaxDrawdown)
	if s.Halted {
		c.halted.Set(1)
	} else {
		c.halted.Set(0)
	}
}

// Serve exposes g on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
